package vision

import (
	"math"

	"github.com/banshee-data/attention.report/internal/config"
)

// TrackerConfig holds configuration parameters for the violation tracker.
type TrackerConfig struct {
	// MinEventDuration is the debounce floor in seconds: spans shorter than
	// this are valid detections but intentionally not reported, suppressing
	// one-to-two-frame flicker.
	MinEventDuration float64
}

// DefaultTrackerConfig returns the default tracker configuration.
func DefaultTrackerConfig() TrackerConfig {
	return TrackerConfig{
		MinEventDuration: 0.15,
	}
}

// TrackerConfigFromTuning builds a TrackerConfig from a loaded TuningConfig.
func TrackerConfigFromTuning(cfg *config.TuningConfig) TrackerConfig {
	return TrackerConfig{
		MinEventDuration: cfg.GetMinEventDurationSec(),
	}
}

// ViolationState is the per-category debounce state. When Active is false
// the Duration and MaxIntensity fields are stale and must be ignored.
type ViolationState struct {
	Active       bool
	StartTime    float64
	Duration     float64
	MaxIntensity float64
}

// ViolationTracker converts instantaneous per-frame threshold comparisons
// into discrete timestamped events. It maintains one independent two-state
// (inactive/active) machine per violation category, tolerating single-frame
// measurement dropouts via the minimum-duration debounce.
//
// The tracker is stateful across frames and expects them in timestamp
// order; each independent video stream needs its own instance. Finalize
// must be called at end of stream to flush any still-active violation.
type ViolationTracker struct {
	thresholds Thresholds
	config     TrackerConfig

	states map[ViolationCategory]*ViolationState
	events []ViolationEvent
	counts map[ViolationCategory]int
}

// NewViolationTracker creates a tracker with the given fixed thresholds.
func NewViolationTracker(thresholds Thresholds, cfg TrackerConfig) *ViolationTracker {
	states := make(map[ViolationCategory]*ViolationState, len(AllCategories))
	counts := make(map[ViolationCategory]int, len(AllCategories))
	for _, cat := range AllCategories {
		states[cat] = &ViolationState{}
		counts[cat] = 0
	}
	return &ViolationTracker{
		thresholds: thresholds,
		config:     cfg,
		states:     states,
		counts:     counts,
	}
}

// Observe evaluates one frame against every category. An absent measurement
// makes that axis's conditions false, so it can neither start nor sustain a
// violation: an ongoing one is ended (and debounced) instead.
func (t *ViolationTracker) Observe(sig FrameSignal) {
	ts := sig.Timestamp

	t.check(GazeLeft, sig.GazeH != nil && *sig.GazeH < -t.thresholds.EyeHorizontal, ts, absOrZero(sig.GazeH))
	t.check(GazeRight, sig.GazeH != nil && *sig.GazeH > t.thresholds.EyeHorizontal, ts, absOrZero(sig.GazeH))
	t.check(GazeUp, sig.GazeV != nil && *sig.GazeV < -t.thresholds.EyeVertical, ts, absOrZero(sig.GazeV))
	t.check(GazeDown, sig.GazeV != nil && *sig.GazeV > t.thresholds.EyeVertical, ts, absOrZero(sig.GazeV))

	t.check(HeadLeft, sig.Yaw != nil && *sig.Yaw < -t.thresholds.Yaw, ts, absOrZero(sig.Yaw))
	t.check(HeadRight, sig.Yaw != nil && *sig.Yaw > t.thresholds.Yaw, ts, absOrZero(sig.Yaw))
	t.check(HeadUp, sig.Pitch != nil && *sig.Pitch < -t.thresholds.Pitch, ts, absOrZero(sig.Pitch))
	t.check(HeadDown, sig.Pitch != nil && *sig.Pitch > t.thresholds.Pitch, ts, absOrZero(sig.Pitch))

	// Roll is carried in the signal but has no active threshold.

	t.check(FaceMissing, sig.NumFaces == 0, ts, 0)
	t.check(MultipleFaces, sig.NumFaces > 1, ts, 0)
}

// check drives one category's state machine for the current frame.
func (t *ViolationTracker) check(cat ViolationCategory, condition bool, timestamp, intensity float64) {
	state := t.states[cat]

	if condition {
		if !state.Active {
			t.startViolation(cat, timestamp, intensity)
		} else {
			t.updateViolation(cat, timestamp, intensity)
		}
	} else if state.Active {
		t.endViolation(cat)
	}
}

// startViolation is the only transition from inactive to active. It records
// the exact timestamp at which the threshold was first exceeded.
func (t *ViolationTracker) startViolation(cat ViolationCategory, timestamp, intensity float64) {
	*t.states[cat] = ViolationState{
		Active:       true,
		StartTime:    timestamp,
		Duration:     0,
		MaxIntensity: intensity,
	}
}

func (t *ViolationTracker) updateViolation(cat ViolationCategory, timestamp, intensity float64) {
	state := t.states[cat]
	state.Duration = timestamp - state.StartTime
	state.MaxIntensity = math.Max(state.MaxIntensity, intensity)
}

// endViolation transitions a category back to inactive, emitting an event
// if the span met the minimum-duration floor and discarding it otherwise.
func (t *ViolationTracker) endViolation(cat ViolationCategory) {
	state := t.states[cat]

	if state.Active && state.Duration >= t.config.MinEventDuration {
		t.counts[cat]++
		t.events = append(t.events, ViolationEvent{
			Category:  cat,
			StartTime: state.StartTime,
			Duration:  round1(state.Duration),
			Intensity: state.MaxIntensity,
		})
	}

	state.Active = false
}

// Finalize ends every still-active violation through the same debounce
// path, so a violation running at end of stream is never silently dropped.
// Safe to call after an aborted stream.
func (t *ViolationTracker) Finalize() {
	for _, cat := range AllCategories {
		if t.states[cat].Active {
			t.endViolation(cat)
		}
	}
}

// Events returns a copy of the finalized events, in emission order
// (chronological within each category).
func (t *ViolationTracker) Events() []ViolationEvent {
	events := make([]ViolationEvent, len(t.events))
	copy(events, t.events)
	return events
}

// Counts returns a copy of the per-category finalized event counts.
func (t *ViolationTracker) Counts() map[ViolationCategory]int {
	counts := make(map[ViolationCategory]int, len(t.counts))
	for cat, n := range t.counts {
		counts[cat] = n
	}
	return counts
}

// State returns a copy of a category's current debounce state. Readers must
// ignore Duration and MaxIntensity when Active is false.
func (t *ViolationTracker) State(cat ViolationCategory) ViolationState {
	if state, ok := t.states[cat]; ok {
		return *state
	}
	return ViolationState{}
}

func absOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return math.Abs(*v)
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
