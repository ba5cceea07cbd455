package vision

import (
	"math"
	"testing"
)

func floatPtr(v float64) *float64 {
	return &v
}

func gazeFrame(ts float64, gazeH float64) FrameSignal {
	return FrameSignal{Timestamp: ts, GazeH: floatPtr(gazeH), NumFaces: 1}
}

func TestNewViolationTracker(t *testing.T) {
	tracker := NewViolationTracker(DefaultThresholds(), DefaultTrackerConfig())

	if tracker == nil {
		t.Fatal("expected non-nil tracker")
	}
	if got := len(tracker.Events()); got != 0 {
		t.Errorf("new tracker has %d events, want 0", got)
	}
	for _, cat := range AllCategories {
		if tracker.State(cat).Active {
			t.Errorf("category %s active on fresh tracker", cat)
		}
	}
}

func TestSustainedGazeRightEmitsOneEvent(t *testing.T) {
	th := DefaultThresholds()
	tracker := NewViolationTracker(th, DefaultTrackerConfig())

	// Hold gaze_h just over threshold for 0.20s, then return to center.
	over := th.EyeHorizontal + 1
	for _, ts := range []float64{0.0, 0.05, 0.10, 0.15, 0.20} {
		tracker.Observe(gazeFrame(ts, over))
	}
	tracker.Observe(gazeFrame(0.25, 0))

	events := tracker.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	ev := events[0]
	if ev.Category != GazeRight {
		t.Errorf("category = %s, want gaze_right", ev.Category)
	}
	if ev.StartTime != 0.0 {
		t.Errorf("start time = %v, want 0.0", ev.StartTime)
	}
	if math.Abs(ev.Duration-0.2) > 1e-9 {
		t.Errorf("duration = %v, want 0.2", ev.Duration)
	}
	if math.Abs(ev.Intensity-over) > 1e-9 {
		t.Errorf("intensity = %v, want %v", ev.Intensity, over)
	}
}

func TestShortSpanDebounced(t *testing.T) {
	th := DefaultThresholds()
	tracker := NewViolationTracker(th, DefaultTrackerConfig())

	// Active for only 0.10s, below the 0.15s floor.
	tracker.Observe(gazeFrame(0.0, th.EyeHorizontal+2))
	tracker.Observe(gazeFrame(0.10, th.EyeHorizontal+2))
	tracker.Observe(gazeFrame(0.20, 0))

	if got := len(tracker.Events()); got != 0 {
		t.Errorf("expected 0 events for sub-floor span, got %d", got)
	}
	if tracker.Counts()[GazeRight] != 0 {
		t.Errorf("count incremented for debounced span")
	}
}

func TestFinalizeFlushesActiveViolation(t *testing.T) {
	tracker := NewViolationTracker(DefaultThresholds(), DefaultTrackerConfig())

	// face_missing active at end of stream.
	tracker.Observe(FrameSignal{Timestamp: 1.0, NumFaces: 0})
	tracker.Observe(FrameSignal{Timestamp: 1.5, NumFaces: 0})
	tracker.Observe(FrameSignal{Timestamp: 2.0, NumFaces: 0})
	tracker.Finalize()

	events := tracker.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event after finalize, got %d", len(events))
	}

	ev := events[0]
	if ev.Category != FaceMissing {
		t.Errorf("category = %s, want face_missing", ev.Category)
	}
	if ev.StartTime != 1.0 {
		t.Errorf("start time = %v, want 1.0", ev.StartTime)
	}
	if math.Abs(ev.Duration-1.0) > 1e-9 {
		t.Errorf("duration = %v, want last_timestamp - start_time = 1.0", ev.Duration)
	}
	if ev.Intensity != 0 {
		t.Errorf("presence event intensity = %v, want 0", ev.Intensity)
	}
}

func TestFinalizeIdempotent(t *testing.T) {
	tracker := NewViolationTracker(DefaultThresholds(), DefaultTrackerConfig())

	tracker.Observe(FrameSignal{Timestamp: 0.0, NumFaces: 0})
	tracker.Observe(FrameSignal{Timestamp: 0.5, NumFaces: 0})
	tracker.Finalize()
	tracker.Finalize()

	if got := len(tracker.Events()); got != 1 {
		t.Errorf("expected 1 event after double finalize, got %d", got)
	}
}

func TestAbsentMeasurementEndsViolation(t *testing.T) {
	th := DefaultThresholds()
	tracker := NewViolationTracker(th, DefaultTrackerConfig())

	// Violation builds past the floor, then the reading drops out.
	tracker.Observe(gazeFrame(0.0, -(th.EyeHorizontal + 3)))
	tracker.Observe(gazeFrame(0.2, -(th.EyeHorizontal + 3)))
	tracker.Observe(FrameSignal{Timestamp: 0.4, NumFaces: 1}) // gaze absent

	events := tracker.Events()
	if len(events) != 1 {
		t.Fatalf("expected absent reading to force an end-transition, got %d events", len(events))
	}
	if events[0].Category != GazeLeft {
		t.Errorf("category = %s, want gaze_left", events[0].Category)
	}
	// Duration runs to the last frame that satisfied the condition.
	if math.Abs(events[0].Duration-0.2) > 1e-9 {
		t.Errorf("duration = %v, want 0.2", events[0].Duration)
	}

	// The dropout must not have started anything new.
	if tracker.State(GazeLeft).Active || tracker.State(GazeRight).Active {
		t.Error("absent measurement started or sustained a violation")
	}
}

func TestAbsentMeasurementNeverStartsViolation(t *testing.T) {
	tracker := NewViolationTracker(DefaultThresholds(), DefaultTrackerConfig())

	for ts := 0.0; ts < 2.0; ts += 0.1 {
		tracker.Observe(FrameSignal{Timestamp: ts, NumFaces: 1})
	}
	tracker.Finalize()

	for _, ev := range tracker.Events() {
		t.Errorf("unexpected event %s from absent-only stream", ev.Category)
	}
}

func TestOppositeDirectionsAreSeparateEvents(t *testing.T) {
	th := DefaultThresholds()
	tracker := NewViolationTracker(th, DefaultTrackerConfig())

	// Head swings from hard left to hard right: head_left must end and
	// head_right start on adjacent frames, with no merging.
	left := -(th.Yaw + 10)
	right := th.Yaw + 10
	tracker.Observe(FrameSignal{Timestamp: 0.0, Yaw: floatPtr(left), NumFaces: 1})
	tracker.Observe(FrameSignal{Timestamp: 0.2, Yaw: floatPtr(left), NumFaces: 1})
	tracker.Observe(FrameSignal{Timestamp: 0.4, Yaw: floatPtr(right), NumFaces: 1})
	tracker.Observe(FrameSignal{Timestamp: 0.6, Yaw: floatPtr(right), NumFaces: 1})
	tracker.Finalize()

	events := tracker.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	byCategory := make(map[ViolationCategory]ViolationEvent)
	for _, ev := range events {
		byCategory[ev.Category] = ev
	}
	if _, ok := byCategory[HeadLeft]; !ok {
		t.Error("missing head_left event")
	}
	if _, ok := byCategory[HeadRight]; !ok {
		t.Error("missing head_right event")
	}
	if byCategory[HeadRight].StartTime != 0.4 {
		t.Errorf("head_right start = %v, want 0.4", byCategory[HeadRight].StartTime)
	}
}

func TestIntensityTracksPeakAbsoluteAngle(t *testing.T) {
	th := DefaultThresholds()
	tracker := NewViolationTracker(th, DefaultTrackerConfig())

	tracker.Observe(FrameSignal{Timestamp: 0.0, Pitch: floatPtr(th.Pitch + 1), NumFaces: 1})
	tracker.Observe(FrameSignal{Timestamp: 0.1, Pitch: floatPtr(th.Pitch + 9), NumFaces: 1})
	tracker.Observe(FrameSignal{Timestamp: 0.3, Pitch: floatPtr(th.Pitch + 4), NumFaces: 1})
	tracker.Observe(FrameSignal{Timestamp: 0.4, Pitch: floatPtr(0), NumFaces: 1})

	events := tracker.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 head_down event, got %d", len(events))
	}
	if want := th.Pitch + 9; events[0].Intensity != want {
		t.Errorf("intensity = %v, want peak %v", events[0].Intensity, want)
	}
}

func TestMultipleFacesCondition(t *testing.T) {
	tracker := NewViolationTracker(DefaultThresholds(), DefaultTrackerConfig())

	tracker.Observe(FrameSignal{Timestamp: 0.0, NumFaces: 2})
	tracker.Observe(FrameSignal{Timestamp: 0.3, NumFaces: 3})
	tracker.Observe(FrameSignal{Timestamp: 0.5, NumFaces: 1})
	tracker.Finalize()

	events := tracker.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 multiple_faces event, got %d", len(events))
	}
	if events[0].Category != MultipleFaces {
		t.Errorf("category = %s, want multiple_faces", events[0].Category)
	}
	if counts := tracker.Counts(); counts[MultipleFaces] != 1 {
		t.Errorf("multiple_faces count = %d, want 1", counts[MultipleFaces])
	}
}

func TestDurationRoundedToOneDecimal(t *testing.T) {
	th := DefaultThresholds()
	tracker := NewViolationTracker(th, DefaultTrackerConfig())

	tracker.Observe(gazeFrame(0.0, th.EyeHorizontal+1))
	tracker.Observe(gazeFrame(0.333, th.EyeHorizontal+1))
	tracker.Observe(gazeFrame(0.5, 0))

	events := tracker.Events()
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}
	if events[0].Duration != 0.3 {
		t.Errorf("duration = %v, want 0.3 (rounded to 1 decimal)", events[0].Duration)
	}
}

func TestThresholdBoundaryIsNotViolation(t *testing.T) {
	th := DefaultThresholds()
	tracker := NewViolationTracker(th, DefaultTrackerConfig())

	// Exactly at threshold: strict inequality, no violation.
	tracker.Observe(gazeFrame(0.0, th.EyeHorizontal))
	tracker.Observe(gazeFrame(0.5, th.EyeHorizontal))
	tracker.Finalize()

	if got := len(tracker.Events()); got != 0 {
		t.Errorf("expected 0 events at threshold boundary, got %d", got)
	}
}

func TestInactiveStateIsStale(t *testing.T) {
	th := DefaultThresholds()
	tracker := NewViolationTracker(th, DefaultTrackerConfig())

	tracker.Observe(gazeFrame(0.0, th.EyeHorizontal+5))
	tracker.Observe(gazeFrame(0.3, th.EyeHorizontal+5))
	tracker.Observe(gazeFrame(0.5, 0))

	state := tracker.State(GazeRight)
	if state.Active {
		t.Error("state still active after end-transition")
	}
	// A new span restarts cleanly despite stale fields.
	tracker.Observe(gazeFrame(1.0, th.EyeHorizontal+2))
	state = tracker.State(GazeRight)
	if !state.Active || state.StartTime != 1.0 || state.Duration != 0 {
		t.Errorf("restarted state = %+v, want active with start 1.0, duration 0", state)
	}
}
