package vision

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/banshee-data/attention.report/internal/config"
	"github.com/banshee-data/attention.report/internal/monitoring"
)

// Feeding frames out of timestamp order or touching a finalized pipeline is
// a programmer error, not a recoverable frame condition.
var (
	ErrOutOfOrder = errors.New("frame timestamp precedes previous frame")
	ErrFinalized  = errors.New("pipeline already finalized")
)

// PipelineConfig bundles the tuning for one video processing run.
type PipelineConfig struct {
	Thresholds       Thresholds
	Smoother         SmootherConfig
	Tracker          TrackerConfig
	PnPMaxIterations int
}

// DefaultPipelineConfig returns the fixed default configuration.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Thresholds:       DefaultThresholds(),
		Smoother:         DefaultSmootherConfig(),
		Tracker:          DefaultTrackerConfig(),
		PnPMaxIterations: 100,
	}
}

// PipelineConfigFromTuning builds a PipelineConfig from a loaded TuningConfig.
func PipelineConfigFromTuning(cfg *config.TuningConfig) PipelineConfig {
	return PipelineConfig{
		Thresholds:       ThresholdsFromTuning(cfg),
		Smoother:         SmootherConfigFromTuning(cfg),
		Tracker:          TrackerConfigFromTuning(cfg),
		PnPMaxIterations: cfg.GetPnPMaxIterations(),
	}
}

// RawFrame carries one frame's raw measurements, before angle derivation.
// Ratio fields are nil when the landmark detector had no reliable gaze
// reading (eyes closed, iris out of bounds, eye width below the validity
// floor); PoseLandmarks is nil when no face was usable for pose.
type RawFrame struct {
	Timestamp       float64                       `json:"timestamp"`
	HorizontalRatio *float64                      `json:"horizontal_ratio,omitempty"`
	VerticalRatio   *float64                      `json:"vertical_ratio,omitempty"`
	PoseLandmarks   *[NumPoseLandmarks]ImagePoint `json:"pose_landmarks,omitempty"`
	FrameWidth      float64                       `json:"frame_width"`
	FrameHeight     float64                       `json:"frame_height"`
	NumFaces        int                           `json:"num_faces"`
}

// ProcessingMetadata summarises a completed run.
type ProcessingMetadata struct {
	ProcessingTimeSec int `json:"processing_time_sec"`
	VideoDurationSec  int `json:"video_duration_sec"`
	FramesProcessed   int `json:"frames_processed"`
}

// Report is the external-facing analysis result for one video.
type Report struct {
	Gestures       []GestureGroup     `json:"gestures"`
	ThresholdsUsed Thresholds         `json:"thresholds_used"`
	Metadata       ProcessingMetadata `json:"processing_metadata"`
}

// Pipeline orchestrates the per-video signal-to-event flow: raw measurements
// through the gaze smoother and head pose solver into the violation tracker,
// then out as a gesture report. Frames must arrive strictly in timestamp
// order; the pipeline is single-stream and not safe for concurrent use.
// Construct a fresh instance per video.
type Pipeline struct {
	cfg      PipelineConfig
	smoother *GazeSmoother
	tracker  *ViolationTracker

	framesProcessed int
	lastTimestamp   float64
	haveFrames      bool
	finalized       bool
	startWall       time.Time
}

// NewPipeline creates a pipeline for one video run.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		smoother:  NewGazeSmoother(cfg.Smoother),
		tracker:   NewViolationTracker(cfg.Thresholds, cfg.Tracker),
		startWall: time.Now(),
	}
}

// ProcessSignal feeds one pre-derived frame signal into the tracker.
func (p *Pipeline) ProcessSignal(sig FrameSignal) error {
	if p.finalized {
		return ErrFinalized
	}
	if p.haveFrames && sig.Timestamp < p.lastTimestamp {
		return fmt.Errorf("%w: %.3f < %.3f", ErrOutOfOrder, sig.Timestamp, p.lastTimestamp)
	}

	p.tracker.Observe(sig)
	p.lastTimestamp = sig.Timestamp
	p.haveFrames = true
	p.framesProcessed++

	if p.framesProcessed%100 == 0 {
		monitoring.Logf("processed %d frames (%.1fs)", p.framesProcessed, sig.Timestamp)
	}
	return nil
}

// ProcessRawFrame derives a FrameSignal from raw measurements (gaze ratios
// through the smoother, pose landmarks through the PnP solver) and feeds it
// to the tracker. Solver failures degrade to an absent pose for the frame;
// they never abort the stream. The derived signal is returned for logging
// or persistence by the caller.
func (p *Pipeline) ProcessRawFrame(frame RawFrame) (FrameSignal, error) {
	sig := FrameSignal{
		Timestamp: frame.Timestamp,
		NumFaces:  frame.NumFaces,
	}

	if frame.HorizontalRatio != nil && frame.VerticalRatio != nil {
		h, v := p.smoother.Smooth(*frame.HorizontalRatio, *frame.VerticalRatio)
		sig.GazeH = &h
		sig.GazeV = &v
	}

	if frame.PoseLandmarks != nil {
		pose, err := SolveHeadPoseIter(*frame.PoseLandmarks, frame.FrameWidth, frame.FrameHeight, p.cfg.PnPMaxIterations)
		if err != nil {
			monitoring.Logf("head pose solve failed at %.3fs: %v", frame.Timestamp, err)
		} else {
			sig.Yaw = &pose.Yaw
			sig.Pitch = &pose.Pitch
			sig.Roll = &pose.Roll
		}
	}

	if err := p.ProcessSignal(sig); err != nil {
		return sig, err
	}
	return sig, nil
}

// Finalize flushes any still-active violation and assembles the report.
// Must be called exactly once at end of stream, including after an aborted
// stream, or a trailing partial event is lost. Further calls return the
// same report.
func (p *Pipeline) Finalize() *Report {
	if !p.finalized {
		p.tracker.Finalize()
		p.finalized = true
	}

	return &Report{
		Gestures:       BuildGestureGroups(p.tracker.Events()),
		ThresholdsUsed: p.cfg.Thresholds,
		Metadata: ProcessingMetadata{
			ProcessingTimeSec: int(math.Round(time.Since(p.startWall).Seconds())),
			VideoDurationSec:  int(math.Round(p.lastTimestamp)),
			FramesProcessed:   p.framesProcessed,
		},
	}
}

// Events returns the tracker's finalized events so far.
func (p *Pipeline) Events() []ViolationEvent {
	return p.tracker.Events()
}

// FramesProcessed returns the number of frames fed so far.
func (p *Pipeline) FramesProcessed() int {
	return p.framesProcessed
}
