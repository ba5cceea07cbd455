package vision

import "github.com/banshee-data/attention.report/internal/config"

// FrameSignal carries the per-frame facial geometry measurements consumed by
// the violation tracker. Angle fields are nil when the upstream landmark
// detector could not produce a reliable reading for that frame (eyes closed,
// iris out of bounds, pose solve failure). A nil reading is never zero: it
// means "no measurement" and cannot start or sustain a violation.
type FrameSignal struct {
	Timestamp float64  `json:"timestamp"` // Video time in seconds, monotonically non-decreasing
	GazeH     *float64 `json:"gaze_h,omitempty"`
	GazeV     *float64 `json:"gaze_v,omitempty"`
	Yaw       *float64 `json:"yaw,omitempty"`
	Pitch     *float64 `json:"pitch,omitempty"`
	Roll      *float64 `json:"roll,omitempty"`
	NumFaces  int      `json:"num_faces"`
}

// Thresholds holds the fixed deviation thresholds for a processing run, in
// degrees. There is no run-time recalibration. Roll is computed by the pose
// solver but never thresholded in detection; the field is carried for
// diagnostics.
type Thresholds struct {
	EyeHorizontal float64 `json:"eye_horizontal"`
	EyeVertical   float64 `json:"eye_vertical"`
	Yaw           float64 `json:"yaw"`
	Pitch         float64 `json:"pitch"`
	Roll          float64 `json:"roll"`
}

// DefaultThresholds returns the fixed default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		EyeHorizontal: 8.0,
		EyeVertical:   6.0,
		Yaw:           30.0,
		Pitch:         20.0,
		Roll:          30.0,
	}
}

// ThresholdsFromTuning builds Thresholds from a loaded TuningConfig.
func ThresholdsFromTuning(cfg *config.TuningConfig) Thresholds {
	return Thresholds{
		EyeHorizontal: cfg.GetEyeHorizontalDeg(),
		EyeVertical:   cfg.GetEyeVerticalDeg(),
		Yaw:           cfg.GetYawDeg(),
		Pitch:         cfg.GetPitchDeg(),
		Roll:          cfg.GetRollDeg(),
	}
}

// ViolationCategory identifies one of the ten independent violation state
// machines maintained by the tracker.
type ViolationCategory string

const (
	GazeLeft      ViolationCategory = "gaze_left"
	GazeRight     ViolationCategory = "gaze_right"
	GazeUp        ViolationCategory = "gaze_up"
	GazeDown      ViolationCategory = "gaze_down"
	HeadLeft      ViolationCategory = "head_left"
	HeadRight     ViolationCategory = "head_right"
	HeadUp        ViolationCategory = "head_up"
	HeadDown      ViolationCategory = "head_down"
	FaceMissing   ViolationCategory = "face_missing"
	MultipleFaces ViolationCategory = "multiple_faces"
)

// AllCategories lists every violation category in evaluation order.
var AllCategories = []ViolationCategory{
	GazeLeft, GazeRight, GazeUp, GazeDown,
	HeadLeft, HeadRight, HeadUp, HeadDown,
	FaceMissing, MultipleFaces,
}

// IsPresence reports whether the category tracks face presence rather than
// an angle deviation. Presence categories carry no intensity.
func (c ViolationCategory) IsPresence() bool {
	return c == FaceMissing || c == MultipleFaces
}

// ViolationEvent is a finalized, debounced attention-deviation span.
// Immutable once created: the tracker emits it exactly once, when an active
// violation transitions back to inactive (or at Finalize), and only if the
// accumulated duration met the minimum-duration floor.
type ViolationEvent struct {
	Category  ViolationCategory `json:"type"`
	StartTime float64           `json:"timestamp"` // Seconds when the threshold was first exceeded
	Duration  float64           `json:"duration"`  // Seconds, rounded to 1 decimal
	Intensity float64           `json:"intensity"` // Peak |angle| in degrees; 0 for presence categories
}
