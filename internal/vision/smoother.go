package vision

import (
	"math"

	"github.com/banshee-data/attention.report/internal/config"
)

// Constants for gaze smoothing
const (
	// GazeRangeCompression compresses displacement ratios before the arcsine
	// projection so readings near ±1 do not blow up asymptotically.
	GazeRangeCompression = 0.9
	// GazeBlendWindow is the number of recent samples combined by the
	// recency-weighted moving average once the history has filled.
	GazeBlendWindow = 5
)

// gazeBlendWeights are the fixed recency weights applied to the last
// GazeBlendWindow samples, oldest first. They sum to 1.
var gazeBlendWeights = [GazeBlendWindow]float64{0.10, 0.15, 0.20, 0.25, 0.30}

// SmootherConfig holds tuning parameters for the gaze smoother.
type SmootherConfig struct {
	ProcessNoise     float64 // Kalman process-noise covariance (σ², applied to both states)
	MeasurementNoise float64 // Kalman measurement-noise covariance (σ²)
	HistorySize      int     // Rolling history capacity, oldest evicted on overflow
}

// DefaultSmootherConfig returns the default smoother configuration.
func DefaultSmootherConfig() SmootherConfig {
	return SmootherConfig{
		ProcessNoise:     0.03,
		MeasurementNoise: 0.1,
		HistorySize:      7,
	}
}

// SmootherConfigFromTuning builds a SmootherConfig from a loaded TuningConfig.
func SmootherConfigFromTuning(cfg *config.TuningConfig) SmootherConfig {
	return SmootherConfig{
		ProcessNoise:     cfg.GetKalmanProcessNoise(),
		MeasurementNoise: cfg.GetKalmanMeasurementNoise(),
		HistorySize:      cfg.GetGazeHistorySize(),
	}
}

// gazeKalman is a 2-state (position, velocity) linear Kalman filter for one
// gaze axis. State transition is [[1,1],[0,1]], measurement extracts
// position. The fixed-dimension case is small enough to write out directly.
type gazeKalman struct {
	initialized bool
	pos         float64
	vel         float64
	// Covariance (2x2, row-major)
	p [4]float64
	q float64
	r float64
}

// step runs one predict-then-correct cycle and returns the corrected
// position estimate. The very first measurement seeds the state directly
// (zero velocity) and is returned unfiltered, avoiding a transient ramp-up
// bias. A numerically bad cycle returns the raw measurement and leaves the
// filter state untouched.
func (k *gazeKalman) step(z float64) float64 {
	if !k.initialized {
		k.pos = z
		k.vel = 0
		k.initialized = true
		return z
	}

	// Predict: x' = F*x, P' = F*P*F^T + Q
	predPos := k.pos + k.vel
	predVel := k.vel
	p00 := k.p[0] + k.p[2] + k.p[1] + k.p[3] + k.q
	p01 := k.p[1] + k.p[3]
	p10 := k.p[2] + k.p[3]
	p11 := k.p[3] + k.q

	// Correct: K = P'*H^T / (H*P'*H^T + R), H = [1, 0]
	s := p00 + k.r
	if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return z
	}
	k0 := p00 / s
	k1 := p10 / s

	innovation := z - predPos
	newPos := predPos + k0*innovation
	newVel := predVel + k1*innovation

	if math.IsNaN(newPos) || math.IsInf(newPos, 0) {
		return z
	}

	k.pos = newPos
	k.vel = newVel
	// P = (I - K*H) * P'
	k.p[0] = (1 - k0) * p00
	k.p[1] = (1 - k0) * p01
	k.p[2] = p10 - k1*p00
	k.p[3] = p11 - k1*p01

	return newPos
}

// GazeSmoother converts raw iris-displacement ratios into stable gaze angle
// estimates. Each axis runs through an independent Kalman filter, then a
// recency-weighted moving average over a bounded rolling history.
//
// The smoother is stateful across frames and strictly single-stream: every
// independent video must construct its own instance.
type GazeSmoother struct {
	cfg     SmootherConfig
	kfH     gazeKalman
	kfV     gazeKalman
	history [][2]float64
}

// NewGazeSmoother creates a gaze smoother with the given configuration.
func NewGazeSmoother(cfg SmootherConfig) *GazeSmoother {
	if cfg.HistorySize < GazeBlendWindow {
		cfg.HistorySize = GazeBlendWindow
	}
	return &GazeSmoother{
		cfg:     cfg,
		kfH:     gazeKalman{q: cfg.ProcessNoise, r: cfg.MeasurementNoise},
		kfV:     gazeKalman{q: cfg.ProcessNoise, r: cfg.MeasurementNoise},
		history: make([][2]float64, 0, cfg.HistorySize),
	}
}

// Smooth converts one frame's horizontal/vertical displacement ratios (each
// in [-1, 1]; out-of-range inputs are clamped) into smoothed gaze angles in
// degrees, rounded to 2 decimals.
func (s *GazeSmoother) Smooth(horizontalRatio, verticalRatio float64) (horizontal, vertical float64) {
	horizontal = ratioToAngle(horizontalRatio)
	vertical = ratioToAngle(verticalRatio)

	horizontal = s.kfH.step(horizontal)
	vertical = s.kfV.step(vertical)

	s.history = append(s.history, [2]float64{horizontal, vertical})
	if len(s.history) > s.cfg.HistorySize {
		s.history = s.history[1:]
	}

	if len(s.history) >= GazeBlendWindow {
		recent := s.history[len(s.history)-GazeBlendWindow:]
		var blendH, blendV float64
		for i, sample := range recent {
			blendH += sample[0] * gazeBlendWeights[i]
			blendV += sample[1] * gazeBlendWeights[i]
		}
		horizontal = blendH
		vertical = blendV
	}

	return round2(horizontal), round2(vertical)
}

// HistoryLen returns the number of samples currently in the rolling history.
func (s *GazeSmoother) HistoryLen() int {
	return len(s.history)
}

// ratioToAngle maps a displacement ratio to a gaze angle in degrees via the
// compressed arcsine projection.
func ratioToAngle(ratio float64) float64 {
	ratio = clamp(ratio, -1, 1)
	return math.Asin(ratio*GazeRangeCompression) * (180.0 / math.Pi)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
