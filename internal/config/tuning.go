package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for detection tuning
// parameters. All fields are pointers so a partial JSON file can override
// just the values it names; the Get* accessors supply defaults for the rest.
type TuningConfig struct {
	// Violation thresholds (degrees)
	EyeHorizontalDeg *float64 `json:"eye_horizontal_deg,omitempty"`
	EyeVerticalDeg   *float64 `json:"eye_vertical_deg,omitempty"`
	YawDeg           *float64 `json:"yaw_deg,omitempty"`
	PitchDeg         *float64 `json:"pitch_deg,omitempty"`
	RollDeg          *float64 `json:"roll_deg,omitempty"`

	// Debounce params
	MinEventDurationSec *float64 `json:"min_event_duration_sec,omitempty"`

	// Gaze smoothing params
	KalmanProcessNoise     *float64 `json:"kalman_process_noise,omitempty"`
	KalmanMeasurementNoise *float64 `json:"kalman_measurement_noise,omitempty"`
	GazeHistorySize        *int     `json:"gaze_history_size,omitempty"`

	// Head pose solver params
	PnPMaxIterations *int `json:"pnp_max_iterations,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and fit under a 1MB size cap. Fields omitted from the
// JSON retain their default values, so partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching the current directory and common parent
// directories. Panics if the file cannot be loaded; intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/tools/*
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	degreeFields := map[string]*float64{
		"eye_horizontal_deg": c.EyeHorizontalDeg,
		"eye_vertical_deg":   c.EyeVerticalDeg,
		"yaw_deg":            c.YawDeg,
		"pitch_deg":          c.PitchDeg,
		"roll_deg":           c.RollDeg,
	}
	for name, v := range degreeFields {
		if v != nil && (*v <= 0 || *v >= 180) {
			return fmt.Errorf("%s must be in (0, 180), got %f", name, *v)
		}
	}

	if c.MinEventDurationSec != nil && *c.MinEventDurationSec < 0 {
		return fmt.Errorf("min_event_duration_sec must be non-negative, got %f", *c.MinEventDurationSec)
	}

	if c.KalmanProcessNoise != nil && *c.KalmanProcessNoise <= 0 {
		return fmt.Errorf("kalman_process_noise must be positive, got %f", *c.KalmanProcessNoise)
	}

	if c.KalmanMeasurementNoise != nil && *c.KalmanMeasurementNoise <= 0 {
		return fmt.Errorf("kalman_measurement_noise must be positive, got %f", *c.KalmanMeasurementNoise)
	}

	if c.GazeHistorySize != nil && *c.GazeHistorySize < 5 {
		return fmt.Errorf("gaze_history_size must be >= 5, got %d", *c.GazeHistorySize)
	}

	if c.PnPMaxIterations != nil && *c.PnPMaxIterations < 1 {
		return fmt.Errorf("pnp_max_iterations must be >= 1, got %d", *c.PnPMaxIterations)
	}

	return nil
}

// GetEyeHorizontalDeg returns the eye_horizontal_deg value or the default.
func (c *TuningConfig) GetEyeHorizontalDeg() float64 {
	if c.EyeHorizontalDeg == nil {
		return 8.0
	}
	return *c.EyeHorizontalDeg
}

// GetEyeVerticalDeg returns the eye_vertical_deg value or the default.
func (c *TuningConfig) GetEyeVerticalDeg() float64 {
	if c.EyeVerticalDeg == nil {
		return 6.0
	}
	return *c.EyeVerticalDeg
}

// GetYawDeg returns the yaw_deg value or the default.
func (c *TuningConfig) GetYawDeg() float64 {
	if c.YawDeg == nil {
		return 30.0
	}
	return *c.YawDeg
}

// GetPitchDeg returns the pitch_deg value or the default.
func (c *TuningConfig) GetPitchDeg() float64 {
	if c.PitchDeg == nil {
		return 20.0
	}
	return *c.PitchDeg
}

// GetRollDeg returns the roll_deg value or the default. Roll is computed by
// the pose solver but carries no active detection threshold; the value is
// kept for diagnostics and future use.
func (c *TuningConfig) GetRollDeg() float64 {
	if c.RollDeg == nil {
		return 30.0
	}
	return *c.RollDeg
}

// GetMinEventDurationSec returns the min_event_duration_sec value or the default.
func (c *TuningConfig) GetMinEventDurationSec() float64 {
	if c.MinEventDurationSec == nil {
		return 0.15
	}
	return *c.MinEventDurationSec
}

// GetKalmanProcessNoise returns the kalman_process_noise value or the default.
func (c *TuningConfig) GetKalmanProcessNoise() float64 {
	if c.KalmanProcessNoise == nil {
		return 0.03
	}
	return *c.KalmanProcessNoise
}

// GetKalmanMeasurementNoise returns the kalman_measurement_noise value or the default.
func (c *TuningConfig) GetKalmanMeasurementNoise() float64 {
	if c.KalmanMeasurementNoise == nil {
		return 0.1
	}
	return *c.KalmanMeasurementNoise
}

// GetGazeHistorySize returns the gaze_history_size value or the default.
func (c *TuningConfig) GetGazeHistorySize() int {
	if c.GazeHistorySize == nil {
		return 7
	}
	return *c.GazeHistorySize
}

// GetPnPMaxIterations returns the pnp_max_iterations value or the default.
func (c *TuningConfig) GetPnPMaxIterations() int {
	if c.PnPMaxIterations == nil {
		return 100
	}
	return *c.PnPMaxIterations
}
