package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
const DefaultConfigPath = "config/tuning.defaults.json"

// Accepted values for the enumerated string fields.
const (
	PolicyNaive    = "naive"
	PolicyFiltered = "filtered"

	ExhaustFreeze = "freeze"
	ExhaustStop   = "stop"
)

// TuningConfig is the root configuration document. Every field is optional;
// omitted fields fall back to the defaults returned by the Get* methods, so
// partial files are safe.
type TuningConfig struct {
	// Matching params
	InitialDistanceThreshold *float64 `json:"initial_distance_threshold,omitempty"`
	DynamicDistanceThreshold *float64 `json:"dynamic_distance_threshold,omitempty"`
	PredictionHorizon        *int     `json:"prediction_horizon,omitempty"`
	FrameBudget              *int     `json:"frame_budget,omitempty"`
	MatcherPolicy            *string  `json:"matcher_policy,omitempty"` // "naive" or "filtered"
	OnExhausted              *string  `json:"on_exhausted,omitempty"`   // "freeze" or "stop"
	NaiveExcludeExpired      *bool    `json:"naive_exclude_expired,omitempty"`
	MatchWorkers             *int     `json:"match_workers,omitempty"`

	// Corpus params
	TestTrajectoryID *string  `json:"test_trajectory_id,omitempty"`
	MinTrackPoints   *int     `json:"min_track_points,omitempty"`
	NoiseAmplitude   *float64 `json:"noise_amplitude,omitempty"`
	NoiseSeed        *uint64  `json:"noise_seed,omitempty"`

	// Render params
	CanvasSizePx *int     `json:"canvas_size_px,omitempty"`
	CanvasScale  *float64 `json:"canvas_scale,omitempty"` // pixels per world unit
	InnerRadius  *float64 `json:"inner_radius,omitempty"`
	OuterRadius  *float64 `json:"outer_radius,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated from
// the built-in defaults. It matches config/tuning.defaults.json.
func DefaultTuningConfig() *TuningConfig {
	e := EmptyTuningConfig()
	return &TuningConfig{
		InitialDistanceThreshold: ptrFloat64(e.GetInitialDistanceThreshold()),
		DynamicDistanceThreshold: ptrFloat64(e.GetDynamicDistanceThreshold()),
		PredictionHorizon:        ptrInt(e.GetPredictionHorizon()),
		FrameBudget:              ptrInt(e.GetFrameBudget()),
		MatcherPolicy:            ptrString(e.GetMatcherPolicy()),
		OnExhausted:              ptrString(e.GetOnExhausted()),
		NaiveExcludeExpired:      ptrBool(e.GetNaiveExcludeExpired()),
		MatchWorkers:             ptrInt(e.GetMatchWorkers()),
		TestTrajectoryID:         ptrString(e.GetTestTrajectoryID()),
		MinTrackPoints:           ptrInt(e.GetMinTrackPoints()),
		NoiseAmplitude:           ptrFloat64(e.GetNoiseAmplitude()),
		NoiseSeed:                ptrUint64(e.GetNoiseSeed()),
		CanvasSizePx:             ptrInt(e.GetCanvasSizePx()),
		CanvasScale:              ptrFloat64(e.GetCanvasScale()),
		InnerRadius:              ptrFloat64(e.GetInnerRadius()),
		OuterRadius:              ptrFloat64(e.GetOuterRadius()),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file must have a .json extension and be under 1MB.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
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

// LoadOrDefault loads path, or returns DefaultTuningConfig when path is empty.
func LoadOrDefault(path string) (*TuningConfig, error) {
	if path == "" {
		return DefaultTuningConfig(), nil
	}
	return LoadTuningConfig(path)
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents up to the repository root.
// Panics if the file cannot be loaded; intended for test setup and binaries.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run from repository root")
}

// Overlay returns a copy of c with every field that is set in o replacing
// the value from c. A nil o returns a copy of c.
func (c *TuningConfig) Overlay(o *TuningConfig) *TuningConfig {
	out := *c
	if o == nil {
		return &out
	}
	if o.InitialDistanceThreshold != nil {
		out.InitialDistanceThreshold = o.InitialDistanceThreshold
	}
	if o.DynamicDistanceThreshold != nil {
		out.DynamicDistanceThreshold = o.DynamicDistanceThreshold
	}
	if o.PredictionHorizon != nil {
		out.PredictionHorizon = o.PredictionHorizon
	}
	if o.FrameBudget != nil {
		out.FrameBudget = o.FrameBudget
	}
	if o.MatcherPolicy != nil {
		out.MatcherPolicy = o.MatcherPolicy
	}
	if o.OnExhausted != nil {
		out.OnExhausted = o.OnExhausted
	}
	if o.NaiveExcludeExpired != nil {
		out.NaiveExcludeExpired = o.NaiveExcludeExpired
	}
	if o.MatchWorkers != nil {
		out.MatchWorkers = o.MatchWorkers
	}
	if o.TestTrajectoryID != nil {
		out.TestTrajectoryID = o.TestTrajectoryID
	}
	if o.MinTrackPoints != nil {
		out.MinTrackPoints = o.MinTrackPoints
	}
	if o.NoiseAmplitude != nil {
		out.NoiseAmplitude = o.NoiseAmplitude
	}
	if o.NoiseSeed != nil {
		out.NoiseSeed = o.NoiseSeed
	}
	if o.CanvasSizePx != nil {
		out.CanvasSizePx = o.CanvasSizePx
	}
	if o.CanvasScale != nil {
		out.CanvasScale = o.CanvasScale
	}
	if o.InnerRadius != nil {
		out.InnerRadius = o.InnerRadius
	}
	if o.OuterRadius != nil {
		out.OuterRadius = o.OuterRadius
	}
	return &out
}

// Validate checks that the configured values are usable.
func (c *TuningConfig) Validate() error {
	if c.InitialDistanceThreshold != nil && *c.InitialDistanceThreshold < 0 {
		return fmt.Errorf("initial_distance_threshold must be non-negative, got %f", *c.InitialDistanceThreshold)
	}
	if c.DynamicDistanceThreshold != nil && *c.DynamicDistanceThreshold < 0 {
		return fmt.Errorf("dynamic_distance_threshold must be non-negative, got %f", *c.DynamicDistanceThreshold)
	}
	if c.PredictionHorizon != nil && *c.PredictionHorizon < 0 {
		return fmt.Errorf("prediction_horizon must be non-negative, got %d", *c.PredictionHorizon)
	}
	if c.FrameBudget != nil && *c.FrameBudget < 0 {
		return fmt.Errorf("frame_budget must be non-negative, got %d", *c.FrameBudget)
	}
	if c.MatcherPolicy != nil {
		switch *c.MatcherPolicy {
		case PolicyNaive, PolicyFiltered:
		default:
			return fmt.Errorf("matcher_policy must be %q or %q, got %q", PolicyNaive, PolicyFiltered, *c.MatcherPolicy)
		}
	}
	if c.OnExhausted != nil {
		switch *c.OnExhausted {
		case ExhaustFreeze, ExhaustStop:
		default:
			return fmt.Errorf("on_exhausted must be %q or %q, got %q", ExhaustFreeze, ExhaustStop, *c.OnExhausted)
		}
	}
	if c.MatchWorkers != nil && *c.MatchWorkers < 1 {
		return fmt.Errorf("match_workers must be at least 1, got %d", *c.MatchWorkers)
	}
	if c.MinTrackPoints != nil && *c.MinTrackPoints < 0 {
		return fmt.Errorf("min_track_points must be non-negative, got %d", *c.MinTrackPoints)
	}
	if c.NoiseAmplitude != nil && *c.NoiseAmplitude < 0 {
		return fmt.Errorf("noise_amplitude must be non-negative, got %f", *c.NoiseAmplitude)
	}
	if c.CanvasSizePx != nil && *c.CanvasSizePx <= 0 {
		return fmt.Errorf("canvas_size_px must be positive, got %d", *c.CanvasSizePx)
	}
	if c.CanvasScale != nil && *c.CanvasScale <= 0 {
		return fmt.Errorf("canvas_scale must be positive, got %f", *c.CanvasScale)
	}
	if c.GetInnerRadius() > c.GetOuterRadius() {
		return fmt.Errorf("inner_radius (%f) must not exceed outer_radius (%f)", c.GetInnerRadius(), c.GetOuterRadius())
	}
	return nil
}

// GetInitialDistanceThreshold returns the initial_distance_threshold value or the default.
func (c *TuningConfig) GetInitialDistanceThreshold() float64 {
	if c.InitialDistanceThreshold == nil {
		return 2.0
	}
	return *c.InitialDistanceThreshold
}

// GetDynamicDistanceThreshold returns the dynamic_distance_threshold value or the default.
func (c *TuningConfig) GetDynamicDistanceThreshold() float64 {
	if c.DynamicDistanceThreshold == nil {
		return 3.0
	}
	return *c.DynamicDistanceThreshold
}

// GetPredictionHorizon returns the prediction_horizon value or the default.
func (c *TuningConfig) GetPredictionHorizon() int {
	if c.PredictionHorizon == nil {
		return 50
	}
	return *c.PredictionHorizon
}

// GetFrameBudget returns the frame_budget value or the default.
func (c *TuningConfig) GetFrameBudget() int {
	if c.FrameBudget == nil {
		return 200
	}
	return *c.FrameBudget
}

// GetMatcherPolicy returns the matcher_policy value or the default.
func (c *TuningConfig) GetMatcherPolicy() string {
	if c.MatcherPolicy == nil || *c.MatcherPolicy == "" {
		return PolicyFiltered
	}
	return *c.MatcherPolicy
}

// GetOnExhausted returns the on_exhausted value or the default. The default
// keeps matching against the last observed point until the frame budget runs
// out.
func (c *TuningConfig) GetOnExhausted() string {
	if c.OnExhausted == nil || *c.OnExhausted == "" {
		return ExhaustFreeze
	}
	return *c.OnExhausted
}

// GetNaiveExcludeExpired returns the naive_exclude_expired value or the default.
func (c *TuningConfig) GetNaiveExcludeExpired() bool {
	if c.NaiveExcludeExpired == nil {
		return false
	}
	return *c.NaiveExcludeExpired
}

// GetMatchWorkers returns the match_workers value or the default.
func (c *TuningConfig) GetMatchWorkers() int {
	if c.MatchWorkers == nil {
		return 1
	}
	return *c.MatchWorkers
}

// GetTestTrajectoryID returns the test_trajectory_id value or the default
// (empty: use the first record).
func (c *TuningConfig) GetTestTrajectoryID() string {
	if c.TestTrajectoryID == nil {
		return ""
	}
	return *c.TestTrajectoryID
}

// GetMinTrackPoints returns the min_track_points value or the default.
func (c *TuningConfig) GetMinTrackPoints() int {
	if c.MinTrackPoints == nil {
		return 10
	}
	return *c.MinTrackPoints
}

// GetNoiseAmplitude returns the noise_amplitude value or the default.
func (c *TuningConfig) GetNoiseAmplitude() float64 {
	if c.NoiseAmplitude == nil {
		return 0.1
	}
	return *c.NoiseAmplitude
}

// GetNoiseSeed returns the noise_seed value or the default.
func (c *TuningConfig) GetNoiseSeed() uint64 {
	if c.NoiseSeed == nil {
		return 1
	}
	return *c.NoiseSeed
}

// GetCanvasSizePx returns the canvas_size_px value or the default.
func (c *TuningConfig) GetCanvasSizePx() int {
	if c.CanvasSizePx == nil {
		return 500
	}
	return *c.CanvasSizePx
}

// GetCanvasScale returns the canvas_scale value or the default.
func (c *TuningConfig) GetCanvasScale() float64 {
	if c.CanvasScale == nil {
		return 20
	}
	return *c.CanvasScale
}

// GetInnerRadius returns the inner_radius value or the default.
func (c *TuningConfig) GetInnerRadius() float64 {
	if c.InnerRadius == nil {
		return 3
	}
	return *c.InnerRadius
}

// GetOuterRadius returns the outer_radius value or the default.
func (c *TuningConfig) GetOuterRadius() float64 {
	if c.OuterRadius == nil {
		return 6
	}
	return *c.OuterRadius
}
