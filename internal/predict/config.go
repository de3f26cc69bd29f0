package predict

import (
	"fmt"
	"math"

	"github.com/banshee-data/trajectory.predict/internal/config"
)

// Policy selects how the best exemplar is chosen at each step.
type Policy string

const (
	// PolicyNaive scores the whole corpus by mean squared distance over the
	// observed prefix, recomputed from scratch every step.
	PolicyNaive Policy = config.PolicyNaive
	// PolicyFiltered scores only the surviving candidates by the distance of
	// their point at the current step.
	PolicyFiltered Policy = config.PolicyFiltered
)

// ExhaustBehavior decides what happens once every test point has been observed.
type ExhaustBehavior string

const (
	// ExhaustFreeze keeps stepping with the observation held at the last point.
	ExhaustFreeze ExhaustBehavior = config.ExhaustFreeze
	// ExhaustStop ends the run.
	ExhaustStop ExhaustBehavior = config.ExhaustStop
)

// Config holds the engine parameters.
type Config struct {
	InitialDistanceThreshold float64 // static stage radius around the test start point
	DynamicDistanceThreshold float64 // per-step pruning radius
	PredictionHorizon        int     // maximum predicted points per step
	FrameBudget              int     // maximum number of steps per run
	Policy                   Policy
	OnExhausted              ExhaustBehavior
	// NaiveExcludeExpired makes the naive policy skip trajectories shorter
	// than the observed prefix instead of comparing their truncated overlap.
	NaiveExcludeExpired bool
	Workers             int // scoring goroutines per step; 1 scans sequentially
}

// DefaultConfig returns the built-in engine defaults.
func DefaultConfig() Config {
	return ConfigFromTuning(config.DefaultTuningConfig())
}

// ConfigFromTuning builds a Config from a loaded TuningConfig.
func ConfigFromTuning(cfg *config.TuningConfig) Config {
	return Config{
		InitialDistanceThreshold: cfg.GetInitialDistanceThreshold(),
		DynamicDistanceThreshold: cfg.GetDynamicDistanceThreshold(),
		PredictionHorizon:        cfg.GetPredictionHorizon(),
		FrameBudget:              cfg.GetFrameBudget(),
		Policy:                   Policy(cfg.GetMatcherPolicy()),
		OnExhausted:              ExhaustBehavior(cfg.GetOnExhausted()),
		NaiveExcludeExpired:      cfg.GetNaiveExcludeExpired(),
		Workers:                  cfg.GetMatchWorkers(),
	}
}

// Validate reports the first invalid parameter.
func (c Config) Validate() error {
	if math.IsNaN(c.InitialDistanceThreshold) || c.InitialDistanceThreshold < 0 {
		return fmt.Errorf("initial distance threshold must be non-negative, got %v", c.InitialDistanceThreshold)
	}
	if math.IsNaN(c.DynamicDistanceThreshold) || c.DynamicDistanceThreshold < 0 {
		return fmt.Errorf("dynamic distance threshold must be non-negative, got %v", c.DynamicDistanceThreshold)
	}
	if c.PredictionHorizon < 0 {
		return fmt.Errorf("prediction horizon must be non-negative, got %d", c.PredictionHorizon)
	}
	if c.FrameBudget < 0 {
		return fmt.Errorf("frame budget must be non-negative, got %d", c.FrameBudget)
	}
	switch c.Policy {
	case PolicyNaive, PolicyFiltered:
	default:
		return fmt.Errorf("unknown matcher policy %q", c.Policy)
	}
	switch c.OnExhausted {
	case ExhaustFreeze, ExhaustStop:
	default:
		return fmt.Errorf("unknown exhaustion behaviour %q", c.OnExhausted)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	return nil
}
