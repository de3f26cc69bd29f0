// Package predict implements online exemplar matching: a partially observed
// trajectory is compared step by step against a corpus of recorded
// trajectories and the best match's continuation is emitted as the
// prediction.
package predict

import (
	"fmt"
	"iter"

	"github.com/banshee-data/trajectory.predict/internal/monitoring"
	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

// RunState is the lifecycle state of a Run.
type RunState int

const (
	StateIdle RunState = iota
	StateObserving
	StateDone
)

func (s RunState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateObserving:
		return "observing"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("RunState(%d)", int(s))
	}
}

// Frame is the per-step output consumed by renderers and storage.
type Frame struct {
	Step       int
	Observed   []trajectory.Point // observed prefix, capped; do not modify
	Predicted  []trajectory.Point // continuation of the match, may be empty
	Match      MatchResult
	Candidates int  // surviving candidates (filtered) or corpus size (naive)
	Exhausted  bool // the test trajectory had no new point at this step
}

// Engine holds the immutable inputs of a prediction run. It is safe to share
// between goroutines; all mutable state lives in the Runs it creates.
type Engine struct {
	corpus *trajectory.Corpus
	test   *trajectory.Trajectory
	cfg    Config
}

// NewEngine validates cfg and returns an engine over the given store.
func NewEngine(store *trajectory.Store, cfg Config) (*Engine, error) {
	if store == nil || store.Corpus == nil || store.Test == nil {
		return nil, fmt.Errorf("engine requires a corpus and a test trajectory")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	return &Engine{corpus: store.Corpus, test: store.Test, cfg: cfg}, nil
}

// Config returns the engine configuration.
func (e *Engine) Config() Config { return e.cfg }

// Corpus returns the reference corpus.
func (e *Engine) Corpus() *trajectory.Corpus { return e.corpus }

// Test returns the trajectory under prediction.
func (e *Engine) Test() *trajectory.Trajectory { return e.test }

// NewRun starts a fresh run in the idle state.
func (e *Engine) NewRun() *Run {
	return &Run{engine: e, state: StateIdle}
}

// Frames returns a lazy, finite sequence of frames. Every iteration starts a
// new Run, so the sequence can be consumed more than once with identical
// results.
func (e *Engine) Frames() iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		r := e.NewRun()
		for {
			f, ok := r.Step()
			if !ok || !yield(f) {
				return
			}
		}
	}
}

// Run is one pass of the engine over the test trajectory. It owns the
// observed prefix and the candidate set and must not be shared between
// goroutines.
type Run struct {
	engine   *Engine
	state    RunState
	t        int
	observed []trajectory.Point
	filter   *CandidateFilter
}

// State returns the current lifecycle state.
func (r *Run) State() RunState { return r.state }

// Observed returns the observed prefix so far.
func (r *Run) Observed() []trajectory.Point {
	return r.observed[:len(r.observed):len(r.observed)]
}

// Step advances the run by one time step and returns its frame. It returns
// false once the run is done: the frame budget is spent, or the test
// trajectory is exhausted and the engine is configured to stop.
func (r *Run) Step() (Frame, bool) {
	if r.state == StateDone {
		return Frame{}, false
	}
	e := r.engine
	cfg := e.cfg

	if r.state == StateIdle {
		r.start()
	}

	if r.t >= cfg.FrameBudget {
		r.finish("frame budget of %d steps reached", cfg.FrameBudget)
		return Frame{}, false
	}

	t := r.t
	exhausted := t >= e.test.Len()
	if exhausted && cfg.OnExhausted == ExhaustStop {
		r.finish("test trajectory %q exhausted after %d points", e.test.ID, e.test.Len())
		return Frame{}, false
	}
	if !exhausted {
		r.observed = append(r.observed, e.test.Points[t])
	}
	L := len(r.observed)

	var (
		match      MatchResult
		candidates int
	)
	switch cfg.Policy {
	case PolicyNaive:
		match = MatchNaive(e.corpus, r.observed, cfg.NaiveExcludeExpired, cfg.Workers)
		candidates = e.corpus.Len()
	default:
		if L > 0 {
			// While frozen the last observed point stands in for observed[t].
			current := r.observed[L-1]
			if n := r.filter.Prune(t, current, cfg.DynamicDistanceThreshold); n > 0 {
				monitoring.Logf("step %d: pruned %d candidates, %d remain", t, n, r.filter.Size())
			}
			match = MatchFiltered(e.corpus, r.filter.members, t, current, cfg.Workers)
		} else {
			match = NoMatch()
		}
		candidates = r.filter.Size()
	}

	f := Frame{
		Step:       t,
		Observed:   r.observed[:L:L],
		Predicted:  Predict(match, e.corpus, L, cfg.PredictionHorizon),
		Match:      match,
		Candidates: candidates,
		Exhausted:  exhausted,
	}
	r.t++
	return f, true
}

func (r *Run) start() {
	e := r.engine
	if e.cfg.Policy == PolicyFiltered && e.test.Len() > 0 {
		r.filter = NewCandidateFilter(e.corpus, e.test.Points[0], e.cfg.InitialDistanceThreshold)
	} else {
		r.filter = emptyCandidateFilter(e.corpus)
	}
	if e.cfg.Policy == PolicyFiltered {
		monitoring.Logf("run start: %d of %d trajectories within %.3f of the test start",
			r.filter.Size(), e.corpus.Len(), e.cfg.InitialDistanceThreshold)
	}
	r.observed = make([]trajectory.Point, 0, min(e.test.Len(), e.cfg.FrameBudget))
	r.state = StateObserving
}

func (r *Run) finish(format string, args ...interface{}) {
	r.state = StateDone
	monitoring.Logf("run done after %d steps: "+format, append([]interface{}{r.t}, args...)...)
}
