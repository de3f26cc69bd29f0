package predict

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

func newEngine(t *testing.T, s *trajectory.Store, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(s, cfg)
	require.NoError(t, err)
	return e
}

func collect(e *Engine) []Frame {
	return slices.Collect(e.Frames())
}

func TestNewEngine_Errors(t *testing.T) {
	_, err := NewEngine(nil, testConfig())
	assert.Error(t, err)

	cfg := testConfig()
	cfg.Policy = "mystery"
	_, err = NewEngine(twoLanes(t), cfg)
	assert.Error(t, err)
}

func TestEngine_NaiveScenario(t *testing.T) {
	cfg := testConfig()
	cfg.Policy = PolicyNaive
	frames := collect(newEngine(t, twoLanes(t), cfg))

	// Step 1 observes two points.
	f := frames[1]
	assert.Len(t, f.Observed, 2)
	assert.Equal(t, "T1", f.Match.TrajectoryID)
	assert.Equal(t, 0.0, f.Match.Score)
	assert.Equal(t, pts(2, 0, 3, 1, 4, 1), f.Predicted)
	assert.Equal(t, 2, f.Candidates)
}

func TestEngine_StaticStageThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.InitialDistanceThreshold = 0.5

	r := newEngine(t, twoLanes(t), cfg).NewRun()
	assert.Equal(t, StateIdle, r.State())

	f, ok := r.Step()
	require.True(t, ok)
	assert.Equal(t, StateObserving, r.State())
	assert.Equal(t, 1, f.Candidates)
	assert.Equal(t, "T1", f.Match.TrajectoryID)
}

func TestEngine_DynamicPruningEmptiesCandidates(t *testing.T) {
	cfg := testConfig()
	cfg.InitialDistanceThreshold = 0.5
	cfg.DynamicDistanceThreshold = 0.1
	frames := collect(newEngine(t, twoLanes(t), cfg))

	for step := 0; step < 3; step++ {
		assert.True(t, frames[step].Match.Matched, "step %d", step)
		assert.Equal(t, "T1", frames[step].Match.TrajectoryID)
	}

	f := frames[3]
	assert.Zero(t, f.Candidates)
	assert.False(t, f.Match.Matched)
	assert.Empty(t, f.Predicted)
	assert.Len(t, f.Observed, 4)
}

func TestEngine_CandidateSetNeverGrows(t *testing.T) {
	for _, threshold := range []float64{0.05, 0.2, 0.5, 1, 3} {
		cfg := testConfig()
		cfg.InitialDistanceThreshold = 1.0
		cfg.DynamicDistanceThreshold = threshold
		cfg.FrameBudget = 60

		prev := -1
		for f := range newEngine(t, randomCorpus(t, 120, 3), cfg).Frames() {
			if prev >= 0 {
				require.LessOrEqual(t, f.Candidates, prev, "threshold %v step %d", threshold, f.Step)
			}
			prev = f.Candidates
		}
	}
}

func TestEngine_PredictionLength(t *testing.T) {
	cfg := testConfig()
	cfg.PredictionHorizon = 7
	cfg.FrameBudget = 40
	e := newEngine(t, randomCorpus(t, 80, 11), cfg)

	for f := range e.Frames() {
		if !f.Match.Matched {
			assert.Empty(t, f.Predicted)
			continue
		}
		n := e.Corpus().At(f.Match.Index).Len()
		L := len(f.Observed)
		want := 0
		if L < n {
			want = min(cfg.PredictionHorizon, n-L)
		}
		assert.Len(t, f.Predicted, want, "step %d", f.Step)
	}
}

func TestEngine_Exhaustion(t *testing.T) {
	s := newStore(t,
		&trajectory.Trajectory{ID: "test", Points: pts(0, 0, 1, 0, 2, 0)},
		&trajectory.Trajectory{ID: "long", Points: pts(0, 0, 1, 0, 2, 0, 3, 0, 4, 0, 5, 0)},
	)

	t.Run("freeze keeps matching from the last point", func(t *testing.T) {
		cfg := testConfig()
		cfg.FrameBudget = 5
		frames := collect(newEngine(t, s, cfg))
		require.Len(t, frames, 5)

		for _, f := range frames[3:] {
			assert.True(t, f.Exhausted)
			assert.Equal(t, pts(0, 0, 1, 0, 2, 0), f.Observed)
		}
		// At t=3 the frozen point (2,0) is 1.0 from long[3].
		assert.Equal(t, 1.0, frames[3].Match.Score)
		assert.Equal(t, pts(3, 0, 4, 0, 5, 0), frames[3].Predicted)
		assert.Equal(t, 2.0, frames[4].Match.Score)
	})

	t.Run("freeze runs out of candidates", func(t *testing.T) {
		cfg := testConfig()
		cfg.FrameBudget = 10
		frames := collect(newEngine(t, s, cfg))
		require.Len(t, frames, 10)
		assert.False(t, frames[6].Match.Matched, "long has no point at t=6")
	})

	t.Run("stop ends the run", func(t *testing.T) {
		cfg := testConfig()
		cfg.OnExhausted = ExhaustStop
		r := newEngine(t, s, cfg).NewRun()

		var n int
		for {
			f, ok := r.Step()
			if !ok {
				break
			}
			assert.False(t, f.Exhausted)
			n++
		}
		assert.Equal(t, 3, n)
		assert.Equal(t, StateDone, r.State())

		_, ok := r.Step()
		assert.False(t, ok, "a finished run stays done")
	})
}

func TestEngine_FrameBudget(t *testing.T) {
	cfg := testConfig()
	cfg.FrameBudget = 2
	frames := collect(newEngine(t, twoLanes(t), cfg))
	assert.Len(t, frames, 2)

	cfg.FrameBudget = 0
	assert.Empty(t, collect(newEngine(t, twoLanes(t), cfg)))
}

func TestEngine_EmptyTestTrajectory(t *testing.T) {
	s := newStore(t,
		&trajectory.Trajectory{ID: "test"},
		&trajectory.Trajectory{ID: "T1", Points: pts(0, 0, 1, 0)},
	)
	for _, policy := range []Policy{PolicyNaive, PolicyFiltered} {
		cfg := testConfig()
		cfg.Policy = policy
		cfg.FrameBudget = 3
		frames := collect(newEngine(t, s, cfg))
		require.Len(t, frames, 3, "policy %s", policy)
		for _, f := range frames {
			assert.False(t, f.Match.Matched)
			assert.Empty(t, f.Observed)
			assert.True(t, f.Exhausted)
		}
	}
}

func TestEngine_FramesRestartable(t *testing.T) {
	for _, policy := range []Policy{PolicyNaive, PolicyFiltered} {
		cfg := testConfig()
		cfg.Policy = policy
		cfg.FrameBudget = 50
		e := newEngine(t, randomCorpus(t, 100, 5), cfg)

		first := collect(e)
		second := collect(e)
		require.NotEmpty(t, first)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("%s frames differ between iterations (-want +got):\n%s", policy, diff)
		}
	}
}

func TestEngine_FramesEarlyBreak(t *testing.T) {
	e := newEngine(t, twoLanes(t), testConfig())

	var steps []int
	for f := range e.Frames() {
		steps = append(steps, f.Step)
		if f.Step == 1 {
			break
		}
	}
	assert.Equal(t, []int{0, 1}, steps)
}

func TestEngine_ParallelWorkersDeterministic(t *testing.T) {
	s := randomCorpus(t, 250, 9)
	for _, policy := range []Policy{PolicyNaive, PolicyFiltered} {
		cfg := testConfig()
		cfg.Policy = policy
		cfg.FrameBudget = 40
		want := collect(newEngine(t, s, cfg))

		cfg.Workers = 6
		got := collect(newEngine(t, s, cfg))
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("%s parallel frames differ (-want +got):\n%s", policy, diff)
		}
	}
}

func TestEngine_ObservedFramesAreStable(t *testing.T) {
	frames := collect(newEngine(t, twoLanes(t), testConfig()))
	require.GreaterOrEqual(t, len(frames), 5)

	for i, f := range frames[:5] {
		assert.Len(t, f.Observed, i+1)
		assert.Equal(t, twoLanes(t).Test.Points[:i+1], f.Observed)
	}
}

func TestRunState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "observing", StateObserving.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "RunState(9)", RunState(9).String())
}
