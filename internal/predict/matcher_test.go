package predict

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

func TestMatchNaive_PrefixScores(t *testing.T) {
	s := twoLanes(t)

	// L=2: T1 agrees exactly, T2 is one unit off at every point.
	m := MatchNaive(s.Corpus, s.Test.Points[:2], false, 1)
	require.True(t, m.Matched)
	assert.Equal(t, "T1", m.TrajectoryID)
	assert.Equal(t, 0, m.Index)
	assert.Equal(t, 0.0, m.Score)

	assert.Equal(t, 1.0, MeanSquaredDistance(s.Test.Points[:2], s.Corpus.At(1).Points[:2]))
}

func TestMatchNaive_TieGoesToEarlierTrajectory(t *testing.T) {
	s := newStore(t,
		&trajectory.Trajectory{ID: "test", Points: pts(0, 0, 1, 0)},
		&trajectory.Trajectory{ID: "above", Points: pts(0, 1, 1, 1)},
		&trajectory.Trajectory{ID: "below", Points: pts(0, -1, 1, -1)},
	)
	m := MatchNaive(s.Corpus, s.Test.Points, false, 1)
	assert.Equal(t, "above", m.TrajectoryID)
	assert.Equal(t, 1.0, m.Score)
}

func TestMatchNaive_ShortTrajectories(t *testing.T) {
	// "short" matches the observed path exactly over its two points;
	// "long" is slightly off everywhere.
	s := newStore(t,
		&trajectory.Trajectory{ID: "test", Points: pts(0, 0, 1, 0, 2, 0, 3, 0)},
		&trajectory.Trajectory{ID: "short", Points: pts(0, 0, 1, 0)},
		&trajectory.Trajectory{ID: "long", Points: pts(0, 0.1, 1, 0.1, 2, 0.1, 3, 0.1, 4, 0.1)},
	)

	t.Run("truncated comparison", func(t *testing.T) {
		m := MatchNaive(s.Corpus, s.Test.Points, false, 1)
		assert.Equal(t, "short", m.TrajectoryID)
		assert.Equal(t, 0.0, m.Score)
	})

	t.Run("expired excluded", func(t *testing.T) {
		m := MatchNaive(s.Corpus, s.Test.Points, true, 1)
		assert.Equal(t, "long", m.TrajectoryID)
		assert.InDelta(t, 0.01, m.Score, 1e-12)
	})
}

func TestMatchNaive_NoMatch(t *testing.T) {
	s := newStore(t,
		&trajectory.Trajectory{ID: "test", Points: pts(0, 0)},
		&trajectory.Trajectory{ID: "empty"},
	)

	t.Run("only empty trajectories", func(t *testing.T) {
		m := MatchNaive(s.Corpus, s.Test.Points, false, 1)
		assert.False(t, m.Matched)
		assert.Equal(t, -1, m.Index)
		assert.True(t, math.IsInf(m.Score, 1))
	})

	t.Run("nothing observed", func(t *testing.T) {
		m := MatchNaive(twoLanes(t).Corpus, nil, false, 1)
		assert.False(t, m.Matched)
	})
}

func TestMatchFiltered(t *testing.T) {
	s := twoLanes(t)

	t.Run("closest candidate wins", func(t *testing.T) {
		m := MatchFiltered(s.Corpus, []int{0, 1}, 3, s.Test.Points[3], 1)
		// Both T1[3] and T2[3] are (3,1): tie resolves to T1.
		assert.Equal(t, "T1", m.TrajectoryID)
		assert.Equal(t, 1.0, m.Score)
	})

	t.Run("restricted to candidates", func(t *testing.T) {
		m := MatchFiltered(s.Corpus, []int{1}, 0, s.Test.Points[0], 1)
		assert.Equal(t, "T2", m.TrajectoryID)
		assert.Equal(t, 1, m.Index)
	})

	t.Run("empty candidate set", func(t *testing.T) {
		m := MatchFiltered(s.Corpus, nil, 0, s.Test.Points[0], 1)
		assert.Equal(t, NoMatch(), m)
	})

	t.Run("expired candidates never win", func(t *testing.T) {
		m := MatchFiltered(s.Corpus, []int{0, 1}, 10, s.Test.Points[4], 1)
		assert.False(t, m.Matched)
	})
}

// randomCorpus builds n trajectories around the origin. Every fifth
// trajectory duplicates its predecessor so that ties are common.
func randomCorpus(t *testing.T, n int, seed uint64) *trajectory.Store {
	t.Helper()
	rng := rand.New(rand.NewPCG(seed, seed+1))
	walk := func(length int) []trajectory.Point {
		out := make([]trajectory.Point, length)
		x, y := rng.Float64()-0.5, rng.Float64()-0.5
		for i := range out {
			x += rng.Float64()*0.4 - 0.2
			y += rng.Float64()*0.4 - 0.2
			out[i] = trajectory.Point{X: x, Y: y}
		}
		return out
	}

	corpus := make([]*trajectory.Trajectory, 0, n)
	for i := 0; i < n; i++ {
		tr := &trajectory.Trajectory{ID: fmt.Sprintf("object %d", i+1)}
		if i%5 == 4 {
			tr.Points = corpus[i-1].Points
		} else {
			tr.Points = walk(5 + rng.IntN(40))
		}
		corpus = append(corpus, tr)
	}
	test := &trajectory.Trajectory{ID: "test", Points: walk(30)}
	return newStore(t, test, corpus...)
}

func TestMatch_ParallelMatchesSequential(t *testing.T) {
	s := randomCorpus(t, 300, 7)
	all := make([]int, s.Corpus.Len())
	for i := range all {
		all[i] = i
	}

	for L := 1; L <= s.Test.Len(); L++ {
		observed := s.Test.Points[:L]
		for _, workers := range []int{2, 3, 8, 64} {
			seqN := MatchNaive(s.Corpus, observed, false, 1)
			parN := MatchNaive(s.Corpus, observed, false, workers)
			require.Equal(t, seqN, parN, "naive L=%d workers=%d", L, workers)

			seqF := MatchFiltered(s.Corpus, all, L-1, observed[L-1], 1)
			parF := MatchFiltered(s.Corpus, all, L-1, observed[L-1], workers)
			require.Equal(t, seqF, parF, "filtered t=%d workers=%d", L-1, workers)
		}
	}
}

func TestSelectBest(t *testing.T) {
	t.Parallel()

	scores := []float64{math.Inf(1), 3, math.NaN(), 1, 2, 1}
	score := func(i int) float64 { return scores[i] }

	pos, s := selectBest(len(scores), 1, score)
	assert.Equal(t, 3, pos)
	assert.Equal(t, 1.0, s)

	pos, _ = selectBest(0, 4, score)
	assert.Equal(t, -1, pos)

	allInf := func(int) float64 { return math.Inf(1) }
	pos, _ = selectBest(200, 4, allInf)
	assert.Equal(t, -1, pos)

	// Minimum at the first position of a later chunk and again in an
	// earlier chunk: the earlier position wins.
	many := make([]float64, 200)
	for i := range many {
		many[i] = 10
	}
	many[150], many[40] = 0.5, 0.5
	pos, s = selectBest(len(many), 4, func(i int) float64 { return many[i] })
	assert.Equal(t, 40, pos)
	assert.Equal(t, 0.5, s)
}
