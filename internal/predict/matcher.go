package predict

import (
	"math"

	"golang.org/x/sync/errgroup"

	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

// minParallelScores is the smallest number of scores worth fanning out.
const minParallelScores = 64

// MatchResult is the outcome of one matching step. Matched is false when no
// trajectory could be selected; that is a normal result, not an error.
type MatchResult struct {
	Index        int // corpus index, -1 without a match
	TrajectoryID string
	Score        float64
	Matched      bool
}

// NoMatch is the result returned when nothing can be selected.
func NoMatch() MatchResult {
	return MatchResult{Index: -1, Score: math.Inf(1)}
}

// MatchNaive scores every corpus trajectory by the mean squared distance
// between the observed prefix and the trajectory's aligned leading points.
// Trajectories shorter than the prefix are compared over their overlap
// unless excludeExpired is set, in which case they are skipped.
func MatchNaive(corpus *trajectory.Corpus, observed []trajectory.Point, excludeExpired bool, workers int) MatchResult {
	if corpus == nil {
		return NoMatch()
	}
	L := len(observed)
	pos, score := selectBest(corpus.Len(), workers, func(i int) float64 {
		c := corpus.At(i)
		if excludeExpired && c.Len() < L {
			return math.Inf(1)
		}
		return MeanSquaredDistance(observed, c.Points)
	})
	return resultFor(corpus, pos, score)
}

// MatchFiltered scores the given candidates (corpus indices in insertion
// order) by the distance of their point at step t to current. Candidates
// without a point at t are never selected. An empty candidate list yields
// no match.
func MatchFiltered(corpus *trajectory.Corpus, candidates []int, t int, current trajectory.Point, workers int) MatchResult {
	if corpus == nil || len(candidates) == 0 {
		return NoMatch()
	}
	pos, score := selectBest(len(candidates), workers, func(i int) float64 {
		c := corpus.At(candidates[i])
		if t < 0 || t >= c.Len() {
			return math.Inf(1)
		}
		return PointDistance(c.Points[t], current)
	})
	if pos < 0 {
		return NoMatch()
	}
	return resultFor(corpus, candidates[pos], score)
}

func resultFor(corpus *trajectory.Corpus, idx int, score float64) MatchResult {
	if idx < 0 {
		return NoMatch()
	}
	return MatchResult{
		Index:        idx,
		TrajectoryID: corpus.At(idx).ID,
		Score:        score,
		Matched:      true,
	}
}

// selectBest returns the position with the smallest finite score in [0, n)
// and that score, or -1 when every score is infinite or NaN. Equal scores
// resolve to the lowest position. With more than one worker the range is
// split into contiguous chunks scored concurrently; chunk winners are reduced
// in chunk order, so the result matches a sequential scan.
func selectBest(n, workers int, score func(i int) float64) (int, float64) {
	if workers <= 1 || n < minParallelScores {
		return scanBest(0, n, score)
	}

	type best struct {
		pos   int
		score float64
	}
	chunk := (n + workers - 1) / workers
	results := make([]best, 0, workers)
	for lo := 0; lo < n; lo += chunk {
		results = append(results, best{pos: -1, score: math.Inf(1)})
	}

	var g errgroup.Group
	for w := range results {
		lo := w * chunk
		hi := min(lo+chunk, n)
		g.Go(func() error {
			p, s := scanBest(lo, hi, score)
			results[w] = best{pos: p, score: s}
			return nil
		})
	}
	_ = g.Wait() // workers never fail

	pos, lowest := -1, math.Inf(1)
	for _, r := range results {
		if r.pos >= 0 && r.score < lowest {
			pos, lowest = r.pos, r.score
		}
	}
	return pos, lowest
}

func scanBest(lo, hi int, score func(i int) float64) (int, float64) {
	pos, lowest := -1, math.Inf(1)
	for i := lo; i < hi; i++ {
		if s := score(i); s < lowest {
			pos, lowest = i, s
		}
	}
	return pos, lowest
}
