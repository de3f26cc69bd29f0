package predict

import (
	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

// CandidateFilter tracks the corpus trajectories that are still eligible to
// be matched. Members are corpus indices kept in insertion order. The set
// only ever shrinks: once a trajectory has been pruned it never re-enters,
// even if it later drifts back towards the observed path.
type CandidateFilter struct {
	corpus  *trajectory.Corpus
	members []int
}

// NewCandidateFilter runs the static stage: it keeps every non-empty corpus
// trajectory whose first point lies within threshold (inclusive) of origin.
func NewCandidateFilter(corpus *trajectory.Corpus, origin trajectory.Point, threshold float64) *CandidateFilter {
	f := &CandidateFilter{corpus: corpus}
	if corpus == nil || corpus.Len() == 0 {
		return f
	}

	starts := make(map[int]trajectory.Point, corpus.Len())
	for i := 0; i < corpus.Len(); i++ {
		if tr := corpus.At(i); tr.Len() > 0 {
			starts[i] = tr.Points[0]
		}
	}

	if g, ok := newGridIndex(threshold, starts); ok {
		if _, _, inRange := g.cellOf(origin); inRange {
			f.members = g.within(origin, threshold)
			return f
		}
	}

	// Linear scan for degenerate thresholds or coordinates the grid cannot address.
	for i := 0; i < corpus.Len(); i++ {
		p, ok := starts[i]
		if ok && PointDistance(p, origin) <= threshold {
			f.members = append(f.members, i)
		}
	}
	return f
}

// emptyCandidateFilter returns a filter with no members, used when there is
// no observed point to anchor the static stage.
func emptyCandidateFilter(corpus *trajectory.Corpus) *CandidateFilter {
	return &CandidateFilter{corpus: corpus}
}

// Prune runs the dynamic stage for step t. A candidate is dropped when it has
// no point at index t or when that point is further than threshold from
// current. It returns the number of candidates removed.
func (f *CandidateFilter) Prune(t int, current trajectory.Point, threshold float64) int {
	kept := f.members[:0]
	for _, idx := range f.members {
		tr := f.corpus.At(idx)
		if t >= tr.Len() {
			continue
		}
		if PointDistance(tr.Points[t], current) > threshold {
			continue
		}
		kept = append(kept, idx)
	}
	removed := len(f.members) - len(kept)
	f.members = kept
	return removed
}

// Size returns the number of surviving candidates.
func (f *CandidateFilter) Size() int {
	return len(f.members)
}

// Indices returns a copy of the surviving corpus indices in insertion order.
func (f *CandidateFilter) Indices() []int {
	return append([]int(nil), f.members...)
}

// IDs returns the identifiers of the surviving candidates in insertion order.
func (f *CandidateFilter) IDs() []string {
	ids := make([]string, len(f.members))
	for i, idx := range f.members {
		ids[i] = f.corpus.At(idx).ID
	}
	return ids
}
