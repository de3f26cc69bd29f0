package predict

import (
	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

// Predict returns the continuation of the matched trajectory after an
// observed prefix of length L: its points at indices [L, min(L+H, len)).
// The result is empty without a match or when the matched trajectory has no
// points beyond L. Nothing is padded or extrapolated. The returned slice is
// capped so appending to it never writes into the corpus.
func Predict(m MatchResult, corpus *trajectory.Corpus, L, H int) []trajectory.Point {
	if !m.Matched || corpus == nil || m.Index < 0 || m.Index >= corpus.Len() || H <= 0 || L < 0 {
		return nil
	}
	pts := corpus.At(m.Index).Points
	if L >= len(pts) {
		return nil
	}
	end := len(pts)
	if H < end-L {
		end = L + H
	}
	return pts[L:end:end]
}
