package trajectory

import (
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the track lengths of a set of trajectories.
type Stats struct {
	Count        int     `json:"count"`
	TotalPoints  int     `json:"total_points"`
	MeanLength   float64 `json:"mean_length"`
	MedianLength float64 `json:"median_length"`
	P85Length    float64 `json:"p85_length"`
	MinLength    float64 `json:"min_length"`
	MaxLength    float64 `json:"max_length"`
}

// Summarize computes length statistics. An empty input yields zero Stats.
func Summarize(trajs []*Trajectory) Stats {
	if len(trajs) == 0 {
		return Stats{}
	}
	lengths := make([]float64, len(trajs))
	total := 0
	for i, t := range trajs {
		lengths[i] = float64(t.Len())
		total += t.Len()
	}
	sort.Float64s(lengths)

	return Stats{
		Count:        len(trajs),
		TotalPoints:  total,
		MeanLength:   stat.Mean(lengths, nil),
		MedianLength: stat.Quantile(0.5, stat.Empirical, lengths, nil),
		P85Length:    stat.Quantile(0.85, stat.Empirical, lengths, nil),
		MinLength:    floats.Min(lengths),
		MaxLength:    floats.Max(lengths),
	}
}
