package trajectory

import (
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"
)

// AddNoise returns copies of trajs with every coordinate perturbed by an
// independent draw from U[-amplitude, amplitude]. Ids and speeds are kept.
// The same seed always yields the same jitter. A zero amplitude returns exact
// copies.
func AddNoise(trajs []*Trajectory, amplitude float64, seed uint64) []*Trajectory {
	out := make([]*Trajectory, len(trajs))
	if amplitude <= 0 {
		for i, t := range trajs {
			out[i] = t.Clone()
		}
		return out
	}

	jitter := distuv.Uniform{
		Min: -amplitude,
		Max: amplitude,
		Src: rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
	}
	for i, t := range trajs {
		c := t.Clone()
		for j := range c.Points {
			c.Points[j].X += jitter.Rand()
			c.Points[j].Y += jitter.Rand()
		}
		out[i] = c
	}
	return out
}
