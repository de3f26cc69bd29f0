package predict

import (
	"math"

	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

// MeanSquaredDistance returns the mean squared Euclidean distance over the
// k = min(len(a), len(b)) aligned leading points of a and b. When k is zero
// there is nothing to compare and +Inf is returned; an infinite score never
// wins a match.
func MeanSquaredDistance(a, b []trajectory.Point) float64 {
	k := min(len(a), len(b))
	if k == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := 0; i < k; i++ {
		dx := a[i].X - b[i].X
		dy := a[i].Y - b[i].Y
		sum += dx*dx + dy*dy
	}
	return sum / float64(k)
}

// PointDistance returns the Euclidean distance between p and q.
func PointDistance(p, q trajectory.Point) float64 {
	return math.Hypot(p.X-q.X, p.Y-q.Y)
}
