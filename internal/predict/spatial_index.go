package predict

import (
	"math"
	"slices"

	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

// maxCellCoord bounds the cell coordinates the grid accepts. Beyond it the
// pairing function would overflow int64.
const maxCellCoord = 1 << 30

// gridIndex is a uniform grid over a set of points keyed by corpus index.
// Radius queries scan the 3x3 cell neighbourhood, so the radius must not
// exceed the cell size.
type gridIndex struct {
	cellSize float64
	cells    map[int64][]int // cell ID → corpus indices
	points   map[int]trajectory.Point
}

// newGridIndex builds a grid with the given cell size. It returns false when
// the cell size is unusable or a point falls outside the addressable range;
// callers fall back to a linear scan.
func newGridIndex(cellSize float64, points map[int]trajectory.Point) (*gridIndex, bool) {
	if !(cellSize > 0) || math.IsInf(cellSize, 0) {
		return nil, false
	}
	g := &gridIndex{
		cellSize: cellSize,
		cells:    make(map[int64][]int, len(points)),
		points:   points,
	}
	for idx, p := range points {
		cx, cy, ok := g.cellOf(p)
		if !ok {
			return nil, false
		}
		id := cellID(cx, cy)
		g.cells[id] = append(g.cells[id], idx)
	}
	return g, true
}

func (g *gridIndex) cellOf(p trajectory.Point) (int64, int64, bool) {
	fx := math.Floor(p.X / g.cellSize)
	fy := math.Floor(p.Y / g.cellSize)
	if math.IsNaN(fx) || math.IsNaN(fy) || math.Abs(fx) > maxCellCoord || math.Abs(fy) > maxCellCoord {
		return 0, 0, false
	}
	return int64(fx), int64(fy), true
}

// cellID maps a signed cell coordinate pair to a unique identifier using
// zigzag encoding followed by Szudzik's pairing function.
func cellID(cx, cy int64) int64 {
	var a, b int64
	if cx >= 0 {
		a = 2 * cx
	} else {
		a = -2*cx - 1
	}
	if cy >= 0 {
		b = 2 * cy
	} else {
		b = -2*cy - 1
	}
	if a >= b {
		return a*a + a + b
	}
	return a + b*b
}

// within returns the indices of all points whose distance to p is at most
// radius, in ascending index order.
func (g *gridIndex) within(p trajectory.Point, radius float64) []int {
	cx, cy, ok := g.cellOf(p)
	if !ok {
		return nil
	}
	var out []int
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, idx := range g.cells[cellID(cx+dx, cy+dy)] {
				if PointDistance(g.points[idx], p) <= radius {
					out = append(out, idx)
				}
			}
		}
	}
	slices.Sort(out)
	return out
}
