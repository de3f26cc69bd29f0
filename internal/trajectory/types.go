// Package trajectory owns the recorded-motion data model: points,
// trajectories, the reference corpus and the designated test trajectory.
//
// Responsibilities: the corpus record format (parse and write), loading
// and merging ingestion passes, cleaning short tracks, noise injection and
// corpus statistics.
// Key types: Point, Trajectory, Corpus, Store.
//
// Everything returned by this package is treated as immutable once loaded.
// Callers must not modify Trajectory.Points.
package trajectory

import "fmt"

// Point is a single 2D position at one discrete time step.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%s, %s)", formatFloat(p.X), formatFloat(p.Y))
}

// Trajectory is an ordered sequence of points indexed by time step.
type Trajectory struct {
	ID     string  `json:"id"`
	Points []Point `json:"points"`

	// Speed is optional metadata from the simulator (steps per frame).
	Speed    float64 `json:"speed,omitempty"`
	HasSpeed bool    `json:"has_speed,omitempty"`
}

// Len returns the number of recorded time steps.
func (t *Trajectory) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Points)
}

// Clone returns a deep copy of t.
func (t *Trajectory) Clone() *Trajectory {
	if t == nil {
		return nil
	}
	c := *t
	c.Points = append([]Point(nil), t.Points...)
	return &c
}

// Corpus is the ordered set of reference trajectories. Insertion order is
// significant: it is the tie-break order used by the matcher.
type Corpus struct {
	trajectories []*Trajectory
	byID         map[string]int
}

// NewCorpus builds a corpus preserving the order of trajs. Duplicate ids
// keep their first position; later duplicates are rejected.
func NewCorpus(trajs []*Trajectory) (*Corpus, error) {
	c := &Corpus{
		trajectories: make([]*Trajectory, 0, len(trajs)),
		byID:         make(map[string]int, len(trajs)),
	}
	for _, t := range trajs {
		if t == nil {
			continue
		}
		if _, dup := c.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate trajectory id %q", t.ID)
		}
		c.byID[t.ID] = len(c.trajectories)
		c.trajectories = append(c.trajectories, t)
	}
	return c, nil
}

// Len returns the number of trajectories in the corpus.
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return len(c.trajectories)
}

// At returns the trajectory at insertion index i.
func (c *Corpus) At(i int) *Trajectory {
	return c.trajectories[i]
}

// Index returns the insertion index of id, or -1.
func (c *Corpus) Index(id string) int {
	if c == nil {
		return -1
	}
	if i, ok := c.byID[id]; ok {
		return i
	}
	return -1
}

// Get returns the trajectory with the given id.
func (c *Corpus) Get(id string) (*Trajectory, bool) {
	i := c.Index(id)
	if i < 0 {
		return nil, false
	}
	return c.trajectories[i], true
}

// All returns the trajectories in insertion order. The slice is shared.
func (c *Corpus) All() []*Trajectory {
	if c == nil {
		return nil
	}
	return c.trajectories[:len(c.trajectories):len(c.trajectories)]
}

// Store is the read-only result of loading: the reference corpus plus the
// trajectory being predicted, which is never part of the corpus.
type Store struct {
	Corpus *Corpus
	Test   *Trajectory
}
