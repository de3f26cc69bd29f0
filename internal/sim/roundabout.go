// Package sim generates synthetic roundabout trajectories: each object drives
// in from one of the entry points, circles counter-clockwise at a random
// radius and leaves along its exit angle.
package sim

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/banshee-data/trajectory.predict/internal/monitoring"
	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

// Config describes the roundabout and its traffic.
type Config struct {
	Objects     int
	InnerRadius float64
	OuterRadius float64
	EntryPoints []trajectory.Point
	ThetaStep   float64 // angular step per frame at unit speed
	EntryLength float64 // entry segment steps at unit speed
	ExitLength  float64 // exit segment steps at unit speed
	MinSpeed    float64
	MaxSpeed    float64
	// ExitTurns lists the exits an object may take, in quarter turns
	// counter-clockwise from its entry.
	ExitTurns []int
}

// DefaultConfig returns a four-arm roundabout centred on the origin.
func DefaultConfig() Config {
	return Config{
		Objects:     1000,
		InnerRadius: 3,
		OuterRadius: 6,
		EntryPoints: []trajectory.Point{{X: 10, Y: 0}, {X: 0, Y: 10}, {X: -10, Y: 0}, {X: 0, Y: -10}},
		ThetaStep:   math.Pi / 60,
		EntryLength: 30,
		ExitLength:  30,
		MinSpeed:    0.5,
		MaxSpeed:    1.5,
		ExitTurns:   []int{1, 2, 3},
	}
}

// Validate checks that the simulation can run.
func (c Config) Validate() error {
	switch {
	case c.Objects < 0:
		return fmt.Errorf("objects must be non-negative, got %d", c.Objects)
	case c.InnerRadius < 0 || c.OuterRadius < c.InnerRadius:
		return fmt.Errorf("radii must satisfy 0 <= inner <= outer, got %v and %v", c.InnerRadius, c.OuterRadius)
	case len(c.EntryPoints) == 0:
		return fmt.Errorf("at least one entry point is required")
	case !(c.ThetaStep > 0):
		return fmt.Errorf("theta step must be positive, got %v", c.ThetaStep)
	case !(c.MinSpeed > 0) || c.MaxSpeed < c.MinSpeed:
		return fmt.Errorf("speeds must satisfy 0 < min <= max, got %v and %v", c.MinSpeed, c.MaxSpeed)
	case len(c.ExitTurns) == 0:
		return fmt.Errorf("at least one exit is required")
	}
	for _, turns := range c.ExitTurns {
		if turns < 1 || turns > 4 {
			return fmt.Errorf("exit turns must be between 1 and 4, got %d", turns)
		}
	}
	return nil
}

// Generate simulates cfg.Objects trajectories named "object 1", "object 2"
// and so on. The same seed always produces the same corpus.
func Generate(cfg Config, seed uint64) ([]*trajectory.Trajectory, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid simulation config: %w", err)
	}

	src := rand.NewPCG(seed, seed^0x5851f42d4c957f2d)
	rng := rand.New(src)
	speeds := distuv.Uniform{Min: cfg.MinSpeed, Max: cfg.MaxSpeed, Src: src}
	radii := distuv.Uniform{Min: cfg.InnerRadius, Max: cfg.OuterRadius, Src: src}

	out := make([]*trajectory.Trajectory, cfg.Objects)
	for i := range out {
		entry := cfg.EntryPoints[rng.IntN(len(cfg.EntryPoints))]
		speed := speeds.Rand()
		radius := radii.Rand()
		turns := cfg.ExitTurns[rng.IntN(len(cfg.ExitTurns))]
		out[i] = &trajectory.Trajectory{
			ID:       fmt.Sprintf("object %d", i+1),
			Points:   cfg.path(entry, speed, radius, turns),
			Speed:    speed,
			HasSpeed: true,
		}
	}
	monitoring.Logf("sim: generated %d trajectories (seed %d)", len(out), seed)
	return out, nil
}

// path builds one trajectory: a straight approach to the circle, an arc to
// the exit angle and a straight departure.
func (c Config) path(entry trajectory.Point, speed, radius float64, turns int) []trajectory.Point {
	entryAngle := normalizeAngle(math.Atan2(entry.Y, entry.X))
	target := normalizeAngle(entryAngle + float64(turns)*math.Pi/2)
	if target < entryAngle {
		target += 2 * math.Pi
	}

	entrySteps := int(c.EntryLength / speed)
	arcSteps := int(math.Abs(target-entryAngle) / (speed * c.ThetaStep))
	exitSteps := int(c.ExitLength / speed)
	pts := make([]trajectory.Point, 0, entrySteps+arcSteps+exitSteps)

	onCircle := trajectory.Point{X: radius * math.Cos(entryAngle), Y: radius * math.Sin(entryAngle)}
	for i := 0; i < entrySteps; i++ {
		alpha := float64(i) / float64(entrySteps)
		pts = append(pts, trajectory.Point{
			X: entry.X*(1-alpha) + onCircle.X*alpha,
			Y: entry.Y*(1-alpha) + onCircle.Y*alpha,
		})
	}

	for _, a := range linspace(entryAngle, target, arcSteps) {
		pts = append(pts, trajectory.Point{X: radius * math.Cos(a), Y: radius * math.Sin(a)})
	}

	if len(pts) == 0 {
		return pts
	}
	last := pts[len(pts)-1]
	dx, dy := math.Cos(target), math.Sin(target)
	for i := 0; i < exitSteps; i++ {
		d := float64(i) / 5
		pts = append(pts, trajectory.Point{X: last.X + dx*d, Y: last.Y + dy*d})
	}
	return pts
}

// normalizeAngle maps an angle into [0, 2π).
func normalizeAngle(a float64) float64 {
	a = math.Mod(a, 2*math.Pi)
	if a < 0 {
		a += 2 * math.Pi
	}
	return a
}

// linspace returns n evenly spaced values from start to stop inclusive.
func linspace(start, stop float64, n int) []float64 {
	switch {
	case n <= 0:
		return nil
	case n == 1:
		return []float64{start}
	}
	out := make([]float64, n)
	step := (stop - start) / float64(n-1)
	for i := range out {
		out[i] = start + float64(i)*step
	}
	out[n-1] = stop
	return out
}
