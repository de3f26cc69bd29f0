package trajectory

import (
	"fmt"
	"io"
	"os"

	"github.com/banshee-data/trajectory.predict/internal/monitoring"
)

// LoadOptions controls how a corpus snapshot becomes a Store.
type LoadOptions struct {
	// TestID names the trajectory to predict. Empty selects the first
	// record, which is what the recording tools assume.
	TestID string

	// MinPoints drops merged tracks shorter than this many points before
	// the test trajectory is chosen. Zero keeps everything.
	MinPoints int
}

// Load reads one corpus snapshot. See LoadPasses.
func Load(r io.Reader, opts LoadOptions) (*Store, error) {
	return LoadPasses(opts, r)
}

// LoadFile opens path and loads it as a single pass.
func LoadFile(path string, opts LoadOptions) (*Store, error) {
	merged, err := ReadMergedFiles(path)
	if err != nil {
		return nil, err
	}
	return BuildStore(merged, opts)
}

// LoadPasses parses every reader in order and merges records that share an
// identifier by concatenating their points, the way the tracker's output is
// stitched together across ingestion passes. A merged trajectory keeps the
// position of its first occurrence.
func LoadPasses(opts LoadOptions, passes ...io.Reader) (*Store, error) {
	merged, err := ReadMerged(passes...)
	if err != nil {
		return nil, err
	}
	return BuildStore(merged, opts)
}

// ReadMerged parses every reader in order and returns the merged
// trajectories before any cleaning.
func ReadMerged(passes ...io.Reader) ([]*Trajectory, error) {
	var records []*Trajectory
	for i, r := range passes {
		recs, err := ReadRecords(r)
		if err != nil {
			if len(passes) > 1 {
				return nil, fmt.Errorf("pass %d: %w", i+1, err)
			}
			return nil, err
		}
		records = append(records, recs...)
	}
	return Merge(records), nil
}

// ReadMergedFiles is ReadMerged over files, one pass per path.
func ReadMergedFiles(paths ...string) ([]*Trajectory, error) {
	var records []*Trajectory
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open corpus: %w", err)
		}
		recs, err := ReadRecords(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
		records = append(records, recs...)
	}
	return Merge(records), nil
}

// BuildStore cleans merged trajectories per opts and splits them into a
// Store.
func BuildStore(merged []*Trajectory, opts LoadOptions) (*Store, error) {
	if opts.MinPoints > 0 {
		merged = Clean(merged, opts.MinPoints)
	}
	return NewStore(merged, opts.TestID)
}

// NewStore splits trajs into the test trajectory and the reference corpus.
// An empty testID selects trajs[0].
func NewStore(trajs []*Trajectory, testID string) (*Store, error) {
	if len(trajs) == 0 {
		return nil, &EmptyCorpusError{Records: 0}
	}

	testIdx := 0
	if testID != "" {
		testIdx = -1
		for i, t := range trajs {
			if t.ID == testID {
				testIdx = i
				break
			}
		}
		if testIdx < 0 {
			return nil, fmt.Errorf("%w: %q", ErrUnknownTrajectory, testID)
		}
	}

	rest := make([]*Trajectory, 0, len(trajs)-1)
	rest = append(rest, trajs[:testIdx]...)
	rest = append(rest, trajs[testIdx+1:]...)
	if len(rest) == 0 {
		return nil, &EmptyCorpusError{Records: len(trajs)}
	}

	corpus, err := NewCorpus(rest)
	if err != nil {
		return nil, err
	}

	monitoring.Logf("loaded corpus: %d reference trajectories, test %q (%d points)",
		corpus.Len(), trajs[testIdx].ID, trajs[testIdx].Len())

	return &Store{Corpus: corpus, Test: trajs[testIdx]}, nil
}

// Merge concatenates records that share an id, preserving first-seen order.
// Speed is taken from the first record that carries one.
func Merge(records []*Trajectory) []*Trajectory {
	out := make([]*Trajectory, 0, len(records))
	index := make(map[string]int, len(records))
	for _, r := range records {
		if r == nil {
			continue
		}
		if i, ok := index[r.ID]; ok {
			m := out[i]
			m.Points = append(m.Points, r.Points...)
			if !m.HasSpeed && r.HasSpeed {
				m.Speed, m.HasSpeed = r.Speed, true
			}
			continue
		}
		index[r.ID] = len(out)
		out = append(out, r.Clone())
	}
	return out
}

// Clean drops trajectories with fewer than minPoints points.
func Clean(trajs []*Trajectory, minPoints int) []*Trajectory {
	out := make([]*Trajectory, 0, len(trajs))
	dropped := 0
	for _, t := range trajs {
		if t.Len() < minPoints {
			dropped++
			continue
		}
		out = append(out, t)
	}
	if dropped > 0 {
		monitoring.Logf("clean: dropped %d of %d tracks shorter than %d points", dropped, len(trajs), minPoints)
	}
	return out
}
