package db

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trajectory.predict/internal/predict"
	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

func pts(xy ...float64) []trajectory.Point {
	out := make([]trajectory.Point, 0, len(xy)/2)
	for i := 0; i+1 < len(xy); i += 2 {
		out = append(out, trajectory.Point{X: xy[i], Y: xy[i+1]})
	}
	return out
}

func sampleTrajectories() []*trajectory.Trajectory {
	return []*trajectory.Trajectory{
		{ID: "test", Points: pts(0, 0, 1, 0, 2, 0, 3, 0, 4, 0)},
		{ID: "T1", Points: pts(0, 0, 1, 0, 2, 0, 3, 1, 4, 1), Speed: 0.75, HasSpeed: true},
		{ID: "T2", Points: pts(0, 1, 1, 1, 2, 1, 3, 1, 4, 1)},
		{ID: "empty"},
	}
}

func TestSaveAndLoadTrajectories(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	want := sampleTrajectories()
	require.NoError(t, db.SaveTrajectories(ctx, "sample", want))

	got, err := db.LoadTrajectories(ctx, "sample")
	require.NoError(t, err)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("LoadTrajectories mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadTrajectory(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveTrajectories(ctx, "sample", sampleTrajectories()))

	for _, want := range sampleTrajectories() {
		got, err := db.LoadTrajectory(ctx, "sample", want.ID)
		require.NoError(t, err, want.ID)
		if diff := cmp.Diff(want, got); diff != "" {
			t.Errorf("LoadTrajectory(%q) mismatch (-want +got):\n%s", want.ID, diff)
		}
	}

	_, err := db.LoadTrajectory(ctx, "sample", "T9")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = db.LoadTrajectory(ctx, "missing", "T1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSaveTrajectories_Replaces(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveTrajectories(ctx, "sample", sampleTrajectories()))
	require.NoError(t, db.SaveTrajectories(ctx, "sample", sampleTrajectories()[:2]))

	got, err := db.LoadTrajectories(ctx, "sample")
	require.NoError(t, err)
	assert.Len(t, got, 2)

	infos, err := db.ListCorpora(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "sample", infos[0].Name)
	assert.Equal(t, 2, infos[0].Trajectories)
	assert.Equal(t, 10, infos[0].Points)
}

func TestSaveTrajectories_EmptyName(t *testing.T) {
	db := newTestDB(t)
	assert.Error(t, db.SaveTrajectories(context.Background(), "", sampleTrajectories()))
}

func TestLoadCorpus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveTrajectories(ctx, "sample", sampleTrajectories()))

	t.Run("first trajectory is the test", func(t *testing.T) {
		store, err := db.LoadCorpus(ctx, "sample", trajectory.LoadOptions{})
		require.NoError(t, err)
		assert.Equal(t, "test", store.Test.ID)
		assert.Equal(t, 3, store.Corpus.Len())
	})

	t.Run("explicit test id and cleaning", func(t *testing.T) {
		store, err := db.LoadCorpus(ctx, "sample", trajectory.LoadOptions{TestID: "T2", MinPoints: 1})
		require.NoError(t, err)
		assert.Equal(t, "T2", store.Test.ID)
		_, ok := store.Corpus.Get("empty")
		assert.False(t, ok)
	})

	t.Run("unknown test id", func(t *testing.T) {
		_, err := db.LoadCorpus(ctx, "sample", trajectory.LoadOptions{TestID: "nope"})
		assert.ErrorIs(t, err, trajectory.ErrUnknownTrajectory)
	})

	t.Run("unknown corpus", func(t *testing.T) {
		_, err := db.LoadCorpus(ctx, "missing", trajectory.LoadOptions{})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSaveCorpus_RoundTripsStore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	trajs := sampleTrajectories()
	store, err := trajectory.NewStore(trajs, "T1")
	require.NoError(t, err)
	require.NoError(t, db.SaveCorpus(ctx, "stored", store))

	got, err := db.LoadCorpus(ctx, "stored", trajectory.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "T1", got.Test.ID)
	if diff := cmp.Diff(store.Corpus.All(), got.Corpus.All()); diff != "" {
		t.Errorf("corpus mismatch (-want +got):\n%s", diff)
	}

	assert.Error(t, db.SaveCorpus(ctx, "bad", &trajectory.Store{}))
}

func TestDeleteCorpus(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveTrajectories(ctx, "sample", sampleTrajectories()))

	require.NoError(t, db.DeleteCorpus(ctx, "sample"))
	_, err := db.LoadTrajectories(ctx, "sample")
	assert.ErrorIs(t, err, ErrNotFound)

	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM trajectory_points`).Scan(&n))
	assert.Zero(t, n, "points should cascade")

	assert.ErrorIs(t, db.DeleteCorpus(ctx, "sample"), ErrNotFound)
}

func runEngine(t *testing.T, db *DB) *predict.Engine {
	t.Helper()
	store, err := db.LoadCorpus(context.Background(), "sample", trajectory.LoadOptions{MinPoints: 1})
	require.NoError(t, err)
	cfg := predict.DefaultConfig()
	cfg.FrameBudget = 8
	cfg.OnExhausted = predict.ExhaustFreeze
	eng, err := predict.NewEngine(store, cfg)
	require.NoError(t, err)
	return eng
}

func TestRecordRun(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.SaveTrajectories(ctx, "sample", sampleTrajectories()))
	eng := runEngine(t, db)

	params, err := json.Marshal(eng.Config())
	require.NoError(t, err)
	run := &Run{
		CorpusName:       "sample",
		TestTrajectoryID: eng.Test().ID,
		Policy:           string(eng.Config().Policy),
		ParamsJSON:       params,
	}
	require.NoError(t, db.RecordRun(ctx, run, eng.Frames()))
	require.NotEmpty(t, run.RunID)

	var frames []predict.Frame
	for f := range eng.Frames() {
		frames = append(frames, f)
	}
	matched := 0
	for _, f := range frames {
		if f.Match.Matched {
			matched++
		}
	}
	assert.Equal(t, len(frames), run.FrameCount)
	assert.Equal(t, matched, run.MatchedFrames)

	got, err := db.GetRun(ctx, run.RunID)
	require.NoError(t, err)
	assert.Equal(t, run.FrameCount, got.FrameCount)
	assert.Equal(t, run.MatchedFrames, got.MatchedFrames)
	assert.JSONEq(t, string(params), string(got.ParamsJSON))

	records, err := db.RunFrames(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, records, len(frames))
	for i, rec := range records {
		f := frames[i]
		assert.Equal(t, f.Step, rec.Step)
		assert.Equal(t, len(f.Observed), rec.ObservedLen)
		assert.Equal(t, f.Exhausted, rec.Exhausted)
		assert.Equal(t, f.Candidates, rec.Candidates)
		assert.Equal(t, f.Match.Matched, rec.Matched())
		if diff := cmp.Diff(f.Predicted, rec.Predicted); diff != "" {
			t.Errorf("step %d predicted mismatch (-want +got):\n%s", i, diff)
		}
		if f.Match.Matched {
			assert.Equal(t, f.Match.TrajectoryID, rec.MatchID)
			assert.Equal(t, f.Match.Index, rec.MatchIndex)
			assert.InDelta(t, f.Match.Score, *rec.Score, 1e-12)
		} else {
			assert.Equal(t, -1, rec.MatchIndex)
		}
	}
}

func TestInsertRunAndFrame(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	run := &Run{CorpusName: "adhoc", TestTrajectoryID: "test", Policy: "naive"}
	require.NoError(t, db.InsertRun(ctx, run))

	frame := predict.Frame{
		Step:       0,
		Observed:   pts(1, 2),
		Predicted:  pts(3, 4, 5, 6),
		Match:      predict.MatchResult{Index: 0, TrajectoryID: "T1", Score: 0.5, Matched: true},
		Candidates: 2,
	}
	require.NoError(t, db.InsertFrame(ctx, run.RunID, frame))
	require.NoError(t, db.InsertFrame(ctx, run.RunID, predict.Frame{Step: 1, Match: predict.NoMatch()}))

	records, err := db.RunFrames(ctx, run.RunID)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, &trajectory.Point{X: 1, Y: 2}, records[0].Current)
	assert.Equal(t, "T1", records[0].MatchID)
	assert.Equal(t, pts(3, 4, 5, 6), records[0].Predicted)
	assert.Nil(t, records[1].Current)
	assert.Nil(t, records[1].Score)
	assert.Empty(t, records[1].Predicted)

	// Duplicate step violates the primary key.
	assert.Error(t, db.InsertFrame(ctx, run.RunID, frame))
}

func TestListRunsAndDelete(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := &Run{RunID: "run-a", CorpusName: "c", TestTrajectoryID: "t", Policy: "filtered", CreatedAt: 100}
	second := &Run{RunID: "run-b", CorpusName: "c", TestTrajectoryID: "t", Policy: "naive", CreatedAt: 200}
	require.NoError(t, db.InsertRun(ctx, first))
	require.NoError(t, db.InsertRun(ctx, second))

	runs, err := db.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-b", runs[0].RunID)
	assert.Nil(t, runs[0].ParamsJSON)

	runs, err = db.ListRuns(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, runs, 1)

	require.NoError(t, db.DeleteRun(ctx, "run-a"))
	_, err = db.GetRun(ctx, "run-a")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, db.DeleteRun(ctx, "run-a"), ErrNotFound)
}
