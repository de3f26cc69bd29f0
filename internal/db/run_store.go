package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/trajectory.predict/internal/monitoring"
	"github.com/banshee-data/trajectory.predict/internal/predict"
	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

// Run is a persisted prediction run.
type Run struct {
	RunID            string          `json:"run_id"`
	CorpusName       string          `json:"corpus_name"`
	TestTrajectoryID string          `json:"test_trajectory_id"`
	Policy           string          `json:"policy"`
	FrameCount       int             `json:"frame_count"`
	MatchedFrames    int             `json:"matched_frames"`
	ParamsJSON       json.RawMessage `json:"params_json,omitempty"`
	CreatedAt        int64           `json:"created_at"`
}

// FrameRecord is one persisted engine step. Current is the last observed
// point and is nil when nothing has been observed. Score is nil without a
// match.
type FrameRecord struct {
	RunID       string             `json:"run_id"`
	Step        int                `json:"step"`
	ObservedLen int                `json:"observed_len"`
	Current     *trajectory.Point  `json:"current,omitempty"`
	MatchID     string             `json:"match_id,omitempty"`
	MatchIndex  int                `json:"match_index"`
	Score       *float64           `json:"score,omitempty"`
	Candidates  int                `json:"candidates"`
	Exhausted   bool               `json:"exhausted"`
	Predicted   []trajectory.Point `json:"predicted"`
}

// Matched reports whether the step produced a match.
func (f *FrameRecord) Matched() bool { return f.Score != nil }

// NewFrameRecord converts an engine frame for storage.
func NewFrameRecord(runID string, f predict.Frame) FrameRecord {
	rec := FrameRecord{
		RunID:       runID,
		Step:        f.Step,
		ObservedLen: len(f.Observed),
		MatchIndex:  -1,
		Candidates:  f.Candidates,
		Exhausted:   f.Exhausted,
		Predicted:   f.Predicted,
	}
	if n := len(f.Observed); n > 0 {
		p := f.Observed[n-1]
		rec.Current = &p
	}
	if f.Match.Matched {
		score := f.Match.Score
		rec.MatchID = f.Match.TrajectoryID
		rec.MatchIndex = f.Match.Index
		rec.Score = &score
	}
	return rec
}

// execer is satisfied by both *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// InsertRun persists run. If RunID is empty, a UUID is generated.
func (db *DB) InsertRun(ctx context.Context, run *Run) error {
	return retryOnBusy(func() error {
		return insertRun(ctx, db.DB, run)
	})
}

func insertRun(ctx context.Context, ex execer, run *Run) error {
	if run.RunID == "" {
		run.RunID = uuid.New().String()
	}
	if run.CreatedAt == 0 {
		run.CreatedAt = time.Now().UnixNano()
	}
	var params interface{}
	if len(run.ParamsJSON) > 0 {
		params = string(run.ParamsJSON)
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO prediction_runs (
			run_id, corpus_name, test_trajectory_id, policy,
			frame_count, matched_frames, params_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.RunID, run.CorpusName, run.TestTrajectoryID, run.Policy,
		run.FrameCount, run.MatchedFrames, params, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// InsertFrame persists one frame of an existing run.
func (db *DB) InsertFrame(ctx context.Context, runID string, f predict.Frame) error {
	rec := NewFrameRecord(runID, f)
	return retryOnBusy(func() error {
		return insertFrame(ctx, db.DB, &rec)
	})
}

func insertFrame(ctx context.Context, ex execer, rec *FrameRecord) error {
	predicted, err := encodePoints(rec.Predicted)
	if err != nil {
		return err
	}
	var cx, cy, score, matchID interface{}
	if rec.Current != nil {
		cx, cy = rec.Current.X, rec.Current.Y
	}
	if rec.Score != nil {
		score = *rec.Score
		matchID = rec.MatchID
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO prediction_frames (
			run_id, step, observed_len, current_x, current_y,
			match_id, match_index, score, candidates, exhausted, predicted_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Step, rec.ObservedLen, cx, cy,
		matchID, rec.MatchIndex, score, rec.Candidates, rec.Exhausted, predicted,
	)
	if err != nil {
		return fmt.Errorf("insert frame %d: %w", rec.Step, err)
	}
	return nil
}

// RecordRun persists run and every frame of the sequence in one
// transaction, filling in FrameCount and MatchedFrames.
func (db *DB) RecordRun(ctx context.Context, run *Run, frames iter.Seq[predict.Frame]) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	run.FrameCount, run.MatchedFrames = 0, 0
	if err := insertRun(ctx, tx, run); err != nil {
		return err
	}
	for f := range frames {
		rec := NewFrameRecord(run.RunID, f)
		if err := insertFrame(ctx, tx, &rec); err != nil {
			return err
		}
		run.FrameCount++
		if f.Match.Matched {
			run.MatchedFrames++
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE prediction_runs SET frame_count = ?, matched_frames = ? WHERE run_id = ?`,
		run.FrameCount, run.MatchedFrames, run.RunID); err != nil {
		return fmt.Errorf("update run totals: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit run: %w", err)
	}

	monitoring.Logf("db: recorded run %s (%d frames, %d matched)", run.RunID, run.FrameCount, run.MatchedFrames)
	return nil
}

const runColumns = `run_id, corpus_name, test_trajectory_id, policy,
		frame_count, matched_frames, params_json, created_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*Run, error) {
	var (
		r      Run
		params sql.NullString
	)
	if err := row.Scan(&r.RunID, &r.CorpusName, &r.TestTrajectoryID, &r.Policy,
		&r.FrameCount, &r.MatchedFrames, &params, &r.CreatedAt); err != nil {
		return nil, err
	}
	if params.Valid {
		r.ParamsJSON = json.RawMessage(params.String)
	}
	return &r, nil
}

// ListRuns returns the most recent runs first, at most limit of them
// (limit <= 0 returns all).
func (db *DB) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	query := `SELECT ` + runColumns + ` FROM prediction_runs ORDER BY created_at DESC, run_id`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// GetRun returns a single run by ID.
func (db *DB) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM prediction_runs WHERE run_id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	return r, nil
}

// RunFrames returns the frames of a run in step order.
func (db *DB) RunFrames(ctx context.Context, runID string) ([]FrameRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT step, observed_len, current_x, current_y, match_id, match_index,
		       score, candidates, exhausted, predicted_json
		FROM prediction_frames
		WHERE run_id = ?
		ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("query frames: %w", err)
	}
	defer rows.Close()

	var frames []FrameRecord
	for rows.Next() {
		var (
			rec       = FrameRecord{RunID: runID}
			cx, cy    sql.NullFloat64
			matchID   sql.NullString
			score     sql.NullFloat64
			predicted string
		)
		if err := rows.Scan(&rec.Step, &rec.ObservedLen, &cx, &cy, &matchID, &rec.MatchIndex,
			&score, &rec.Candidates, &rec.Exhausted, &predicted); err != nil {
			return nil, fmt.Errorf("scan frame: %w", err)
		}
		if cx.Valid && cy.Valid {
			rec.Current = &trajectory.Point{X: cx.Float64, Y: cy.Float64}
		}
		if score.Valid {
			s := score.Float64
			rec.Score = &s
			rec.MatchID = matchID.String
		}
		if rec.Predicted, err = decodePoints(predicted); err != nil {
			return nil, fmt.Errorf("frame %d: %w", rec.Step, err)
		}
		frames = append(frames, rec)
	}
	return frames, rows.Err()
}

// DeleteRun removes a run and its frames.
func (db *DB) DeleteRun(ctx context.Context, runID string) error {
	return retryOnBusy(func() error {
		res, err := db.ExecContext(ctx, `DELETE FROM prediction_runs WHERE run_id = ?`, runID)
		if err != nil {
			return fmt.Errorf("delete run: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("run %s: %w", runID, ErrNotFound)
		}
		return nil
	})
}

// encodePoints stores points as a JSON array of [x, y] pairs.
func encodePoints(pts []trajectory.Point) (string, error) {
	pairs := make([][2]float64, len(pts))
	for i, p := range pts {
		pairs[i] = [2]float64{p.X, p.Y}
	}
	b, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("encode points: %w", err)
	}
	return string(b), nil
}

func decodePoints(s string) ([]trajectory.Point, error) {
	var pairs [][2]float64
	if err := json.Unmarshal([]byte(s), &pairs); err != nil {
		return nil, fmt.Errorf("decode points: %w", err)
	}
	if len(pairs) == 0 {
		return nil, nil
	}
	pts := make([]trajectory.Point, len(pairs))
	for i, p := range pairs {
		pts[i] = trajectory.Point{X: p[0], Y: p[1]}
	}
	return pts, nil
}
