package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/banshee-data/trajectory.predict/internal/monitoring"
	"github.com/banshee-data/trajectory.predict/internal/trajectory"
)

// CorpusInfo summarises a stored corpus snapshot.
type CorpusInfo struct {
	Name         string `json:"name"`
	Trajectories int    `json:"trajectories"`
	Points       int    `json:"points"`
	CreatedAt    int64  `json:"created_at"`
}

// SaveCorpus stores a Store under name with the test trajectory first, so
// that loading it back without a test id selects the same test trajectory.
func (db *DB) SaveCorpus(ctx context.Context, name string, store *trajectory.Store) error {
	if store == nil || store.Test == nil || store.Corpus == nil {
		return fmt.Errorf("save corpus %q: incomplete store", name)
	}
	trajs := make([]*trajectory.Trajectory, 0, store.Corpus.Len()+1)
	trajs = append(trajs, store.Test)
	trajs = append(trajs, store.Corpus.All()...)
	return db.SaveTrajectories(ctx, name, trajs)
}

// SaveTrajectories stores trajs under name in their given order, replacing
// any corpus already saved under that name.
func (db *DB) SaveTrajectories(ctx context.Context, name string, trajs []*trajectory.Trajectory) error {
	if name == "" {
		return fmt.Errorf("save corpus: empty name")
	}

	points := 0
	for _, tr := range trajs {
		points += tr.Len()
	}

	err := retryOnBusy(func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `DELETE FROM corpora WHERE name = ?`, name); err != nil {
			return fmt.Errorf("replace corpus: %w", err)
		}
		res, err := tx.ExecContext(ctx,
			`INSERT INTO corpora (name, trajectory_count, point_count, created_at) VALUES (?, ?, ?, ?)`,
			name, len(trajs), points, time.Now().UnixNano())
		if err != nil {
			return fmt.Errorf("insert corpus: %w", err)
		}
		corpusID, err := res.LastInsertId()
		if err != nil {
			return err
		}

		trajStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO trajectories (corpus_id, position, trajectory_id, speed, point_count) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer trajStmt.Close()
		pointStmt, err := tx.PrepareContext(ctx,
			`INSERT INTO trajectory_points (corpus_id, position, seq, x, y) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer pointStmt.Close()

		for pos, tr := range trajs {
			var speed interface{}
			if tr.HasSpeed {
				speed = tr.Speed
			}
			if _, err := trajStmt.ExecContext(ctx, corpusID, pos, tr.ID, speed, tr.Len()); err != nil {
				return fmt.Errorf("insert trajectory %q: %w", tr.ID, err)
			}
			for seq, p := range tr.Points {
				if _, err := pointStmt.ExecContext(ctx, corpusID, pos, seq, p.X, p.Y); err != nil {
					return fmt.Errorf("insert point %d of %q: %w", seq, tr.ID, err)
				}
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return fmt.Errorf("save corpus %q: %w", name, err)
	}

	monitoring.Logf("db: saved corpus %q (%d trajectories, %d points)", name, len(trajs), points)
	return nil
}

// LoadTrajectories returns the trajectories stored under name in their saved
// order.
func (db *DB) LoadTrajectories(ctx context.Context, name string) ([]*trajectory.Trajectory, error) {
	var corpusID int64
	err := db.QueryRowContext(ctx, `SELECT corpus_id FROM corpora WHERE name = ?`, name).Scan(&corpusID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("corpus %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query corpus %q: %w", name, err)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT position, trajectory_id, speed, point_count
		FROM trajectories
		WHERE corpus_id = ?
		ORDER BY position`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("query trajectories: %w", err)
	}
	var trajs []*trajectory.Trajectory
	for rows.Next() {
		var (
			pos   int
			tr    trajectory.Trajectory
			speed sql.NullFloat64
			n     int
		)
		if err := rows.Scan(&pos, &tr.ID, &speed, &n); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan trajectory: %w", err)
		}
		if pos != len(trajs) {
			rows.Close()
			return nil, fmt.Errorf("corpus %q: gap at position %d", name, len(trajs))
		}
		tr.Speed, tr.HasSpeed = speed.Float64, speed.Valid
		if n > 0 {
			tr.Points = make([]trajectory.Point, 0, n)
		}
		trajs = append(trajs, &tr)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prows, err := db.QueryContext(ctx, `
		SELECT position, x, y
		FROM trajectory_points
		WHERE corpus_id = ?
		ORDER BY position, seq`, corpusID)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var (
			pos int
			p   trajectory.Point
		)
		if err := prows.Scan(&pos, &p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		if pos < 0 || pos >= len(trajs) {
			return nil, fmt.Errorf("corpus %q: point for unknown position %d", name, pos)
		}
		trajs[pos].Points = append(trajs[pos].Points, p)
	}
	return trajs, prows.Err()
}

// LoadTrajectory returns the trajectory stored as id in corpus name.
func (db *DB) LoadTrajectory(ctx context.Context, name, id string) (*trajectory.Trajectory, error) {
	var (
		corpusID int64
		pos      int
		tr       = trajectory.Trajectory{ID: id}
		speed    sql.NullFloat64
		n        int
	)
	err := db.QueryRowContext(ctx, `
		SELECT t.corpus_id, t.position, t.speed, t.point_count
		FROM trajectories t
		JOIN corpora c ON c.corpus_id = t.corpus_id
		WHERE c.name = ? AND t.trajectory_id = ?`, name, id).Scan(&corpusID, &pos, &speed, &n)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trajectory %q in corpus %q: %w", id, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query trajectory %q: %w", id, err)
	}
	tr.Speed, tr.HasSpeed = speed.Float64, speed.Valid
	if n > 0 {
		tr.Points = make([]trajectory.Point, 0, n)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT x, y
		FROM trajectory_points
		WHERE corpus_id = ? AND position = ?
		ORDER BY seq`, corpusID, pos)
	if err != nil {
		return nil, fmt.Errorf("query points: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var p trajectory.Point
		if err := rows.Scan(&p.X, &p.Y); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		tr.Points = append(tr.Points, p)
	}
	return &tr, rows.Err()
}

// LoadCorpus reads the corpus stored under name and splits it into a Store
// the same way trajectory.Load does for files.
func (db *DB) LoadCorpus(ctx context.Context, name string, opts trajectory.LoadOptions) (*trajectory.Store, error) {
	trajs, err := db.LoadTrajectories(ctx, name)
	if err != nil {
		return nil, err
	}
	return trajectory.BuildStore(trajs, opts)
}

// ListCorpora returns every stored corpus, newest first.
func (db *DB) ListCorpora(ctx context.Context) ([]CorpusInfo, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT name, trajectory_count, point_count, created_at
		FROM corpora
		ORDER BY created_at DESC, corpus_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query corpora: %w", err)
	}
	defer rows.Close()

	var out []CorpusInfo
	for rows.Next() {
		var c CorpusInfo
		if err := rows.Scan(&c.Name, &c.Trajectories, &c.Points, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan corpus: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteCorpus removes the corpus stored under name.
func (db *DB) DeleteCorpus(ctx context.Context, name string) error {
	return retryOnBusy(func() error {
		res, err := db.ExecContext(ctx, `DELETE FROM corpora WHERE name = ?`, name)
		if err != nil {
			return fmt.Errorf("delete corpus %q: %w", name, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("corpus %q: %w", name, ErrNotFound)
		}
		return nil
	})
}
