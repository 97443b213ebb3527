// Package archive keeps analysis runs in a SQLite database so results can be
// compared across roll years and revisited without recomputing.
package archive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"appraisal/internal/appraisal"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Store is an archive of analysis runs.
type Store struct {
	db *sql.DB
}

// Open opens or creates the archive at path and migrates it to the latest
// schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	// Pragmas are per connection.
	db.SetMaxOpenConns(1)
	for _, p := range []string{
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Run is the archived summary of one analysis run.
type Run struct {
	ID            string
	Label         string
	StartedAt     time.Time
	Duration      time.Duration
	Properties    int
	Valid         int
	Invalid       int
	Sales         int
	MedianRatio   *float64
	COD           *float64
	PRD           *float64
	PRB           *float64
	MoransI       *float64
	RSquared      *float64
	IAAOCompliant *bool
}

// SaveRun stores res under its run id with a free-form label, such as the
// roll year or subdivision analysed.
func (s *Store) SaveRun(ctx context.Context, label string, res *appraisal.Results) error {
	if res == nil || res.RunID == "" {
		return errors.New("results without a run id")
	}
	blob, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	sum := res.Summary
	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			run_id, label, started_at, duration_ms,
			properties, valid, invalid, sales,
			median_ratio, cod, prd, prb, morans_i, r_squared, iaao_compliant,
			results
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		res.RunID, label, res.StartedAt.UnixNano(), res.Duration.Milliseconds(),
		sum.Properties, sum.Valid, sum.Invalid, sum.Sales,
		sum.AssessmentLevel, sum.COD, sum.PRD, sum.PRB, sum.MoransI, sum.RSquared, sum.IAAOCompliant,
		string(blob),
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", res.RunID, err)
	}

	for i, st := range res.Stages {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO run_stages (run_id, seq, name, status, reason, duration_ms) VALUES (?, ?, ?, ?, ?, ?)`,
			res.RunID, i, st.Name, string(st.Status), st.Reason, st.Duration.Milliseconds(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert stage %s: %w", st.Name, err)
		}
	}
	return tx.Commit()
}

// GetRun returns the full results of a run.
func (s *Store) GetRun(ctx context.Context, id string) (*appraisal.Results, error) {
	var blob string
	err := s.db.QueryRowContext(ctx, `SELECT results FROM runs WHERE run_id = ?`, id).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	var res appraisal.Results
	if err := json.Unmarshal([]byte(blob), &res); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &res, nil
}

// ListRuns returns run summaries, newest first. A non-positive limit
// returns every run.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			run_id, label, started_at, duration_ms,
			properties, valid, invalid, sales,
			median_ratio, cod, prd, prb, morans_i, r_squared, iaao_compliant
		FROM runs
		ORDER BY started_at DESC, run_id
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                                 Run
			started, durMs                    int64
			median, cod, prd, prb, moran, rsq sql.NullFloat64
			compliant                         sql.NullBool
		)
		if err := rows.Scan(
			&r.ID, &r.Label, &started, &durMs,
			&r.Properties, &r.Valid, &r.Invalid, &r.Sales,
			&median, &cod, &prd, &prb, &moran, &rsq, &compliant,
		); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started).UTC()
		r.Duration = time.Duration(durMs) * time.Millisecond
		r.MedianRatio, r.COD, r.PRD, r.PRB = nullable(median), nullable(cod), nullable(prd), nullable(prb)
		r.MoransI, r.RSquared = nullable(moran), nullable(rsq)
		if compliant.Valid {
			r.IAAOCompliant = &compliant.Bool
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Stages returns the stage log of a run in execution order.
func (s *Store) Stages(ctx context.Context, id string) ([]appraisal.Stage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, status, reason, duration_ms FROM run_stages WHERE run_id = ? ORDER BY seq`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query stages: %w", err)
	}
	defer rows.Close()

	var stages []appraisal.Stage
	for rows.Next() {
		var (
			st     appraisal.Stage
			status string
			durMs  int64
		)
		if err := rows.Scan(&st.Name, &status, &st.Reason, &durMs); err != nil {
			return nil, fmt.Errorf("failed to scan stage: %w", err)
		}
		st.Status = appraisal.StageStatus(status)
		st.Duration = time.Duration(durMs) * time.Millisecond
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

// DeleteRun removes a run and its stage log.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

func nullable(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
