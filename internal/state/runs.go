package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunNoNewData RunStatus = "no_new_data"
	RunFailed    RunStatus = "failed"
)

// Run is one pipeline execution.
type Run struct {
	ID             string
	Status         RunStatus
	StartedAt      time.Time
	FinishedAt     *time.Time
	ExtractionDate string
	ExtractedRows  int
	CurrentF1      *float64
	BestF1         *float64
	Promoted       bool
	Error          string
}

var ErrRunNotFound = errors.New("state: run not found")

func (s *Store) CreateRun(ctx context.Context, id string) (*Run, error) {
	r := &Run{ID: id, Status: RunRunning, StartedAt: time.Now().UTC()}
	_, err := s.db.ExecContext(ctx, `INSERT INTO runs (id, status, started_at) VALUES (?, ?, ?)`,
		r.ID, string(r.Status), formatTime(r.StartedAt))
	if err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return r, nil
}

// FinishRun stamps r as finished with its final fields.
func (s *Store) FinishRun(ctx context.Context, r *Run) error {
	now := time.Now().UTC()
	r.FinishedAt = &now
	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, finished_at = ?, extraction_date = ?, extracted_rows = ?,
			current_f1 = ?, best_f1 = ?, promoted = ?, error = ?
		WHERE id = ?`,
		string(r.Status), formatTime(now), r.ExtractionDate, r.ExtractedRows,
		nullFloat(r.CurrentF1), nullFloat(r.BestF1), r.Promoted, r.Error, r.ID)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, r.ID)
	}
	return nil
}

const runColumns = `id, status, started_at, finished_at, extraction_date, extracted_rows, current_f1, best_f1, promoted, error`

func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

// ListRuns returns up to limit runs, newest first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

type scanner interface{ Scan(dest ...any) error }

func scanRun(sc scanner) (*Run, error) {
	var (
		r        Run
		status   string
		started  string
		finished sql.NullString
		cur, bst sql.NullFloat64
	)
	if err := sc.Scan(&r.ID, &status, &started, &finished, &r.ExtractionDate, &r.ExtractedRows,
		&cur, &bst, &r.Promoted, &r.Error); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	t, err := parseTime(started)
	if err != nil {
		return nil, fmt.Errorf("run %s started_at: %w", r.ID, err)
	}
	r.StartedAt = t
	if finished.Valid {
		ft, err := parseTime(finished.String)
		if err != nil {
			return nil, fmt.Errorf("run %s finished_at: %w", r.ID, err)
		}
		r.FinishedAt = &ft
	}
	if cur.Valid {
		r.CurrentF1 = &cur.Float64
	}
	if bst.Valid {
		r.BestF1 = &bst.Float64
	}
	return &r, nil
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
