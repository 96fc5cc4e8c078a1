// Package state persists pipeline variables (the extraction watermark and
// the best-model pointer) and the run history in SQLite.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Variable keys used by the pipeline.
const (
	VarLastExtracted = "last_extracted_credit_data"
	VarPrevBestModel = "prev_best_model"
)

var ErrVerifyFailed = errors.New("state: variable verification failed")

type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" gives a private in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	if path == ":memory:" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// One writer; also keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// GetVariable returns the value stored under key; ok is false when unset.
func (s *Store) GetVariable(ctx context.Context, key string) (value string, ok bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT value FROM variables WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get variable %s: %w", key, err)
	}
	return value, true, nil
}

// SetVariable upserts key and reads it back, failing if the stored value
// differs.
func (s *Store) SetVariable(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO variables (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("set variable %s: %w", key, err)
	}
	got, ok, err := s.GetVariable(ctx, key)
	if err != nil {
		return err
	}
	if !ok || got != value {
		return fmt.Errorf("%w: %s set to %q, read back %q", ErrVerifyFailed, key, value, got)
	}
	return nil
}

func (s *Store) DeleteVariable(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM variables WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete variable %s: %w", key, err)
	}
	return nil
}

// timeLayout is fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) (time.Time, error) { return time.Parse(timeLayout, s) }
