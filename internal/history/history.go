// Package history persists per-build summaries in a local SQLite database so
// past incremental decisions stay inspectable from the CLI.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one build summary row.
type Record struct {
	ID        int64
	BuildID   string
	Mode      string // full|incremental
	StartedAt time.Time
	Duration  time.Duration
	Rebuilt   int
	Unchanged int
	Deleted   int
	Outcome   string // success|failed|canceled
	Reason    string
}

// Store is a SQLite-backed build history.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// NewStore opens (creating if needed) the history database. Use ":memory:"
// for tests.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	store := &Store{db: db}
	if err := store.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize history schema: %w", err)
	}
	return store, nil
}

func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS builds (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		build_id TEXT NOT NULL,
		mode TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		rebuilt INTEGER NOT NULL,
		unchanged INTEGER NOT NULL,
		deleted INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		reason TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_builds_started_at ON builds(started_at);
	CREATE INDEX IF NOT EXISTS idx_builds_build_id ON builds(build_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append inserts one build record.
func (s *Store) Append(ctx context.Context, r Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO builds (build_id, mode, started_at, duration_ms, rebuilt, unchanged, deleted, outcome, reason) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
		r.BuildID, r.Mode, r.StartedAt.Unix(), r.Duration.Milliseconds(),
		r.Rebuilt, r.Unchanged, r.Deleted, r.Outcome, r.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert build record: %w", err)
	}
	return nil
}

// Recent returns up to n records, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, build_id, mode, started_at, duration_ms, rebuilt, unchanged, deleted, outcome, reason FROM builds ORDER BY id DESC LIMIT ?",
		n,
	)
	if err != nil {
		return nil, fmt.Errorf("query builds: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var r Record
		var startedUnix, durationMS int64
		if err := rows.Scan(&r.ID, &r.BuildID, &r.Mode, &startedUnix, &durationMS,
			&r.Rebuilt, &r.Unchanged, &r.Deleted, &r.Outcome, &r.Reason); err != nil {
			return nil, fmt.Errorf("scan build record: %w", err)
		}
		r.StartedAt = time.Unix(startedUnix, 0)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return out, nil
}

// Close closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}
