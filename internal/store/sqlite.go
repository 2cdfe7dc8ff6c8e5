package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rbright/murmur/internal/quota"

	_ "modernc.org/sqlite"
)

// SQLite stores counters in one table keyed by service name.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the database at path in WAL mode and migrates it.
func OpenSQLite(path string) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite quota store requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create sqlite dir: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLite{db: db}, nil
}

func migrate(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS quota_counters (
			service TEXT PRIMARY KEY,
			daily_calls INTEGER NOT NULL DEFAULT 0,
			daily_limit INTEGER NOT NULL,
			last_reset TEXT NOT NULL,
			exceeded INTEGER NOT NULL DEFAULT 0,
			updated_at TEXT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate sqlite: %w", err)
		}
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, service string) (quota.Counter, bool, error) {
	var (
		c         quota.Counter
		limit     int64
		exceeded  int
		lastReset string
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT service, daily_calls, daily_limit, last_reset, exceeded, updated_at
		FROM quota_counters WHERE service = ?`,
		service,
	).Scan(&c.Service, &c.DailyCalls, &limit, &lastReset, &exceeded, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return quota.Counter{}, false, nil
	}
	if err != nil {
		return quota.Counter{}, false, fmt.Errorf("select counter %q: %w", service, err)
	}

	c.DailyLimit = quota.Limit(limit)
	c.Exceeded = exceeded != 0
	if c.LastReset, err = time.Parse(time.RFC3339Nano, lastReset); err != nil {
		return quota.Counter{}, false, fmt.Errorf("parse last_reset for %q: %w", service, err)
	}
	if c.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return quota.Counter{}, false, fmt.Errorf("parse updated_at for %q: %w", service, err)
	}
	return c, true, nil
}

func (s *SQLite) Upsert(ctx context.Context, c quota.Counter) error {
	exceeded := 0
	if c.Exceeded {
		exceeded = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO quota_counters (service, daily_calls, daily_limit, last_reset, exceeded, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET
			daily_calls = excluded.daily_calls,
			daily_limit = excluded.daily_limit,
			last_reset = excluded.last_reset,
			exceeded = excluded.exceeded,
			updated_at = excluded.updated_at`,
		c.Service,
		c.DailyCalls,
		int64(c.DailyLimit),
		c.LastReset.Format(time.RFC3339Nano),
		exceeded,
		c.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("upsert counter %q: %w", c.Service, err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
