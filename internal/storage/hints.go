// Package storage provides the durable key-value hint store backing
// cross-restart state: the last-timestamp marker, the last missed call,
// and a pending deep-link parked by a notification press.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	// SQLite driver, referenced only through the connection string.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"starcall/pkg/interfaces"
)

const schema = `
CREATE TABLE IF NOT EXISTS hints (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
`

// Config holds hint-store settings.
type Config struct {
	Path    string
	Timeout time.Duration
}

// HintStore is the SQLite implementation of interfaces.HintStore. Writes
// are serialized through a mutex; SQLite handles one writer at a time.
type HintStore struct {
	db     *sql.DB
	mu     sync.Mutex
	closed bool
	logger zerolog.Logger
}

var _ interfaces.HintStore = (*HintStore)(nil)

// NewHintStore opens (and if necessary bootstraps) the hint database.
func NewHintStore(cfg Config) (*HintStore, error) {
	if cfg.Path == "" {
		return nil, ErrMissingPath
	}

	db, err := sql.Open("sqlite3", cfg.Path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open hint database: %w", err)
	}
	// The hint store is touched from event handlers only; a single
	// connection avoids SQLite write contention.
	db.SetMaxOpenConns(1)
	if cfg.Timeout > 0 {
		db.SetConnMaxLifetime(cfg.Timeout)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create hints schema: %w", err)
	}

	return &HintStore{
		db:     db,
		logger: log.With().Str("component", "storage").Logger(),
	}, nil
}

// Get implements interfaces.HintStore.
func (s *HintStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", false, ErrStoreClosed
	}

	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM hints WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read hint %q: %w", key, err)
	}
	return value, true, nil
}

// Set implements interfaces.HintStore.
func (s *HintStore) Set(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO hints (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to write hint %q: %w", key, err)
	}
	return nil
}

// Delete implements interfaces.HintStore. Deleting an absent key is not
// an error.
func (s *HintStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM hints WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete hint %q: %w", key, err)
	}
	return nil
}

// HealthCheck verifies the database is reachable.
func (s *HintStore) HealthCheck(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	return s.db.PingContext(ctx)
}

// Close implements interfaces.HintStore.
func (s *HintStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Debug().Msg("hint store closed")
	return s.db.Close()
}
