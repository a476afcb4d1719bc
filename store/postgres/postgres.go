// Package postgres implements the supervisor's durable config store on
// PostgreSQL via pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillerhq/tiller"
)

// Store persists supervisor config (the circuit breaker snapshot) in a
// PostgreSQL database. The pool is shared with the caller, who owns its
// lifecycle.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store over an existing pgx pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Init creates the config table.
func (s *Store) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS config (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`)
	if err != nil {
		return fmt.Errorf("postgres: create config table: %w", err)
	}
	return nil
}

func (s *Store) GetConfig(ctx context.Context, key string) (json.RawMessage, error) {
	var value string
	err := s.pool.QueryRow(ctx, `SELECT value FROM config WHERE key = $1`, key).Scan(&value)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get config: %w", err)
	}
	return json.RawMessage(value), nil
}

func (s *Store) SetConfig(ctx context.Context, key string, value json.RawMessage) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO config (key, value, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		key, string(value))
	if err != nil {
		return fmt.Errorf("postgres: set config: %w", err)
	}
	return nil
}

// Compile-time interface check.
var _ tiller.ConfigStore = (*Store)(nil)
