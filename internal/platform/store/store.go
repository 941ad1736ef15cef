// Package store provides a unified SQL seam over Postgres or SQLite
package store

import (
	"context"
	"errors"
	"fmt"

	"repocrawl/internal/platform/logger"
)

// Store is the facade over the configured relational backend
// zero value is safe but does nothing
type Store struct {
	// Log is the logger used by subclients
	Log logger.Logger

	// DB is the sql seam, nil until Open succeeds
	DB TxRunner

	// Dialect names the backend behind DB
	Dialect Dialect
}

// Row exposes the minimal scan contract a single row needs
type Row interface {
	Scan(dest ...any) error
}

// Rows exposes the minimal iteration and scan for a result set
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
	Columns() []string
}

// CommandTag is a tiny interface to inspect command results
type CommandTag interface {
	String() string
	RowsAffected() int64
}

// RowQuerier is the read and write surface repos use for sql
type RowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

// TxRunner wraps transaction execution around a function
// fn's error rolls the transaction back, nil commits it
type TxRunner interface {
	RowQuerier
	Tx(ctx context.Context, fn func(q RowQuerier) error) error
}

// Pinger is any seam that can report readiness
type Pinger interface{ Ping(context.Context) error }

// Open connects to the backend named by cfg.URL and verifies it answers
func Open(ctx context.Context, cfg Config, opts ...Option) (*Store, error) {
	s := &Store{}
	for _, o := range opts {
		if err := o(s); err != nil {
			return nil, err
		}
	}
	s.Log = s.Log.With().Logger()

	d, err := DialectOf(cfg.URL)
	if err != nil {
		return nil, err
	}
	s.Dialect = d

	switch d {
	case DialectPostgres:
		s.DB, err = openPG(ctx, cfg, s)
	case DialectSQLite:
		s.DB, err = openSQLite(ctx, cfg, s)
	}
	if err != nil {
		return nil, err
	}
	s.Log.Debug().Str("dialect", string(d)).Msg("store opened")
	return s, nil
}

// Guard verifies the backend still answers
func (s *Store) Guard(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store not opened")
	}
	if p, ok := s.DB.(Pinger); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("%s: %w", s.Dialect, err)
		}
	}
	return nil
}

// Close releases the backend; safe on a nil or unopened store
func (s *Store) Close(_ context.Context) error {
	if s == nil || s.DB == nil {
		return nil
	}
	if c, ok := s.DB.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
