// Package store persists objects and their block trees in SQLite and keeps
// the derived search and reference indexes in step with every change.
//
// All writes go through [Store.ApplyBlockPatch] (or the object helpers),
// each inside one immediate SQLite transaction, so a patch either lands
// completely, index rows included, or not at all.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/calvinalkan/typenote/internal/block"
	"github.com/calvinalkan/typenote/internal/orderkey"
)

// Store is an open TypeNote database.
type Store struct {
	path   string
	sql    *sql.DB
	closed atomic.Bool

	log    zerolog.Logger
	ids    IDGenerator
	schema block.SchemaResolver
	now    func() time.Time
	keys   orderkey.Space

	// beforeCommit runs right before a patch transaction commits. Tests use
	// it to inject failures after all writes happened.
	beforeCommit func(ctx context.Context, tx *sql.Tx) error
}

// Option configures a [Store] at Open time.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithIDGenerator sets the generator for block ids omitted by inserts.
func WithIDGenerator(ids IDGenerator) Option {
	return func(s *Store) { s.ids = ids }
}

// WithSchema sets the block type resolver used to check content.
func WithSchema(schema block.SchemaResolver) Option {
	return func(s *Store) { s.schema = schema }
}

// WithClock sets the time source for row timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithMaxKeyLen bounds order key length before a sibling run is respaced.
func WithMaxKeyLen(n int) Option {
	return func(s *Store) { s.keys = orderkey.Space{MaxLen: n} }
}

// Open opens (creating if needed) the database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if ctx == nil {
		return nil, errors.New("open store: context is nil")
	}

	if path == "" {
		return nil, errors.New("open store: path is empty")
	}

	s := &Store{
		path:   filepath.Clean(path),
		log:    zerolog.Nop(),
		ids:    ULIDs,
		schema: block.NewRegistry(),
		now:    time.Now,
		keys:   orderkey.Space{MaxLen: orderkey.DefaultMaxLen},
	}

	for _, opt := range opts {
		opt(s)
	}

	err := os.MkdirAll(filepath.Dir(s.path), 0o750)
	if err != nil {
		return nil, fmt.Errorf("open store: create directory: %w", err)
	}

	db, err := openSqlite(ctx, s.path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	err = migrate(ctx, db)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("open store: %w", err)
	}

	s.sql = db

	s.log.Debug().Str("path", s.path).Msg("store opened")

	return s, nil
}

// Path is the database file the store was opened from.
func (s *Store) Path() string { return s.path }

// Close releases the SQLite handle opened by Open.
// Further calls on the store fail with [ErrClosed].
func (s *Store) Close() error {
	if s == nil || s.sql == nil || !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := s.sql.Close()
	if err != nil {
		return fmt.Errorf("close sqlite: %w", err)
	}

	return nil
}

func (s *Store) ready(ctx context.Context, op string) error {
	if ctx == nil {
		return fmt.Errorf("%s: context is nil", op)
	}

	if s == nil || s.sql == nil || s.closed.Load() {
		return fmt.Errorf("%s: %w", op, ErrClosed)
	}

	err := ctx.Err()
	if err != nil {
		return fmt.Errorf("%s: canceled: %w", op, context.Cause(ctx))
	}

	return nil
}

func (s *Store) nowMillis() int64 {
	return s.now().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
