// Package store provides read access to the hash reference database.
// It detects where the hashes live, makes sure they are indexed and answers
// batched membership queries.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pmatheus/nsrl-filter/internal/models"
	"go.uber.org/zap"
)

var (
	ErrDatabaseNotFound = errors.New("reference database not found")
	ErrSchemaNotFound   = errors.New("no hash table found in reference database")
	ErrIndexCreation    = errors.New("index creation failed")
	ErrQueryFailed      = errors.New("database query failed")
	ErrNotProbed        = errors.New("schema not probed")
)

// Options configures how the reference store is opened
type Options struct {
	Driver   string
	Database string
	// MaxConns bounds the connection pool; one per concurrent lookup plus one spare
	MaxConns int
	// ReadOnly refuses writes for the whole session, which also disables index creation
	ReadOnly bool
	Retry    *RetryConfig
	Logger   *zap.Logger
}

// Store represents a connection pool to the reference database
type Store struct {
	db      *sql.DB
	dialect Dialect
	retry   *RetryConfig
	logger  *zap.Logger

	schema  models.Schema
	probed  bool
	retries atomic.Int64

	caseMu sync.Mutex
	// mixedCase caches, per hash column, whether its values mix letter case
	mixedCase map[string]bool
}

// Open connects to the reference database and verifies it is reachable
func Open(ctx context.Context, opts Options) (*Store, error) {
	d, err := DialectFor(opts.Driver)
	if err != nil {
		return nil, err
	}

	// SQLite would silently create an empty database
	if d.Name() == "sqlite" {
		if _, err := os.Stat(opts.Database); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrDatabaseNotFound, opts.Database)
		}
	}

	db, err := sql.Open(d.DriverName(), d.DSN(opts.Database, opts.ReadOnly))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if opts.MaxConns > 0 {
		db.SetMaxOpenConns(opts.MaxConns)
		db.SetMaxIdleConns(opts.MaxConns)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := opts.Retry
	if retry == nil {
		retry = DefaultRetryConfig()
	}

	return &Store{db: db, dialect: d, retry: retry, logger: logger}, nil
}

// Close closes the database connection pool
func (s *Store) Close() error {
	return s.db.Close()
}

// Dialect returns the backend dialect in use
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Schema returns the probed schema
func (s *Store) Schema() (models.Schema, error) {
	if !s.probed {
		return models.Schema{}, ErrNotProbed
	}
	return s.schema, nil
}

// Retries returns how many lookup attempts were retried
func (s *Store) Retries() int64 {
	return s.retries.Load()
}
