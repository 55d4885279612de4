package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// IndexReport lists what EnsureIndexes found and did, per hash column
type IndexReport struct {
	Existing []string
	Created  []string
	Skipped  []string // columns of views, which cannot be indexed
}

// IndexState reports, per hash column, whether an index already covers it
func (s *Store) IndexState(ctx context.Context) (map[string]bool, error) {
	if !s.probed {
		return nil, ErrNotProbed
	}

	state := make(map[string]bool)
	for _, col := range s.schema.HashColumns() {
		ok, err := s.dialect.HasLeadingIndex(ctx, s.db, s.schema.Table, col)
		if err != nil {
			return nil, fmt.Errorf("failed to inspect indexes on %s.%s: %w", s.schema.Table, col, err)
		}
		state[col] = ok
	}
	return state, nil
}

// EnsureIndexes creates an index on every hash column that lacks one.
// Existing indexes are detected from the catalog, so a second run creates nothing.
func (s *Store) EnsureIndexes(ctx context.Context) (*IndexReport, error) {
	if !s.probed {
		return nil, ErrNotProbed
	}

	report := &IndexReport{}
	if s.schema.IsView {
		report.Skipped = s.schema.HashColumns()
		s.logger.Warn("reference hashes live in a view, which cannot be indexed; relying on base table indexes",
			zap.String("view", s.schema.Table))
		return report, nil
	}

	state, err := s.IndexState(ctx)
	if err != nil {
		return nil, err
	}

	for _, col := range s.schema.HashColumns() {
		if state[col] {
			report.Existing = append(report.Existing, col)
			continue
		}

		name := indexName(s.schema.Table, col)
		stmt := fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
			s.dialect.QuoteIdent(name), s.dialect.QuoteIdent(s.schema.Table), s.dialect.QuoteIdent(col))

		s.logger.Info("creating index, this may take a while on large databases",
			zap.String("index", name), zap.String("column", col))
		start := time.Now()
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return report, fmt.Errorf("%w: %s on %s.%s: %w", ErrIndexCreation, name, s.schema.Table, col, err)
		}
		s.logger.Info("index created",
			zap.String("index", name),
			zap.Duration("duration", time.Since(start).Truncate(time.Millisecond)))

		report.Created = append(report.Created, col)
	}

	return report, nil
}
