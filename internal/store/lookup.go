package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmatheus/nsrl-filter/internal/models"
	"go.uber.org/zap"
)

// Lookup reports which of hashes exist in the reference store.
// Hashes are expected normalized (lower-case); the store is queried with
// lower- and upper-case forms so matching does not depend on how the
// reference data was cased. A column holding mixed-case values is instead
// compared through LOWER(), which cannot use its index. The returned set
// holds normalized values.
func (s *Store) Lookup(ctx context.Context, kind models.HashKind, hashes []string) (map[string]struct{}, error) {
	if !s.probed {
		return nil, ErrNotProbed
	}

	found := make(map[string]struct{})
	column := s.schema.SHA1Column
	if kind == models.MD5 {
		column = s.schema.MD5Column
	}
	if column == "" || len(hashes) == 0 {
		return found, nil
	}

	fold, err := s.hasMixedCase(ctx, column)
	if err != nil {
		return nil, err
	}
	values := caseVariants(hashes)
	if fold {
		values = lowerDistinct(hashes)
	}

	limit := s.dialect.MaxParams()
	for start := 0; start < len(values); start += limit {
		end := min(start+limit, len(values))
		batch := values[start:end]

		err := s.withRetry(ctx, fmt.Sprintf("lookup %s (%d values)", kind, len(batch)), func() error {
			return s.queryExisting(ctx, column, fold, batch, found)
		})
		if err != nil {
			return nil, err
		}
	}

	return found, nil
}

// queryExisting adds the values of batch present in column to found.
// With fold set, column is lower-cased before comparison.
func (s *Store) queryExisting(ctx context.Context, column string, fold bool, batch []string, found map[string]struct{}) error {
	target := s.dialect.QuoteIdent(column)
	if fold {
		target = "LOWER(" + target + ")"
	}
	q := fmt.Sprintf("SELECT DISTINCT %s FROM %s WHERE %s IN (%s)",
		s.dialect.QuoteIdent(column),
		s.dialect.QuoteIdent(s.schema.Table),
		target,
		placeholders(s.dialect, len(batch)))

	args := make([]any, len(batch))
	for i, v := range batch {
		args[i] = v
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return err
	}
	values, err := scanStrings(rows)
	if err != nil {
		return err
	}
	for _, v := range values {
		found[models.NormalizeHash(v)] = struct{}{}
	}
	return nil
}

// hasMixedCase checks column once per probe. Concurrent callers wait for
// the first check rather than repeating the scan.
func (s *Store) hasMixedCase(ctx context.Context, column string) (bool, error) {
	s.caseMu.Lock()
	defer s.caseMu.Unlock()

	if mixed, ok := s.mixedCase[column]; ok {
		return mixed, nil
	}

	var mixed bool
	err := s.withRetry(ctx, "case check "+column, func() error {
		var err error
		mixed, err = s.dialect.HasMixedCase(ctx, s.db, s.schema.Table, column)
		return err
	})
	if err != nil {
		return false, err
	}

	if s.mixedCase == nil {
		s.mixedCase = make(map[string]bool, 2)
	}
	s.mixedCase[column] = mixed
	if mixed {
		s.logger.Warn("reference column holds mixed-case hashes; lookups cannot use its index",
			zap.String("table", s.schema.Table),
			zap.String("column", column))
	}
	return mixed, nil
}

// lowerDistinct returns each distinct non-empty hash in lower case
func lowerDistinct(hashes []string) []string {
	seen := make(map[string]struct{}, len(hashes))
	out := make([]string, 0, len(hashes))
	for _, h := range hashes {
		if h == "" {
			continue
		}
		h = strings.ToLower(h)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// caseVariants returns each distinct hash in lower and upper case
func caseVariants(hashes []string) []string {
	seen := make(map[string]struct{}, len(hashes)*2)
	out := make([]string, 0, len(hashes)*2)
	add := func(v string) {
		if _, ok := seen[v]; ok {
			return
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	for _, h := range hashes {
		if h == "" {
			continue
		}
		add(strings.ToLower(h))
		add(strings.ToUpper(h))
	}
	return out
}
