package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/pmatheus/nsrl-filter/internal/models"
	"go.uber.org/zap"
)

// Tables that hold hashes in NSRL-style databases, in order of preference
var candidateTables = []string{"METADATA", "FILE"}

// Probe locates the table holding the hash columns and records it on the store.
// A non-empty preferred table is the only one considered; when it is missing
// or has no hash columns the probe fails instead of falling back to the
// standard names.
func (s *Store) Probe(ctx context.Context, preferred string) (models.Schema, error) {
	candidates := candidateTables
	if preferred != "" {
		candidates = []string{preferred}
	}

	for _, name := range candidates {
		rel, isView, found, err := s.dialect.FindRelation(ctx, s.db, name)
		if err != nil {
			return models.Schema{}, fmt.Errorf("failed to look up table %s: %w", name, err)
		}
		if !found {
			continue
		}

		cols, err := s.dialect.Columns(ctx, s.db, rel)
		if err != nil {
			return models.Schema{}, fmt.Errorf("failed to list columns of %s: %w", rel, err)
		}

		schema := models.Schema{Table: rel, IsView: isView}
		schema.SHA1Column, schema.MD5Column = matchHashColumns(cols)
		if schema.SHA1Column == "" && schema.MD5Column == "" {
			s.logger.Debug("table has no hash columns", zap.String("table", rel))
			continue
		}

		s.schema = schema
		s.probed = true
		s.mixedCase = nil
		s.logger.Info("reference schema resolved",
			zap.String("table", schema.Table),
			zap.Bool("view", schema.IsView),
			zap.String("sha1_column", schema.SHA1Column),
			zap.String("md5_column", schema.MD5Column))
		return schema, nil
	}

	return models.Schema{}, fmt.Errorf("%w: looked for %s", ErrSchemaNotFound, strings.Join(candidates, ", "))
}

// matchHashColumns picks the SHA-1 and MD5 columns by case-insensitive name,
// ignoring '-' and '_' so SHA1, sha_1 and SHA-1 all match
func matchHashColumns(cols []string) (sha1, md5 string) {
	for _, c := range cols {
		switch normalizeColumn(c) {
		case "sha1":
			if sha1 == "" {
				sha1 = c
			}
		case "md5":
			if md5 == "" {
				md5 = c
			}
		}
	}
	return sha1, md5
}

func normalizeColumn(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("-", "", "_", "").Replace(name)
}
