// Package core classifies candidate records against the reference hash set.
package core

import (
	"context"
	"fmt"

	"github.com/pmatheus/nsrl-filter/internal/models"
	"github.com/pmatheus/nsrl-filter/internal/store"
)

// HashLookup answers batched membership queries against the reference set.
// This interface enables swapping the database for an in-memory set in tests.
type HashLookup interface {
	// Lookup returns the subset of hashes present in the reference set
	Lookup(ctx context.Context, kind models.HashKind, hashes []string) (map[string]struct{}, error)
}

// Verify that *store.Store implements HashLookup at compile time
var _ HashLookup = (*store.Store)(nil)

// Classifier assigns a Classification to candidate records
type Classifier struct {
	lookup HashLookup
	seen   *SeenSet
}

// NewClassifier creates a classifier backed by lookup. A nil seen set starts empty.
func NewClassifier(lookup HashLookup, seen *SeenSet) *Classifier {
	if seen == nil {
		seen = NewSeenSet()
	}
	return &Classifier{lookup: lookup, seen: seen}
}

// Seen returns the set of known keys emitted so far
func (c *Classifier) Seen() *SeenSet {
	return c.seen
}

// Match reports, for each record, whether the reference set holds its SHA-1
// or its MD5. One query per hash kind covers the whole batch; MD5 is only
// consulted for records that SHA-1 did not match.
func (c *Classifier) Match(ctx context.Context, records []*models.Record) ([]bool, error) {
	matched := make([]bool, len(records))

	sha1s := distinct(records, func(r *models.Record) string { return r.SHA1 }, matched)
	if len(sha1s) > 0 {
		found, err := c.lookup.Lookup(ctx, models.SHA1, sha1s)
		if err != nil {
			return nil, fmt.Errorf("sha1 lookup: %w", err)
		}
		for i, r := range records {
			if _, ok := found[r.SHA1]; ok && r.SHA1 != "" {
				matched[i] = true
			}
		}
	}

	md5s := distinct(records, func(r *models.Record) string { return r.MD5 }, matched)
	if len(md5s) > 0 {
		found, err := c.lookup.Lookup(ctx, models.MD5, md5s)
		if err != nil {
			return nil, fmt.Errorf("md5 lookup: %w", err)
		}
		for i, r := range records {
			if matched[i] || r.MD5 == "" {
				continue
			}
			if _, ok := found[r.MD5]; ok {
				matched[i] = true
			}
		}
	}

	return matched, nil
}

// Resolve turns a lookup result into the final classification. Calls must be
// made in input order for the first occurrence of a key to be the Known one.
func (c *Classifier) Resolve(rec *models.Record, matched bool) models.Classification {
	switch {
	case rec.Empty():
		return models.EmptyHash
	case !matched:
		return models.Unknown
	case c.seen.Add(rec.Key()):
		return models.Known
	default:
		return models.DuplicateKnown
	}
}

// Classify looks up and resolves a single record
func (c *Classifier) Classify(ctx context.Context, rec *models.Record) (models.Classification, error) {
	if rec.Empty() {
		return models.EmptyHash, nil
	}
	matched, err := c.Match(ctx, []*models.Record{rec})
	if err != nil {
		return 0, err
	}
	return c.Resolve(rec, matched[0]), nil
}

// distinct collects the non-empty values of field for records not yet matched
func distinct(records []*models.Record, field func(*models.Record) string, skip []bool) []string {
	seen := make(map[string]struct{}, len(records))
	out := make([]string, 0, len(records))
	for i, r := range records {
		if skip[i] {
			continue
		}
		v := field(r)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
