package models

import (
	"fmt"
	"sync/atomic"
)

// Summary accumulates run counters. Fields are atomic so progress can be
// read while the pipeline is still writing them.
type Summary struct {
	Total     atomic.Int64
	Known     atomic.Int64
	Unknown   atomic.Int64
	Duplicate atomic.Int64
	Empty     atomic.Int64

	// Errored counts records of chunks whose lookup failed; non-zero only on aborted runs
	Errored atomic.Int64

	// Malformed and Filtered rows are skipped before classification and are not part of Total
	Malformed atomic.Int64
	Filtered  atomic.Int64

	QueryRetries atomic.Int64
}

// Record counts one classified record
func (s *Summary) Record(c Classification) {
	s.Total.Add(1)
	switch c {
	case Known:
		s.Known.Add(1)
	case Unknown:
		s.Unknown.Add(1)
	case DuplicateKnown:
		s.Duplicate.Add(1)
	case EmptyHash:
		s.Empty.Add(1)
	}
}

// RecordErrored counts n records that could not be classified
func (s *Summary) RecordErrored(n int) {
	s.Total.Add(int64(n))
	s.Errored.Add(int64(n))
}

// Check verifies that every counted record landed in exactly one bucket
func (s *Summary) Check() error {
	total := s.Total.Load()
	sum := s.Known.Load() + s.Unknown.Load() + s.Duplicate.Load() + s.Empty.Load() + s.Errored.Load()
	if sum != total {
		return fmt.Errorf("summary mismatch: known+unknown+duplicate+empty+errored=%d, total=%d", sum, total)
	}
	return nil
}

// Snapshot is a plain copy of the counters
type Snapshot struct {
	Total        int64 `json:"total"`
	Known        int64 `json:"known"`
	Unknown      int64 `json:"unknown"`
	Duplicate    int64 `json:"duplicate"`
	Empty        int64 `json:"empty"`
	Errored      int64 `json:"errored"`
	Malformed    int64 `json:"malformed"`
	Filtered     int64 `json:"filtered"`
	QueryRetries int64 `json:"query_retries"`
}

// Snapshot returns the current counter values
func (s *Summary) Snapshot() Snapshot {
	return Snapshot{
		Total:        s.Total.Load(),
		Known:        s.Known.Load(),
		Unknown:      s.Unknown.Load(),
		Duplicate:    s.Duplicate.Load(),
		Empty:        s.Empty.Load(),
		Errored:      s.Errored.Load(),
		Malformed:    s.Malformed.Load(),
		Filtered:     s.Filtered.Load(),
		QueryRetries: s.QueryRetries.Load(),
	}
}
