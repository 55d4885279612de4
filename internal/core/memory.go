package core

import (
	"context"
	"sync"

	"github.com/pmatheus/nsrl-filter/internal/models"
)

// MemoryLookup is an in-memory implementation of HashLookup for testing.
type MemoryLookup struct {
	mu   sync.Mutex
	sha1 map[string]struct{}
	md5  map[string]struct{}

	// Err can be set to make Lookup return an error
	Err error
	// Delay is called before each lookup, letting tests reorder workers
	Delay func(kind models.HashKind, hashes []string)

	calls int
}

// NewMemoryLookup creates an empty in-memory reference set
func NewMemoryLookup() *MemoryLookup {
	return &MemoryLookup{
		sha1: make(map[string]struct{}),
		md5:  make(map[string]struct{}),
	}
}

// AddSHA1 adds reference SHA-1 values
func (m *MemoryLookup) AddSHA1(hashes ...string) *MemoryLookup {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hashes {
		m.sha1[models.NormalizeHash(h)] = struct{}{}
	}
	return m
}

// AddMD5 adds reference MD5 values
func (m *MemoryLookup) AddMD5(hashes ...string) *MemoryLookup {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, h := range hashes {
		m.md5[models.NormalizeHash(h)] = struct{}{}
	}
	return m
}

// Calls returns how many lookups were issued
func (m *MemoryLookup) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// Lookup returns the subset of hashes present in the set
func (m *MemoryLookup) Lookup(ctx context.Context, kind models.HashKind, hashes []string) (map[string]struct{}, error) {
	if m.Delay != nil {
		m.Delay(kind, hashes)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.Err != nil {
		return nil, m.Err
	}

	set := m.sha1
	if kind == models.MD5 {
		set = m.md5
	}
	found := make(map[string]struct{})
	for _, h := range hashes {
		if _, ok := set[h]; ok {
			found[h] = struct{}{}
		}
	}
	return found, nil
}
