package store

import (
	"context"
	"sort"
	"sync"

	"github.com/Sternrassler/repo-backfill/pkg/repo"
)

// MemoryStore is an in-process Store. It is used when no database is
// configured and in tests.
type MemoryStore struct {
	mu    sync.RWMutex
	repos map[int64]repo.Repo
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		repos: make(map[int64]repo.Repo),
	}
}

// Upsert inserts or replaces repos by ID under a single lock, so readers
// observe either none or all of the batch.
func (m *MemoryStore) Upsert(ctx context.Context, repos []repo.Repo) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range repos {
		m.repos[r.ID] = r
	}
	return nil
}

// Query returns one window of matching repositories in result order.
func (m *MemoryStore) Query(ctx context.Context, pattern string, offset, limit int) ([]repo.Repo, error) {
	if err := validateWindow(offset, limit); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	matched := m.matching(pattern)
	if offset >= len(matched) {
		return []repo.Repo{}, nil
	}

	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], nil
}

// Count returns the number of repositories matching pattern.
func (m *MemoryStore) Count(ctx context.Context, pattern string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return len(m.matching(pattern)), nil
}

// Len returns the total number of stored repositories.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.repos)
}

func (m *MemoryStore) matching(pattern string) []repo.Repo {
	m.mu.RLock()
	matched := make([]repo.Repo, 0, len(m.repos))
	for _, r := range m.repos {
		if Match(pattern, r.Name) || (r.Description != nil && Match(pattern, *r.Description)) {
			matched = append(matched, r)
		}
	}
	m.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		return repo.Less(matched[i], matched[j])
	})
	return matched
}
