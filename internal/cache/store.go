// Package cache provides the in-process memo shared by the fetcher and the
// metric calculator. Entries live until they are cleared; there is no expiry
// and no size bound.
package cache

import (
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Category scopes a set of cache entries.
type Category string

const (
	CategorySeries     Category = "series"
	CategoryFinancials Category = "financials"
	CategoryMetrics    Category = "metrics"
	CategoryValuation  Category = "valuation"
)

// Store is a category-scoped key/value memo. It is safe for concurrent use:
// overlapping computations of the same uncached key collapse into one call.
type Store struct {
	mu      sync.RWMutex
	entries map[Category]map[string]any
	group   singleflight.Group
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[Category]map[string]any)}
}

// Key joins the parts of a composite key.
func Key(parts ...string) string {
	return strings.Join(parts, "|")
}

// Get returns the cached value for key in category.
func (s *Store) Get(category Category, key string) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.entries[category][key]
	return v, ok
}

func (s *Store) set(category Category, key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.entries[category]
	if !ok {
		m = make(map[string]any)
		s.entries[category] = m
	}
	m[key] = value
}

// Clear evicts the given categories, or everything when none is given.
func (s *Store) Clear(categories ...Category) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(categories) == 0 {
		s.entries = make(map[Category]map[string]any)
		return
	}
	for _, c := range categories {
		delete(s.entries, c)
	}
}

// Len returns the number of entries held in category.
func (s *Store) Len(category Category) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries[category])
}

// GetOrCompute returns the cached value for (category, key) unless
// forceRefresh is set or the key is absent, in which case compute is called
// and its result stored. A failed compute leaves no entry behind.
func GetOrCompute[T any](s *Store, category Category, key string, forceRefresh bool, compute func() (T, error)) (T, error) {
	if !forceRefresh {
		if v, ok := s.Get(category, key); ok {
			if typed, ok := v.(T); ok {
				return typed, nil
			}
		}
	}

	v, err, _ := s.group.Do(string(category)+"\x00"+key, func() (any, error) {
		value, err := compute()
		if err != nil {
			return nil, err
		}
		s.set(category, key, value)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}
