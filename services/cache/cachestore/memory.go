// Package cachestore holds the durable tier implementations of cache.Store.
package cachestore

import (
	"context"
	"sync"
	"time"

	"market_data_hub/services/cache"
)

// MemoryStore is a process-local cache.Store for development and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]cache.Entry
}

// NewMemoryStore creates an empty memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]cache.Entry)}
}

func (s *MemoryStore) Get(_ context.Context, key cache.Key) (cache.Entry, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ent, ok := s.entries[key.String()]
	if !ok {
		return cache.Entry{}, false, nil
	}
	ent.Payload = append([]byte(nil), ent.Payload...)
	return ent, true, nil
}

func (s *MemoryStore) Set(_ context.Context, entry cache.Entry) error {
	entry.Payload = append([]byte(nil), entry.Payload...)

	s.mu.Lock()
	s.entries[entry.Key.String()] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, rt cache.ResourceType, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for k, ent := range s.entries {
		if ent.Key.Type != rt {
			continue
		}
		if identifier == "" || ent.Key.Identifier == identifier {
			delete(s.entries, k)
		}
	}
	return nil
}

func (s *MemoryStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for k, ent := range s.entries {
		if ent.Expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

var _ cache.Store = (*MemoryStore)(nil)
