package cache

import (
	"strings"
	"sync"
	"time"
)

type hotEntry struct {
	payload   []byte
	notFound  bool
	expiresAt time.Time
}

// HotCache is the in-process tier. Entries are replaced whole, so a reader
// never sees a partially written value.
type HotCache struct {
	mu      sync.RWMutex
	entries map[string]hotEntry
}

// NewHotCache creates an empty hot cache.
func NewHotCache() *HotCache {
	return &HotCache{entries: make(map[string]hotEntry)}
}

func (h *HotCache) get(key string, now time.Time) (hotEntry, bool) {
	h.mu.RLock()
	ent, ok := h.entries[key]
	h.mu.RUnlock()
	if !ok {
		return hotEntry{}, false
	}
	if !now.Before(ent.expiresAt) {
		h.mu.Lock()
		// Re-check under the write lock; a writer may have refreshed it.
		if cur, ok := h.entries[key]; ok && !now.Before(cur.expiresAt) {
			delete(h.entries, key)
		}
		h.mu.Unlock()
		return hotEntry{}, false
	}
	return ent, true
}

func (h *HotCache) set(key string, ent hotEntry) {
	h.mu.Lock()
	h.entries[key] = ent
	h.mu.Unlock()
}

// deletePrefix removes key itself and every key that extends it with ":".
func (h *HotCache) deletePrefix(prefix string) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for k := range h.entries {
		if k == prefix || strings.HasPrefix(k, prefix+":") {
			delete(h.entries, k)
			removed++
		}
	}
	return removed
}

// Sweep drops every entry expired at now and returns how many were removed.
func (h *HotCache) Sweep(now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for k, ent := range h.entries {
		if !now.Before(ent.expiresAt) {
			delete(h.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of resident entries, expired or not.
func (h *HotCache) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}
