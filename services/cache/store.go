package cache

import (
	"context"
	"time"
)

// Store is the durable tier. Implementations must write each entry
// atomically and must be safe for concurrent use.
type Store interface {
	// Get returns the entry for key. found is false when nothing is stored;
	// expired entries may be returned and are filtered by the coordinator.
	Get(ctx context.Context, key Key) (entry Entry, found bool, err error)

	// Set inserts or replaces an entry.
	Set(ctx context.Context, entry Entry) error

	// Delete removes every entry of rt for identifier (all variants), or every
	// entry of rt when identifier is empty.
	Delete(ctx context.Context, rt ResourceType, identifier string) error

	// PurgeExpired removes entries expired at now.
	PurgeExpired(ctx context.Context, now time.Time) (int64, error)

	// Close releases the underlying connection.
	Close() error
}
