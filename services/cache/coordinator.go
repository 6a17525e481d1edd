// Package cache implements the tiered cache-aside coordinator: an in-process
// hot tier, a durable store and a coalesced origin call behind one read path.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"market_data_hub/services/apperrors"
	"market_data_hub/services/coalesce"
	"market_data_hub/services/metrics"
)

// OriginFunc produces a fresh payload for a key from the upstream provider.
type OriginFunc func(ctx context.Context) ([]byte, error)

// Coordinator serves reads from the hot tier, then the durable store, then a
// single coalesced origin call per key. It holds no lock across store or
// origin I/O.
type Coordinator struct {
	store    Store
	hot      *HotCache
	group    *coalesce.Group
	policies Policies
	now      func() time.Time
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

// WithGroup shares a coalescing group with other services.
func WithGroup(g *coalesce.Group) Option {
	return func(c *Coordinator) { c.group = g }
}

// NewCoordinator creates a coordinator over store using policies.
func NewCoordinator(store Store, policies Policies, opts ...Option) *Coordinator {
	if policies == nil {
		policies = DefaultPolicies()
	}
	c := &Coordinator{
		store:    store,
		hot:      NewHotCache(),
		group:    coalesce.NewGroup(coalesce.DefaultCallTimeout),
		policies: policies,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the payload for key, calling origin only when neither tier
// holds a live entry. Origin failures are returned as-is and never cached,
// except ErrNotFound which is remembered in memory for the type's NotFoundTTL.
func (c *Coordinator) Get(ctx context.Context, key Key, origin OriginFunc) ([]byte, error) {
	if key.Identifier == "" {
		return nil, apperrors.InvalidInput("empty identifier for %s", key.Type)
	}

	k := key.String()
	rt := key.Type.String()
	policy := c.policies.For(key.Type)

	if ent, ok := c.hot.get(k, c.now()); ok {
		metrics.CacheLookups.WithLabelValues(rt, "hot", "hit").Inc()
		if ent.notFound {
			return nil, apperrors.NotFound(k)
		}
		return ent.payload, nil
	}
	metrics.CacheLookups.WithLabelValues(rt, "hot", "miss").Inc()

	entry, found, err := c.store.Get(ctx, key)
	switch {
	case err != nil:
		// A broken durable tier degrades to the origin instead of failing the read.
		metrics.CacheLookups.WithLabelValues(rt, "durable", "error").Inc()
		log.Printf("Warning: durable cache read failed for %s: %v", k, err)
	case found && !entry.Expired(c.now()):
		metrics.CacheLookups.WithLabelValues(rt, "durable", "hit").Inc()
		c.hot.set(k, hotEntry{payload: entry.Payload, expiresAt: c.hotExpiry(policy, entry.ExpiresAt)})
		return entry.Payload, nil
	default:
		metrics.CacheLookups.WithLabelValues(rt, "durable", "miss").Inc()
	}

	v, err := c.group.Fetch(ctx, k, func(ctx context.Context) (any, error) {
		return c.load(ctx, key, policy, origin)
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// load runs inside the coalesced call, at most once per key at a time.
func (c *Coordinator) load(ctx context.Context, key Key, policy Policy, origin OriginFunc) ([]byte, error) {
	k := key.String()
	rt := key.Type.String()

	// A call that finished just before this one started may have filled the hot tier.
	if ent, ok := c.hot.get(k, c.now()); ok {
		if ent.notFound {
			return nil, apperrors.NotFound(k)
		}
		return ent.payload, nil
	}

	payload, err := origin(ctx)
	if err != nil {
		metrics.OriginCalls.WithLabelValues(rt, "error").Inc()
		if errors.Is(err, apperrors.ErrNotFound) && policy.NotFoundTTL > 0 {
			c.hot.set(k, hotEntry{notFound: true, expiresAt: c.now().Add(policy.NotFoundTTL)})
		}
		return nil, err
	}
	metrics.OriginCalls.WithLabelValues(rt, "ok").Inc()

	now := c.now()
	entry := Entry{Key: key, Payload: payload, ExpiresAt: now.Add(policy.DurableTTL)}
	if err := c.store.Set(ctx, entry); err != nil {
		log.Printf("Warning: durable cache write failed for %s: %v", k, err)
	}
	c.hot.set(k, hotEntry{payload: payload, expiresAt: c.hotExpiry(policy, entry.ExpiresAt)})
	return payload, nil
}

// hotExpiry keeps hot residency short and never past the durable expiry.
func (c *Coordinator) hotExpiry(policy Policy, durableExpiry time.Time) time.Time {
	exp := c.now().Add(policy.HotTTL)
	if durableExpiry.Before(exp) {
		return durableExpiry
	}
	return exp
}

// Clear purges both tiers for rt and identifier, or for every key of rt when
// identifier is empty.
func (c *Coordinator) Clear(ctx context.Context, rt ResourceType, identifier string) error {
	prefix := rt.String()
	if identifier != "" {
		prefix = Key{Type: rt, Identifier: identifier}.String()
	}
	removed := c.hot.deletePrefix(prefix)

	if err := c.store.Delete(ctx, rt, identifier); err != nil {
		return apperrors.Persistence(fmt.Sprintf("clear %s", prefix), err)
	}
	log.Printf("Cache cleared: %s (%d hot entries)", prefix, removed)
	return nil
}

// SweepHot evicts expired hot entries.
func (c *Coordinator) SweepHot() int {
	return c.hot.Sweep(c.now())
}

// PurgeExpired removes expired entries from the durable store.
func (c *Coordinator) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := c.store.PurgeExpired(ctx, c.now())
	if err != nil {
		return 0, apperrors.Persistence("purge expired cache entries", err)
	}
	return n, nil
}

// HotLen returns the number of entries resident in memory.
func (c *Coordinator) HotLen() int {
	return c.hot.Len()
}

// Fetch reads a typed value through c. The origin result is stored as JSON.
func Fetch[T any](ctx context.Context, c *Coordinator, key Key, origin func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	payload, err := c.Get(ctx, key, func(ctx context.Context) ([]byte, error) {
		v, err := origin(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		return data, nil
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(payload, &out); err != nil {
		return zero, fmt.Errorf("decode %s: %w", key, err)
	}
	return out, nil
}
