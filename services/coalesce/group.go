// Package coalesce merges concurrent identical origin requests into a single
// in-flight call.
package coalesce

import (
	"context"
	"time"

	"market_data_hub/services/metrics"

	"golang.org/x/sync/singleflight"
)

// DefaultCallTimeout bounds an origin call detached from its first caller.
const DefaultCallTimeout = 30 * time.Second

// Group deduplicates concurrent calls by key. A key is registered on the
// first call and forgotten as soon as that call returns, whether it
// succeeded or failed, so the next call after completion reaches the origin
// again. Retries are the origin's business, not the group's.
type Group struct {
	sf      singleflight.Group
	timeout time.Duration
}

// NewGroup creates a group whose detached origin calls are bounded by timeout.
func NewGroup(timeout time.Duration) *Group {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Group{timeout: timeout}
}

// Fetch runs fn once per key among concurrent callers and hands every caller
// the same result. The origin call runs on a context detached from the caller
// that started it, so one caller giving up does not fail the others; each
// caller still stops waiting when its own ctx is done.
func (g *Group) Fetch(ctx context.Context, key string, fn func(ctx context.Context) (any, error)) (any, error) {
	// Only the caller that started the call runs this closure; the write to
	// started is visible once the result arrives on ch.
	started := false
	ch := g.sf.DoChan(key, func() (any, error) {
		started = true
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
		defer cancel()
		return fn(callCtx)
	})

	select {
	case res := <-ch:
		if res.Shared && !started {
			metrics.CoalescedWaits.Inc()
		}
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Forget drops key so the next Fetch starts a new call even if one is in flight.
func (g *Group) Forget(key string) {
	g.sf.Forget(key)
}
