package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"market_data_hub/services/apperrors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapStore is a minimal Store with switchable failures.
type mapStore struct {
	mu       sync.Mutex
	entries  map[string]Entry
	failGet  bool
	failSet  bool
	failDel  bool
	setCalls int
}

func newMapStore() *mapStore {
	return &mapStore{entries: make(map[string]Entry)}
}

func (s *mapStore) Get(_ context.Context, key Key) (Entry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet {
		return Entry{}, false, errors.New("store down")
	}
	e, ok := s.entries[key.String()]
	return e, ok, nil
}

func (s *mapStore) Set(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setCalls++
	if s.failSet {
		return errors.New("store down")
	}
	s.entries[e.Key.String()] = e
	return nil
}

func (s *mapStore) Delete(_ context.Context, rt ResourceType, identifier string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failDel {
		return errors.New("store down")
	}
	prefix := rt.String()
	if identifier != "" {
		prefix = Key{Type: rt, Identifier: identifier}.String()
	}
	for k := range s.entries {
		if k == prefix || strings.HasPrefix(k, prefix+":") {
			delete(s.entries, k)
		}
	}
	return nil
}

func (s *mapStore) PurgeExpired(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, e := range s.entries {
		if e.Expired(now) {
			delete(s.entries, k)
			n++
		}
	}
	return n, nil
}

func (s *mapStore) Close() error { return nil }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCoordinator(store Store) (*Coordinator, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)}
	policies := Policies{
		ResourceQuote:   {DurableTTL: time.Minute, HotTTL: 15 * time.Second, NotFoundTTL: 30 * time.Second},
		ResourceProfile: {DurableTTL: time.Hour, HotTTL: 5 * time.Minute},
	}
	return NewCoordinator(store, policies, WithClock(clock.Now)), clock
}

func countingOrigin(calls *int32, payload string) OriginFunc {
	return func(context.Context) ([]byte, error) {
		atomic.AddInt32(calls, 1)
		return []byte(payload), nil
	}
}

func TestCoordinator_HitWithinTTLSkipsOrigin(t *testing.T) {
	c, clock := newTestCoordinator(newMapStore())
	ctx := context.Background()
	key := Key{Type: ResourceQuote, Identifier: "AAPL"}
	var calls int32

	v, err := c.Get(ctx, key, countingOrigin(&calls, "q1"))
	require.NoError(t, err)
	assert.Equal(t, "q1", string(v))

	clock.Advance(10 * time.Second)
	v, err = c.Get(ctx, key, countingOrigin(&calls, "q2"))
	require.NoError(t, err)
	assert.Equal(t, "q1", string(v))

	// Hot expired, durable still live.
	clock.Advance(20 * time.Second)
	v, err = c.Get(ctx, key, countingOrigin(&calls, "q3"))
	require.NoError(t, err)
	assert.Equal(t, "q1", string(v))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	// Both tiers expired.
	clock.Advance(time.Minute)
	v, err = c.Get(ctx, key, countingOrigin(&calls, "q4"))
	require.NoError(t, err)
	assert.Equal(t, "q4", string(v))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCoordinator_DurableHitPopulatesHot(t *testing.T) {
	store := newMapStore()
	c, clock := newTestCoordinator(store)
	ctx := context.Background()
	key := Key{Type: ResourceProfile, Identifier: "MSFT"}

	store.entries[key.String()] = Entry{Key: key, Payload: []byte("p"), ExpiresAt: clock.Now().Add(time.Hour)}

	var calls int32
	v, err := c.Get(ctx, key, countingOrigin(&calls, "origin"))
	require.NoError(t, err)
	assert.Equal(t, "p", string(v))
	assert.Equal(t, 1, c.HotLen())

	// Durable tier gone; the hot tier still answers.
	store.failGet = true
	v, err = c.Get(ctx, key, countingOrigin(&calls, "origin"))
	require.NoError(t, err)
	assert.Equal(t, "p", string(v))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestCoordinator_HotNeverOutlivesDurable(t *testing.T) {
	store := newMapStore()
	c, clock := newTestCoordinator(store)
	ctx := context.Background()
	key := Key{Type: ResourceProfile, Identifier: "IBM"}

	// Durable entry expiring well before the 5m hot TTL.
	store.entries[key.String()] = Entry{Key: key, Payload: []byte("old"), ExpiresAt: clock.Now().Add(10 * time.Second)}

	var calls int32
	_, err := c.Get(ctx, key, countingOrigin(&calls, "fresh"))
	require.NoError(t, err)

	clock.Advance(11 * time.Second)
	v, err := c.Get(ctx, key, countingOrigin(&calls, "fresh"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(v))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCoordinator_FailureIsNotCached(t *testing.T) {
	store := newMapStore()
	c, _ := newTestCoordinator(store)
	ctx := context.Background()
	key := Key{Type: ResourceQuote, Identifier: "AAPL"}

	boom := apperrors.OriginUnavailable("fetch quote", errors.New("503"))
	_, err := c.Get(ctx, key, func(context.Context) ([]byte, error) { return nil, boom })
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrOriginUnavailable)
	assert.Zero(t, store.setCalls)
	assert.Zero(t, c.HotLen())

	var calls int32
	v, err := c.Get(ctx, key, countingOrigin(&calls, "ok"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(v))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCoordinator_NotFoundIsRememberedBriefly(t *testing.T) {
	c, clock := newTestCoordinator(newMapStore())
	ctx := context.Background()
	key := Key{Type: ResourceQuote, Identifier: "ZZZZ"}

	var calls int32
	missing := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		return nil, apperrors.NotFound("quote ZZZZ")
	}

	_, err := c.Get(ctx, key, missing)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	_, err = c.Get(ctx, key, missing)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	clock.Advance(31 * time.Second)
	_, err = c.Get(ctx, key, missing)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestCoordinator_DegradesWhenStoreFails(t *testing.T) {
	store := newMapStore()
	store.failGet = true
	store.failSet = true
	c, _ := newTestCoordinator(store)

	var calls int32
	v, err := c.Get(context.Background(), Key{Type: ResourceQuote, Identifier: "AAPL"}, countingOrigin(&calls, "live"))
	require.NoError(t, err)
	assert.Equal(t, "live", string(v))
	assert.Equal(t, 1, c.HotLen(), "a failed durable write still fills the hot tier")
}

func TestCoordinator_ConcurrentMissesCoalesce(t *testing.T) {
	c, _ := newTestCoordinator(newMapStore())
	key := Key{Type: ResourceQuote, Identifier: "NVDA"}

	var calls int32
	release := make(chan struct{})
	origin := func(context.Context) ([]byte, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return []byte("n"), nil
	}

	const n = 20
	var wg sync.WaitGroup
	results := make([]string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background(), key, origin)
			if err == nil {
				results[i] = string(v)
			}
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, r := range results {
		assert.Equal(t, "n", r)
	}
}

func TestCoordinator_Clear(t *testing.T) {
	store := newMapStore()
	c, _ := newTestCoordinator(store)
	ctx := context.Background()

	var calls int32
	for _, id := range []string{"AAPL", "MSFT"} {
		_, err := c.Get(ctx, Key{Type: ResourceQuote, Identifier: id}, countingOrigin(&calls, id))
		require.NoError(t, err)
	}
	require.Equal(t, int32(2), calls)

	require.NoError(t, c.Clear(ctx, ResourceQuote, "AAPL"))
	_, err := c.Get(ctx, Key{Type: ResourceQuote, Identifier: "AAPL"}, countingOrigin(&calls, "AAPL"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "cleared key is fetched again")

	_, err = c.Get(ctx, Key{Type: ResourceQuote, Identifier: "MSFT"}, countingOrigin(&calls, "MSFT"))
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls), "other identifiers survive")

	require.NoError(t, c.Clear(ctx, ResourceQuote, ""))
	assert.Zero(t, c.HotLen())
	assert.Empty(t, store.entries)
}

func TestCoordinator_ClearReportsPersistenceFailure(t *testing.T) {
	store := newMapStore()
	store.failDel = true
	c, _ := newTestCoordinator(store)

	err := c.Clear(context.Background(), ResourceQuote, "AAPL")
	assert.ErrorIs(t, err, apperrors.ErrPersistence)
}

func TestCoordinator_EmptyIdentifier(t *testing.T) {
	c, _ := newTestCoordinator(newMapStore())
	_, err := c.Get(context.Background(), Key{Type: ResourceQuote}, countingOrigin(new(int32), "x"))
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestFetch_JSONRoundTrip(t *testing.T) {
	c, _ := newTestCoordinator(newMapStore())
	type quote struct {
		Symbol string  `json:"symbol"`
		Price  float64 `json:"price"`
	}

	var calls int32
	origin := func(context.Context) (quote, error) {
		atomic.AddInt32(&calls, 1)
		return quote{Symbol: "AAPL", Price: 185.5}, nil
	}

	for i := 0; i < 3; i++ {
		q, err := Fetch(context.Background(), c, Key{Type: ResourceQuote, Identifier: "AAPL"}, origin)
		require.NoError(t, err)
		assert.Equal(t, quote{Symbol: "AAPL", Price: 185.5}, q)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestCoordinator_PurgeAndSweep(t *testing.T) {
	store := newMapStore()
	c, clock := newTestCoordinator(store)
	ctx := context.Background()

	_, err := c.Get(ctx, Key{Type: ResourceQuote, Identifier: "AAPL"}, countingOrigin(new(int32), "a"))
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	assert.Equal(t, 1, c.SweepHot())
	n, err := c.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
