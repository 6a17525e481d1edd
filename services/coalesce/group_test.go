package coalesce

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market_data_hub/services/metrics"
)

func TestFetch_ConcurrentCallersShareOneCall(t *testing.T) {
	g := NewGroup(time.Second)
	var calls atomic.Int32
	release := make(chan struct{})

	const callers = 10
	var wg sync.WaitGroup
	results := make([]any, callers)
	errs := make([]error, callers)

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.Fetch(context.Background(), "quote:ACME", func(ctx context.Context) (any, error) {
				calls.Add(1)
				<-release
				return 101.5, nil
			})
		}(i)
	}

	// Let every goroutine attach before the origin call finishes.
	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, 101.5, results[i])
	}
}

func TestFetch_FailureIsNotRemembered(t *testing.T) {
	g := NewGroup(time.Second)
	var calls int
	boom := errors.New("upstream down")

	_, err := g.Fetch(context.Background(), "k", func(ctx context.Context) (any, error) {
		calls++
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	v, err := g.Fetch(context.Background(), "k", func(ctx context.Context) (any, error) {
		calls++
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 2, calls)
}

func TestFetch_SequentialCallsEachReachOrigin(t *testing.T) {
	g := NewGroup(time.Second)
	var calls int
	for i := 0; i < 3; i++ {
		_, err := g.Fetch(context.Background(), "k", func(ctx context.Context) (any, error) {
			calls++
			return i, nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, 3, calls)
}

func TestFetch_CallerCancellationDoesNotCancelOthers(t *testing.T) {
	g := NewGroup(time.Second)
	release := make(chan struct{})
	started := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := g.Fetch(ctx, "k", func(callCtx context.Context) (any, error) {
			close(started)
			select {
			case <-release:
				return "done", callCtx.Err()
			case <-time.After(time.Second):
				return nil, errors.New("timed out")
			}
		})
		firstErr <- err
	}()
	<-started

	secondVal := make(chan any, 1)
	go func() {
		v, _ := g.Fetch(context.Background(), "k", func(ctx context.Context) (any, error) {
			return "second call should not run", nil
		})
		secondVal <- v
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(release)
	assert.Equal(t, "done", <-secondVal)
}

func TestFetch_DifferentKeysDoNotCoalesce(t *testing.T) {
	g := NewGroup(time.Second)
	var calls atomic.Int32
	var wg sync.WaitGroup
	for _, key := range []string{"a", "b", "c"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			_, _ = g.Fetch(context.Background(), key, func(ctx context.Context) (any, error) {
				calls.Add(1)
				time.Sleep(10 * time.Millisecond)
				return key, nil
			})
		}(key)
	}
	wg.Wait()
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetch_CoalescedWaitsExcludesTheStarter(t *testing.T) {
	g := NewGroup(time.Second)

	before := testutil.ToFloat64(metrics.CoalescedWaits)
	_, err := g.Fetch(context.Background(), "quote:SOLO", func(ctx context.Context) (any, error) {
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, before, testutil.ToFloat64(metrics.CoalescedWaits), "a lone call is not a coalesced wait")

	var calls atomic.Int32
	release := make(chan struct{})
	const callers = 5
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g.Fetch(context.Background(), "quote:SHARED", func(ctx context.Context) (any, error) {
				calls.Add(1)
				<-release
				return 2, nil
			})
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	require.Equal(t, int32(1), calls.Load())
	assert.Equal(t, before+callers-1, testutil.ToFloat64(metrics.CoalescedWaits))
}
