package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "ichra-quotes/internal/common/errors"
	"ichra-quotes/internal/common/logger"
)

// ==========================
// Test Helper Functions
// ==========================

func newTestScheduler(t *testing.T, opts Options) *Scheduler {
	if opts.Name == "" {
		opts.Name = "test"
	}
	s := New(opts, logger.NewTestLogger(t))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Shutdown(ctx, true)
	})
	return s
}

func TestScheduler_RunsQueuedWorkInOrder(t *testing.T) {
	s := newTestScheduler(t, Options{
		ReservoirSize:  10,
		RefillInterval: time.Minute,
		MaxConcurrent:  1,
	})

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Do(context.Background(), "pricing", func(ctx context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
		// Stagger submissions so queue order is deterministic.
		time.Sleep(5 * time.Millisecond)
	}
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
	stats := s.Stats()
	assert.Equal(t, 5, stats.Done)
	assert.Equal(t, 5, stats.RemainingBudget)
}

func TestScheduler_RetriesTransientFailures(t *testing.T) {
	s := newTestScheduler(t, Options{
		ReservoirSize:  10,
		RefillInterval: time.Minute,
		MaxConcurrent:  2,
		MaxRetries:     3,
		RetryBase:      time.Millisecond,
	})

	var attempts int32
	err := s.Do(context.Background(), "catalog", func(ctx context.Context) error {
		if atomic.AddInt32(&attempts, 1) < 3 {
			return errs.NewServiceUnavailableError("catalog", nil)
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestScheduler_ExhaustedRetriesSurfaceLastError(t *testing.T) {
	s := newTestScheduler(t, Options{
		ReservoirSize:  10,
		RefillInterval: time.Minute,
		MaxConcurrent:  1,
		MaxRetries:     2,
		RetryBase:      time.Millisecond,
	})

	var attempts int32
	err := s.Do(context.Background(), "geo", func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return errs.NewRateLimitExceededError("geo")
	})

	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeRateLimitExceeded, errs.CodeOf(err))
	// Initial attempt plus two retries.
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestScheduler_NonRetriableErrorsPropagateImmediately(t *testing.T) {
	s := newTestScheduler(t, Options{
		ReservoirSize:  10,
		RefillInterval: time.Minute,
		MaxRetries:     5,
		RetryBase:      time.Millisecond,
	})

	var attempts int32
	err := s.Do(context.Background(), "geo", func(ctx context.Context) error {
		atomic.AddInt32(&attempts, 1)
		return errs.NewInvalidFilterInputError("bad metal level")
	})

	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeInvalidFilterInput, errs.CodeOf(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))
}

func TestScheduler_LifetimeQuotaExhaustion(t *testing.T) {
	// RefillInterval zero turns the reservoir into a lifetime quota.
	s := newTestScheduler(t, Options{
		ReservoirSize: 2,
		MaxConcurrent: 1,
	})

	for i := 0; i < 2; i++ {
		err := s.Do(context.Background(), "affordability", func(ctx context.Context) error {
			return nil
		})
		require.NoError(t, err)
	}

	err := s.Do(context.Background(), "affordability", func(ctx context.Context) error {
		t.Fatal("call must not run past the lifetime quota")
		return nil
	})
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeTrialLimitExceeded, errs.CodeOf(err))
	assert.False(t, errs.IsRetryable(err))
}

func TestScheduler_BoundsConcurrency(t *testing.T) {
	s := newTestScheduler(t, Options{
		ReservoirSize:  20,
		RefillInterval: time.Minute,
		MaxConcurrent:  2,
	})

	var current, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Do(context.Background(), "pricing", func(ctx context.Context) error {
				n := atomic.AddInt32(&current, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&current, -1)
				return nil
			})
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestScheduler_ClearFailsQueuedWork(t *testing.T) {
	s := newTestScheduler(t, Options{
		ReservoirSize:  10,
		RefillInterval: time.Minute,
		MaxConcurrent:  1,
	})

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.Do(context.Background(), "pricing", func(ctx context.Context) error {
			<-release
			return nil
		})
	}()

	// Wait for the blocker to occupy the single slot.
	require.Eventually(t, func() bool {
		return s.Stats().Running == 1
	}, time.Second, 5*time.Millisecond)

	errCh := make(chan error, 1)
	wg.Add(1)
	go func() {
		defer wg.Done()
		errCh <- s.Do(context.Background(), "pricing", func(ctx context.Context) error {
			return nil
		})
	}()

	require.Eventually(t, func() bool {
		return s.Stats().Queued == 1
	}, time.Second, 5*time.Millisecond)

	cleared := s.Clear()
	assert.Equal(t, 1, cleared)

	err := <-errCh
	require.Error(t, err)
	assert.Equal(t, errs.ErrCodeServiceUnavailable, errs.CodeOf(err))

	close(release)
	wg.Wait()
}

func TestScheduler_StatsSnapshot(t *testing.T) {
	s := newTestScheduler(t, Options{
		ReservoirSize:  3,
		RefillInterval: time.Minute,
		MaxConcurrent:  5,
	})

	err := s.Do(context.Background(), "geo", func(ctx context.Context) error { return nil })
	require.NoError(t, err)

	stats := s.Stats()
	assert.Equal(t, 0, stats.Queued)
	assert.Equal(t, 0, stats.Running)
	assert.Equal(t, 1, stats.Done)
	assert.Equal(t, 2, stats.RemainingBudget)
}
