package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipmetrics/billing/pkg/lock"
)

func TestMemoryLockerMutualExclusion(t *testing.T) {
	t.Parallel()

	locker := lock.NewMemoryLocker(lock.WithWaitTimeout(10 * time.Millisecond))
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "tenant:1")
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, "tenant:1")
	require.ErrorIs(t, err, lock.ErrNotAcquired)

	// Different key is independent.
	other, err := locker.Acquire(ctx, "tenant:2")
	require.NoError(t, err)
	require.NoError(t, other.Release(ctx))

	require.NoError(t, lease.Release(ctx))

	// Released lock can be re-acquired.
	again, err := locker.Acquire(ctx, "tenant:1")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestMemoryLockerTTLExpiry(t *testing.T) {
	t.Parallel()

	locker := lock.NewMemoryLocker(
		lock.WithTTL(20*time.Millisecond),
		lock.WithWaitTimeout(500*time.Millisecond),
		lock.WithRetryInterval(5*time.Millisecond),
	)
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "tenant:1")
	require.NoError(t, err)

	// A second holder gets the lock once the first lease expires.
	second, err := locker.Acquire(ctx, "tenant:1")
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))

	// Stale lease must not release the newer holder's lock.
	assert.ErrorIs(t, lease.Release(ctx), lock.ErrNotHeld)
}

func TestMemoryLockerReleaseIdempotent(t *testing.T) {
	t.Parallel()

	locker := lock.NewMemoryLocker()
	ctx := context.Background()

	lease, err := locker.Acquire(ctx, "tenant:1")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
	assert.ErrorIs(t, lease.Release(ctx), lock.ErrNotHeld)
}

func TestWithLockReleasesOnError(t *testing.T) {
	t.Parallel()

	locker := lock.NewMemoryLocker(lock.WithWaitTimeout(50 * time.Millisecond))
	ctx := context.Background()

	wantErr := errors.New("boom")
	err := lock.WithLock(ctx, locker, "tenant:1", func(ctx context.Context) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)

	// Lock is free again despite the callback failure.
	lease, err := locker.Acquire(ctx, "tenant:1")
	require.NoError(t, err)
	require.NoError(t, lease.Release(ctx))
}

func TestWithLockSerializesCriticalSections(t *testing.T) {
	t.Parallel()

	locker := lock.NewMemoryLocker(
		lock.WithWaitTimeout(2*time.Second),
		lock.WithRetryInterval(time.Millisecond),
	)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		counter int
		inside  int
		maxSeen int
		mu      sync.Mutex
	)

	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lock.WithLock(ctx, locker, "tenant:1", func(ctx context.Context) error {
				mu.Lock()
				inside++
				if inside > maxSeen {
					maxSeen = inside
				}
				mu.Unlock()

				counter++

				mu.Lock()
				inside--
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 10, counter)
	assert.Equal(t, 1, maxSeen, "critical sections must not overlap")
}
