package lock

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotAcquired is returned when the lock could not be obtained
	// within the configured wait window.
	ErrNotAcquired = errors.New("lock: not acquired within wait timeout")
	// ErrNotHeld is returned on release when the lease has expired or
	// was taken over by another holder.
	ErrNotHeld = errors.New("lock: lease not held")
)

// Locker acquires exclusive leases on named resources. Leases auto-expire
// after their TTL so a crashed holder cannot block a resource forever.
type Locker interface {
	// Acquire blocks until the lock for key is obtained, the wait timeout
	// elapses (ErrNotAcquired), or ctx is done.
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Lease is a held lock. Release is idempotent.
type Lease interface {
	Release(ctx context.Context) error
}

type options struct {
	ttl           time.Duration
	waitTimeout   time.Duration
	retryInterval time.Duration
}

func defaultOptions() options {
	return options{
		ttl:           30 * time.Second,
		waitTimeout:   30 * time.Second,
		retryInterval: 100 * time.Millisecond,
	}
}

// Option configures a Locker.
type Option func(*options)

// WithTTL sets the lease lifetime. An expired lease is released implicitly.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithWaitTimeout bounds how long Acquire blocks waiting for a busy lock.
func WithWaitTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.waitTimeout = d
		}
	}
}

// WithRetryInterval sets the polling interval between acquisition attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.retryInterval = d
		}
	}
}

// WithLock runs fn while holding the lock for key, releasing it on every
// exit path including panics.
func WithLock(ctx context.Context, locker Locker, key string, fn func(ctx context.Context) error) error {
	lease, err := locker.Acquire(ctx, key)
	if err != nil {
		return err
	}
	defer func() {
		_ = lease.Release(context.WithoutCancel(ctx))
	}()

	return fn(ctx)
}
