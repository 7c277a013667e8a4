package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLocker is an in-process Locker with the same lease semantics as the
// Redis implementation. Intended for tests and single-node deployments.
type MemoryLocker struct {
	mu    sync.Mutex
	held  map[string]memoryEntry
	opts  options
	nowFn func() time.Time
}

type memoryEntry struct {
	token     string
	expiresAt time.Time
}

// NewMemoryLocker creates an in-memory locker.
func NewMemoryLocker(opts ...Option) *MemoryLocker {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &MemoryLocker{
		held:  make(map[string]memoryEntry),
		opts:  o,
		nowFn: time.Now,
	}
}

func (l *MemoryLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.NewString()

	deadline := l.nowFn().Add(l.opts.waitTimeout)
	for {
		if l.tryAcquire(key, token) {
			return &memoryLease{locker: l, key: key, token: token}, nil
		}

		if l.nowFn().After(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-time.After(l.opts.retryInterval):
		}
	}
}

func (l *MemoryLocker) tryAcquire(key, token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry, ok := l.held[key]; ok && l.nowFn().Before(entry.expiresAt) {
		return false
	}
	l.held[key] = memoryEntry{token: token, expiresAt: l.nowFn().Add(l.opts.ttl)}
	return true
}

func (l *MemoryLocker) release(key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.held[key]
	if !ok || entry.token != token || l.nowFn().After(entry.expiresAt) {
		return ErrNotHeld
	}
	delete(l.held, key)
	return nil
}

type memoryLease struct {
	locker *MemoryLocker
	key    string
	token  string
}

func (l *memoryLease) Release(_ context.Context) error {
	return l.locker.release(l.key, l.token)
}
