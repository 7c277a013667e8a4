package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript deletes the key only when it still holds our token, so an
// expired lease that was re-acquired by someone else is never deleted.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker implements Locker on top of a shared Redis instance using the
// SET NX PX lease pattern. Safe for use across processes.
type RedisLocker struct {
	client redis.UniversalClient
	opts   options
}

// NewRedisLocker creates a Redis-backed locker.
// Panics if client is nil to fail fast during initialization.
func NewRedisLocker(client redis.UniversalClient, opts ...Option) *RedisLocker {
	if client == nil {
		panic("lock: redis client is required")
	}
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &RedisLocker{client: client, opts: o}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (Lease, error) {
	token := uuid.NewString()

	deadline := time.Now().Add(l.opts.waitTimeout)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.opts.ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			return &redisLease{client: l.client, key: key, token: token}, nil
		}

		if time.Now().After(deadline) {
			return nil, ErrNotAcquired
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-time.After(l.opts.retryInterval):
		}
	}
}

type redisLease struct {
	client redis.UniversalClient
	key    string
	token  string
}

func (l *redisLease) Release(ctx context.Context) error {
	n, err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Int()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}
