package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNoClient is returned by a Locker without a Redis client.
var ErrNoClient = errors.New("lock: redis client not configured")

const (
	defaultHold    = 30 * time.Second
	defaultReserve = 24 * time.Hour
	defaultPoll    = 50 * time.Millisecond
)

// unlock deletes the key only while it still carries our token, so a lease
// that expired and was taken by another register is left in place.
var unlock = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then
  return redis.call("del", KEYS[1])
end
return 0`)

// Locker guards sale commits and sale-id reservations with Redis keys.
type Locker struct {
	Client redis.Cmdable
	// Poll is the wait between attempts while a key is held elsewhere.
	Poll time.Duration
}

type lease struct {
	key   string
	token string
}

// WithLock runs fn while holding key and releases it when fn returns. If the
// key cannot be taken before ctx ends, the context error is returned and fn
// never runs.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) error {
	if l.Client == nil {
		return ErrNoClient
	}
	if fn == nil {
		return fmt.Errorf("lock %s: nil callback", key)
	}
	ls, err := l.acquire(ctx, key, orDefault(ttl, defaultHold))
	if err != nil {
		return fmt.Errorf("lock %s: %w", key, err)
	}
	// The request context may already be done once fn returns.
	defer l.release(context.Background(), ls)
	return fn(ctx)
}

// Reserve claims key for ttl without waiting and reports whether it was free.
func (l Locker) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if l.Client == nil {
		return false, ErrNoClient
	}
	return l.Client.SetNX(ctx, key, uuid.NewString(), orDefault(ttl, defaultReserve)).Result()
}

func (l Locker) acquire(ctx context.Context, key string, ttl time.Duration) (lease, error) {
	ls := lease{key: key, token: uuid.NewString()}
	tick := time.NewTicker(orDefault(l.Poll, defaultPoll))
	defer tick.Stop()
	for {
		taken, err := l.Client.SetNX(ctx, key, ls.token, ttl).Result()
		switch {
		case err != nil:
			return lease{}, err
		case taken:
			return ls, nil
		}
		select {
		case <-ctx.Done():
			return lease{}, ctx.Err()
		case <-tick.C:
		}
	}
}

func (l Locker) release(ctx context.Context, ls lease) {
	// Errors leave the key to expire on its own ttl.
	_ = unlock.Run(ctx, l.Client, []string{ls.key}, ls.token).Err()
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
