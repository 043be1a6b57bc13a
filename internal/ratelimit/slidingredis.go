package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// admit trims the window and records the event only when it fits, so
// rejected requests do not push a busy register further out.
//
// KEYS[1] window key; ARGV: cutoff ms, now ms, limit, member, window ms.
var admit = redis.NewScript(`
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", ARGV[1])
local n = redis.call("ZCARD", KEYS[1])
if n >= tonumber(ARGV[3]) then
  return {0, n}
end
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[4])
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return {1, n + 1}`)

// Limiter is a sliding-window limiter over Redis sorted sets.
type Limiter struct {
	Client redis.Cmdable
	Prefix string
	Now    func() time.Time
}

// Allow records an event for key when fewer than limit events happened in the
// last window. Without a client every event is allowed.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	reset := now.Add(window)
	if l.Client == nil || limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: limit, Reset: reset}, nil
	}

	nowMs := now.UnixMilli()
	res, err := admit.Run(ctx, l.Client, []string{l.Prefix + key},
		strconv.FormatInt(nowMs-window.Milliseconds(), 10),
		strconv.FormatInt(nowMs, 10),
		limit,
		strconv.FormatInt(nowMs, 10)+":"+uuid.NewString(),
		window.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{Reset: reset}, fmt.Errorf("ratelimit %s: %w", key, err)
	}
	if len(res) != 2 {
		return Decision{Reset: reset}, fmt.Errorf("ratelimit %s: unexpected reply %v", key, res)
	}
	return Decision{
		Allowed:   res[0] == 1,
		Remaining: max(limit-int(res[1]), 0),
		Reset:     reset,
	}, nil
}
