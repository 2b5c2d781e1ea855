package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Sibusisongondo/Tdone/internal/util"
)

const defaultPrefix = "magazine:ratelimit"

// Returns {count, pttl}. The expiry is only set by the first hit of a window.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// Decision is the outcome of one Take.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
}

// RetryAfterSeconds rounds ResetAfter up to whole seconds, never below one.
func (d Decision) RetryAfterSeconds() int {
	secs := int(math.Ceil(d.ResetAfter.Seconds()))
	return max(secs, 1)
}

// FixedWindowLimiter counts hits per key in fixed windows. Counters live in
// Redis so every instance shares one quota.
type FixedWindowLimiter struct {
	limit  int
	window time.Duration
	prefix string
	client *redis.Client
}

// NewRedisFixedWindowLimiter allows limit hits per key per window.
func NewRedisFixedWindowLimiter(addr, password, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if limit <= 0 || window < time.Millisecond {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("rate limiter redis addr is required")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &FixedWindowLimiter{
		limit:  limit,
		window: window,
		prefix: prefix,
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
	}, nil
}

// Take records one hit for key. When Redis cannot be reached the hit is denied.
func (l *FixedWindowLimiter) Take(ctx context.Context, key string) Decision {
	denied := Decision{Limit: l.limit, ResetAfter: l.window}
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	slot := time.Now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64Slice()
	if err != nil || len(res) != 2 {
		util.LoggerFromContext(ctx).Warn("rate limiter unavailable, denying", "key", redisKey, "err", err)
		return denied
	}
	count, ttl := res[0], time.Duration(res[1])*time.Millisecond
	if ttl <= 0 || ttl > l.window {
		ttl = l.window
	}
	return Decision{
		Allowed:    count <= int64(l.limit),
		Limit:      l.limit,
		Remaining:  max(l.limit-int(count), 0),
		ResetAfter: ttl,
	}
}

func (l *FixedWindowLimiter) Close() error {
	return l.client.Close()
}
