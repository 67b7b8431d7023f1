// Package ratelimit throttles the download and storage-admin endpoints with a
// Redis fixed window shared by every book service replica.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Returns {count, pttl}. The expiry is only set by the first hit of a window.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`)

// DefaultPrefix namespaces limiter keys.
const DefaultPrefix = "bookportal:ratelimit"

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// FixedWindowLimiter allows Limit hits per key and window.
type FixedWindowLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewFixedWindowLimiter builds a limiter on an existing client. The client is
// shared with the caller and is not closed by the limiter.
func NewFixedWindowLimiter(client *redis.Client, prefix string, limit int, window time.Duration) (*FixedWindowLimiter, error) {
	if client == nil {
		return nil, errors.New("rate limiter requires a redis client")
	}
	if limit <= 0 || window < time.Millisecond {
		return nil, errors.New("rate limiter requires positive limit and window")
	}
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &FixedWindowLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}, nil
}

// Allow counts one hit for scope/key. Redis failures fail closed: the hit is
// denied and the error returned for logging.
func (l *FixedWindowLimiter) Allow(ctx context.Context, scope, key string) (Decision, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%s:%d", l.prefix, scope, key, slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := fixedWindowScript.Run(ctx, l.client, []string{redisKey}, windowMs).Int64Slice()
	if err != nil {
		return Decision{RetryAfter: l.window}, fmt.Errorf("rate limit %s: %w", scope, err)
	}
	if len(res) != 2 {
		return Decision{RetryAfter: l.window}, fmt.Errorf("rate limit %s: unexpected reply %v", scope, res)
	}
	count, pttl := res[0], res[1]
	if count <= int64(l.limit) {
		return Decision{Allowed: true, Remaining: l.limit - int(count)}, nil
	}
	retry := time.Duration(pttl) * time.Millisecond
	if retry <= 0 {
		retry = l.window
	}
	return Decision{RetryAfter: retry}, nil
}
