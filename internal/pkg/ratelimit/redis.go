package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "pulse:rate_limit:"

// INCR and PEXPIRE run in one script so concurrent instances never lose an
// increment or leave a counter without expiry.
var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {count, ttl}
`)

// Redis is a Limiter shared by every instance pointed at the same server.
// Expiry is delegated to key TTLs, so it needs no sweep.
type Redis struct {
	rdb *redis.Client
}

func NewRedis(rdb *redis.Client) *Redis {
	return &Redis{rdb: rdb}
}

func (r *Redis) Check(ctx context.Context, key string, length time.Duration, max int) (Result, error) {
	ms := length.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	raw, err := fixedWindowScript.Run(ctx, r.rdb, []string{redisKeyPrefix + key}, ms).Int64Slice()
	if err != nil {
		return Result{}, fmt.Errorf("rate limit %q: %w", key, err)
	}
	if len(raw) != 2 {
		return Result{}, fmt.Errorf("rate limit %q: unexpected reply %v", key, raw)
	}
	count := int(raw[0])
	return Result{
		Allowed:   count <= max,
		Remaining: remaining(max, count),
		ResetIn:   time.Duration(raw[1]) * time.Millisecond,
	}, nil
}
