package presence

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisPrefix    = "pulse:presence:"
	redisAllKey    = redisPrefix + "all"
	redisTokensKey = redisPrefix + "tokens"
	memberSep      = "\x00"
)

// Scripts only touch the two keys of one token, which share the {token} hash
// tag and therefore a cluster slot. The cross-token index (all, tokens) is
// maintained with separate commands.

// Scores are last-seen unix milliseconds. A sighting is applied only when it
// is at least as new as the stored one.
var touchScript = redis.NewScript(`
local cur = redis.call("ZSCORE", KEYS[1], ARGV[1])
if cur and tonumber(cur) > tonumber(ARGV[2]) then
  return 0
end
redis.call("ZADD", KEYS[1], ARGV[2], ARGV[1])
redis.call("HSET", KEYS[2], ARGV[1], ARGV[3])
return 1
`)

// cleanupScript returns {removed, remaining}.
var cleanupScript = redis.NewScript(`
local stale = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", "(" .. ARGV[1])
for i = 1, #stale, 500 do
  local chunk = {unpack(stale, i, math.min(i + 499, #stale))}
  redis.call("ZREM", KEYS[1], unpack(chunk))
  redis.call("HDEL", KEYS[2], unpack(chunk))
end
return {#stale, redis.call("ZCARD", KEYS[1])}
`)

type redisMeta struct {
	Path     string `json:"p,omitempty"`
	Referrer string `json:"r,omitempty"`
}

// RedisStore keeps presence in one sorted set per token, scored by last-seen
// time, plus a global sorted set for cross-token counts.
type RedisStore struct {
	rdb *redis.Client
}

func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func tokenKey(token string) string { return redisPrefix + "{" + token + "}" }
func metaKey(token string) string  { return redisPrefix + "{" + token + "}:meta" }

func score(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (s *RedisStore) Touch(ctx context.Context, v Sighting) error {
	meta, err := json.Marshal(redisMeta{Path: v.Path, Referrer: v.Referrer})
	if err != nil {
		return err
	}
	ms := v.At.UnixMilli()
	keys := []string{tokenKey(v.Token), metaKey(v.Token)}
	applied, err := touchScript.Run(ctx, s.rdb, keys, v.VisitorID, ms, string(meta)).Int()
	if err != nil {
		return fmt.Errorf("presence touch: %w", err)
	}
	if applied == 0 {
		return nil
	}

	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.ZAddGT(ctx, redisAllKey, redis.Z{Score: float64(ms), Member: v.Token + memberSep + v.VisitorID})
		p.SAdd(ctx, redisTokensKey, v.Token)
		return nil
	})
	if err != nil {
		return fmt.Errorf("presence index: %w", err)
	}
	return nil
}

func (s *RedisStore) CountOnline(ctx context.Context, token string, since time.Time) (int64, error) {
	return s.rdb.ZCount(ctx, tokenKey(token), score(since), "+inf").Result()
}

func (s *RedisStore) CountOnlineAll(ctx context.Context, since time.Time) (int64, error) {
	return s.rdb.ZCount(ctx, redisAllKey, score(since), "+inf").Result()
}

func (s *RedisStore) Cleanup(ctx context.Context, cutoff time.Time) (int64, error) {
	tokens, err := s.rdb.SMembers(ctx, redisTokensKey).Result()
	if err != nil {
		return 0, err
	}

	var removed int64
	for _, token := range tokens {
		keys := []string{tokenKey(token), metaKey(token)}
		res, err := cleanupScript.Run(ctx, s.rdb, keys, cutoff.UnixMilli()).Int64Slice()
		if err != nil {
			return removed, fmt.Errorf("presence cleanup %s: %w", token, err)
		}
		removed += res[0]
		if res[1] == 0 {
			if err := s.rdb.SRem(ctx, redisTokensKey, token).Err(); err != nil {
				return removed, err
			}
		}
	}
	if err := s.rdb.ZRemRangeByScore(ctx, redisAllKey, "-inf", "("+score(cutoff)).Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

func (s *RedisStore) DeleteToken(ctx context.Context, token string) (int64, error) {
	visitors, err := s.rdb.ZRange(ctx, tokenKey(token), 0, -1).Result()
	if err != nil {
		return 0, err
	}
	global := make([]any, len(visitors))
	for i, visitor := range visitors {
		global[i] = token + memberSep + visitor
	}

	_, err = s.rdb.Pipelined(ctx, func(p redis.Pipeliner) error {
		if len(global) > 0 {
			p.ZRem(ctx, redisAllKey, global...)
		}
		p.Del(ctx, tokenKey(token), metaKey(token))
		p.SRem(ctx, redisTokensKey, token)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("presence delete %s: %w", token, err)
	}
	return int64(len(visitors)), nil
}

// Last returns the stored sighting of a visitor, mainly for diagnostics.
func (s *RedisStore) Last(ctx context.Context, token, visitorID string) (Sighting, bool, error) {
	ms, err := s.rdb.ZScore(ctx, tokenKey(token), visitorID).Result()
	if err == redis.Nil {
		return Sighting{}, false, nil
	}
	if err != nil {
		return Sighting{}, false, err
	}

	var meta redisMeta
	raw, err := s.rdb.HGet(ctx, metaKey(token), visitorID).Result()
	if err != nil && err != redis.Nil {
		return Sighting{}, false, err
	}
	if raw != "" {
		_ = json.Unmarshal([]byte(raw), &meta)
	}
	return Sighting{
		Token:     token,
		VisitorID: visitorID,
		Path:      meta.Path,
		Referrer:  meta.Referrer,
		At:        time.UnixMilli(int64(ms)).UTC(),
	}, true, nil
}
