package presence

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pulsetrack/pulse/internal/database/dbtest"
)

var base = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

// eachStore runs fn against every backend.
func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("sql", func(t *testing.T) {
		fn(t, NewSQLStore(dbtest.New(t)))
	})
	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		fn(t, NewRedisStore(rdb))
	})
}

func TestTouchIsMonotonic(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Touch(ctx, Sighting{Token: "site01", VisitorID: "v1", Path: "/a", At: base.Add(30 * time.Second)}))
		require.NoError(t, s.Touch(ctx, Sighting{Token: "site01", VisitorID: "v1", Path: "/old", At: base}))

		n, err := s.CountOnline(ctx, "site01", base.Add(30*time.Second))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n, "an older touch must not move last_seen_at back")

		n, err = s.CountOnline(ctx, "site01", base.Add(31*time.Second))
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)
	})
}

func TestTouchIsIdempotent(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		v := Sighting{Token: "site01", VisitorID: "v1", Path: "/", At: base}
		for i := 0; i < 3; i++ {
			require.NoError(t, s.Touch(ctx, v))
		}
		n, err := s.CountOnline(ctx, "site01", base.Add(-time.Minute))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
	})
}

func TestConcurrentTouchesKeepOneRow(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				assert.NoError(t, s.Touch(ctx, Sighting{Token: "site01", VisitorID: "v1", At: base.Add(time.Duration(i) * time.Second)}))
			}(i)
		}
		wg.Wait()

		n, err := s.CountOnline(ctx, "site01", base.Add(15*time.Second))
		require.NoError(t, err)
		assert.EqualValues(t, 1, n, "the newest touch wins")
	})
}

func TestTokenIsolation(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Touch(ctx, Sighting{Token: "site01", VisitorID: "v1", At: base}))
		require.NoError(t, s.Touch(ctx, Sighting{Token: "site01", VisitorID: "v2", At: base}))
		require.NoError(t, s.Touch(ctx, Sighting{Token: "site02", VisitorID: "v1", At: base}))

		a, err := s.CountOnline(ctx, "site01", base)
		require.NoError(t, err)
		b, err := s.CountOnline(ctx, "site02", base)
		require.NoError(t, err)
		all, err := s.CountOnlineAll(ctx, base)
		require.NoError(t, err)

		assert.EqualValues(t, 2, a)
		assert.EqualValues(t, 1, b)
		assert.EqualValues(t, 3, all)
	})
}

func TestCleanupAndDelete(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Touch(ctx, Sighting{Token: "site01", VisitorID: "old", At: base}))
		require.NoError(t, s.Touch(ctx, Sighting{Token: "site01", VisitorID: "new", At: base.Add(10 * time.Minute)}))
		require.NoError(t, s.Touch(ctx, Sighting{Token: "site02", VisitorID: "new", At: base.Add(10 * time.Minute)}))

		removed, err := s.Cleanup(ctx, base.Add(5*time.Minute))
		require.NoError(t, err)
		assert.EqualValues(t, 1, removed)

		all, err := s.CountOnlineAll(ctx, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 2, all)

		_, err = s.DeleteToken(ctx, "site01")
		require.NoError(t, err)

		n, err := s.CountOnline(ctx, "site01", base.Add(-time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)
		all, err = s.CountOnlineAll(ctx, base.Add(-time.Hour))
		require.NoError(t, err)
		assert.EqualValues(t, 1, all)
	})
}

func TestRedisStoreKeepsLatestMetadata(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	s := NewRedisStore(rdb)
	ctx := context.Background()

	require.NoError(t, s.Touch(ctx, Sighting{Token: "site01", VisitorID: "v1", Path: "/new", Referrer: "https://ref", At: base.Add(time.Second)}))
	require.NoError(t, s.Touch(ctx, Sighting{Token: "site01", VisitorID: "v1", Path: "/stale", At: base}))

	got, ok, err := s.Last(ctx, "site01", "v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "/new", got.Path)
	assert.Equal(t, "https://ref", got.Referrer)
	assert.True(t, got.At.Equal(base.Add(time.Second)))

	_, ok, err = s.Last(ctx, "site01", "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

// scriptKeys records the KEYS of every EVAL/EVALSHA sent through the client.
type scriptKeys struct {
	mu   sync.Mutex
	seen [][]string
}

func (r *scriptKeys) DialHook(next redis.DialHook) redis.DialHook { return next }

func (r *scriptKeys) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return next
}

func (r *scriptKeys) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		if name := cmd.Name(); name == "eval" || name == "evalsha" {
			args := cmd.Args()
			n, _ := strconv.Atoi(fmt.Sprint(args[2]))
			keys := make([]string, n)
			for i := range keys {
				keys[i] = fmt.Sprint(args[3+i])
			}
			r.mu.Lock()
			r.seen = append(r.seen, keys)
			r.mu.Unlock()
		}
		return next(ctx, cmd)
	}
}

// hashTag is the part of key Redis Cluster hashes to pick a slot.
func hashTag(key string) string {
	if i := strings.IndexByte(key, '{'); i >= 0 {
		if j := strings.IndexByte(key[i+1:], '}'); j > 0 {
			return key[i+1 : i+1+j]
		}
	}
	return key
}

func TestRedisScriptsStayInOneSlot(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	rec := &scriptKeys{}
	rdb.AddHook(rec)
	s := NewRedisStore(rdb)
	ctx := context.Background()

	require.NoError(t, s.Touch(ctx, Sighting{Token: "site01", VisitorID: "v1", At: base}))
	require.NoError(t, s.Touch(ctx, Sighting{Token: "site02", VisitorID: "v2", At: base.Add(10 * time.Minute)}))

	all, err := s.CountOnlineAll(ctx, base.Add(-time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 2, all)

	removed, err := s.Cleanup(ctx, base.Add(5*time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)

	deleted, err := s.DeleteToken(ctx, "site02")
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	all, err = s.CountOnlineAll(ctx, base.Add(-time.Minute))
	require.NoError(t, err)
	assert.EqualValues(t, 0, all)
	tokens, err := rdb.SMembers(ctx, redisTokensKey).Result()
	require.NoError(t, err)
	assert.Empty(t, tokens)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.NotEmpty(t, rec.seen)
	for _, keys := range rec.seen {
		for _, k := range keys {
			assert.Equal(t, hashTag(keys[0]), hashTag(k), "script keys %v span slots", keys)
		}
	}
}
