package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/quartz"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFixedWindow(t *testing.T) {
	clk := quartz.NewMock(t)
	l := NewMemory(WithClock(clk))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := l.Check(ctx, "api:1.2.3.4", time.Minute, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d", i+1)
		assert.Equal(t, 2-i, res.Remaining)
	}

	res, err := l.Check(ctx, "api:1.2.3.4", time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 0, res.Remaining)
	assert.Equal(t, time.Minute, res.ResetIn)

	clk.Advance(30 * time.Second)
	res, err = l.Check(ctx, "api:1.2.3.4", time.Minute, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 30*time.Second, res.ResetIn)

	clk.Advance(30 * time.Second)
	res, err = l.Check(ctx, "api:1.2.3.4", time.Minute, 3)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "window resets once its length has elapsed")
	assert.Equal(t, 2, res.Remaining)
}

func TestMemoryRejectedDoesNotExtendWindow(t *testing.T) {
	clk := quartz.NewMock(t)
	l := NewMemory(WithClock(clk))
	ctx := context.Background()

	res, _ := l.Check(ctx, "heartbeat:abc:v1", 10*time.Second, 1)
	require.True(t, res.Allowed)

	for i := 0; i < 5; i++ {
		clk.Advance(time.Second)
		res, _ = l.Check(ctx, "heartbeat:abc:v1", 10*time.Second, 1)
		assert.False(t, res.Allowed)
	}

	clk.Advance(5 * time.Second)
	res, _ = l.Check(ctx, "heartbeat:abc:v1", 10*time.Second, 1)
	assert.True(t, res.Allowed)
}

func TestMemoryKeysAreIndependent(t *testing.T) {
	l := NewMemory(WithClock(quartz.NewMock(t)))
	ctx := context.Background()

	a, _ := l.Check(ctx, "heartbeat:abc:v1", 10*time.Second, 1)
	b, _ := l.Check(ctx, "heartbeat:abc:v2", 10*time.Second, 1)
	c, _ := l.Check(ctx, "heartbeat:xyz:v1", 10*time.Second, 1)
	assert.True(t, a.Allowed)
	assert.True(t, b.Allowed)
	assert.True(t, c.Allowed)
}

func TestMemoryConcurrentChecksNeverOverAdmit(t *testing.T) {
	l := NewMemory(WithClock(quartz.NewMock(t)))
	ctx := context.Background()

	var allowed atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Check(ctx, "api:shared", time.Minute, 10)
			if err == nil && res.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 10, allowed.Load())
}

func TestMemorySweep(t *testing.T) {
	clk := quartz.NewMock(t)
	l := NewMemory(WithClock(clk))
	ctx := context.Background()

	_, _ = l.Check(ctx, "short", 10*time.Second, 1)
	_, _ = l.Check(ctx, "long", time.Minute, 1)
	require.Equal(t, 2, l.Len())

	assert.Equal(t, 0, l.Sweep())

	clk.Advance(10 * time.Second)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 1, l.Len())

	clk.Advance(time.Minute)
	assert.Equal(t, 1, l.Sweep())
	assert.Equal(t, 0, l.Len())
}
