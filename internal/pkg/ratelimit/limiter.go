// Package ratelimit implements fixed-window request counters.
//
// A window starts on the first request for a key and lasts for the policy's
// duration; requests beyond the policy maximum are rejected until the window
// resets. State lives behind the Limiter interface so a single instance can
// keep it in memory while a horizontally scaled deployment shares it in Redis.
package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a single Check.
type Result struct {
	Allowed   bool
	Remaining int
	ResetIn   time.Duration
}

// Limiter consumes one request for key in a fixed window of the given length
// allowing at most max requests.
type Limiter interface {
	Check(ctx context.Context, key string, window time.Duration, max int) (Result, error)
}

// Sweeper is implemented by limiters that need expired windows reclaimed.
type Sweeper interface {
	Sweep() int
}

func remaining(max, count int) int {
	if count >= max {
		return 0
	}
	return max - count
}
