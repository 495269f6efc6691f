package cron

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestSchedulerRunsJobsUntilCancelled(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	var runs atomic.Int32
	s := New()
	s.Register(Job{
		Name:     "tick",
		Interval: 5 * time.Millisecond,
		Fn: func(context.Context) error {
			runs.Add(1)
			return nil
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	s.Wait()

	task, err := s.GetTask("tick")
	require.NoError(t, err)
	assert.Equal(t, StatusFulfill, task.Status)
}

func TestSchedulerManualRunRecordsFailure(t *testing.T) {
	s := New()
	s.Register(Job{
		Name:     "broken",
		Interval: time.Hour,
		Fn:       func(context.Context) error { return errors.New("storage down") },
	})

	require.NoError(t, s.Run(context.Background(), "broken"))
	require.Eventually(t, func() bool {
		task, err := s.GetTask("broken")
		return err == nil && task.Status == StatusReject
	}, time.Second, time.Millisecond)

	task, err := s.GetTask("broken")
	require.NoError(t, err)
	assert.Equal(t, "storage down", task.Message)
}

func TestWaitCoversManualRuns(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	started := make(chan struct{})
	release := make(chan struct{})
	var finished atomic.Bool
	s := New()
	s.Register(Job{
		Name:     "slow",
		Interval: time.Hour,
		Fn: func(context.Context) error {
			close(started)
			<-release
			finished.Store(true)
			return nil
		},
	})

	require.NoError(t, s.Run(context.Background(), "slow"))
	<-started

	waited := make(chan struct{})
	go func() {
		s.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		t.Fatal("Wait returned while a manual run was still executing")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	<-waited
	assert.True(t, finished.Load())
}

func TestSchedulerUnknownJob(t *testing.T) {
	s := New()
	assert.ErrorIs(t, s.Run(context.Background(), "missing"), ErrJobNotFound)
	_, err := s.GetTask("missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestSchedulerListIsSorted(t *testing.T) {
	s := New()
	noop := func(context.Context) error { return nil }
	s.Register(Job{Name: "sweep_rate_limits", Interval: 5 * time.Minute, Fn: noop})
	s.Register(Job{Name: "cleanup_presence", Interval: time.Minute, Fn: noop})
	s.Register(Job{Name: "purge_events", Interval: 24 * time.Hour, Fn: noop})

	items := s.List()
	require.Len(t, items, 3)
	assert.Equal(t, "cleanup_presence", items[0].Name)
	assert.Equal(t, "purge_events", items[1].Name)
	assert.Equal(t, "sweep_rate_limits", items[2].Name)
	assert.Equal(t, "5m0s", items[2].Interval)
	assert.Equal(t, StatusIdle, items[0].Status)
	assert.NotNil(t, items[0].NextDate)
}
