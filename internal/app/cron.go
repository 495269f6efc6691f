package app

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/pulsetrack/pulse/internal/modules/system/admin"
	pkgcron "github.com/pulsetrack/pulse/internal/pkg/cron"
	"github.com/pulsetrack/pulse/internal/pkg/ratelimit"
)

const (
	presenceCleanupInterval = time.Minute
	eventPurgeInterval      = 24 * time.Hour
	abuseScanInterval       = time.Hour
)

// registerCronJobs registers the housekeeping jobs. Failures are logged by
// the scheduler and counted here.
func (a *App) registerCronJobs() {
	cronLogger := a.logger.Named("CronService")

	register := func(name, description string, interval time.Duration, fn func(ctx context.Context) error) {
		a.sched.Register(pkgcron.Job{
			Name:        name,
			Description: description,
			Interval:    interval,
			Fn: func(ctx context.Context) error {
				err := fn(ctx)
				if err != nil {
					a.metrics.RecordCronFailure(name)
				}
				return err
			},
		})
	}

	if sweeper, ok := a.limiter.(ratelimit.Sweeper); ok {
		register("sweep_rate_limits", "Drop expired in-memory rate limit windows", a.cfg.RateLimit.SweepInterval,
			func(context.Context) error {
				if n := sweeper.Sweep(); n > 0 {
					cronLogger.Debug("rate limit windows swept", zap.Int("removed", n))
				}
				return nil
			})
	}

	register("cleanup_presence", "Delete presence rows past the cleanup horizon", presenceCleanupInterval,
		func(ctx context.Context) error {
			_, err := a.presence.Cleanup(ctx)
			return err
		})

	register("purge_events", "Delete events older than the retention window", eventPurgeInterval,
		func(ctx context.Context) error {
			_, err := a.events.Purge(ctx)
			return err
		})

	register("detect_abuse", "Report tokens above the 24h event threshold", abuseScanInterval,
		a.detectAbuse)
}

// detectAbuse only reports. Blocking stays an operator decision.
func (a *App) detectAbuse(ctx context.Context) error {
	top, err := a.events.TopTokens(ctx, 24*time.Hour)
	if err != nil {
		return err
	}
	threshold := a.cfg.Abuse.Threshold
	for _, tc := range admin.AboveThreshold(top, threshold) {
		a.logger.Warn("potential abuse",
			zap.String("token", tc.Token),
			zap.Int64("events_24h", tc.Events),
			zap.Int("threshold", threshold),
		)
		if !a.bark.Enabled() {
			continue
		}
		if _, err := a.bark.AlertAbuse(ctx, tc.Token, tc.Events, threshold); err != nil {
			a.logger.Warn("abuse alert failed", zap.String("token", tc.Token), zap.Error(err))
		}
	}
	return nil
}
