package events

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"

	"github.com/pulsetrack/pulse/internal/models"
	"github.com/pulsetrack/pulse/internal/pkg/metrics"
)

const (
	DefaultTopPagesLimit = 10
	MaxTopPagesLimit     = 50
	TopTokensLimit       = 10
)

// Windows configures the query horizons.
type Windows struct {
	TopPages  time.Duration
	Timeline  time.Duration
	Retention time.Duration
}

func DefaultWindows() Windows {
	return Windows{
		TopPages:  24 * time.Hour,
		Timeline:  60 * time.Minute,
		Retention: 30 * 24 * time.Hour,
	}
}

// Service records pageviews and answers the aggregation queries relative to
// the current time.
type Service struct {
	log     Log
	clock   quartz.Clock
	windows Windows
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithClock(clock quartz.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

func WithWindows(w Windows) Option {
	return func(s *Service) { s.windows = w }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(log Log, opts ...Option) *Service {
	s := &Service{
		log:     log,
		clock:   quartz.NewReal(),
		windows: DefaultWindows(),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("events")
	return s
}

// Now is the service clock, shared with callers that stamp related writes.
func (s *Service) Now() time.Time { return s.clock.Now() }

// RecordPageview appends a pageview stamped now.
func (s *Service) RecordPageview(ctx context.Context, token, visitorID, path, referrer string) error {
	return s.log.Append(ctx, Event{
		Token:     token,
		VisitorID: visitorID,
		Type:      models.EventPageview,
		Path:      path,
		Referrer:  referrer,
		CreatedAt: s.clock.Now(),
	})
}

// ClampTopPagesLimit maps a requested limit onto 1..50, defaulting to 10.
func ClampTopPagesLimit(limit int) int {
	if limit < 1 {
		return DefaultTopPagesLimit
	}
	if limit > MaxTopPagesLimit {
		return MaxTopPagesLimit
	}
	return limit
}

// TopPages returns the most visited paths of token in the top pages window.
func (s *Service) TopPages(ctx context.Context, token string, limit int) ([]PageCount, error) {
	defer s.metrics.ObserveQuery("top_pages", time.Now())
	pages, err := s.log.TopPages(ctx, token, s.clock.Now().Add(-s.windows.TopPages), ClampTopPagesLimit(limit))
	if err != nil {
		return nil, err
	}
	if pages == nil {
		pages = []PageCount{}
	}
	return pages, nil
}

// Timeline returns per-minute distinct visitors of token over the timeline
// window. Minutes without visitors are omitted.
func (s *Service) Timeline(ctx context.Context, token string) ([]TimelinePoint, error) {
	defer s.metrics.ObserveQuery("timeline", time.Now())
	points, err := s.log.Timeline(ctx, token, s.clock.Now().Add(-s.windows.Timeline))
	if err != nil {
		return nil, err
	}
	if points == nil {
		points = []TimelinePoint{}
	}
	return points, nil
}

// CountForToken counts events of token in the last d.
func (s *Service) CountForToken(ctx context.Context, token string, d time.Duration) (int64, error) {
	return s.log.CountForToken(ctx, token, s.clock.Now().Add(-d))
}

// CountLast counts events of all tokens in the last d.
func (s *Service) CountLast(ctx context.Context, d time.Duration) (int64, error) {
	return s.log.CountSince(ctx, s.clock.Now().Add(-d))
}

// TopTokens returns the ten busiest tokens over the last d.
func (s *Service) TopTokens(ctx context.Context, d time.Duration) ([]TokenCount, error) {
	return s.log.TopTokens(ctx, s.clock.Now().Add(-d), TopTokensLimit)
}

// Purge drops events older than the retention window.
func (s *Service) Purge(ctx context.Context) (int64, error) {
	n, err := s.log.Purge(ctx, s.clock.Now().Add(-s.windows.Retention))
	if err != nil {
		return n, err
	}
	s.logger.Info("expired events purged", zap.Int64("rows", n))
	return n, nil
}

func (s *Service) DeleteToken(ctx context.Context, token string) (int64, error) {
	return s.log.DeleteToken(ctx, token)
}
