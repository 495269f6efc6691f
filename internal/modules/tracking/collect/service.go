// Package collect is the single write path: it validates a presence report,
// throttles heartbeats, refreshes presence and appends pageview events.
package collect

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/pulsetrack/pulse/internal/models"
	"github.com/pulsetrack/pulse/internal/modules/site/token"
	"github.com/pulsetrack/pulse/internal/pkg/apperr"
	"github.com/pulsetrack/pulse/internal/pkg/metrics"
	"github.com/pulsetrack/pulse/internal/pkg/ratelimit"
)

type TokenResolver interface {
	Resolve(ctx context.Context, token string) (*models.TokenModel, error)
}

type PresenceWriter interface {
	Touch(ctx context.Context, token, visitorID, path, referrer string) error
}

type EventWriter interface {
	RecordPageview(ctx context.Context, token, visitorID, path, referrer string) error
}

type Service struct {
	tokens         TokenResolver
	presence       PresenceWriter
	events         EventWriter
	limiter        ratelimit.Limiter
	heartbeat      ratelimit.Policy
	strictPresence bool
	logger         *zap.Logger
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithHeartbeatPolicy overrides the heartbeat throttle.
func WithHeartbeatPolicy(p ratelimit.Policy) Option {
	return func(s *Service) { s.heartbeat = p }
}

// WithStrictPresence controls whether a failed presence upsert fails the
// request. The pageview append is attempted either way.
func WithStrictPresence(strict bool) Option {
	return func(s *Service) { s.strictPresence = strict }
}

func NewService(tokens TokenResolver, presence PresenceWriter, events EventWriter, limiter ratelimit.Limiter, opts ...Option) *Service {
	s := &Service{
		tokens:         tokens,
		presence:       presence,
		events:         events,
		limiter:        limiter,
		heartbeat:      ratelimit.DefaultPolicies().Heartbeat,
		strictPresence: true,
		logger:         zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("collect")
	return s
}

// Collect processes one report. Validation and authorization failures return
// before anything is written; presence is written before the event so an
// event failure never undoes presence.
func (s *Service) Collect(ctx context.Context, in CollectDTO) (Outcome, error) {
	if !validType(in.Type) {
		return 0, apperr.Validation("Invalid event type")
	}
	if !token.ValidateFormat(in.Token) {
		return 0, apperr.Validation("Invalid token format")
	}
	if len(in.VisitorID) > maxVisitorIDLen {
		return 0, apperr.Validation("visitorId is too long")
	}
	path := truncate(in.Path, maxURLFieldLen)
	referrer := truncate(in.Referrer, maxURLFieldLen)

	if in.Type == models.EventHeartbeat {
		res, err := s.heartbeat.Check(ctx, s.limiter, in.Token, in.VisitorID)
		switch {
		case err != nil:
			s.logger.Warn("heartbeat limiter unavailable", zap.Error(err))
		case !res.Allowed:
			s.metrics.RecordRateLimited(s.heartbeat.Name)
			return Skipped, nil
		}
	}

	if _, err := s.tokens.Resolve(ctx, in.Token); err != nil {
		return 0, err
	}

	presenceErr := s.presence.Touch(ctx, in.Token, in.VisitorID, path, referrer)
	if presenceErr != nil {
		s.metrics.RecordStorageError("presence", "touch")
		s.logger.Error("presence upsert failed",
			zap.String("token", in.Token),
			zap.String("type", in.Type),
			zap.Error(presenceErr),
		)
	}

	if in.Type == models.EventPageview {
		if err := s.events.RecordPageview(ctx, in.Token, in.VisitorID, path, referrer); err != nil {
			s.metrics.RecordStorageError("events", "append")
			s.logger.Error("event append failed", zap.String("token", in.Token), zap.Error(err))
		}
	}

	if presenceErr != nil && s.strictPresence {
		if errors.Is(presenceErr, context.DeadlineExceeded) {
			return 0, apperr.Storage("Request timed out", presenceErr)
		}
		return 0, apperr.Storage("Failed to record presence", presenceErr)
	}
	return Recorded, nil
}
