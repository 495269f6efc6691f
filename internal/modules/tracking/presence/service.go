package presence

import (
	"context"
	"time"

	"github.com/coder/quartz"
	"go.uber.org/zap"
)

const (
	DefaultOnlineWindow = 45 * time.Second
	DefaultHorizon      = 5 * time.Minute
)

// Service applies the freshness rules on top of a Store.
type Service struct {
	store   Store
	clock   quartz.Clock
	window  time.Duration
	horizon time.Duration
	logger  *zap.Logger
}

type Option func(*Service)

func WithClock(clock quartz.Clock) Option {
	return func(s *Service) { s.clock = clock }
}

// WithWindows sets the online window and the cleanup horizon.
func WithWindows(online, horizon time.Duration) Option {
	return func(s *Service) {
		s.window = online
		s.horizon = horizon
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:   store,
		clock:   quartz.NewReal(),
		window:  DefaultOnlineWindow,
		horizon: DefaultHorizon,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("presence")
	return s
}

// Touch records that visitorID is on path of token now.
func (s *Service) Touch(ctx context.Context, token, visitorID, path, referrer string) error {
	return s.store.Touch(ctx, Sighting{
		Token:     token,
		VisitorID: visitorID,
		Path:      path,
		Referrer:  referrer,
		At:        s.clock.Now(),
	})
}

// Online counts visitors of token seen within the online window.
func (s *Service) Online(ctx context.Context, token string) (int64, error) {
	return s.store.CountOnline(ctx, token, s.clock.Now().Add(-s.window))
}

// TotalOnline counts online visitors across all tokens.
func (s *Service) TotalOnline(ctx context.Context) (int64, error) {
	return s.store.CountOnlineAll(ctx, s.clock.Now().Add(-s.window))
}

// Cleanup drops rows older than the horizon.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	n, err := s.store.Cleanup(ctx, s.clock.Now().Add(-s.horizon))
	if err != nil {
		return n, err
	}
	if n > 0 {
		s.logger.Debug("stale presence removed", zap.Int64("rows", n))
	}
	return n, nil
}

// DeleteToken removes all presence of token.
func (s *Service) DeleteToken(ctx context.Context, token string) (int64, error) {
	return s.store.DeleteToken(ctx, token)
}
