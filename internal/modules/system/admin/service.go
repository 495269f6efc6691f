// Package admin is the operator dashboard API: token moderation and
// registry-wide usage statistics.
package admin

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pulsetrack/pulse/internal/models"
	"github.com/pulsetrack/pulse/internal/modules/tracking/events"
	"github.com/pulsetrack/pulse/internal/pkg/apperr"
	"github.com/pulsetrack/pulse/internal/pkg/pagination"
	"github.com/pulsetrack/pulse/internal/pkg/response"
)

const (
	day  = 24 * time.Hour
	hour = time.Hour

	// statsFanout bounds concurrent per-token queries on one listing page.
	statsFanout = 8
)

type Registry interface {
	List(ctx context.Context, q pagination.Query) ([]models.TokenModel, response.Pagination, error)
	Counts(ctx context.Context) (total, blocked int64, err error)
	SetBlocked(ctx context.Context, token string, blocked bool) (*models.TokenModel, error)
	Delete(ctx context.Context, token string) error
}

type Presence interface {
	Online(ctx context.Context, token string) (int64, error)
	TotalOnline(ctx context.Context) (int64, error)
}

type EventStats interface {
	CountForToken(ctx context.Context, token string, d time.Duration) (int64, error)
	CountLast(ctx context.Context, d time.Duration) (int64, error)
	TopTokens(ctx context.Context, d time.Duration) ([]events.TokenCount, error)
}

// TokenStats is a token row with its live usage.
type TokenStats struct {
	models.TokenModel
	OnlineCount int64 `json:"online_count"`
	Events24h   int64 `json:"events_24h"`
}

type Stats struct {
	TotalTokens    int64               `json:"totalTokens"`
	BlockedTokens  int64               `json:"blockedTokens"`
	ActiveTokens   int64               `json:"activeTokens"`
	Events24h      int64               `json:"events24h"`
	EventsLastHour int64               `json:"eventsLastHour"`
	TotalOnline    int64               `json:"totalOnline"`
	TopTokens      []events.TokenCount `json:"topTokens"`
	PotentialAbuse []events.TokenCount `json:"potentialAbuse"`
}

type Service struct {
	tokens    Registry
	presence  Presence
	events    EventStats
	threshold int
	logger    *zap.Logger
}

func NewService(tokens Registry, presence Presence, ev EventStats, abuseThreshold int, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tokens:    tokens,
		presence:  presence,
		events:    ev,
		threshold: abuseThreshold,
		logger:    logger.Named("admin"),
	}
}

// ListTokens returns one page of tokens, newest first, each with its current
// online count and event volume over the last 24 hours.
func (s *Service) ListTokens(ctx context.Context, q pagination.Query) ([]TokenStats, response.Pagination, error) {
	rows, pag, err := s.tokens.List(ctx, q)
	if err != nil {
		return nil, response.Pagination{}, err
	}

	out := make([]TokenStats, len(rows))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(statsFanout)
	for i := range rows {
		out[i].TokenModel = rows[i]
		g.Go(func() error {
			tok := rows[i].Token
			online, err := s.presence.Online(gctx, tok)
			if err != nil {
				return err
			}
			n, err := s.events.CountForToken(gctx, tok, day)
			if err != nil {
				return err
			}
			out[i].OnlineCount = online
			out[i].Events24h = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, response.Pagination{}, apperr.Storage("Failed to fetch tokens", err)
	}
	return out, pag, nil
}

// Stats gathers the dashboard summary. Tokens above the abuse threshold are
// only reported, never blocked.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		st.TotalTokens, st.BlockedTokens, err = s.tokens.Counts(gctx)
		return err
	})
	g.Go(func() (err error) {
		st.Events24h, err = s.events.CountLast(gctx, day)
		return err
	})
	g.Go(func() (err error) {
		st.EventsLastHour, err = s.events.CountLast(gctx, hour)
		return err
	})
	g.Go(func() (err error) {
		st.TotalOnline, err = s.presence.TotalOnline(gctx)
		return err
	})
	g.Go(func() (err error) {
		st.TopTokens, err = s.events.TopTokens(gctx, day)
		return err
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("stats query failed", zap.Error(err))
		return nil, apperr.Storage("Failed to fetch stats", err)
	}

	st.ActiveTokens = st.TotalTokens - st.BlockedTokens
	if st.TopTokens == nil {
		st.TopTokens = []events.TokenCount{}
	}
	st.PotentialAbuse = AboveThreshold(st.TopTokens, s.threshold)
	return &st, nil
}

// AboveThreshold keeps the entries with strictly more than threshold events.
func AboveThreshold(counts []events.TokenCount, threshold int) []events.TokenCount {
	out := []events.TokenCount{}
	for _, tc := range counts {
		if tc.Events > int64(threshold) {
			out = append(out, tc)
		}
	}
	return out
}

func (s *Service) SetBlocked(ctx context.Context, token string, blocked bool) (*models.TokenModel, error) {
	return s.tokens.SetBlocked(ctx, token, blocked)
}

func (s *Service) Delete(ctx context.Context, token string) error {
	return s.tokens.Delete(ctx, token)
}
