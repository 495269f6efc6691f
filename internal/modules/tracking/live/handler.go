// Package live serves the public read endpoints the widget polls: current
// online count, top pages and the per-minute visitor timeline.
package live

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pulsetrack/pulse/internal/models"
	"github.com/pulsetrack/pulse/internal/modules/tracking/events"
	"github.com/pulsetrack/pulse/internal/pkg/apperr"
	"github.com/pulsetrack/pulse/internal/pkg/response"
)

type TokenResolver interface {
	Resolve(ctx context.Context, token string) (*models.TokenModel, error)
}

type OnlineCounter interface {
	Online(ctx context.Context, token string) (int64, error)
}

type EventQueries interface {
	TopPages(ctx context.Context, token string, limit int) ([]events.PageCount, error)
	Timeline(ctx context.Context, token string) ([]events.TimelinePoint, error)
}

type Handler struct {
	tokens   TokenResolver
	presence OnlineCounter
	events   EventQueries
	logger   *zap.Logger
}

func NewHandler(tokens TokenResolver, presence OnlineCounter, ev EventQueries, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{tokens: tokens, presence: presence, events: ev, logger: logger.Named("live")}
}

// RegisterRoutes mounts the read endpoints. mw typically carries the public
// CORS and no-store middleware.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, mw ...gin.HandlerFunc) {
	g := rg.Group("", mw...)
	for _, route := range []struct {
		path string
		fn   gin.HandlerFunc
	}{
		{"/online", h.online},
		{"/top-pages", h.topPages},
		{"/timeline", h.timeline},
	} {
		g.GET(route.path, route.fn)
		g.OPTIONS(route.path, func(c *gin.Context) { c.Status(204) })
	}
}

// resolve reads ?token= and aborts the request unless it names an active token.
func (h *Handler) resolve(c *gin.Context) (string, bool) {
	tok := c.Query("token")
	if tok == "" {
		response.BadRequest(c, "Token is required")
		return "", false
	}
	if _, err := h.tokens.Resolve(c.Request.Context(), tok); err != nil {
		response.Error(c, err)
		return "", false
	}
	return tok, true
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	h.logger.Error(msg, zap.String("path", c.FullPath()), zap.Error(err))
	response.Error(c, apperr.Storage(msg, err))
}

// GET /online?token=
func (h *Handler) online(c *gin.Context) {
	tok, ok := h.resolve(c)
	if !ok {
		return
	}
	n, err := h.presence.Online(c.Request.Context(), tok)
	if err != nil {
		h.fail(c, "Failed to get online count", err)
		return
	}
	response.OK(c, gin.H{"online": n})
}

// GET /top-pages?token=&limit=
func (h *Handler) topPages(c *gin.Context) {
	tok, ok := h.resolve(c)
	if !ok {
		return
	}
	// Unparseable limits fall back to the default.
	limit, _ := strconv.Atoi(c.Query("limit"))
	pages, err := h.events.TopPages(c.Request.Context(), tok, limit)
	if err != nil {
		h.fail(c, "Failed to get top pages", err)
		return
	}
	response.OK(c, gin.H{"pages": pages})
}

// GET /timeline?token=
func (h *Handler) timeline(c *gin.Context) {
	tok, ok := h.resolve(c)
	if !ok {
		return
	}
	points, err := h.events.Timeline(c.Request.Context(), tok)
	if err != nil {
		h.fail(c, "Failed to get timeline", err)
		return
	}
	response.OK(c, gin.H{"timeline": points})
}
