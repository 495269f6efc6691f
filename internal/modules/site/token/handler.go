package token

import (
	"errors"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/pulsetrack/pulse/internal/pkg/apperr"
	"github.com/pulsetrack/pulse/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the public token endpoints. createMW guards creation,
// normally with the token-create rate limit.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, createMW ...gin.HandlerFunc) {
	g := rg.Group("/tokens")
	g.GET("", h.get)
	g.POST("", append(createMW, h.create)...)
}

// POST /tokens
func (h *Handler) create(c *gin.Context) {
	var dto CreateTokenDTO
	if err := c.ShouldBindJSON(&dto); err != nil && !errors.Is(err, io.EOF) {
		response.BadRequest(c, "Invalid request body")
		return
	}

	in := CreateInput{SiteURL: dto.SiteURL, SiteName: dto.SiteName, Public: true}
	if dto.WidgetDefaults != nil {
		in.WidgetDefaults = *dto.WidgetDefaults
	}
	row, err := h.svc.Create(c.Request.Context(), in)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, createdResponse{Token: row.Token, ID: row.ID, CreatedAt: row.CreatedAt})
}

// GET /tokens?token=T. Blocked and malformed tokens are indistinguishable from
// unknown ones.
func (h *Handler) get(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.BadRequest(c, "Token is required")
		return
	}
	row, err := h.svc.Resolve(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, apperr.ErrForbidden) || errors.Is(err, apperr.ErrValidation) {
			err = errNotFound
		}
		response.Error(c, err)
		return
	}
	response.OK(c, toPublic(row))
}
