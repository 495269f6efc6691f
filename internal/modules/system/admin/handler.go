package admin

import (
	"github.com/gin-gonic/gin"

	"github.com/pulsetrack/pulse/internal/modules/site/token"
	"github.com/pulsetrack/pulse/internal/pkg/pagination"
	"github.com/pulsetrack/pulse/internal/pkg/response"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the dashboard endpoints on an already authenticated
// group.
func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/tokens", h.listTokens)
	admin.PATCH("/tokens", h.setBlocked)
	admin.DELETE("/tokens", h.deleteToken)
	admin.GET("/stats", h.stats)
}

// GET /admin/tokens?page=&limit=
func (h *Handler) listTokens(c *gin.Context) {
	q := pagination.FromContext(c)
	items, pag, err := h.svc.ListTokens(c.Request.Context(), q)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{
		"tokens":     items,
		"total":      pag.Total,
		"page":       pag.Page,
		"limit":      pag.Limit,
		"totalPages": pag.TotalPages,
	})
}

// PATCH /admin/tokens {token, is_blocked}
func (h *Handler) setBlocked(c *gin.Context) {
	var dto token.SetBlockedDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, "Invalid request body")
		return
	}
	row, err := h.svc.SetBlocked(c.Request.Context(), dto.Token, *dto.IsBlocked)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, gin.H{"success": true, "token": row})
}

// DELETE /admin/tokens?token=
func (h *Handler) deleteToken(c *gin.Context) {
	tok := c.Query("token")
	if tok == "" {
		response.BadRequest(c, "Token is required")
		return
	}
	if err := h.svc.Delete(c.Request.Context(), tok); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c)
}

// GET /admin/stats
func (h *Handler) stats(c *gin.Context) {
	st, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.OK(c, st)
}
