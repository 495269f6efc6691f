package collect

import (
	"github.com/gin-gonic/gin"

	"github.com/pulsetrack/pulse/internal/pkg/apperr"
	"github.com/pulsetrack/pulse/internal/pkg/metrics"
	"github.com/pulsetrack/pulse/internal/pkg/response"
)

type Handler struct {
	svc     *Service
	metrics *metrics.Metrics
}

func NewHandler(svc *Service, m *metrics.Metrics) *Handler {
	return &Handler{svc: svc, metrics: m}
}

// RegisterRoutes mounts POST /collect behind mw, typically CORS, the API rate
// limit and the processing timeout.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, mw ...gin.HandlerFunc) {
	g := rg.Group("/collect", mw...)
	g.POST("", h.collect)
	g.OPTIONS("", func(c *gin.Context) { c.Status(204) })
}

// POST /collect. sendBeacon posts text/plain, so the body is decoded as JSON
// whatever the declared content type.
func (h *Handler) collect(c *gin.Context) {
	var dto CollectDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		h.metrics.RecordCollect("unknown", metrics.OutcomeRejected)
		response.BadRequest(c, "Missing required fields")
		return
	}

	outcome, err := h.svc.Collect(c.Request.Context(), dto)
	if err != nil {
		label := metrics.OutcomeRejected
		if apperr.KindOf(err) == apperr.KindStorage {
			label = metrics.OutcomeFailed
		}
		h.metrics.RecordCollect(dto.Type, label)
		response.Error(c, err)
		return
	}

	if outcome == Skipped {
		h.metrics.RecordCollect(dto.Type, metrics.OutcomeSkipped)
		response.Skipped(c)
		return
	}
	h.metrics.RecordCollect(dto.Type, metrics.OutcomeRecorded)
	response.Success(c)
}
