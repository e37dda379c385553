package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-curator/internal/analytics"
	"github.com/nulzo/model-curator/pkg/api"
)

type AnalyticsHandler struct {
	service analytics.Service
}

func NewAnalyticsHandler(service analytics.Service) *AnalyticsHandler {
	return &AnalyticsHandler{
		service: service,
	}
}

// GetUsage serves GET /v1/analytics/usage?days=7.
func (h *AnalyticsHandler) GetUsage(c *gin.Context) {
	days, err := strconv.Atoi(c.DefaultQuery("days", "7"))
	if err != nil || days <= 0 {
		_ = c.Error(api.BadRequestError("Invalid 'days' parameter"))
		return
	}

	stats, err := h.service.GetUsageOverview(c.Request.Context(), days)
	if err != nil {
		_ = c.Error(api.InternalError("Failed to fetch analytics", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   stats,
	})
}

// GetAttempts serves GET /v1/analytics/attempts?provider=&limit=50.
func (h *AnalyticsHandler) GetAttempts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit <= 0 || limit > 1000 {
		_ = c.Error(api.BadRequestError("Invalid 'limit' parameter"))
		return
	}

	attempts, err := h.service.RecentAttempts(c.Request.Context(), c.Query("provider"), limit)
	if err != nil {
		_ = c.Error(api.InternalError("Failed to fetch attempts", err))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   attempts,
	})
}
