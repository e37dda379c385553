package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-curator/internal/gateway"
)

type HealthHandler struct {
	manager *gateway.Manager
}

func NewHealthHandler(manager *gateway.Manager) *HealthHandler {
	return &HealthHandler{manager: manager}
}

// Health serves GET /health. The gateway is degraded, not down, when no
// provider is connected.
func (h *HealthHandler) Health(c *gin.Context) {
	connected := 0
	statuses := h.manager.ListProviderStatus()
	for _, s := range statuses {
		if s.State == gateway.StateConnected {
			connected++
		}
	}

	status := "ok"
	if connected == 0 {
		status = "degraded"
	}
	c.JSON(http.StatusOK, gin.H{
		"status":    status,
		"providers": len(statuses),
		"connected": connected,
		"current":   h.manager.CurrentProvider(),
	})
}
