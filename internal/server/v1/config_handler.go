package v1

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-curator/internal/config"
)

type ConfigHandler struct {
	config *config.Config
}

func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{config: cfg}
}

// Get serves GET /v1/config with the tuning that drives routing. Provider
// credentials are never serialized.
func (h *ConfigHandler) Get(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"curation":   h.config.Curation,
		"thresholds": h.config.Thresholds,
		"retry":      h.config.Retry,
		"cache":      h.config.Cache,
		"providers":  h.config.Providers,
	})
}
