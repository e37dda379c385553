package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-curator/internal/gateway"
	"github.com/nulzo/model-curator/pkg/api"
	"go.uber.org/zap"
)

type ModelHandler struct {
	manager *gateway.Manager
	logger  *zap.Logger
}

func NewModelHandler(manager *gateway.Manager, logger *zap.Logger) *ModelHandler {
	return &ModelHandler{manager: manager, logger: logger}
}

// ListModels serves GET /v1/models. Providers whose listing fails are left
// out; the request only fails when nothing could be listed.
func (h *ModelHandler) ListModels(c *gin.Context) {
	filter := api.ModelFilter{
		Provider:   c.Query("provider"),
		ID:         c.Query("id"),
		Capability: c.Query("capability"),
	}
	if v := c.Query("free"); v != "" {
		free, err := strconv.ParseBool(v)
		if err != nil {
			_ = c.Error(api.BadRequestError("Invalid 'free' parameter"))
			return
		}
		filter.FreeOnly = free
	}

	registry := h.manager.Registry()
	var (
		models []api.ModelInfo
		err    error
	)
	if filter.Provider != "" {
		models, err = registry.ListModels(c.Request.Context(), filter.Provider)
	} else {
		models, err = registry.ListAllModels(c.Request.Context())
	}
	if err != nil {
		if len(models) == 0 {
			_ = c.Error(problemFor(err))
			return
		}
		h.logger.Warn("partial model listing", zap.Error(err))
	}

	data := make([]api.Model, 0, len(models))
	for _, m := range models {
		if !matches(m, filter) {
			continue
		}
		data = append(data, api.NewModel(m))
	}

	c.JSON(http.StatusOK, gin.H{
		"object": "list",
		"data":   data,
	})
}

func matches(m api.ModelInfo, f api.ModelFilter) bool {
	if f.ID != "" && m.ID != f.ID {
		return false
	}
	if f.Capability != "" && !m.HasCapability(api.Capability(f.Capability)) {
		return false
	}
	if f.FreeOnly && !m.IsFree {
		return false
	}
	return true
}
