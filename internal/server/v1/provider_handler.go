package v1

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-curator/internal/curation"
	"github.com/nulzo/model-curator/internal/evaluation"
	"github.com/nulzo/model-curator/internal/gateway"
	"github.com/nulzo/model-curator/internal/server/validator"
	"github.com/nulzo/model-curator/internal/store"
	"github.com/nulzo/model-curator/pkg/api"
)

type ProviderHandler struct {
	manager   *gateway.Manager
	evaluator *evaluation.Evaluator
}

func NewProviderHandler(manager *gateway.Manager, evaluator *evaluation.Evaluator) *ProviderHandler {
	return &ProviderHandler{manager: manager, evaluator: evaluator}
}

// List serves GET /v1/providers: every status plus the quality ranking.
func (h *ProviderHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"object":  "list",
		"current": h.manager.CurrentProvider(),
		"data":    h.manager.ListProviderStatus(),
		"ranking": h.manager.RankProviders(),
	})
}

func (h *ProviderHandler) Get(c *gin.Context) {
	status, err := h.manager.GetProviderStatus(c.Param("id"))
	if err != nil {
		_ = c.Error(problemFor(err))
		return
	}
	c.JSON(http.StatusOK, status)
}

// Health serves POST /v1/providers/:id/health and reports the fresh status.
func (h *ProviderHandler) Health(c *gin.Context) {
	id := c.Param("id")
	healthy, err := h.manager.HealthCheck(c.Request.Context(), id)
	if errors.Is(err, gateway.ErrProviderNotFound) {
		_ = c.Error(problemFor(err))
		return
	}
	status, serr := h.manager.GetProviderStatus(id)
	if serr != nil {
		_ = c.Error(problemFor(serr))
		return
	}

	body := gin.H{"healthy": healthy, "status": status}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusOK, body)
}

// SetCurrent serves PUT /v1/providers/:id/current.
func (h *ProviderHandler) SetCurrent(c *gin.Context) {
	if err := h.manager.SetCurrentProvider(c.Param("id")); err != nil {
		_ = c.Error(problemFor(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"current": h.manager.CurrentProvider()})
}

// Evaluate serves POST /v1/providers/:id/evaluate.
func (h *ProviderHandler) Evaluate(c *gin.Context) {
	var req api.EvaluateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	p, err := h.manager.Registry().Get(c.Param("id"))
	if err != nil {
		_ = c.Error(problemFor(err))
		return
	}

	ev, err := h.evaluator.EvaluateProvider(c.Request.Context(), p, req.Model)
	if err != nil {
		_ = c.Error(problemFor(err))
		return
	}
	c.JSON(http.StatusOK, ev)
}

// LatestEvaluation serves GET /v1/providers/:id/evaluations/latest?model=.
func (h *ProviderHandler) LatestEvaluation(c *gin.Context) {
	modelID := c.Query("model")
	if modelID == "" {
		_ = c.Error(api.BadRequestError("The 'model' parameter is required"))
		return
	}
	ev, err := h.evaluator.LatestEvaluation(c.Request.Context(), c.Param("id"), modelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			_ = c.Error(api.NotFoundError("No evaluation recorded for this provider and model"))
			return
		}
		_ = c.Error(problemFor(err))
		return
	}
	c.JSON(http.StatusOK, ev)
}

// Select serves POST /v1/providers/select.
func (h *ProviderHandler) Select(c *gin.Context) {
	var req api.ProviderSelectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(api.ValidationError(validator.ParseValidationError(err)))
		return
	}

	cons := curation.SelectionConstraints{
		MinQualityScore:        req.MinQualityScore,
		RequireQualityScore:    req.RequireQualityScore,
		RequirePerformanceData: req.RequirePerformanceData,
		MaxCostPerRequest:      req.MaxCostPerRequest,
	}
	if req.RequirePerformanceData {
		thresholds := h.manager.Thresholds()
		cons.Thresholds = &thresholds
	}
	for _, s := range req.RequiredCapabilities {
		if capability, ok := api.ParseCapability(s); ok {
			cons.RequiredCapabilities = append(cons.RequiredCapabilities, capability)
		}
	}

	id, ok := h.manager.SelectBestProvider(req.Candidates, cons)
	if !ok {
		_ = c.Error(api.NotFoundError("No provider satisfies the constraints"))
		return
	}

	body := gin.H{"provider_id": id}
	if score, scored := h.manager.Curator().GetQualityScore(id); scored {
		body["score"] = score
	}
	c.JSON(http.StatusOK, body)
}
