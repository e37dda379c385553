package server

import (
	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-curator/internal/server/middleware"
	v1 "github.com/nulzo/model-curator/internal/server/v1"
)

func (s *Server) SetupRoutes() {
	healthHandler := v1.NewHealthHandler(s.deps.Manager)
	s.router.GET("/health", healthHandler.Health)

	if s.deps.Metrics != nil {
		s.router.GET("/metrics", gin.WrapH(s.deps.Metrics.Handler()))
	}

	limiter := middleware.NewRateLimiter(s.config.RateLimit.RequestsPerSecond, s.config.RateLimit.Burst, s.logger)

	api := s.router.Group("/v1")
	api.Use(middleware.Auth(s.config.Server.APIKeys))
	api.Use(limiter.Middleware())
	{
		chatHandler := v1.NewChatHandler(s.deps.Manager)
		api.POST("/chat/completions", chatHandler.CreateCompletion)

		modelHandler := v1.NewModelHandler(s.deps.Manager, s.logger)
		api.GET("/models", modelHandler.ListModels)

		providerHandler := v1.NewProviderHandler(s.deps.Manager, s.deps.Evaluator)
		api.GET("/providers", providerHandler.List)
		api.POST("/providers/select", providerHandler.Select)
		api.GET("/providers/:id", providerHandler.Get)
		api.POST("/providers/:id/health", providerHandler.Health)
		api.PUT("/providers/:id/current", providerHandler.SetCurrent)
		api.POST("/providers/:id/evaluate", providerHandler.Evaluate)
		api.GET("/providers/:id/evaluations/latest", providerHandler.LatestEvaluation)

		configHandler := v1.NewConfigHandler(s.config)
		api.GET("/config", configHandler.Get)

		if s.deps.Analytics != nil {
			analyticsHandler := v1.NewAnalyticsHandler(s.deps.Analytics)
			api.GET("/analytics/usage", analyticsHandler.GetUsage)
			api.GET("/analytics/attempts", analyticsHandler.GetAttempts)
		}
	}
}
