package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/nulzo/model-curator/internal/analytics"
	"github.com/nulzo/model-curator/internal/config"
	"github.com/nulzo/model-curator/internal/evaluation"
	"github.com/nulzo/model-curator/internal/gateway"
	"github.com/nulzo/model-curator/internal/platform/metrics"
	"github.com/nulzo/model-curator/internal/server/middleware"
	"github.com/nulzo/model-curator/internal/server/validator"
	"go.uber.org/zap"
)

// Dependencies are the services the HTTP surface exposes. Analytics and
// Metrics may be nil; their routes are then not mounted.
type Dependencies struct {
	Manager   *gateway.Manager
	Evaluator *evaluation.Evaluator
	Analytics analytics.Service
	Metrics   *metrics.ProviderMetrics
}

type Server struct {
	router *gin.Engine
	config *config.Config
	logger *zap.Logger
	deps   Dependencies
}

func New(cfg *config.Config, logger *zap.Logger, deps Dependencies) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	if deps.Evaluator == nil {
		deps.Evaluator = evaluation.New(deps.Manager.Curator(), evaluation.WithLogger(logger))
	}

	validator.InitValidator()

	engine := gin.New()
	engine.Use(middleware.Recovery(logger))
	engine.Use(middleware.Logging(logger))
	if cfg.Tracing.Enabled {
		engine.Use(middleware.Tracing(cfg.Tracing.ServiceName))
	}
	engine.Use(middleware.ErrorHandler(logger))

	s := &Server{
		router: engine,
		config: cfg,
		logger: logger,
		deps:   deps,
	}

	s.SetupRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}
