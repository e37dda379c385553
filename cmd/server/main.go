package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nulzo/model-curator/internal/analytics"
	"github.com/nulzo/model-curator/internal/config"
	"github.com/nulzo/model-curator/internal/evaluation"
	"github.com/nulzo/model-curator/internal/gateway"
	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/internal/platform/logger"
	"github.com/nulzo/model-curator/internal/platform/metrics"
	"github.com/nulzo/model-curator/internal/platform/otel"
	"github.com/nulzo/model-curator/internal/server"
	"github.com/nulzo/model-curator/internal/store"
	"github.com/nulzo/model-curator/internal/store/cache"
	"github.com/nulzo/model-curator/internal/store/sqlite"
	"go.uber.org/zap"

	// adapters register their factories in init
	_ "github.com/nulzo/model-curator/internal/llm/ollama"
	_ "github.com/nulzo/model-curator/internal/llm/openai"
	_ "github.com/nulzo/model-curator/internal/llm/openrouter"
)

func main() {
	logger.Initialize(logger.DefaultConfig())
	defer logger.Sync()
	log := logger.Get()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Tracing.Enabled {
		shutdown, err := otel.InitTracer(ctx, otel.Config{
			ServiceName: cfg.Tracing.ServiceName,
			SampleRatio: cfg.Tracing.SampleRatio,
			Endpoint:    cfg.Tracing.Endpoint,
			Insecure:    cfg.Tracing.Insecure,
			Headers:     cfg.Tracing.Headers,
		}, log)
		if err != nil {
			log.Fatal("failed to init tracer", zap.Error(err))
		}
		defer func() { _ = shutdown(context.Background()) }()
	}

	pm := metrics.NewProviderMetrics()

	opts := llm.Options{
		ModelsTTL: cfg.Cache.ModelsTTL,
		HealthTTL: cfg.Cache.HealthTTL,
	}
	if cfg.Redis.Enabled {
		rc, err := cache.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.Warn("redis unavailable, using in-memory cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		} else {
			defer rc.Close()
			opts.Cache = rc
		}
	}
	if opts.Cache == nil {
		opts.Cache = cache.NewMemoryCache()
	}

	managerOpts := []gateway.Option{
		gateway.WithLogger(log),
		gateway.WithMetrics(pm),
	}

	var (
		repo     store.Repository
		ingestor analytics.Ingestor
	)
	if cfg.Database.Enabled {
		repo, err = sqlite.NewSQLiteStorage(cfg.Database.DSN, log)
		if err != nil {
			log.Fatal("failed to open database", zap.Error(err))
		}
		defer repo.Close()

		retention := analytics.NewRetention(repo.Attempts(), cfg.Database.Retention, log)
		if err := retention.Start(ctx, cfg.Database.PruneSchedule); err != nil {
			log.Fatal("failed to schedule attempt pruning", zap.Error(err))
		}
		defer retention.Stop()

		ingestor = analytics.NewIngestor(log.Named("analytics"), repo)
		ingestor.Start(ctx)
		defer ingestor.Stop()
		managerOpts = append(managerOpts, gateway.WithIngestor(ingestor))
	}

	manager := gateway.NewManager(gateway.ConfigFrom(cfg), managerOpts...)

	loaded := gateway.BootstrapProviders(ctx, manager, cfg.Providers, opts, log)
	if cfg.Server.AutoDetect {
		if detected := manager.AutoDetectProviders(ctx, gateway.NewDetector()); len(detected) > 0 {
			loaded += gateway.BootstrapProviders(ctx, manager, detected, opts, log)
		}
	}

	manager.Start(ctx)
	defer manager.Stop()

	deps := server.Dependencies{
		Manager: manager,
		Metrics: pm,
	}
	if repo != nil {
		deps.Analytics = analytics.NewService(repo)
		deps.Evaluator = evaluation.New(manager.Curator(),
			evaluation.WithRepository(repo.Evaluations()),
			evaluation.WithLogger(log),
		)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           server.New(cfg, log, deps).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("model curator listening",
			zap.String("addr", srv.Addr),
			zap.Int("providers", loaded),
			zap.String("current", manager.CurrentProvider()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		log.Error("server failed", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
