package main

import (
	"context"
	"fmt"

	"github.com/nulzo/model-curator/internal/config"
	"github.com/nulzo/model-curator/internal/evaluation"
	"github.com/nulzo/model-curator/internal/gateway"
	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/internal/platform/logger"
	"github.com/nulzo/model-curator/internal/store"
	"github.com/nulzo/model-curator/internal/store/cache"
	"github.com/nulzo/model-curator/internal/store/sqlite"
	"go.uber.org/zap"
)

// env is the in-process gateway a command works against.
type env struct {
	cfg     *config.Config
	log     *zap.Logger
	opts    llm.Options
	manager *gateway.Manager
	repo    store.Repository
}

// setup loads configuration and brings up every configured provider. With
// detect set, providers found in the environment are loaded too.
func setup(ctx context.Context, detect bool) (*env, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}
	log := logger.Get()

	e := &env{
		cfg: cfg,
		log: log,
		opts: llm.Options{
			Cache:     cache.NewMemoryCache(),
			ModelsTTL: cfg.Cache.ModelsTTL,
			HealthTTL: cfg.Cache.HealthTTL,
		},
	}
	e.manager = gateway.NewManager(gateway.ConfigFrom(cfg), gateway.WithLogger(log))

	gateway.BootstrapProviders(ctx, e.manager, cfg.Providers, e.opts, log)
	if detect || cfg.Server.AutoDetect {
		if detected := e.manager.AutoDetectProviders(ctx, gateway.NewDetector()); len(detected) > 0 {
			gateway.BootstrapProviders(ctx, e.manager, detected, e.opts, log)
		}
	}
	if len(e.manager.Registry().ListProviderIDs()) == 0 {
		return nil, fmt.Errorf("no providers configured or detected")
	}
	return e, nil
}

// evaluator persists results when the database is enabled.
func (e *env) evaluator() (*evaluation.Evaluator, error) {
	opts := []evaluation.Option{evaluation.WithLogger(e.log)}
	if e.cfg.Database.Enabled {
		repo, err := sqlite.NewSQLiteStorage(e.cfg.Database.DSN, e.log)
		if err != nil {
			return nil, err
		}
		e.repo = repo
		opts = append(opts, evaluation.WithRepository(repo.Evaluations()))
	}
	return evaluation.New(e.manager.Curator(), opts...), nil
}

func (e *env) Close() {
	if e.repo != nil {
		_ = e.repo.Close()
	}
}
