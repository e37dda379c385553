package gateway

import (
	"context"

	"github.com/go-playground/validator/v10"
	"github.com/nulzo/model-curator/internal/config"
	"github.com/nulzo/model-curator/internal/curation"
	"github.com/nulzo/model-curator/internal/llm"
	"github.com/nulzo/model-curator/internal/monitor"
	"go.uber.org/zap"
)

// ConfigFrom maps application configuration onto the Manager's knobs.
func ConfigFrom(cfg *config.Config) Config {
	out := DefaultConfig()
	out.Curation = curation.Config{
		Enabled:                cfg.Curation.Enabled,
		AutoSwitch:             cfg.Curation.AutoSwitch,
		MaxConsecutiveFailures: cfg.Curation.MaxConsecutiveFailures,
		MinReliability:         cfg.Curation.MinReliability,
		MinRequests:            cfg.Curation.MinRequests,
	}
	out.Thresholds = monitor.Thresholds{
		MaxAverageLatency: cfg.Thresholds.MaxAverageLatency,
		MaxErrorRate:      cfg.Thresholds.MaxErrorRate,
		MinThroughput:     cfg.Thresholds.MinThroughput,
	}
	if cfg.Retry.MaxAttempts > 0 {
		out.Retry.MaxAttempts = cfg.Retry.MaxAttempts
	}
	if cfg.Retry.InitialDelay > 0 {
		out.Retry.InitialDelay = cfg.Retry.InitialDelay
	}
	if cfg.Retry.MaxDelay > 0 {
		out.Retry.MaxDelay = cfg.Retry.MaxDelay
	}
	if cfg.Retry.Multiplier > 0 {
		out.Retry.Multiplier = cfg.Retry.Multiplier
	}
	out.QualityRefreshInterval = cfg.Curation.QualityRefreshInterval
	out.HealthCheckInterval = cfg.Curation.HealthCheckInterval
	return out
}

// BootstrapProviders builds, registers and probes every enabled provider.
// Unhealthy providers stay registered in the error state so the health loop
// can bring them back.
func BootstrapProviders(ctx context.Context, m *Manager, providers []config.ProviderConfig, opts llm.Options, log *zap.Logger) int {
	registeredCount := 0
	validate := validator.New()

	for _, pCfg := range providers {
		if !pCfg.Enabled {
			continue
		}

		if err := validate.Struct(&pCfg); err != nil {
			log.Warn("Skipping invalid provider configuration",
				zap.String("id", pCfg.ID),
				zap.Error(err),
			)
			continue
		}

		providerInstance, err := llm.New(pCfg, opts)
		if err != nil {
			log.Error("Failed to initialize provider",
				zap.String("id", pCfg.ID),
				zap.String("type", pCfg.Type),
				zap.Error(err),
			)
			continue
		}

		if err := m.LoadProvider(ctx, providerInstance); err != nil {
			log.Error("Failed to register provider", zap.String("id", pCfg.ID), zap.Error(err))
			continue
		}

		if pCfg.Default {
			_ = m.SetCurrentProvider(pCfg.ID)
		}
		registeredCount++
	}

	if registeredCount == 0 {
		log.Warn("No providers were registered. Chat requests will fail until one is added.")
	}

	return registeredCount
}
