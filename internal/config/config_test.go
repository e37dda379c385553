package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("SERVER_ENV", "test")
	t.Setenv("REDIS_ENABLED", "true")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "test", cfg.Server.Env)
	assert.True(t, cfg.Redis.Enabled)

	assert.Equal(t, 10, cfg.Curation.MaxConsecutiveFailures)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Thresholds.MaxAverageLatency)
	assert.Equal(t, 30*time.Second, cfg.Cache.HealthTTL)
}

func TestLoadConfig_APIKeyResolution(t *testing.T) {
	t.Setenv("TEST_API_KEY", "sk-test-12345")

	configContent := `
providers:
  - id: "test-provider"
    name: "Test"
    type: "openai"
    api_key: "ENV:TEST_API_KEY"
    enabled: true
    timeout: 15s
    models:
      - id: "tiny"
        name: "Tiny"
        capabilities: ["chat", "code"]
        pricing:
          input_per_1k: 0.001
          output_per_1k: 0.002
curation:
  max_consecutive_failures: 4
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(configContent), 0o600))
	t.Setenv("CONFIG_FILE", path)

	cfg, err := LoadConfig()
	require.NoError(t, err)

	require.Len(t, cfg.Providers, 1)
	p := cfg.Providers[0]
	assert.Equal(t, "sk-test-12345", p.APIKey)
	assert.Equal(t, 15*time.Second, p.Timeout)
	require.Len(t, p.Models, 1)
	assert.Equal(t, "tiny", p.Models[0].ID)
	require.NotNil(t, p.Models[0].Pricing)
	assert.InDelta(t, 0.002, p.Models[0].Pricing.OutputPer1K, 1e-9)
	assert.Equal(t, 4, cfg.Curation.MaxConsecutiveFailures)
}
