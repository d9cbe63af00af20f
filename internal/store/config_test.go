package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"indian-stock-api/internal/types"
)

func writeConfig(t *testing.T, body string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "file", cfg.Cache.Backend)
	assert.Equal(t, "_cache", cfg.Cache.Dir)
	assert.Equal(t, "cache.json", cfg.Cache.GlobalFile)
	assert.Equal(t, 10*time.Second, cfg.Network.Timeout)
	assert.Equal(t, 5, cfg.Discovery.Attempts)
	assert.Equal(t, 5*time.Second, cfg.Discovery.RetryDelay)
	assert.Equal(t, types.Roots, cfg.Roots())
	assert.Equal(t, "angelone_tokens_cache.json", cfg.AngelOne.CacheFile)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
cache:
  backend: redis
  redis:
    addr: localhost:6379
    db: 2
network:
  timeout: 3s
discovery:
  attempts: 2
  retry_delay: 250ms
  roots: [NIFTY, SENSEX]
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 2, cfg.Cache.Redis.DB)
	assert.Equal(t, 3*time.Second, cfg.Network.Timeout)
	assert.Equal(t, 2, cfg.Discovery.Attempts)
	assert.Equal(t, 250*time.Millisecond, cfg.Discovery.RetryDelay)
	assert.Equal(t, []types.Root{types.NIFTY, types.SENSEX}, cfg.Roots())
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	path := writeConfig(t, "discovery:\n  attempts: 2\n")
	t.Setenv("STOCKAPI_DISCOVERY_ATTEMPTS", "7")
	t.Setenv("STOCKAPI_DISCOVERY_RETRY_DELAY", "1s")
	t.Setenv("STOCKAPI_CACHE_DIR", "/tmp/stockapi")
	t.Setenv("KITE_API_KEY", "kite-key")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Discovery.Attempts)
	assert.Equal(t, time.Second, cfg.Discovery.RetryDelay)
	assert.Equal(t, "/tmp/stockapi", cfg.Cache.Dir)
	assert.Equal(t, "kite-key", cfg.Zerodha.APIKey)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad backend", func(c *Config) { c.Cache.Backend = "s3" }, "cache.backend"},
		{"redis without addr", func(c *Config) { c.Cache.Backend = "redis" }, "cache.redis.addr"},
		{"no attempts", func(c *Config) { c.Discovery.Attempts = 0 }, "discovery.attempts"},
		{"negative delay", func(c *Config) { c.Discovery.RetryDelay = -time.Second }, "retry_delay"},
		{"unknown root", func(c *Config) { c.Discovery.Roots = []string{"GOLD"} }, "GOLD"},
		{"zerodha without key", func(c *Config) { c.Zerodha.Enabled = true }, "zerodha.api_key"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "cache: [unclosed"))
	assert.Error(t, err)
}
