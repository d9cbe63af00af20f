package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"indian-stock-api/internal/types"
)

// EnvPrefix is the prefix of environment overrides, e.g. STOCKAPI_CACHE_BACKEND.
// Kite credentials also fall back to the bare KITE_API_KEY and KITE_ACCESS_TOKEN.
const EnvPrefix = "STOCKAPI"

type Config struct {
	Cache struct {
		Backend string `yaml:"backend"`
		Dir     string `yaml:"dir"`
		// Key of the process-wide snapshot of cookies and expiry dates
		GlobalFile string `yaml:"global_file" split_words:"true"`
		Redis      struct {
			Addr     string `yaml:"addr"`
			Password string `yaml:"password"`
			DB       int    `yaml:"db"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
	} `yaml:"cache"`
	Network struct {
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"network"`
	Discovery struct {
		Attempts   int           `yaml:"attempts"`
		RetryDelay time.Duration `yaml:"retry_delay" split_words:"true"`
		Roots      []string      `yaml:"roots"`
		NSEURL     string        `yaml:"nse_url" envconfig:"NSE_URL"`
		BSEURL     string        `yaml:"bse_url" envconfig:"BSE_URL"`
		CookieURL  string        `yaml:"cookie_url" split_words:"true"`
	} `yaml:"discovery"`
	AngelOne struct {
		CacheFile string `yaml:"cache_file" split_words:"true"`
		MasterURL string `yaml:"master_url" split_words:"true"`
	} `yaml:"angelone"`
	Zerodha struct {
		Enabled     bool   `yaml:"enabled"`
		APIKey      string `yaml:"api_key" envconfig:"KITE_API_KEY"`
		AccessToken string `yaml:"access_token" envconfig:"KITE_ACCESS_TOKEN"`
	} `yaml:"zerodha"`
	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
}

// Default returns the configuration used when no file is present
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	if c.Cache.Backend == "" {
		c.Cache.Backend = "file"
	}
	if c.Cache.Dir == "" {
		c.Cache.Dir = "_cache"
	}
	if c.Cache.GlobalFile == "" {
		c.Cache.GlobalFile = "cache.json"
	}
	if c.Network.Timeout == 0 {
		c.Network.Timeout = 10 * time.Second
	}
	if c.Discovery.Attempts == 0 {
		c.Discovery.Attempts = 5
	}
	if c.Discovery.RetryDelay == 0 {
		c.Discovery.RetryDelay = 5 * time.Second
	}
	if len(c.Discovery.Roots) == 0 {
		for _, r := range types.Roots {
			c.Discovery.Roots = append(c.Discovery.Roots, string(r))
		}
	}
	if c.AngelOne.CacheFile == "" {
		c.AngelOne.CacheFile = "angelone_tokens_cache.json"
	}
}

func (c *Config) Validate() error {
	if c.Cache.Backend != "file" && c.Cache.Backend != "redis" {
		return fmt.Errorf("invalid cache.backend '%s': must be 'file' or 'redis'", c.Cache.Backend)
	}
	if c.Cache.Backend == "redis" && c.Cache.Redis.Addr == "" {
		return errors.New("cache.redis.addr cannot be empty when cache.backend is 'redis'")
	}
	if c.Network.Timeout < 0 {
		return fmt.Errorf("network.timeout must be positive, got %s", c.Network.Timeout)
	}
	if c.Discovery.Attempts < 1 {
		return fmt.Errorf("discovery.attempts must be at least 1, got %d", c.Discovery.Attempts)
	}
	if c.Discovery.RetryDelay < 0 {
		return fmt.Errorf("discovery.retry_delay cannot be negative, got %s", c.Discovery.RetryDelay)
	}
	for _, r := range c.Discovery.Roots {
		if _, ok := types.ParseRoot(r); !ok {
			return fmt.Errorf("discovery.roots: unknown root '%s'", r)
		}
	}
	if c.Zerodha.Enabled && c.Zerodha.APIKey == "" {
		return errors.New("zerodha.api_key cannot be empty when zerodha is enabled")
	}
	return nil
}

// Roots returns the configured discovery roots
func (c *Config) Roots() []types.Root {
	roots := make([]types.Root, 0, len(c.Discovery.Roots))
	for _, r := range c.Discovery.Roots {
		roots = append(roots, types.Root(r))
	}
	return roots
}

// LoadConfig reads path, applies STOCKAPI_* environment overrides and
// defaults, and validates the result. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	var c Config

	b, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, err
		}
	}

	if err := envconfig.Process(EnvPrefix, &c); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}
