package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"indian-stock-api/internal/api"
	"indian-stock-api/internal/broker/angelone"
	"indian-stock-api/internal/broker/brokerobs"
	"indian-stock-api/internal/broker/zerodha"
	"indian-stock-api/internal/cache"
	"indian-stock-api/internal/expiry"
	"indian-stock-api/internal/interfaces"
	"indian-stock-api/internal/logger"
	"indian-stock-api/internal/metrics"
	"indian-stock-api/internal/registry"
	"indian-stock-api/internal/store"
	"indian-stock-api/internal/types"
)

// initializeSystem loads .env and initializes logger, tracer and metrics
func initializeSystem() error {
	// Load environment variables
	_ = godotenv.Load()

	if err := logger.Init(); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	metrics.Init()
	return nil
}

// loadConfig loads and returns the configuration
func loadConfig(ctx context.Context, path string) (*store.Config, error) {
	cfg, err := store.LoadConfig(path)
	if err != nil {
		logger.ErrorWithErr(ctx, "Failed to load config", err, "path", path)
		return nil, err
	}
	return cfg, nil
}

// startMetricsServer serves /metrics when an address is configured
func startMetricsServer(ctx context.Context, addr string) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorWithErr(ctx, "Metrics server stopped", err, "addr", addr)
		}
	}()
	logger.Info(ctx, "Metrics server listening", "addr", addr)
	return srv
}

// openStore returns the cache backend selected in config
func openStore(ctx context.Context, cfg *store.Config) (cache.Store, func() error, error) {
	if cfg.Cache.Backend == "redis" {
		rs, err := cache.NewRedisStore(ctx, cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			Prefix:   cfg.Cache.Redis.Prefix,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Cache.Redis.Addr, err)
		}
		logger.Info(ctx, "Using redis cache", "addr", cfg.Cache.Redis.Addr, "db", cfg.Cache.Redis.DB)
		return rs, rs.Close, nil
	}

	logger.Info(ctx, "Using file cache", "dir", cfg.Cache.Dir)
	return cache.NewFileStore(cfg.Cache.Dir), func() error { return nil }, nil
}

// initializeRegistry builds the registry and runs discovery
func initializeRegistry(ctx context.Context, cfg *store.Config, st cache.Store) *registry.Registry {
	reg := registry.New(registry.Config{
		Discovery: expiry.Config{
			NSEURL:     cfg.Discovery.NSEURL,
			BSEURL:     cfg.Discovery.BSEURL,
			CookieURL:  cfg.Discovery.CookieURL,
			Attempts:   cfg.Discovery.Attempts,
			RetryDelay: cfg.Discovery.RetryDelay,
			Timeout:    cfg.Network.Timeout,
		},
		Roots:       cfg.Roots(),
		SnapshotKey: cfg.Cache.GlobalFile,
	}, registry.Deps{
		Store:  st,
		Client: api.NewClient(api.WithBrokerID("exchange"), api.WithTimeout(cfg.Network.Timeout)),
	})

	if err := reg.Init(ctx); err != nil {
		logger.Warn(ctx, "Some roots have no expiry dates", "error", err)
	}
	return reg
}

// initializeBrokers creates every configured broker wrapped with observability
func initializeBrokers(ctx context.Context, cfg *store.Config, st cache.Store, reg *registry.Registry) []interfaces.Broker {
	opts := []angelone.Option{
		angelone.WithStore(st),
		angelone.WithCacheKey(cfg.AngelOne.CacheFile),
		angelone.WithRoots(cfg.Roots()...),
		angelone.WithClientOptions(api.WithTimeout(cfg.Network.Timeout), api.WithCookieJar(reg.Cookies)),
	}
	if cfg.AngelOne.MasterURL != "" {
		opts = append(opts, angelone.WithMasterURL(cfg.AngelOne.MasterURL))
	}
	brokers := []interfaces.Broker{brokerobs.Wrap(angelone.New(opts...))}

	if cfg.Zerodha.Enabled {
		z := zerodha.NewZerodha(zerodha.Params{
			APIKey:      cfg.Zerodha.APIKey,
			AccessToken: cfg.Zerodha.AccessToken,
		}, st, zerodha.WithRoots(cfg.Roots()...))
		brokers = append(brokers, brokerobs.Wrap(z))
	} else {
		logger.Info(ctx, "Zerodha disabled - using AngelOne only")
	}
	return brokers
}

// exportEquities writes one CSV per exchange into dir
func exportEquities(ctx context.Context, dir, brokerID string, table types.EquityTable) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create export directory: %w", err)
	}

	for _, exchange := range []types.ExchangeCode{types.NSE, types.BSE} {
		path := filepath.Join(dir, fmt.Sprintf("%s_%s_equities.csv", brokerID, exchange))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		err = angelone.WriteEquityCSV(f, table, exchange)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		logger.Info(ctx, "Equity tokens exported", "broker", brokerID, "exchange", exchange, "path", path, "count", len(table[exchange]))
	}
	return nil
}
