package handlers

import (
	"context"
	"fmt"

	"github.com/fazecat/quantterm/Internal/cache"
	datafeed "github.com/fazecat/quantterm/Internal/database"
	"github.com/fazecat/quantterm/Internal/strategy/forecast"
	"github.com/fazecat/quantterm/Internal/utils/config"
	"go.uber.org/zap"
)

// Services bundles what both front ends build at startup.
type Services struct {
	Dashboard *Dashboard
	Clock     *datafeed.Clock
	Cache     cache.Cache

	closers []func() error
}

func (s *Services) Close() {
	for _, c := range s.closers {
		c()
	}
}

// NewCache builds the configured cache backend. Redis is pinged once; when it
// is unreachable the in-memory cache is used instead.
func NewCache(ctx context.Context, cfg *config.Config, logger *zap.Logger) (cache.Cache, func() error) {
	if cfg.Cache.Backend == "redis" {
		client := cache.NewRedisClient(cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		rc := cache.NewRedisCache(client, cfg.Cache.Redis.Prefix)
		err := rc.Ping(ctx)
		if err == nil {
			logger.Info("using redis cache", zap.String("addr", cfg.Cache.Redis.Addr))
			return rc, rc.Close
		}
		logger.Warn("redis unavailable, falling back to memory cache", zap.Error(err))
		rc.Close()
	}

	mc := cache.NewMemoryCache()
	sweepCtx, cancel := context.WithCancel(ctx)
	mc.StartSweeper(sweepCtx, cfg.Cache.SnapshotTTL)
	return mc, func() error { cancel(); return nil }
}

// NewServices wires providers, cache and forecaster from cfg. recorder may be
// nil when no database is configured.
func NewServices(ctx context.Context, cfg *config.Config, recorder ForecastRecorder, logger *zap.Logger) (*Services, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Services{}

	yahoo := datafeed.NewYahooProvider(datafeed.YahooOptions{
		BaseURL:   cfg.Fetch.Yahoo.BaseURL,
		UserAgent: cfg.Fetch.Yahoo.UserAgent,
		Timeout:   cfg.Fetch.Yahoo.Timeout,
	}, logger.Named("yahoo"))
	providers := []datafeed.Provider{yahoo}

	creds := datafeed.AlpacaCredentialsFromEnv()
	if creds.Configured() {
		providers = append(providers, datafeed.NewAlpacaProvider(creds, cfg.Fetch.Alpaca.BaseURL, cfg.Fetch.Alpaca.Feed, logger.Named("alpaca")))
		s.Clock = datafeed.NewClock(creds, "")
		logger.Info("alpaca market data enabled")
	}
	registry := datafeed.NewRegistry(yahoo.Name(), providers...)

	for _, m := range cfg.Markets {
		if _, err := registry.Get(m.Provider); err != nil {
			return nil, fmt.Errorf("market %s: %w", m.Name, err)
		}
	}
	fxProvider, err := registry.Get(cfg.FX.Provider)
	if err != nil {
		return nil, fmt.Errorf("fx: %w", err)
	}

	c, closeCache := NewCache(ctx, cfg, logger)
	s.Cache = c
	s.closers = append(s.closers, closeCache)

	s.Dashboard = NewDashboard(DashboardDeps{
		Config:    cfg,
		Providers: registry,
		FX:        datafeed.NewFXSource(fxProvider, cfg.FX.Pairs),
		Memo:      cache.NewMemoizer(c, logger.Named("cache")),
		Forecaster: forecast.NewForecaster(forecast.Options{
			Model:    forecast.Model(cfg.Forecast.Model),
			Seed:     cfg.Forecast.Seed,
			Epsilon:  cfg.Forecast.Epsilon,
			NoisePct: cfg.Forecast.NoisePct,
		}),
		Recorder: recorder,
		Logger:   logger.Named("dashboard"),
	})
	return s, nil
}
