package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	datafeed "github.com/fazecat/quantterm/Internal/database"
	"github.com/fazecat/quantterm/Internal/handlers"
	settingshandler "github.com/fazecat/quantterm/Internal/handlers/settings"
	"github.com/fazecat/quantterm/Internal/utils/config"
	"github.com/fazecat/quantterm/Internal/utils/logger"
	"github.com/fazecat/quantterm/cmd/api/internal"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../../.env")

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	apiServer := &internal.API{Logger: log, Probes: map[string]internal.Probe{}}

	// The database is optional: without it there is no forecast log or settings.
	var recorder handlers.ForecastRecorder
	if dbCfg, ok := datafeed.DatabaseConfigFromEnv(); ok {
		db, err := datafeed.InitDatabase(ctx, dbCfg)
		if err != nil {
			log.Warn("database unavailable, running without persistence", zap.Error(err))
		} else {
			defer db.Close()

			cipher, err := settingshandler.CipherFromEnv()
			if err != nil {
				log.Warn("settings stored without encryption", zap.Error(err))
			}
			store := settingshandler.NewStore(db, cipher, log.Named("settings"))
			if err := store.LoadSettingsFromDatabase(ctx); err != nil {
				log.Warn("failed to load settings from database", zap.Error(err))
			}

			apiServer.Probes["database"] = func(ctx context.Context) error {
				return datafeed.HealthCheck(ctx, db)
			}

			forecasts := datafeed.NewForecastStore(db, log.Named("forecast_log"))
			recorder = forecasts
			apiServer.History = forecasts
			apiServer.Settings = store
			d := cfg.Defaults
			apiServer.SettingsHandler = settingshandler.NewHandler(store,
				settingshandler.Preferences{Market: d.Market, Currency: d.Currency, Capital: d.Capital},
				cfg.MarketNames(), log.Named("settings"))
			log.Info("database connected")
		}
	} else {
		log.Warn("DB_PASSWORD not set, running without persistence")
	}

	services, err := handlers.NewServices(ctx, cfg, recorder, log)
	if err != nil {
		return err
	}
	defer services.Close()
	apiServer.Dashboard = services.Dashboard
	apiServer.Probes["cache"] = services.Cache.Ping
	if services.Clock != nil {
		apiServer.Clock = services.Clock
	} else {
		log.Warn("Alpaca API keys not configured, /api/clock disabled")
	}

	jwtManager, err := internal.NewJWTManager()
	if err != nil {
		return err
	}
	if !jwtManager.IssuingEnabled() {
		log.Warn("API_PASSWORD not set, /api/token disabled")
	}
	apiServer.JWTManager = jwtManager

	router, err := internal.NewRouter(apiServer)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting API server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info("shutting down API server")
	return srv.Shutdown(shutdownCtx)
}
