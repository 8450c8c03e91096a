package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	datafeed "github.com/fazecat/quantterm/Internal/database"
	"github.com/fazecat/quantterm/Internal/handlers"
	"github.com/fazecat/quantterm/Internal/handlers/settings"
	"github.com/fazecat/quantterm/Internal/types"
	"github.com/fazecat/quantterm/Internal/utils/config"
	"github.com/fazecat/quantterm/Internal/utils/logger"
	"github.com/fazecat/quantterm/interactive"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	verbose  bool
	market   string
	currency string
	symbol   string
	capital  float64
	timeout  time.Duration
	force    bool
	refresh  bool

	cfg *config.Config
	log *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "quantterm",
	Short: "Quant terminal: market tables and random-walk forecasts",
	Long: `quantterm prices a configured list of tickers per market, converts them
between USD, RUB and KZT and projects a short forecast for any asset.

Run without arguments to start the interactive terminal.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load .env: %w", err)
		}

		var err error
		cfg, err = config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := cfg.Log.Level
		if verbose {
			level = "debug"
		}
		log, err = logger.New(level, cfg.Log.Development)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if log != nil {
			_ = log.Sync()
		}
	},
	RunE: runTerminal,
}

var marketsCmd = &cobra.Command{
	Use:   "markets",
	Short: "List configured markets",
	RunE: func(cmd *cobra.Command, args []string) error {
		markets := make([]types.Market, 0, len(cfg.Markets))
		for _, m := range cfg.Markets {
			markets = append(markets, m.ToMarket())
		}
		handlers.PrintMarkets(cmd.OutOrStdout(), markets)
		return nil
	},
}

var tableCmd = &cobra.Command{
	Use:   "table",
	Short: "Print the price table of a market",
	Long: `Fetches every ticker of the market and prints the first rows priced in
the chosen currency.

Example:
  quantterm table --market RF --currency RUB`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withServices(cmd, func(ctx context.Context, s *handlers.Services) error {
			m := pick(market, cfg.Defaults.Market)
			if refresh {
				if err := s.Dashboard.Refresh(ctx, m); err != nil {
					return err
				}
			}
			return handlers.HandleTable(ctx, cmd.OutOrStdout(), s.Dashboard, m,
				types.Currency(pick(currency, cfg.Defaults.Currency)))
		})
	},
}

var forecastCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast one asset and print the recommendation",
	Long: `Example:
  quantterm forecast --market USA --symbol NVDA --currency KZT --capital 5000`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if symbol == "" {
			return errors.New("--symbol is required")
		}
		c := capital
		if c == 0 {
			c = cfg.Defaults.Capital
		}
		return withServices(cmd, func(ctx context.Context, s *handlers.Services) error {
			return handlers.HandleForecast(ctx, cmd.OutOrStdout(), s.Dashboard, handlers.AssetRequest{
				Market:   pick(market, cfg.Defaults.Market),
				Symbol:   symbol,
				Currency: types.Currency(pick(currency, cfg.Defaults.Currency)),
				Capital:  c,
			})
		})
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		config.DisplayConfiguration(cmd.OutOrStdout(), cfg)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default config.yaml",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.WriteDefault(path, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var configSaveCmd = &cobra.Command{
	Use:   "save [path]",
	Short: "Write the effective configuration as YAML",
	Long: `Writes the loaded configuration, with defaults filled in, so it can be
edited as a complete file.

Example:
  quantterm config save configs/full.yaml --force`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if err := config.SaveConfig(path, cfg, force); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
		return nil
	},
}

var terminalCmd = &cobra.Command{
	Use:   "terminal",
	Short: "Start the interactive terminal",
	RunE:  runTerminal,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Timeout for a single command")

	for _, c := range []*cobra.Command{tableCmd, forecastCmd} {
		c.Flags().StringVarP(&market, "market", "m", "", "Market name (default from config)")
		c.Flags().StringVarP(&currency, "currency", "c", "", "Display currency: USD, RUB or KZT")
	}
	tableCmd.Flags().BoolVar(&refresh, "refresh", false, "Drop cached prices and rates before fetching")
	forecastCmd.Flags().StringVarP(&symbol, "symbol", "s", "", "Ticker symbol")
	forecastCmd.Flags().Float64Var(&capital, "capital", 0, "Capital to size the profit estimate")

	for _, c := range []*cobra.Command{configInitCmd, configSaveCmd} {
		c.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")
	}
	configCmd.AddCommand(configShowCmd, configInitCmd, configSaveCmd)

	rootCmd.AddCommand(marketsCmd, tableCmd, forecastCmd, configCmd, terminalCmd)
}

func pick(v, def string) string {
	if v != "" {
		return v
	}
	return def
}

// openDatabase connects when DB_PASSWORD is set. Failures are logged and the
// CLI keeps running without the forecast log.
func openDatabase(ctx context.Context) *sql.DB {
	dbCfg, ok := datafeed.DatabaseConfigFromEnv()
	if !ok {
		return nil
	}
	db, err := datafeed.InitDatabase(ctx, dbCfg)
	if err != nil {
		log.Warn("database unavailable, forecasts will not be logged", zap.Error(err))
		return nil
	}

	cipher, err := settings.CipherFromEnv()
	if err != nil && !errors.Is(err, settings.ErrKeyNotSet) {
		log.Warn("invalid settings encryption key", zap.Error(err))
	}
	if err := settings.NewStore(db, cipher, log).LoadSettingsFromDatabase(ctx); err != nil {
		log.Warn("failed to load settings", zap.Error(err))
	}
	return db
}

func withServices(cmd *cobra.Command, fn func(ctx context.Context, s *handlers.Services) error) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	var recorder handlers.ForecastRecorder
	if db := openDatabase(ctx); db != nil {
		defer db.Close()
		recorder = datafeed.NewForecastStore(db, log)
	}

	s, err := handlers.NewServices(ctx, cfg, recorder, log)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

func runTerminal(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	var recorder handlers.ForecastRecorder
	if db := openDatabase(ctx); db != nil {
		defer db.Close()
		recorder = datafeed.NewForecastStore(db, log)
	}

	s, err := handlers.NewServices(ctx, cfg, recorder, log)
	if err != nil {
		return err
	}
	defer s.Close()

	return interactive.NewTerminal(s.Dashboard, cmd.InOrStdin(), cmd.OutOrStdout()).Run(ctx)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
