package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

var ErrConfigExists = errors.New("config file already exists")

// DisplayConfiguration prints the effective configuration.
func DisplayConfiguration(w io.Writer, cfg *Config) {
	fmt.Fprintln(w, "\nCurrent Configuration:")

	fmt.Fprintln(w, "\n=== Markets ===")
	for _, m := range cfg.Markets {
		flag := ""
		if m.Mascot {
			flag = " (mascot)"
		}
		fmt.Fprintf(w, "%s [%s]%s\n", m.Name, m.Provider, flag)
		fmt.Fprintf(w, "  • Tickers: %s\n", strings.Join(m.Tickers, ", "))
	}

	fmt.Fprintln(w, "\n=== Forecast ===")
	fmt.Fprintf(w, "Model: %s\n", cfg.Forecast.Model)
	fmt.Fprintf(w, "Horizon: %d days\n", cfg.Forecast.Horizon)
	fmt.Fprintf(w, "Seed: %s\n", seedStr(cfg.Forecast.Seed))
	fmt.Fprintf(w, "Trend Window: %d\n", cfg.Forecast.TrendWindow)
	fmt.Fprintf(w, "Signal Threshold: %.2f%%\n", cfg.Signals.ThresholdPct)

	fmt.Fprintln(w, "\n=== Data ===")
	fmt.Fprintf(w, "Lookback: %d days\n", cfg.Fetch.LookbackDays)
	fmt.Fprintf(w, "Concurrency: %d\n", cfg.Fetch.Concurrency)
	fmt.Fprintf(w, "Table Rows: %d\n", cfg.Fetch.TableRows)
	fmt.Fprintf(w, "FX Provider: %s\n", cfg.FX.Provider)
	pairs := make([]string, 0, len(cfg.FX.Pairs))
	for c, sym := range cfg.FX.Pairs {
		pairs = append(pairs, fmt.Sprintf("%s=%s", c, sym))
	}
	sort.Strings(pairs)
	fmt.Fprintf(w, "FX Pairs: %s\n", strings.Join(pairs, ", "))

	fmt.Fprintln(w, "\n=== Cache ===")
	fmt.Fprintf(w, "Backend: %s\n", cfg.Cache.Backend)
	if cfg.Cache.Backend == "redis" {
		fmt.Fprintf(w, "Redis: %s (db %d)\n", cfg.Cache.Redis.Addr, cfg.Cache.Redis.DB)
	}
	fmt.Fprintf(w, "Snapshot TTL: %s\n", cfg.Cache.SnapshotTTL)
	fmt.Fprintf(w, "Rates TTL: %s\n", cfg.Cache.RatesTTL)

	fmt.Fprintln(w, "\n=== Defaults ===")
	fmt.Fprintf(w, "Market: %s\n", cfg.Defaults.Market)
	fmt.Fprintf(w, "Currency: %s\n", cfg.Defaults.Currency)
	fmt.Fprintf(w, "Capital: %.2f\n", cfg.Defaults.Capital)
}

func seedStr(seed int64) string {
	if seed == 0 {
		return "random"
	}
	return fmt.Sprintf("%d", seed)
}

// SaveConfig writes cfg as YAML to path. It refuses to overwrite an existing
// file unless force is set.
func SaveConfig(path string, cfg *Config, force bool) error {
	if err := checkExisting(path, force); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// WriteDefault copies the embedded default config to path. It refuses to
// overwrite an existing file unless force is set.
func WriteDefault(path string, force bool) error {
	if err := checkExisting(path, force); err != nil {
		return err
	}
	return os.WriteFile(path, defaultConfig, 0o644)
}

func checkExisting(path string, force bool) error {
	if force {
		return nil
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%w: %s", ErrConfigExists, path)
	}
	return nil
}
