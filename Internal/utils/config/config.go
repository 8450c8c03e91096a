package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fazecat/quantterm/Internal/types"
	"gopkg.in/yaml.v3"
)

//go:embed config.yaml
var defaultConfig []byte

type Config struct {
	Server struct {
		Port int `yaml:"port"`
	} `yaml:"server"`

	Log struct {
		Level       string `yaml:"level"`
		Development bool   `yaml:"development"`
	} `yaml:"log"`

	Cache    CacheConfig    `yaml:"cache"`
	Fetch    FetchConfig    `yaml:"fetch"`
	Forecast ForecastConfig `yaml:"forecast"`

	Signals struct {
		ThresholdPct float64 `yaml:"threshold_pct"`
	} `yaml:"signals"`

	FX FXConfig `yaml:"fx"`

	Defaults struct {
		Market   string  `yaml:"market"`
		Currency string  `yaml:"currency"`
		Capital  float64 `yaml:"capital"`
	} `yaml:"defaults"`

	Theme   ThemeConfig    `yaml:"theme"`
	Markets []MarketConfig `yaml:"markets"`
}

type CacheConfig struct {
	Backend     string        `yaml:"backend"`
	SnapshotTTL time.Duration `yaml:"snapshot_ttl"`
	RatesTTL    time.Duration `yaml:"rates_ttl"`
	Redis       struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Prefix   string `yaml:"prefix"`
	} `yaml:"redis"`
}

type FetchConfig struct {
	LookbackDays  int `yaml:"lookback_days"`
	Concurrency   int `yaml:"concurrency"`
	HistoryPoints int `yaml:"history_points"`
	TableRows     int `yaml:"table_rows"`
	Yahoo         struct {
		BaseURL   string        `yaml:"base_url"`
		UserAgent string        `yaml:"user_agent"`
		Timeout   time.Duration `yaml:"timeout"`
	} `yaml:"yahoo"`
	Alpaca struct {
		BaseURL string `yaml:"base_url"`
		Feed    string `yaml:"feed"`
	} `yaml:"alpaca"`
}

type ForecastConfig struct {
	Model       string  `yaml:"model"`
	Horizon     int     `yaml:"horizon"`
	Seed        int64   `yaml:"seed"`
	Epsilon     float64 `yaml:"epsilon"`
	TrendWindow int     `yaml:"trend_window"`
	NoisePct    float64 `yaml:"noise_pct"`
}

type FXConfig struct {
	Provider string                    `yaml:"provider"`
	Pairs    map[types.Currency]string `yaml:"pairs"`
	Rules    []CurrencyRule            `yaml:"rules"`
}

// CurrencyRule assigns a native quote currency to tickers by suffix or prefix.
type CurrencyRule struct {
	Suffix   string         `yaml:"suffix"`
	Prefix   string         `yaml:"prefix"`
	Currency types.Currency `yaml:"currency"`
}

type ThemeConfig struct {
	Title      string            `yaml:"title"`
	Accent     string            `yaml:"accent"`
	Danger     string            `yaml:"danger"`
	Neutral    string            `yaml:"neutral"`
	Background string            `yaml:"background"`
	Font       string            `yaml:"font"`
	MascotURL  string            `yaml:"mascot_url"`
	Labels     map[string]string `yaml:"labels"`
}

// Label returns the themed string for key, or the key itself.
func (t ThemeConfig) Label(key string) string {
	if v, ok := t.Labels[key]; ok && v != "" {
		return v
	}
	return key
}

type MarketConfig struct {
	Name     string   `yaml:"name"`
	Provider string   `yaml:"provider"`
	Mascot   bool     `yaml:"mascot"`
	Tickers  []string `yaml:"tickers"`
}

func (m MarketConfig) ToMarket() types.Market {
	return types.Market{
		Name:     m.Name,
		Tickers:  append([]string(nil), m.Tickers...),
		Provider: m.Provider,
		Mascot:   m.Mascot,
	}
}

// LoadConfig reads config.yaml from QUANTTERM_CONFIG or the usual locations,
// falling back to the embedded default, then applies env overrides.
func LoadConfig() (*Config, error) {
	possiblePaths := []string{}
	if p := os.Getenv("QUANTTERM_CONFIG"); p != "" {
		possiblePaths = append(possiblePaths, p)
	}
	if cwd, err := os.Getwd(); err == nil {
		possiblePaths = append(possiblePaths,
			filepath.Join(cwd, "config.yaml"),
			filepath.Join(cwd, "Internal", "utils", "config", "config.yaml"),
		)
	}

	data := defaultConfig
	for _, path := range possiblePaths {
		raw, err := os.ReadFile(path)
		if err == nil {
			data = raw
			break
		}
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data on top of the embedded defaults so a partial file only
// overrides what it names.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(defaultConfig, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode default config: %w", err)
	}
	// Sequences such as markets replace the default list; maps merge.
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid PORT: %w", err)
		}
		c.Server.Port = p
	}
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		c.Log.Level = lvl
	}
	if backend := os.Getenv("CACHE_BACKEND"); backend != "" {
		c.Cache.Backend = backend
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		c.Cache.Redis.Addr = addr
	}
	if pw := os.Getenv("REDIS_PASSWORD"); pw != "" {
		c.Cache.Redis.Password = pw
	}
	if db := os.Getenv("REDIS_DB"); db != "" {
		n, err := strconv.Atoi(db)
		if err != nil {
			return fmt.Errorf("invalid REDIS_DB: %w", err)
		}
		c.Cache.Redis.DB = n
	}
	if model := os.Getenv("FORECAST_MODEL"); model != "" {
		c.Forecast.Model = model
	}
	if seed := os.Getenv("FORECAST_SEED"); seed != "" {
		n, err := strconv.ParseInt(seed, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid FORECAST_SEED: %w", err)
		}
		c.Forecast.Seed = n
	}
	return nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.Markets) == 0 {
		errs = append(errs, errors.New("at least one market is required"))
	}
	seen := make(map[string]bool)
	for _, m := range c.Markets {
		if m.Name == "" {
			errs = append(errs, errors.New("market name is required"))
			continue
		}
		if seen[m.Name] {
			errs = append(errs, fmt.Errorf("duplicate market %q", m.Name))
		}
		seen[m.Name] = true
		if len(m.Tickers) == 0 {
			errs = append(errs, fmt.Errorf("market %q has no tickers", m.Name))
		}
	}
	if c.Forecast.Horizon <= 0 {
		errs = append(errs, errors.New("forecast.horizon must be positive"))
	}
	if c.Forecast.Epsilon <= 0 {
		errs = append(errs, errors.New("forecast.epsilon must be positive"))
	}
	switch c.Forecast.Model {
	case "random_walk", "trend":
	default:
		errs = append(errs, fmt.Errorf("unknown forecast.model %q", c.Forecast.Model))
	}
	if c.Cache.SnapshotTTL <= 0 || c.Cache.RatesTTL <= 0 {
		errs = append(errs, errors.New("cache TTLs must be positive"))
	}
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("unknown cache.backend %q", c.Cache.Backend))
	}
	if c.Signals.ThresholdPct < 0 {
		errs = append(errs, errors.New("signals.threshold_pct must not be negative"))
	}
	if !types.Currency(c.Defaults.Currency).Valid() {
		errs = append(errs, fmt.Errorf("unsupported default currency %q", c.Defaults.Currency))
	}
	return errors.Join(errs...)
}

func (c *Config) GetMarket(name string) (MarketConfig, bool) {
	for _, m := range c.Markets {
		if m.Name == name {
			return m, true
		}
	}
	return MarketConfig{}, false
}

func (c *Config) MarketNames() []string {
	names := make([]string, len(c.Markets))
	for i, m := range c.Markets {
		names[i] = m.Name
	}
	return names
}
