package handlers

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/fazecat/quantterm/Internal/cache"
	datafeed "github.com/fazecat/quantterm/Internal/database"
	"github.com/fazecat/quantterm/Internal/strategy/forecast"
	"github.com/fazecat/quantterm/Internal/strategy/metrics"
	"github.com/fazecat/quantterm/Internal/strategy/signals"
	"github.com/fazecat/quantterm/Internal/types"
	"github.com/fazecat/quantterm/Internal/utils"
	"github.com/fazecat/quantterm/Internal/utils/config"
	"github.com/fazecat/quantterm/Internal/utils/formatting"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrUnknownMarket       = errors.New("unknown market")
	ErrUnknownAsset        = errors.New("unknown asset")
	ErrNoData              = errors.New("no market data available")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInvalidCapital      = errors.New("capital must be a positive finite number")
)

const ratesCacheKey = "fx:rates"

type RateSource interface {
	Rates(ctx context.Context) (types.Rates, error)
}

// ForecastRecorder persists generated asset views. *datafeed.ForecastStore
// satisfies it.
type ForecastRecorder interface {
	LogForecast(ctx context.Context, market string, view types.AssetView) error
}

type DashboardDeps struct {
	Config     *config.Config
	Providers  *datafeed.Registry
	FX         RateSource
	Memo       *cache.Memoizer
	Forecaster *forecast.Forecaster
	Recorder   ForecastRecorder
	Logger     *zap.Logger
}

// Dashboard turns configured markets into priced snapshots and per-asset
// forecasts.
type Dashboard struct {
	cfg        *config.Config
	providers  *datafeed.Registry
	fx         RateSource
	memo       *cache.Memoizer
	forecaster *forecast.Forecaster
	recorder   ForecastRecorder
	style      signals.Style
	logger     *zap.Logger
	now        func() time.Time
}

func NewDashboard(deps DashboardDeps) *Dashboard {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dashboard{
		cfg:        deps.Config,
		providers:  deps.Providers,
		fx:         deps.FX,
		memo:       deps.Memo,
		forecaster: deps.Forecaster,
		recorder:   deps.Recorder,
		style:      StyleFromTheme(deps.Config.Theme),
		logger:     logger,
		now:        time.Now,
	}
}

// StyleFromTheme maps theme labels and colors onto signal styling.
func StyleFromTheme(theme config.ThemeConfig) signals.Style {
	style := signals.DefaultStyle()
	if v, ok := theme.Labels["buy"]; ok && v != "" {
		style.BuyLabel = v
	}
	if v, ok := theme.Labels["sell"]; ok && v != "" {
		style.SellLabel = v
	}
	if v, ok := theme.Labels["hold"]; ok && v != "" {
		style.HoldLabel = v
	}
	if theme.Accent != "" {
		style.BuyColor = theme.Accent
	}
	if theme.Danger != "" {
		style.SellColor = theme.Danger
	}
	if theme.Neutral != "" {
		style.HoldColor = theme.Neutral
	}
	return style
}

func (d *Dashboard) Config() *config.Config { return d.cfg }

func (d *Dashboard) Markets() []types.Market {
	markets := make([]types.Market, 0, len(d.cfg.Markets))
	for _, m := range d.cfg.Markets {
		markets = append(markets, m.ToMarket())
	}
	return markets
}

func (d *Dashboard) Currencies() []types.Currency {
	return types.Currencies()
}

func (d *Dashboard) Rates(ctx context.Context) (types.Rates, error) {
	return cache.Memoize(ctx, d.memo, ratesCacheKey, d.cfg.Cache.RatesTTL, d.fx.Rates)
}

func snapshotKey(market string) string {
	return "snapshot:" + market
}

// Snapshot returns every ticker of market that produced data, priced in USD.
// Tickers that fail to fetch are logged and left out.
func (d *Dashboard) Snapshot(ctx context.Context, market string) (*types.Snapshot, error) {
	mc, ok := d.cfg.GetMarket(market)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMarket, market)
	}

	snap, err := cache.Memoize(ctx, d.memo, snapshotKey(mc.Name), d.cfg.Cache.SnapshotTTL,
		func(ctx context.Context) (types.Snapshot, error) {
			return d.buildSnapshot(ctx, mc)
		})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// Refresh drops the cached snapshot of market and the cached FX rates so the
// next read fetches fresh data.
func (d *Dashboard) Refresh(ctx context.Context, market string) error {
	mc, ok := d.cfg.GetMarket(market)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownMarket, market)
	}
	for _, key := range []string{snapshotKey(mc.Name), ratesCacheKey} {
		if err := d.memo.Invalidate(ctx, key); err != nil {
			return fmt.Errorf("failed to invalidate %s: %w", key, err)
		}
	}
	d.logger.Info("market cache refreshed", zap.String("market", mc.Name))
	return nil
}

func (d *Dashboard) buildSnapshot(ctx context.Context, mc config.MarketConfig) (types.Snapshot, error) {
	start := d.now()

	rates, err := d.Rates(ctx)
	if err != nil {
		return types.Snapshot{}, fmt.Errorf("failed to load exchange rates: %w", err)
	}

	provider, err := d.providers.Get(mc.Provider)
	if err != nil {
		return types.Snapshot{}, err
	}

	limit := d.cfg.Fetch.Concurrency
	if limit <= 0 {
		limit = 1
	}

	results := make([]*types.Asset, len(mc.Tickers))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i, ticker := range mc.Tickers {
		i, ticker := i, ticker
		g.Go(func() error {
			bars, err := provider.FetchBars(gctx, ticker, d.cfg.Fetch.LookbackDays)
			if err != nil {
				d.logger.Warn("skipping ticker", zap.String("market", mc.Name),
					zap.String("symbol", ticker), zap.Error(err))
				return nil
			}
			asset, err := d.buildAsset(ticker, bars, rates)
			if err != nil {
				d.logger.Warn("skipping ticker", zap.String("market", mc.Name),
					zap.String("symbol", ticker), zap.Error(err))
				return nil
			}
			results[i] = &asset
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return types.Snapshot{}, err
	}

	assets := make([]types.Asset, 0, len(results))
	for _, a := range results {
		if a != nil {
			assets = append(assets, *a)
		}
	}
	if len(assets) == 0 {
		return types.Snapshot{}, fmt.Errorf("%w: %s", ErrNoData, mc.Name)
	}

	d.logger.Info("market snapshot built",
		zap.String("market", mc.Name),
		zap.Int("assets", len(assets)),
		zap.Int("tickers", len(mc.Tickers)),
		zap.Duration("took", d.now().Sub(start)))

	return types.Snapshot{
		Market:    mc.Name,
		Assets:    assets,
		Rates:     rates,
		FetchedAt: d.now().UTC(),
	}, nil
}

func (d *Dashboard) buildAsset(symbol string, bars []types.Bar, rates types.Rates) (types.Asset, error) {
	if len(bars) == 0 {
		return types.Asset{}, datafeed.ErrNoBars
	}
	native := datafeed.NativeCurrency(symbol, d.cfg.FX.Rules)
	rate, ok := rates[native]
	if !ok || !(rate > 0) {
		return types.Asset{}, fmt.Errorf("%w: no rate for %s", ErrUnsupportedCurrency, native)
	}

	closes := utils.Scale(metrics.ExtractClosingPrices(bars), 1/rate)
	stats := metrics.Calculate(closes, d.cfg.Forecast.TrendWindow)

	return types.Asset{
		Symbol:     symbol,
		Native:     native,
		PriceUSD:   closes[len(closes)-1],
		HistoryUSD: utils.Last(closes, d.cfg.Fetch.HistoryPoints),
		Volatility: stats.Volatility,
		Drift:      stats.Drift,
		TrendUSD:   stats.Trend,
		AsOf:       bars[len(bars)-1].Timestamp,
	}, nil
}

// Table prices the first rows of snap in currency, rounded to cents.
func (d *Dashboard) Table(snap *types.Snapshot, currency types.Currency) ([]types.TableRow, error) {
	rate, err := rateFor(snap.Rates, currency)
	if err != nil {
		return nil, err
	}

	n := len(snap.Assets)
	if limit := d.cfg.Fetch.TableRows; limit > 0 && n > limit {
		n = limit
	}
	rows := make([]types.TableRow, 0, n)
	for _, a := range snap.Assets[:n] {
		rows = append(rows, types.TableRow{
			Asset: a.Symbol,
			Price: formatting.Round2(a.PriceUSD * rate),
		})
	}
	return rows, nil
}

func (d *Dashboard) MarketTable(ctx context.Context, market string, currency types.Currency) ([]types.TableRow, error) {
	if !currency.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
	snap, err := d.Snapshot(ctx, market)
	if err != nil {
		return nil, err
	}
	return d.Table(snap, currency)
}

type AssetRequest struct {
	Market   string
	Symbol   string
	Currency types.Currency
	Capital  float64
	// SkipRecord keeps the view out of the forecast log.
	SkipRecord bool
}

// AssetView forecasts one asset in the requested currency and sizes the
// profit for capital.
func (d *Dashboard) AssetView(ctx context.Context, req AssetRequest) (*types.AssetView, error) {
	if !req.Currency.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, req.Currency)
	}
	if !(req.Capital > 0) || math.IsInf(req.Capital, 0) {
		return nil, ErrInvalidCapital
	}

	snap, err := d.Snapshot(ctx, req.Market)
	if err != nil {
		return nil, err
	}
	asset, ok := snap.Find(req.Symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %s in %s", ErrUnknownAsset, req.Symbol, req.Market)
	}
	rate, err := rateFor(snap.Rates, req.Currency)
	if err != nil {
		return nil, err
	}

	current := asset.PriceUSD * rate
	stats := metrics.SeriesStats{
		Drift:      asset.Drift,
		Volatility: asset.Volatility,
		Trend:      asset.TrendUSD * rate,
	}
	horizon := d.cfg.Forecast.Horizon
	path, err := d.forecaster.Forecast(current, stats, horizon)
	if err != nil {
		return nil, fmt.Errorf("forecast %s: %w", asset.Symbol, err)
	}

	target := current
	if len(path) > 0 {
		target = path[len(path)-1]
	}
	rec, err := signals.Recommend(current, target, d.cfg.Signals.ThresholdPct, d.style)
	if err != nil {
		return nil, err
	}
	profit, err := signals.Profit(req.Capital, current, target)
	if err != nil {
		return nil, err
	}
	profitValue, _ := profit.Float64()

	view := &types.AssetView{
		Market:         snap.Market,
		Symbol:         asset.Symbol,
		Currency:       req.Currency,
		CurrentPrice:   current,
		TargetPrice:    target,
		Horizon:        horizon,
		History:        utils.Scale(asset.HistoryUSD, rate),
		Forecast:       path,
		Recommendation: rec,
		Capital:        req.Capital,
		Profit:         profitValue,
		ProfitColor:    signals.ProfitColor(profit, d.style),
		Model:          string(d.forecaster.Model()),
		Volatility:     asset.Volatility,
		Drift:          asset.Drift,
		GeneratedAt:    d.now().UTC(),
	}

	if d.recorder != nil && !req.SkipRecord {
		if err := d.recorder.LogForecast(ctx, snap.Market, *view); err != nil {
			d.logger.Warn("failed to record forecast", zap.String("symbol", view.Symbol), zap.Error(err))
		}
	}
	return view, nil
}

func rateFor(rates types.Rates, currency types.Currency) (float64, error) {
	if !currency.Valid() {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
	rate, ok := rates[currency]
	if !ok || !(rate > 0) {
		return 0, fmt.Errorf("%w: no rate for %s", ErrUnsupportedCurrency, currency)
	}
	return rate, nil
}
