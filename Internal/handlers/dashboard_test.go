package handlers

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fazecat/quantterm/Internal/cache"
	datafeed "github.com/fazecat/quantterm/Internal/database"
	"github.com/fazecat/quantterm/Internal/strategy/forecast"
	"github.com/fazecat/quantterm/Internal/types"
	"github.com/fazecat/quantterm/Internal/utils/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	closes map[string][]float64
	calls  int32
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) FetchBars(_ context.Context, symbol string, _ int) ([]types.Bar, error) {
	atomic.AddInt32(&f.calls, 1)
	closes, ok := f.closes[symbol]
	if !ok {
		return nil, datafeed.ErrSymbolNotFound
	}
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]types.Bar, len(closes))
	for i, c := range closes {
		bars[i] = types.Bar{Timestamp: start.AddDate(0, 0, i), Close: c}
	}
	return bars, nil
}

type fakeRates struct {
	rates types.Rates
	err   error
}

func (f *fakeRates) Rates(context.Context) (types.Rates, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.rates, nil
}

type recordedForecast struct {
	market string
	view   types.AssetView
}

type fakeRecorder struct {
	mu      sync.Mutex
	records []recordedForecast
}

func (f *fakeRecorder) LogForecast(_ context.Context, market string, view types.AssetView) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = append(f.records, recordedForecast{market: market, view: view})
	return nil
}

const testConfigYAML = `
fetch:
  concurrency: 2
  history_points: 3
  table_rows: 2
forecast:
  seed: 42
markets:
  - name: TEST
    provider: fake
    tickers: [AAA, BBB.ME, BAD, CCC]
  - name: EMPTY
    provider: fake
    mascot: true
    tickers: [BAD]
`

type dashboardFixture struct {
	dash     *Dashboard
	provider *fakeProvider
	rates    *fakeRates
	recorder *fakeRecorder
}

func newFixture(t *testing.T) *dashboardFixture {
	t.Helper()
	cfg, err := config.Parse([]byte(testConfigYAML))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	provider := &fakeProvider{closes: map[string][]float64{
		"AAA":    {10, 11, 12, 13},
		"BBB.ME": {1000, 1100, 1200, 1300},
		"CCC":    {50, 49, 48},
	}}
	rates := &fakeRates{rates: types.Rates{types.USD: 1, types.RUB: 100, types.KZT: 500}}
	recorder := &fakeRecorder{}

	dash := NewDashboard(DashboardDeps{
		Config:    cfg,
		Providers: datafeed.NewRegistry("fake", provider),
		FX:        rates,
		Memo:      cache.NewMemoizer(cache.NewMemoryCache(), nil),
		Forecaster: forecast.NewForecaster(forecast.Options{
			Model:    forecast.Model(cfg.Forecast.Model),
			Seed:     cfg.Forecast.Seed,
			Epsilon:  cfg.Forecast.Epsilon,
			NoisePct: cfg.Forecast.NoisePct,
		}),
		Recorder: recorder,
	})
	return &dashboardFixture{dash: dash, provider: provider, rates: rates, recorder: recorder}
}

func TestSnapshot_ConvertsToUSDAndSkipsFailures(t *testing.T) {
	f := newFixture(t)

	snap, err := f.dash.Snapshot(context.Background(), "TEST")
	require.NoError(t, err)
	require.Len(t, snap.Assets, 3)

	assert.Equal(t, "TEST", snap.Market)
	assert.Equal(t, []string{"AAA", "BBB.ME", "CCC"},
		[]string{snap.Assets[0].Symbol, snap.Assets[1].Symbol, snap.Assets[2].Symbol})

	rub := snap.Assets[1]
	assert.Equal(t, types.RUB, rub.Native)
	assert.InDelta(t, 13.0, rub.PriceUSD, 1e-9)
	require.Len(t, rub.HistoryUSD, 3)
	assert.InDelta(t, 11.0, rub.HistoryUSD[0], 1e-9)
	assert.InDelta(t, 13.0, rub.HistoryUSD[2], 1e-9)
	// trend window shrinks to the four available closes
	assert.InDelta(t, 0.75, rub.TrendUSD, 1e-9)

	usd := snap.Assets[0]
	assert.Equal(t, types.USD, usd.Native)
	assert.InDelta(t, rub.Volatility, usd.Volatility, 1e-12)
	assert.InDelta(t, rub.Drift, usd.Drift, 1e-12)
}

func TestSnapshot_IsCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.dash.Snapshot(ctx, "TEST")
	require.NoError(t, err)
	calls := atomic.LoadInt32(&f.provider.calls)

	_, err = f.dash.Snapshot(ctx, "TEST")
	require.NoError(t, err)
	assert.Equal(t, calls, atomic.LoadInt32(&f.provider.calls))
}

func TestSnapshot_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.dash.Snapshot(ctx, "MARS")
	assert.True(t, errors.Is(err, ErrUnknownMarket))

	_, err = f.dash.Snapshot(ctx, "EMPTY")
	assert.True(t, errors.Is(err, ErrNoData))

}

func TestSnapshot_RatesFailureIsNotCached(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fxErr := errors.New("fx down")
	f.rates.err = fxErr
	_, err := f.dash.Snapshot(ctx, "TEST")
	assert.True(t, errors.Is(err, fxErr))
	assert.Zero(t, atomic.LoadInt32(&f.provider.calls))

	f.rates.err = nil
	_, err = f.dash.Snapshot(ctx, "TEST")
	assert.NoError(t, err)
}

func TestRefresh_RefetchesSnapshotAndRates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.dash.Snapshot(ctx, "TEST")
	require.NoError(t, err)
	calls := atomic.LoadInt32(&f.provider.calls)

	f.rates.rates = types.Rates{types.USD: 1, types.RUB: 50, types.KZT: 500}
	rates, err := f.dash.Rates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rates[types.RUB])

	require.NoError(t, f.dash.Refresh(ctx, "TEST"))

	snap, err := f.dash.Snapshot(ctx, "TEST")
	require.NoError(t, err)
	assert.Equal(t, 2*calls, atomic.LoadInt32(&f.provider.calls))
	assert.InDelta(t, 26.0, snap.Assets[1].PriceUSD, 1e-9)

	rates, err = f.dash.Rates(ctx)
	require.NoError(t, err)
	assert.Equal(t, 50.0, rates[types.RUB])

	assert.True(t, errors.Is(f.dash.Refresh(ctx, "MARS"), ErrUnknownMarket))
}

func TestTable(t *testing.T) {
	f := newFixture(t)

	rows, err := f.dash.MarketTable(context.Background(), "TEST", types.RUB)
	require.NoError(t, err)
	require.Len(t, rows, 2, "table is capped at table_rows")
	assert.Equal(t, types.TableRow{Asset: "AAA", Price: 1300}, rows[0])
	assert.Equal(t, types.TableRow{Asset: "BBB.ME", Price: 1300}, rows[1])

	rows, err = f.dash.MarketTable(context.Background(), "TEST", types.KZT)
	require.NoError(t, err)
	assert.Equal(t, 6500.0, rows[0].Price)

	_, err = f.dash.MarketTable(context.Background(), "TEST", types.Currency("EUR"))
	assert.True(t, errors.Is(err, ErrUnsupportedCurrency))
}

func TestAssetView(t *testing.T) {
	f := newFixture(t)

	view, err := f.dash.AssetView(context.Background(), AssetRequest{
		Market: "TEST", Symbol: "AAA", Currency: types.RUB, Capital: 1000,
	})
	require.NoError(t, err)

	assert.Equal(t, "TEST", view.Market)
	assert.Equal(t, types.RUB, view.Currency)
	assert.InDelta(t, 1300.0, view.CurrentPrice, 1e-9)
	assert.Equal(t, 14, view.Horizon)
	require.Len(t, view.Forecast, 14)
	assert.Equal(t, view.Forecast[13], view.TargetPrice)
	assert.Len(t, view.History, 3)
	assert.Equal(t, "random_walk", view.Model)
	for _, p := range view.Forecast {
		assert.Greater(t, p, 0.0)
	}

	wantProfit := view.TargetPrice*1000/view.CurrentPrice - 1000
	assert.InDelta(t, wantProfit, view.Profit, 0.01)

	switch {
	case view.Recommendation.DiffPct > 2:
		assert.Equal(t, types.SignalBuy, view.Recommendation.Signal)
	case view.Recommendation.DiffPct < -2:
		assert.Equal(t, types.SignalSell, view.Recommendation.Signal)
	default:
		assert.Equal(t, types.SignalHold, view.Recommendation.Signal)
	}

	require.Len(t, f.recorder.records, 1)
	assert.Equal(t, "TEST", f.recorder.records[0].market)
	assert.Equal(t, "AAA", f.recorder.records[0].view.Symbol)
}

func TestAssetView_IsReproducibleWithSeed(t *testing.T) {
	f := newFixture(t)
	req := AssetRequest{Market: "TEST", Symbol: "CCC", Currency: types.USD, Capital: 500}

	a, err := f.dash.AssetView(context.Background(), req)
	require.NoError(t, err)
	b, err := f.dash.AssetView(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, a.Forecast, b.Forecast)
}

func TestAssetView_SkipRecord(t *testing.T) {
	f := newFixture(t)

	view, err := f.dash.AssetView(context.Background(), AssetRequest{
		Market: "TEST", Symbol: "AAA", Currency: types.USD, Capital: 1000, SkipRecord: true,
	})
	require.NoError(t, err)
	assert.Equal(t, "AAA", view.Symbol)
	assert.Empty(t, f.recorder.records)
}

func TestAssetView_Errors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  AssetRequest
		want error
	}{
		{"unknown asset", AssetRequest{Market: "TEST", Symbol: "ZZZ", Currency: types.USD, Capital: 1}, ErrUnknownAsset},
		{"skipped asset", AssetRequest{Market: "TEST", Symbol: "BAD", Currency: types.USD, Capital: 1}, ErrUnknownAsset},
		{"unknown market", AssetRequest{Market: "MARS", Symbol: "AAA", Currency: types.USD, Capital: 1}, ErrUnknownMarket},
		{"bad currency", AssetRequest{Market: "TEST", Symbol: "AAA", Currency: "EUR", Capital: 1}, ErrUnsupportedCurrency},
		{"zero capital", AssetRequest{Market: "TEST", Symbol: "AAA", Currency: types.USD, Capital: 0}, ErrInvalidCapital},
		{"negative capital", AssetRequest{Market: "TEST", Symbol: "AAA", Currency: types.USD, Capital: -5}, ErrInvalidCapital},
		{"infinite capital", AssetRequest{Market: "TEST", Symbol: "AAA", Currency: types.USD, Capital: math.Inf(1)}, ErrInvalidCapital},
		{"negative infinite capital", AssetRequest{Market: "TEST", Symbol: "AAA", Currency: types.USD, Capital: math.Inf(-1)}, ErrInvalidCapital},
		{"NaN capital", AssetRequest{Market: "TEST", Symbol: "AAA", Currency: types.USD, Capital: math.NaN()}, ErrInvalidCapital},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.dash.AssetView(ctx, tt.req)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
	assert.Empty(t, f.recorder.records)
}

func TestMarketsAndCurrencies(t *testing.T) {
	f := newFixture(t)

	markets := f.dash.Markets()
	require.Len(t, markets, 2)
	assert.Equal(t, "TEST", markets[0].Name)
	assert.False(t, markets[0].Mascot)
	assert.True(t, markets[1].Mascot)

	assert.Equal(t, []types.Currency{types.USD, types.RUB, types.KZT}, f.dash.Currencies())
}

func TestStyleFromTheme(t *testing.T) {
	style := StyleFromTheme(config.ThemeConfig{
		Accent: "#111111",
		Labels: map[string]string{"sell": "VENDRE"},
	})
	assert.Equal(t, "#111111", style.BuyColor)
	assert.Equal(t, "VENDRE", style.SellLabel)
	assert.Equal(t, "#ff4b4b", style.SellColor)
}
