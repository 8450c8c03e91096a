package datafeed

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/fazecat/quantterm/Internal/types"
	"github.com/fazecat/quantterm/Internal/utils"
	"go.uber.org/zap"
)

const defaultTradingURL = "https://paper-api.alpaca.markets"

type AlpacaCredentials struct {
	APIKey    string
	APISecret string
}

func AlpacaCredentialsFromEnv() AlpacaCredentials {
	return AlpacaCredentials{
		APIKey:    os.Getenv("ALPACA_API_KEY"),
		APISecret: os.Getenv("ALPACA_API_SECRET"),
	}
}

func (c AlpacaCredentials) Configured() bool {
	return c.APIKey != "" && c.APISecret != ""
}

type AlpacaProvider struct {
	client *marketdata.Client
	feed   string
	retry  utils.RetryConfig
	now    func() time.Time
	logger *zap.Logger
}

func NewAlpacaProvider(creds AlpacaCredentials, dataURL, feed string, logger *zap.Logger) *AlpacaProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlpacaProvider{
		client: marketdata.NewClient(marketdata.ClientOpts{
			APIKey:    creds.APIKey,
			APISecret: creds.APISecret,
			BaseURL:   dataURL,
		}),
		feed:   feed,
		retry:  utils.DefaultRetryConfig(),
		now:    time.Now,
		logger: logger,
	}
}

func (a *AlpacaProvider) Name() string { return "alpaca" }

// IsCrypto reports whether symbol uses the BASE-QUOTE crypto form, e.g. BTC-USD.
func IsCrypto(symbol string) bool {
	return strings.HasSuffix(symbol, "-USD") || strings.HasSuffix(symbol, "-USDT")
}

// AlpacaCryptoSymbol converts BTC-USD to Alpaca's BTC/USD.
func AlpacaCryptoSymbol(symbol string) string {
	return strings.Replace(symbol, "-", "/", 1)
}

func (a *AlpacaProvider) FetchBars(ctx context.Context, symbol string, lookbackDays int) ([]Bar, error) {
	end := a.now().UTC()
	start := end.AddDate(0, 0, -lookbackDays)

	var bars []Bar
	err := utils.RetryWithBackoff(ctx, func() error {
		if err := ctx.Err(); err != nil {
			return utils.Permanent(err)
		}
		var err error
		if IsCrypto(symbol) {
			bars, err = a.cryptoBars(symbol, start, end)
		} else {
			bars, err = a.stockBars(symbol, start, end)
		}
		return err
	}, a.retry)
	if err != nil {
		return nil, fmt.Errorf("alpaca %s: %w", symbol, err)
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("alpaca %s: %w", symbol, ErrNoBars)
	}

	a.logger.Debug("alpaca bars fetched", zap.String("symbol", symbol), zap.Int("bars", len(bars)))
	return bars, nil
}

func (a *AlpacaProvider) stockBars(symbol string, start, end time.Time) ([]Bar, error) {
	req := marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
	}
	if a.feed != "" {
		req.Feed = marketdata.Feed(a.feed)
	}
	raw, err := a.client.GetBars(symbol, req)
	if err != nil {
		return nil, err
	}
	bars := make([]Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, Bar{
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
		})
	}
	return bars, nil
}

func (a *AlpacaProvider) cryptoBars(symbol string, start, end time.Time) ([]Bar, error) {
	raw, err := a.client.GetCryptoBars(AlpacaCryptoSymbol(symbol), marketdata.GetCryptoBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
	})
	if err != nil {
		return nil, err
	}
	bars := make([]Bar, 0, len(raw))
	for _, b := range raw {
		bars = append(bars, Bar{
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
		})
	}
	return bars, nil
}

// Clock reports US equity session state through the Alpaca trading API.
type Clock struct {
	client *alpaca.Client
}

func NewClock(creds AlpacaCredentials, baseURL string) *Clock {
	if baseURL == "" {
		baseURL = defaultTradingURL
	}
	return &Clock{
		client: alpaca.NewClient(alpaca.ClientOpts{
			APIKey:    creds.APIKey,
			APISecret: creds.APISecret,
			BaseURL:   baseURL,
		}),
	}
}

func (c *Clock) MarketClock(ctx context.Context) (*types.MarketClock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	clock, err := c.client.GetClock()
	if err != nil {
		return nil, fmt.Errorf("failed to get market clock: %w", err)
	}
	return &types.MarketClock{
		IsOpen:    clock.IsOpen,
		Timestamp: clock.Timestamp,
		NextOpen:  clock.NextOpen,
		NextClose: clock.NextClose,
	}, nil
}
