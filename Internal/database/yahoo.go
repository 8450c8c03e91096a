package datafeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fazecat/quantterm/Internal/utils"
	"go.uber.org/zap"
)

const (
	defaultYahooURL = "https://query1.finance.yahoo.com"
	maxBodyBytes    = 10 * 1024 * 1024
)

type yahooChartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Timestamps []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*float64 `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type YahooProvider struct {
	baseURL   string
	userAgent string
	client    *http.Client
	retry     utils.RetryConfig
	logger    *zap.Logger
}

type YahooOptions struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	Retry     *utils.RetryConfig
}

func NewYahooProvider(opts YahooOptions, logger *zap.Logger) *YahooProvider {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultYahooURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	retry := utils.DefaultRetryConfig()
	if opts.Retry != nil {
		retry = *opts.Retry
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &YahooProvider{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		userAgent: opts.UserAgent,
		client:    &http.Client{Timeout: opts.Timeout},
		retry:     retry,
		logger:    logger,
	}
}

func (y *YahooProvider) Name() string { return "yahoo" }

// chartRange maps a lookback to the coarsest Yahoo range that covers it.
func chartRange(lookbackDays int) string {
	switch {
	case lookbackDays <= 5:
		return "5d"
	case lookbackDays <= 31:
		return "1mo"
	case lookbackDays <= 93:
		return "3mo"
	case lookbackDays <= 186:
		return "6mo"
	case lookbackDays <= 366:
		return "1y"
	case lookbackDays <= 731:
		return "2y"
	case lookbackDays <= 1827:
		return "5y"
	default:
		return "10y"
	}
}

func (y *YahooProvider) FetchBars(ctx context.Context, symbol string, lookbackDays int) ([]Bar, error) {
	apiURL := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=1d",
		y.baseURL, url.PathEscape(symbol), chartRange(lookbackDays))

	var bars []Bar
	err := utils.RetryWithBackoff(ctx, func() error {
		body, err := y.get(ctx, apiURL)
		if err != nil {
			return err
		}
		bars, err = parseYahooChart(body)
		return err
	}, y.retry)
	if err != nil {
		return nil, fmt.Errorf("yahoo %s: %w", symbol, err)
	}

	y.logger.Debug("yahoo bars fetched", zap.String("symbol", symbol), zap.Int("bars", len(bars)))
	return bars, nil
}

func (y *YahooProvider) get(ctx context.Context, apiURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, utils.Permanent(err)
	}
	if y.userAgent != "" {
		req.Header.Set("User-Agent", y.userAgent)
	}

	resp, err := y.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, utils.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, utils.Permanent(ErrSymbolNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("yahoo returned status %d", resp.StatusCode)
	default:
		return nil, utils.Permanent(fmt.Errorf("yahoo returned status %d", resp.StatusCode))
	}
}

// parseYahooChart drops rows without a close, like pandas dropna.
func parseYahooChart(body []byte) ([]Bar, error) {
	var resp yahooChartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, utils.Permanent(fmt.Errorf("decode chart: %w", err))
	}
	if resp.Chart.Error != nil {
		if resp.Chart.Error.Code == "Not Found" {
			return nil, utils.Permanent(ErrSymbolNotFound)
		}
		return nil, utils.Permanent(fmt.Errorf("chart error %s: %s", resp.Chart.Error.Code, resp.Chart.Error.Description))
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, utils.Permanent(ErrNoBars)
	}

	result := resp.Chart.Result[0]
	quote := result.Indicators.Quote[0]
	at := func(vals []*float64, i int) float64 {
		if i < len(vals) && vals[i] != nil {
			return *vals[i]
		}
		return 0
	}

	bars := make([]Bar, 0, len(result.Timestamps))
	for i, ts := range result.Timestamps {
		if i >= len(quote.Close) || quote.Close[i] == nil {
			continue
		}
		bars = append(bars, Bar{
			Timestamp: time.Unix(ts, 0).UTC(),
			Open:      at(quote.Open, i),
			High:      at(quote.High, i),
			Low:       at(quote.Low, i),
			Close:     *quote.Close[i],
			Volume:    at(quote.Volume, i),
		})
	}
	if len(bars) == 0 {
		return nil, utils.Permanent(ErrNoBars)
	}
	return bars, nil
}
