package types

import "time"

type Bar struct {
	Timestamp time.Time `json:"t"`
	Open      float64   `json:"o"`
	High      float64   `json:"h"`
	Low       float64   `json:"l"`
	Close     float64   `json:"c"`
	Volume    float64   `json:"v"`
}

// Currency is an ISO code; the dashboard only deals in USD, RUB and KZT.
type Currency string

const (
	USD Currency = "USD"
	RUB Currency = "RUB"
	KZT Currency = "KZT"
)

var currencySigns = map[Currency]string{
	USD: "$",
	RUB: "₽",
	KZT: "₸",
}

func (c Currency) Sign() string {
	if s, ok := currencySigns[c]; ok {
		return s
	}
	return string(c)
}

func (c Currency) Valid() bool {
	_, ok := currencySigns[c]
	return ok
}

// Currencies returns the supported currencies in display order.
func Currencies() []Currency {
	return []Currency{USD, RUB, KZT}
}

// Rates maps a currency to units per 1 USD.
type Rates map[Currency]float64

type Market struct {
	Name     string   `json:"name"`
	Tickers  []string `json:"tickers"`
	Provider string   `json:"provider"`
	Mascot   bool     `json:"mascot"`
}

// Asset is one ticker's processed history, with every price stored in USD.
type Asset struct {
	Symbol     string    `json:"symbol"`
	Native     Currency  `json:"native"`
	PriceUSD   float64   `json:"price_usd"`
	HistoryUSD []float64 `json:"history_usd"`
	Volatility float64   `json:"volatility"`
	Drift      float64   `json:"drift"`
	TrendUSD   float64   `json:"trend_usd"`
	AsOf       time.Time `json:"as_of"`
}

type Snapshot struct {
	Market    string    `json:"market"`
	Assets    []Asset   `json:"assets"`
	Rates     Rates     `json:"rates"`
	FetchedAt time.Time `json:"fetched_at"`
}

func (s *Snapshot) Find(symbol string) (*Asset, bool) {
	for i := range s.Assets {
		if s.Assets[i].Symbol == symbol {
			return &s.Assets[i], true
		}
	}
	return nil, false
}

type TableRow struct {
	Asset string  `json:"asset"`
	Price float64 `json:"price"`
}

type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalSell Signal = "SELL"
	SignalHold Signal = "HOLD"
)

type Recommendation struct {
	Signal  Signal  `json:"signal"`
	Label   string  `json:"label"`
	Color   string  `json:"color"`
	DiffPct float64 `json:"diff_pct"`
}

type AssetView struct {
	Market         string         `json:"market"`
	Symbol         string         `json:"symbol"`
	Currency       Currency       `json:"currency"`
	CurrentPrice   float64        `json:"current_price"`
	TargetPrice    float64        `json:"target_price"`
	Horizon        int            `json:"horizon"`
	History        []float64      `json:"history"`
	Forecast       []float64      `json:"forecast"`
	Recommendation Recommendation `json:"recommendation"`
	Capital        float64        `json:"capital"`
	Profit         float64        `json:"profit"`
	ProfitColor    string         `json:"profit_color"`
	Model          string         `json:"model"`
	Volatility     float64        `json:"volatility"`
	Drift          float64        `json:"drift"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

type ForecastRecord struct {
	ID           int64     `json:"id"`
	Market       string    `json:"market"`
	Symbol       string    `json:"symbol"`
	Currency     string    `json:"currency"`
	CurrentPrice string    `json:"current_price"`
	TargetPrice  string    `json:"target_price"`
	DiffPct      float64   `json:"diff_pct"`
	Signal       string    `json:"signal"`
	Model        string    `json:"model"`
	Capital      string    `json:"capital"`
	Profit       string    `json:"profit"`
	CreatedAt    time.Time `json:"created_at"`
}

type MarketClock struct {
	IsOpen    bool      `json:"is_open"`
	Timestamp time.Time `json:"timestamp"`
	NextOpen  time.Time `json:"next_open"`
	NextClose time.Time `json:"next_close"`
}
