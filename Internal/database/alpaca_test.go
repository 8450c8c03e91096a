package datafeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsCrypto(t *testing.T) {
	assert.True(t, IsCrypto("BTC-USD"))
	assert.True(t, IsCrypto("ETH-USDT"))
	assert.False(t, IsCrypto("AAPL"))
	assert.False(t, IsCrypto("SBER.ME"))
}

func TestAlpacaCryptoSymbol(t *testing.T) {
	assert.Equal(t, "BTC/USD", AlpacaCryptoSymbol("BTC-USD"))
	assert.Equal(t, "ETH/USDT", AlpacaCryptoSymbol("ETH-USDT"))
}

func TestAlpacaCredentialsFromEnv(t *testing.T) {
	t.Setenv("ALPACA_API_KEY", "key")
	t.Setenv("ALPACA_API_SECRET", "")
	assert.False(t, AlpacaCredentialsFromEnv().Configured())

	t.Setenv("ALPACA_API_SECRET", "secret")
	creds := AlpacaCredentialsFromEnv()
	assert.True(t, creds.Configured())
	assert.Equal(t, "key", creds.APIKey)
}

const alpacaBars = `[
	{"t":"2024-01-02T05:00:00Z","o":100,"h":102,"l":99,"c":101,"v":1500,"n":10,"vw":100.5},
	{"t":"2024-01-03T05:00:00Z","o":101,"h":104,"l":100,"c":103,"v":1700,"n":12,"vw":102.1}
]`

func TestAlpacaStockBars(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("symbols") != "" {
			w.Write([]byte(`{"bars":{"AAPL":` + alpacaBars + `},"next_page_token":null}`))
			return
		}
		if strings.HasSuffix(r.URL.Path, "/bars") {
			w.Write([]byte(`{"symbol":"AAPL","bars":` + alpacaBars + `,"next_page_token":null}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	p := NewAlpacaProvider(AlpacaCredentials{APIKey: "k", APISecret: "s"}, srv.URL, "iex", nil)
	p.retry = *fastRetry()
	p.now = func() time.Time { return time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC) }

	bars, err := p.FetchBars(context.Background(), "AAPL", 30)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, 101.0, bars[0].Close)
	assert.Equal(t, 103.0, bars[1].Close)
	assert.Equal(t, 1700.0, bars[1].Volume)
	assert.Equal(t, "alpaca", p.Name())
}

func TestAlpacaFetchHonorsCancelledContext(t *testing.T) {
	p := NewAlpacaProvider(AlpacaCredentials{}, "http://127.0.0.1:1", "", nil)
	p.retry = *fastRetry()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.FetchBars(ctx, "AAPL", 30)
	assert.ErrorIs(t, err, context.Canceled)
}
