package internal

import (
	"context"
	"encoding/json"
	"html/template"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/fazecat/quantterm/Internal/handlers"
	"github.com/fazecat/quantterm/Internal/handlers/settings"
	"github.com/fazecat/quantterm/Internal/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const tokenTTL = 24 * time.Hour

type ClockSource interface {
	MarketClock(ctx context.Context) (*types.MarketClock, error)
}

// Probe checks one backing service for /health.
type Probe func(ctx context.Context) error

type HistorySource interface {
	ForecastHistory(ctx context.Context, symbol string, limit int) ([]types.ForecastRecord, error)
}

// API holds the dependencies of every HTTP handler. Clock, History and the
// settings fields are nil when Alpaca keys or the database are missing.
type API struct {
	Dashboard       *handlers.Dashboard
	Clock           ClockSource
	History         HistorySource
	Settings        *settings.Store
	SettingsHandler *settings.Handler
	JWTManager      *JWTManager
	Probes          map[string]Probe
	Logger          *zap.Logger

	pages *template.Template
}

// defaults returns the stored preferences, or the configured defaults.
func (api *API) defaults(ctx context.Context) settings.Preferences {
	d := api.Dashboard.Config().Defaults
	fallback := settings.Preferences{Market: d.Market, Currency: d.Currency, Capital: d.Capital}
	if api.Settings == nil {
		return fallback
	}
	prefs, err := api.Settings.Preferences(ctx, fallback)
	if err != nil {
		api.Logger.Warn("failed to load preferences", zap.Error(err))
		return fallback
	}
	return prefs
}

func (api *API) currencyParam(r *http.Request, prefs settings.Preferences) types.Currency {
	if c := r.URL.Query().Get("currency"); c != "" {
		return types.Currency(c)
	}
	return types.Currency(prefs.Currency)
}

func (api *API) capitalParam(r *http.Request, prefs settings.Preferences) (float64, error) {
	raw := r.URL.Query().Get("capital")
	if raw == "" {
		return prefs.Capital, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || !(v > 0) || math.IsInf(v, 0) {
		return 0, handlers.ErrInvalidCapital
	}
	return v, nil
}

func (api *API) writeDashboardError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		api.Logger.Error("dashboard request failed", zap.String("path", r.URL.Path), zap.Error(err))
	}
	WriteError(w, status, err.Error())
}

func (api *API) HandleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string, len(api.Probes))
	healthy := true
	for name, probe := range api.Probes {
		if err := probe(r.Context()); err != nil {
			api.Logger.Warn("health probe failed", zap.String("component", name), zap.Error(err))
			components[name] = err.Error()
			healthy = false
			continue
		}
		components[name] = "ok"
	}

	status, data := http.StatusOK, "healthy"
	if !healthy {
		status, data = http.StatusServiceUnavailable, "degraded"
	}
	WriteJSON(w, status, map[string]interface{}{
		"success":    healthy,
		"data":       data,
		"components": components,
	})
}

func (api *API) HandleGetMarkets(w http.ResponseWriter, r *http.Request) {
	currencies := make([]map[string]string, 0, 3)
	for _, c := range api.Dashboard.Currencies() {
		currencies = append(currencies, map[string]string{"code": string(c), "sign": c.Sign()})
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"markets":    api.Dashboard.Markets(),
		"currencies": currencies,
	})
}

func (api *API) HandleGetRates(w http.ResponseWriter, r *http.Request) {
	rates, err := api.Dashboard.Rates(r.Context())
	if err != nil {
		api.writeDashboardError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, rates)
}

func (api *API) HandleGetClock(w http.ResponseWriter, r *http.Request) {
	if api.Clock == nil {
		WriteError(w, http.StatusServiceUnavailable, "market clock requires Alpaca API keys")
		return
	}
	clock, err := api.Clock.MarketClock(r.Context())
	if err != nil {
		api.Logger.Warn("market clock failed", zap.Error(err))
		WriteError(w, http.StatusBadGateway, "Failed to fetch market clock")
		return
	}
	WriteJSON(w, http.StatusOK, clock)
}

func (api *API) HandleGetAssets(w http.ResponseWriter, r *http.Request) {
	market := chi.URLParam(r, "market")
	currency := api.currencyParam(r, api.defaults(r.Context()))

	rows, err := api.Dashboard.MarketTable(r.Context(), market, currency)
	if err != nil {
		api.writeDashboardError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"market":   market,
		"currency": currency,
		"rows":     rows,
	})
}

// assetView builds the view for the route's market and symbol. record=false
// keeps it out of the forecast log.
func (api *API) assetView(r *http.Request, record bool) (*types.AssetView, error) {
	prefs := api.defaults(r.Context())
	capital, err := api.capitalParam(r, prefs)
	if err != nil {
		return nil, err
	}
	return api.Dashboard.AssetView(r.Context(), handlers.AssetRequest{
		Market:     chi.URLParam(r, "market"),
		Symbol:     chi.URLParam(r, "symbol"),
		Currency:   api.currencyParam(r, prefs),
		Capital:    capital,
		SkipRecord: !record,
	})
}

func (api *API) HandleGetForecast(w http.ResponseWriter, r *http.Request) {
	view, err := api.assetView(r, true)
	if err != nil {
		api.writeDashboardError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, view)
}

// HandleGetChart renders the asset chart as SVG. The forecast is drawn again
// and not logged, so it matches the page and /forecast only when
// forecast.seed is set.
func (api *API) HandleGetChart(w http.ResponseWriter, r *http.Request) {
	view, err := api.assetView(r, false)
	if err != nil {
		api.writeDashboardError(w, r, err)
		return
	}
	svg, err := handlers.BuildChart(*view, api.Dashboard.Config().Theme.Accent).SVG()
	if err != nil {
		WriteError(w, http.StatusInternalServerError, "Failed to render chart")
		return
	}
	w.Header().Set("Content-Type", "image/svg+xml")
	w.Write([]byte(svg))
}

// HandleRefreshMarket drops the cached snapshot and rates for the market.
func (api *API) HandleRefreshMarket(w http.ResponseWriter, r *http.Request) {
	market := chi.URLParam(r, "market")
	if err := api.Dashboard.Refresh(r.Context(), market); err != nil {
		if StatusFor(err) == http.StatusNotFound {
			WriteError(w, http.StatusNotFound, err.Error())
			return
		}
		api.Logger.Error("failed to refresh market", zap.String("market", market), zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "Failed to refresh market")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"market":  market,
	})
}

type tokenRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

func (api *API) HandleGenerateToken(w http.ResponseWriter, r *http.Request) {
	if !api.JWTManager.IssuingEnabled() {
		WriteError(w, http.StatusServiceUnavailable, "token issuing is disabled (API_PASSWORD not set)")
		return
	}

	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if !api.JWTManager.CheckPassword(req.Password) {
		WriteError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if req.UserID == "" {
		req.UserID = "admin"
	}

	token, err := api.JWTManager.GenerateToken(req.UserID, tokenTTL)
	if err != nil {
		api.Logger.Error("failed to issue token", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_in": int(tokenTTL.Seconds()),
	})
}

func (api *API) HandleGetHistory(w http.ResponseWriter, r *http.Request) {
	if api.History == nil {
		WriteError(w, http.StatusServiceUnavailable, "forecast history requires a database")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			WriteError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := api.History.ForecastHistory(r.Context(), r.URL.Query().Get("symbol"), limit)
	if err != nil {
		api.Logger.Error("failed to fetch forecast history", zap.Error(err))
		WriteError(w, http.StatusInternalServerError, "Failed to fetch forecast history")
		return
	}
	if records == nil {
		records = []types.ForecastRecord{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

func (api *API) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	if api.SettingsHandler == nil {
		WriteError(w, http.StatusServiceUnavailable, "settings require a database")
		return
	}
	api.SettingsHandler.HandleGetSettings(w, r)
}

func (api *API) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	if api.SettingsHandler == nil {
		WriteError(w, http.StatusServiceUnavailable, "settings require a database")
		return
	}
	if claims, ok := ClaimsFromContext(r.Context()); ok {
		api.Logger.Info("settings update requested", zap.String("user_id", claims.UserID))
	}
	api.SettingsHandler.HandleUpdateSettings(w, r)
}
