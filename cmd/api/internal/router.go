package internal

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(api *API) (http.Handler, error) {
	if api.Logger == nil {
		api.Logger = zap.NewNop()
	}
	pages, err := parsePages(api.Dashboard.Config().Theme)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	api.pages = pages

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RequestLogger(api.Logger))
	r.Use(middleware.Recoverer)
	r.Use(CorsMiddleware)

	r.Get("/health", api.HandleHealth)

	// Web UI
	r.Get("/", api.HandleIndex)
	r.Get("/markets/{market}", api.HandleMarketPage)

	// Public routes
	r.Get("/api/markets", api.HandleGetMarkets)
	r.Get("/api/rates", api.HandleGetRates)
	r.Get("/api/clock", api.HandleGetClock)
	r.Get("/api/markets/{market}/assets", api.HandleGetAssets)
	r.Get("/api/markets/{market}/assets/{symbol}/forecast", api.HandleGetForecast)
	r.Get("/api/markets/{market}/assets/{symbol}/chart.svg", api.HandleGetChart)
	r.Post("/api/token", api.HandleGenerateToken)

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(JWTAuthMiddleware(api.JWTManager))
		r.Get("/api/history", api.HandleGetHistory)
		r.Get("/api/settings", api.HandleGetSettings)
		r.Post("/api/settings", api.HandleUpdateSettings)
		r.Post("/api/markets/{market}/refresh", api.HandleRefreshMarket)
	})

	return r, nil
}
