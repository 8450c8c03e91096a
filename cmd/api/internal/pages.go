package internal

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"github.com/fazecat/quantterm/Internal/handlers"
	"github.com/fazecat/quantterm/Internal/types"
	"github.com/fazecat/quantterm/Internal/utils/config"
	"github.com/fazecat/quantterm/Internal/utils/formatting"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

type pageData struct {
	Theme      config.ThemeConfig
	Markets    []types.Market
	Market     types.Market
	Currencies []types.Currency
	Currency   types.Currency
	Capital    float64
	Rows       []types.TableRow
	View       *types.AssetView
	Chart      template.HTML
	ShowMascot bool
	Error      string
}

func parsePages(theme config.ThemeConfig) (*template.Template, error) {
	return template.New("dashboard.html").Funcs(template.FuncMap{
		"label": theme.Label,
		"money": formatting.Money,
		"pct":   formatting.SignedPercent,
	}).ParseFS(templateFS, "templates/dashboard.html")
}

func (api *API) HandleIndex(w http.ResponseWriter, r *http.Request) {
	market := api.defaults(r.Context()).Market
	if _, ok := api.Dashboard.Config().GetMarket(market); !ok {
		market = api.Dashboard.Config().Markets[0].Name
	}
	http.Redirect(w, r, "/markets/"+url.PathEscape(market), http.StatusFound)
}

// HandleMarketPage renders the dashboard for one market. Data errors are shown
// in the page with the matching status code.
func (api *API) HandleMarketPage(w http.ResponseWriter, r *http.Request) {
	cfg := api.Dashboard.Config()
	prefs := api.defaults(r.Context())

	data := pageData{
		Theme:      cfg.Theme,
		Markets:    api.Dashboard.Markets(),
		Currencies: api.Dashboard.Currencies(),
		Currency:   api.currencyParam(r, prefs),
		Capital:    prefs.Capital,
	}
	status := http.StatusOK
	fail := func(err error) {
		status = StatusFor(err)
		data.Error = err.Error()
		if status == http.StatusBadGateway {
			data.Error = cfg.Theme.Label("api_error")
			api.Logger.Warn("market page data error", zap.String("path", r.URL.Path), zap.Error(err))
		}
	}

	mc, ok := cfg.GetMarket(chi.URLParam(r, "market"))
	if !ok {
		fail(handlers.ErrUnknownMarket)
		api.renderPage(w, status, data)
		return
	}
	data.Market = mc.ToMarket()
	data.ShowMascot = mc.Mascot && cfg.Theme.MascotURL != ""

	capital, err := api.capitalParam(r, prefs)
	if err != nil {
		fail(err)
		api.renderPage(w, status, data)
		return
	}
	data.Capital = capital

	rows, err := api.Dashboard.MarketTable(r.Context(), mc.Name, data.Currency)
	if err != nil {
		fail(err)
		api.renderPage(w, status, data)
		return
	}
	data.Rows = rows

	symbol := r.URL.Query().Get("asset")
	if symbol == "" {
		symbol = rows[0].Asset
	}
	view, err := api.Dashboard.AssetView(r.Context(), handlers.AssetRequest{
		Market:   mc.Name,
		Symbol:   symbol,
		Currency: data.Currency,
		Capital:  capital,
	})
	if err != nil {
		fail(err)
		api.renderPage(w, status, data)
		return
	}
	data.View = view

	chart, err := handlers.BuildChart(*view, cfg.Theme.Accent).SVG()
	if err != nil {
		api.Logger.Warn("chart render failed", zap.Error(err))
	}
	data.Chart = chart

	api.renderPage(w, status, data)
}

func (api *API) renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf bytes.Buffer
	if err := api.pages.Execute(&buf, data); err != nil {
		api.Logger.Error("failed to render page", zap.Error(err))
		http.Error(w, "template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}
