package handlers

import (
	"context"
	"fmt"
	"io"

	"github.com/fazecat/quantterm/Internal/types"
	"github.com/fazecat/quantterm/Internal/utils/config"
	"github.com/fazecat/quantterm/Internal/utils/formatting"
)

const lineWidth = 50

func PrintMarkets(w io.Writer, markets []types.Market) {
	fmt.Fprintln(w, "\nAvailable Markets:")
	for i, m := range markets {
		flag := ""
		if m.Mascot {
			flag = " *"
		}
		fmt.Fprintf(w, "%d. %s (%d tickers)%s\n", i+1, m.Name, len(m.Tickers), flag)
	}
}

func PrintTable(w io.Writer, market string, currency types.Currency, rows []types.TableRow, theme config.ThemeConfig) {
	fmt.Fprintf(w, "\n%s: %s  %s: %s\n", theme.Label("market"), market, theme.Label("currency"), currency)
	fmt.Fprintln(w, formatting.Separator(lineWidth))
	fmt.Fprintf(w, "%s %s\n", formatting.PadRight(theme.Label("asset"), 14), theme.Label("price"))
	for _, row := range rows {
		fmt.Fprintf(w, "%s %s\n", formatting.PadRight(row.Asset, 14), formatting.Money(row.Price, currency))
	}
	fmt.Fprintln(w, formatting.Separator(lineWidth))
}

// PrintAssetView renders the signal box and the three metric cards.
func PrintAssetView(w io.Writer, view *types.AssetView, theme config.ThemeConfig) {
	rec := view.Recommendation
	fmt.Fprintln(w, formatting.Separator(lineWidth))
	fmt.Fprintf(w, "%s  [%s]\n", view.Symbol, view.Market)
	fmt.Fprintf(w, "%s: %s (%s)\n", theme.Label("recommendation"), rec.Label, formatting.SignedPercent(rec.DiffPct))
	fmt.Fprintln(w, formatting.Separator(lineWidth))
	fmt.Fprintf(w, "%s %s\n", formatting.PadRight(theme.Label("current")+":", 12), formatting.Money(view.CurrentPrice, view.Currency))
	fmt.Fprintf(w, "%s %s\n", formatting.PadRight(theme.Label("target")+":", 12), formatting.Money(view.TargetPrice, view.Currency))
	fmt.Fprintf(w, "%s %s\n", formatting.PadRight(theme.Label("profit")+":", 12), formatting.Money(view.Profit, view.Currency))
	fmt.Fprintf(w, "%s %s (%d days, %s)\n", formatting.PadRight(theme.Label("capital")+":", 12),
		formatting.Money(view.Capital, view.Currency), view.Horizon, view.Model)
	fmt.Fprintln(w, formatting.Separator(lineWidth))
}

func HandleTable(ctx context.Context, w io.Writer, dash *Dashboard, market string, currency types.Currency) error {
	rows, err := dash.MarketTable(ctx, market, currency)
	if err != nil {
		return err
	}
	PrintTable(w, market, currency, rows, dash.Config().Theme)
	return nil
}

func HandleForecast(ctx context.Context, w io.Writer, dash *Dashboard, req AssetRequest) error {
	view, err := dash.AssetView(ctx, req)
	if err != nil {
		return err
	}
	PrintAssetView(w, view, dash.Config().Theme)
	return nil
}
