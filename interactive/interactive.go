package interactive

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/fazecat/quantterm/Internal/handlers"
	"github.com/fazecat/quantterm/Internal/types"
)

var errQuit = errors.New("quit")

// Terminal walks the user through market, currency, capital and asset
// selection until they quit.
type Terminal struct {
	dash *handlers.Dashboard
	in   *bufio.Scanner
	out  io.Writer
}

func NewTerminal(dash *handlers.Dashboard, in io.Reader, out io.Writer) *Terminal {
	return &Terminal{dash: dash, in: bufio.NewScanner(in), out: out}
}

func (t *Terminal) prompt(label string) (string, error) {
	fmt.Fprint(t.out, label)
	if !t.in.Scan() {
		if err := t.in.Err(); err != nil {
			return "", err
		}
		return "", errQuit
	}
	answer := strings.TrimSpace(t.in.Text())
	if strings.EqualFold(answer, "q") {
		return "", errQuit
	}
	return answer, nil
}

// choose returns the picked option; an empty answer picks def.
func (t *Terminal) choose(label string, options []string, def string) (string, error) {
	for {
		fmt.Fprintf(t.out, "\n%s:\n", label)
		for i, o := range options {
			fmt.Fprintf(t.out, "%d. %s\n", i+1, o)
		}
		answer, err := t.prompt(fmt.Sprintf("Select (number, enter for %s, q to quit): ", def))
		if err != nil {
			return "", err
		}
		if answer == "" {
			return def, nil
		}
		n, err := strconv.Atoi(answer)
		if err != nil || n < 1 || n > len(options) {
			fmt.Fprintln(t.out, "Invalid choice. Try again.")
			continue
		}
		return options[n-1], nil
	}
}

func (t *Terminal) capital(def float64) (float64, error) {
	for {
		answer, err := t.prompt(fmt.Sprintf("\nCapital (enter for %.2f): ", def))
		if err != nil {
			return 0, err
		}
		if answer == "" {
			return def, nil
		}
		v, err := strconv.ParseFloat(answer, 64)
		if err != nil || !(v > 0) || math.IsInf(v, 0) {
			fmt.Fprintln(t.out, "Capital must be a positive number.")
			continue
		}
		return v, nil
	}
}

// Run loops until the user quits or input ends. Data errors are printed and
// the loop continues.
func (t *Terminal) Run(ctx context.Context) error {
	cfg := t.dash.Config()
	theme := cfg.Theme

	fmt.Fprintf(t.out, "\n--- %s ---\n", theme.Title)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := t.session(ctx)
		if errors.Is(err, errQuit) {
			fmt.Fprintln(t.out, "Goodbye!")
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (t *Terminal) session(ctx context.Context) error {
	cfg := t.dash.Config()
	theme := cfg.Theme

	market, err := t.choose(theme.Label("market"), cfg.MarketNames(), cfg.Defaults.Market)
	if err != nil {
		return err
	}
	if mc, ok := cfg.GetMarket(market); ok && mc.Mascot && theme.MascotURL != "" {
		fmt.Fprintf(t.out, "(mascot: %s)\n", theme.MascotURL)
	}

	currencies := make([]string, 0, 3)
	for _, c := range t.dash.Currencies() {
		currencies = append(currencies, string(c))
	}
	currency, err := t.choose(theme.Label("currency"), currencies, cfg.Defaults.Currency)
	if err != nil {
		return err
	}
	capital, err := t.capital(cfg.Defaults.Capital)
	if err != nil {
		return err
	}

	rows, err := t.dash.MarketTable(ctx, market, types.Currency(currency))
	if err != nil {
		fmt.Fprintf(t.out, "%s (%v)\n", theme.Label("api_error"), err)
		return nil
	}
	handlers.PrintTable(t.out, market, types.Currency(currency), rows, theme)

	// The table is capped; every fetched asset can still be forecast.
	snap, err := t.dash.Snapshot(ctx, market)
	if err != nil {
		fmt.Fprintf(t.out, "%s (%v)\n", theme.Label("api_error"), err)
		return nil
	}
	assets := make([]string, len(snap.Assets))
	for i, a := range snap.Assets {
		assets[i] = a.Symbol
	}
	symbol, err := t.choose(theme.Label("asset"), assets, assets[0])
	if err != nil {
		return err
	}

	view, err := t.dash.AssetView(ctx, handlers.AssetRequest{
		Market:   market,
		Symbol:   symbol,
		Currency: types.Currency(currency),
		Capital:  capital,
	})
	if err != nil {
		fmt.Fprintf(t.out, "Error: %v\n", err)
		return nil
	}
	handlers.PrintAssetView(t.out, view, theme)
	return nil
}
