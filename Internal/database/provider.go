package datafeed

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fazecat/quantterm/Internal/types"
	"github.com/fazecat/quantterm/Internal/utils/config"
)

type Bar = types.Bar

var (
	ErrSymbolNotFound  = errors.New("symbol not found")
	ErrNoBars          = errors.New("no bars returned")
	ErrUnknownProvider = errors.New("unknown provider")
)

// Provider returns daily bars oldest-first.
type Provider interface {
	Name() string
	FetchBars(ctx context.Context, symbol string, lookbackDays int) ([]Bar, error)
}

// Registry resolves providers by name.
type Registry struct {
	providers map[string]Provider
	fallback  string
}

func NewRegistry(fallback string, providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider), fallback: fallback}
	for _, p := range providers {
		if p != nil {
			r.providers[p.Name()] = p
		}
	}
	return r
}

// Get returns the named provider; an empty name picks the fallback.
func (r *Registry) Get(name string) (Provider, error) {
	if name == "" {
		name = r.fallback
	}
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownProvider, name, strings.Join(r.Names(), ", "))
	}
	return p, nil
}

// Names lists the registered providers in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NativeCurrency reports the currency a ticker is quoted in. Rules are checked
// in order; anything unmatched is USD.
func NativeCurrency(symbol string, rules []config.CurrencyRule) types.Currency {
	for _, rule := range rules {
		if rule.Suffix != "" && strings.HasSuffix(symbol, rule.Suffix) {
			return rule.Currency
		}
		if rule.Prefix != "" && strings.HasPrefix(symbol, rule.Prefix) {
			return rule.Currency
		}
	}
	return types.USD
}
