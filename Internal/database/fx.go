package datafeed

import (
	"context"
	"fmt"
	"sort"

	"github.com/fazecat/quantterm/Internal/types"
)

// FXSource reads the last close of each currency pair (units per USD).
type FXSource struct {
	provider Provider
	pairs    map[types.Currency]string
}

func NewFXSource(provider Provider, pairs map[types.Currency]string) *FXSource {
	return &FXSource{provider: provider, pairs: pairs}
}

func (f *FXSource) Rates(ctx context.Context) (types.Rates, error) {
	rates := types.Rates{types.USD: 1.0}

	currencies := make([]types.Currency, 0, len(f.pairs))
	for c := range f.pairs {
		currencies = append(currencies, c)
	}
	sort.Slice(currencies, func(i, j int) bool { return currencies[i] < currencies[j] })

	for _, c := range currencies {
		if c == types.USD {
			continue
		}
		bars, err := f.provider.FetchBars(ctx, f.pairs[c], 5)
		if err != nil {
			return nil, fmt.Errorf("fx %s: %w", c, err)
		}
		if len(bars) == 0 {
			return nil, fmt.Errorf("fx %s: %w", c, ErrNoBars)
		}
		last := bars[len(bars)-1].Close
		if !(last > 0) {
			return nil, fmt.Errorf("fx %s: non-positive rate %v", c, last)
		}
		rates[c] = last
	}
	return rates, nil
}
