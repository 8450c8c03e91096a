package signals

import (
	"errors"
	"math"

	"github.com/fazecat/quantterm/Internal/types"
	"github.com/shopspring/decimal"
)

const DefaultThresholdPct = 2.0

var (
	ErrInvalidPrice   = errors.New("current price must be positive")
	ErrInvalidCapital = errors.New("capital must be finite")
)

// Style carries the themed label and color for each signal.
type Style struct {
	BuyLabel  string
	SellLabel string
	HoldLabel string
	BuyColor  string
	SellColor string
	HoldColor string
}

func DefaultStyle() Style {
	return Style{
		BuyLabel:  "BUY 📈",
		SellLabel: "SELL 📉",
		HoldLabel: "HOLD 🛡️",
		BuyColor:  "#00ffcc",
		SellColor: "#ff4b4b",
		HoldColor: "#888888",
	}
}

// DiffPct is the forecast move from current to target, in percent.
func DiffPct(current, target float64) (float64, error) {
	if !(current > 0) {
		return 0, ErrInvalidPrice
	}
	// decimal keeps exact boundaries such as 102/100 from landing a hair above 2%.
	ratio := decimal.NewFromFloat(target).DivRound(decimal.NewFromFloat(current), 12)
	diff, _ := ratio.Sub(decimal.NewFromInt(1)).Mul(decimal.NewFromInt(100)).Float64()
	return diff, nil
}

// Recommend turns the forecast move into BUY above +threshold, SELL below
// -threshold and HOLD otherwise.
func Recommend(current, target, thresholdPct float64, style Style) (types.Recommendation, error) {
	diff, err := DiffPct(current, target)
	if err != nil {
		return types.Recommendation{}, err
	}

	rec := types.Recommendation{DiffPct: diff}
	switch {
	case diff > thresholdPct:
		rec.Signal, rec.Label, rec.Color = types.SignalBuy, style.BuyLabel, style.BuyColor
	case diff < -thresholdPct:
		rec.Signal, rec.Label, rec.Color = types.SignalSell, style.SellLabel, style.SellColor
	default:
		rec.Signal, rec.Label, rec.Color = types.SignalHold, style.HoldLabel, style.HoldColor
	}
	return rec, nil
}

// Profit is what capital invested at current would be worth at target, minus
// capital, rounded to cents.
func Profit(capital, current, target float64) (decimal.Decimal, error) {
	if !(current > 0) || math.IsInf(current, 0) || !isFinite(target) {
		return decimal.Zero, ErrInvalidPrice
	}
	if !isFinite(capital) {
		return decimal.Zero, ErrInvalidCapital
	}
	c := decimal.NewFromFloat(capital)
	units := c.DivRound(decimal.NewFromFloat(current), 16)
	return units.Mul(decimal.NewFromFloat(target)).Sub(c).Round(2), nil
}

// ProfitColor is red for a loss and the accent color otherwise.
func ProfitColor(profit decimal.Decimal, style Style) string {
	if profit.IsNegative() {
		return style.SellColor
	}
	return style.BuyColor
}

func isFinite(v float64) bool {
	return !math.IsInf(v, 0) && !math.IsNaN(v)
}
