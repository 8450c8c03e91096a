package metrics

import (
	"math"

	"github.com/fazecat/quantterm/Internal/types"
	"github.com/fazecat/quantterm/Internal/utils"
)

const DefaultTrendWindow = 15

// SeriesStats summarizes a close series for the forecaster.
type SeriesStats struct {
	Drift      float64
	Volatility float64
	Trend      float64
}

func ExtractClosingPrices(bars []types.Bar) []float64 {
	closes := make([]float64, len(bars))
	for i, bar := range bars {
		closes[i] = bar.Close
	}
	return closes
}

// PctChanges returns c[i]/c[i-1]-1 for every step with a non-zero previous close.
func PctChanges(closes []float64) []float64 {
	if len(closes) < 2 {
		return []float64{}
	}
	changes := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		changes = append(changes, closes[i]/closes[i-1]-1)
	}
	return changes
}

func Drift(closes []float64) float64 {
	return utils.Average(PctChanges(closes))
}

// Volatility is the sample standard deviation of the pct changes.
func Volatility(closes []float64) float64 {
	return sampleStandardDeviation(PctChanges(closes))
}

// Trend is the average absolute move per step over the trailing window.
func Trend(closes []float64, window int) float64 {
	n := len(closes)
	if n < 2 {
		return 0
	}
	if window <= 0 || window > n {
		window = n
	}
	if window < 2 {
		return 0
	}
	return (closes[n-1] - closes[n-window]) / float64(window)
}

func Calculate(closes []float64, trendWindow int) SeriesStats {
	return SeriesStats{
		Drift:      Drift(closes),
		Volatility: Volatility(closes),
		Trend:      Trend(closes, trendWindow),
	}
}

func sampleStandardDeviation(values []float64) float64 {
	if len(values) < 2 {
		return 0.0
	}
	mean := utils.Average(values)
	varianceSum := 0.0
	for _, v := range values {
		varianceSum += (v - mean) * (v - mean)
	}
	variance := varianceSum / float64(len(values)-1)
	return math.Sqrt(variance)
}
