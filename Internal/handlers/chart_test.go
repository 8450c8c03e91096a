package handlers

import (
	"math"
	"strings"
	"testing"

	"github.com/fazecat/quantterm/Internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildChart_JoinsForecastToHistory(t *testing.T) {
	view := types.AssetView{
		Currency:       types.USD,
		History:        []float64{10, 12, 11},
		Forecast:       []float64{13, 14},
		Recommendation: types.Recommendation{Color: "#00ffcc"},
	}

	chart := BuildChart(view, "#00ffcc")
	require.Len(t, chart.History, 3)
	require.Len(t, chart.Forecast, 3)
	assert.Len(t, chart.Markers, 2)

	assert.Equal(t, chart.History[2], chart.Forecast[0])
	assert.Equal(t, 10.0, chart.Min)
	assert.Equal(t, 14.0, chart.Max)

	// highest price sits at the top padding, lowest at the bottom
	assert.InDelta(t, float64(chartPadding), chart.Forecast[2].Y, 1e-9)
	assert.InDelta(t, float64(chartHeight-chartPadding), chart.History[0].Y, 1e-9)
	assert.InDelta(t, float64(chartWidth-chartPadding), chart.Forecast[2].X, 1e-9)
}

func TestBuildChart_FlatSeries(t *testing.T) {
	view := types.AssetView{History: []float64{5, 5}, Forecast: []float64{5}}

	chart := BuildChart(view, "#fff")
	for _, p := range append(chart.History, chart.Forecast...) {
		assert.False(t, math.IsNaN(p.Y))
		assert.InDelta(t, chartHeight/2.0, p.Y, 1e-9)
	}
}

func TestBuildChart_Empty(t *testing.T) {
	chart := BuildChart(types.AssetView{}, "#fff")
	assert.Empty(t, chart.History)
	assert.Empty(t, chart.Forecast)

	svg, err := chart.SVG()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(svg), "<svg"))
	assert.NotContains(t, string(svg), "polyline")
}

func TestChartSVG(t *testing.T) {
	view := types.AssetView{
		History:        []float64{1, 2},
		Forecast:       []float64{3},
		Recommendation: types.Recommendation{Color: "#ff4b4b"},
	}
	svg, err := BuildChart(view, "#00ffcc").SVG()
	require.NoError(t, err)

	out := string(svg)
	assert.Equal(t, 2, strings.Count(out, "<polyline"))
	assert.Equal(t, 1, strings.Count(out, "<circle"))
	assert.Contains(t, out, `stroke="#ff4b4b"`)
	assert.Contains(t, out, `stroke-opacity="0.3"`)
}
