package handlers

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/fazecat/quantterm/Internal/types"
)

const (
	chartWidth   = 800
	chartHeight  = 320
	chartPadding = 24
)

type ChartPoint struct {
	X, Y float64
}

// Chart is an SVG-ready line chart of history followed by forecast.
type Chart struct {
	Width, Height  int
	HistoryColor   string
	ForecastColor  string
	History        []ChartPoint
	Forecast       []ChartPoint
	Markers        []ChartPoint
	Min, Max       float64
	CurrencySymbol string
}

func (c Chart) HistoryPoints() string  { return polyline(c.History) }
func (c Chart) ForecastPoints() string { return polyline(c.Forecast) }

func polyline(points []ChartPoint) string {
	parts := make([]string, len(points))
	for i, p := range points {
		parts[i] = fmt.Sprintf("%.2f,%.2f", p.X, p.Y)
	}
	return strings.Join(parts, " ")
}

// BuildChart lays view out on a fixed viewBox. The forecast line starts at the
// last history point so the two segments join.
func BuildChart(view types.AssetView, historyColor string) Chart {
	chart := Chart{
		Width:          chartWidth,
		Height:         chartHeight,
		HistoryColor:   historyColor,
		ForecastColor:  view.Recommendation.Color,
		CurrencySymbol: view.Currency.Sign(),
	}

	forecast := view.Forecast
	if len(view.History) > 0 && len(forecast) > 0 {
		forecast = append([]float64{view.History[len(view.History)-1]}, forecast...)
	}

	all := append(append([]float64{}, view.History...), view.Forecast...)
	if len(all) == 0 {
		return chart
	}

	lo, hi := all[0], all[0]
	for _, v := range all {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	if hi == lo {
		pad := hi * 0.01
		if pad == 0 {
			pad = 1
		}
		lo, hi = lo-pad, hi+pad
	}
	chart.Min, chart.Max = lo, hi

	total := len(view.History) + len(view.Forecast)
	xAt := func(i int) float64 {
		if total == 1 {
			return chartWidth / 2
		}
		return chartPadding + float64(i)*float64(chartWidth-2*chartPadding)/float64(total-1)
	}
	yAt := func(v float64) float64 {
		return chartPadding + (hi-v)/(hi-lo)*float64(chartHeight-2*chartPadding)
	}

	for i, v := range view.History {
		chart.History = append(chart.History, ChartPoint{X: xAt(i), Y: yAt(v)})
	}

	offset := len(view.History)
	if len(forecast) > len(view.Forecast) {
		offset--
	}
	for i, v := range forecast {
		p := ChartPoint{X: xAt(offset + i), Y: yAt(v)}
		chart.Forecast = append(chart.Forecast, p)
		if offset+i >= len(view.History) {
			chart.Markers = append(chart.Markers, p)
		}
	}
	return chart
}

var svgTemplate = template.Must(template.New("chart").Parse(
	`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 {{.Width}} {{.Height}}" class="chart">` +
		`{{if .History}}<polyline fill="none" stroke="{{.HistoryColor}}" stroke-opacity="0.3" stroke-width="2" points="{{.HistoryPoints}}"/>{{end}}` +
		`{{if .Forecast}}<polyline fill="none" stroke="{{.ForecastColor}}" stroke-width="3" points="{{.ForecastPoints}}"/>{{end}}` +
		`{{range .Markers}}<circle cx="{{printf "%.2f" .X}}" cy="{{printf "%.2f" .Y}}" r="3" fill="{{$.ForecastColor}}"/>{{end}}` +
		`</svg>`))

// SVG renders the chart as a standalone SVG document.
func (c Chart) SVG() (template.HTML, error) {
	var buf bytes.Buffer
	if err := svgTemplate.Execute(&buf, c); err != nil {
		return "", fmt.Errorf("failed to render chart: %w", err)
	}
	return template.HTML(buf.String()), nil
}
