// Package chart renders price tables as PNG line charts.
package chart

import (
	"errors"
	"fmt"

	"github.com/iwvelando/autocall-forecast/pkg/datetime"
	"github.com/iwvelando/autocall-forecast/pkg/pricetable"
	"github.com/vicanso/go-charts/v2"
)

// ErrNothingToPlot is returned for empty tables or asset lists.
var ErrNothingToPlot = errors.New("nothing to plot")

const (
	width     = 1000
	height    = 600
	maxLabels = 12
)

// RenderPaths draws one line per asset, rebased so every asset starts at 100.
func RenderPaths(table *pricetable.Table, assets []string, title string) ([]byte, error) {
	if table == nil || table.Len() == 0 || len(assets) == 0 {
		return nil, ErrNothingToPlot
	}

	series := make([][]float64, 0, len(assets))
	for _, a := range assets {
		prices, err := table.Series(a)
		if err != nil {
			return nil, err
		}
		base := prices[0]
		rebased := make([]float64, len(prices))
		for i, p := range prices {
			rebased[i] = 100 * p / base
		}
		series = append(series, rebased)
	}

	labels := make([]string, table.Len())
	for i, d := range table.Dates() {
		labels[i] = datetime.Format(d)
	}
	split := maxLabels
	if len(labels) < split {
		split = len(labels)
	}

	painter, err := charts.LineRender(series,
		charts.TitleTextOptionFunc(title),
		charts.XAxisOptionFunc(charts.XAxisOption{Data: labels, BoundaryGap: charts.FalseFlag(), SplitNumber: split}),
		charts.YAxisOptionFunc(charts.YAxisOption{DivideCount: 5}),
		charts.LegendOptionFunc(charts.LegendOption{Data: assets, Top: charts.PositionTop}),
		charts.ThemeOptionFunc(charts.ThemeLight),
		charts.WidthOptionFunc(width),
		charts.HeightOptionFunc(height),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}
	return painter.Bytes()
}
