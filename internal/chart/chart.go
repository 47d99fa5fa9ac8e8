// Package chart renders rate history as PNG charts and CSV exports.
package chart

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	chart "github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"uah-rates-bot/internal/model"
)

// ErrTooFewPoints is returned when a series cannot be drawn.
var ErrTooFewPoints = errors.New("chart needs at least two points")

// Period is a chart window offered to users.
type Period string

// Supported periods.
const (
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Periods lists the periods in menu order.
var Periods = []Period{PeriodDay, PeriodWeek, PeriodMonth}

// ParsePeriod accepts a case-insensitive period name.
func ParsePeriod(s string) (Period, error) {
	switch Period(strings.ToLower(strings.TrimSpace(s))) {
	case PeriodDay:
		return PeriodDay, nil
	case PeriodWeek:
		return PeriodWeek, nil
	case PeriodMonth:
		return PeriodMonth, nil
	}
	return "", fmt.Errorf("unknown period %q", s)
}

// Hours is the history window behind the period.
func (p Period) Hours() int {
	switch p {
	case PeriodWeek:
		return 168
	case PeriodMonth:
		return 720
	}
	return 24
}

// PeriodFor picks the smallest period covering hours.
func PeriodFor(hours int) Period {
	switch {
	case hours > 0 && hours <= PeriodDay.Hours():
		return PeriodDay
	case hours > 0 && hours <= PeriodWeek.Hours():
		return PeriodWeek
	}
	return PeriodMonth
}

func (p Period) timeLayout() string {
	if p == PeriodDay {
		return "15:04"
	}
	return "02.01"
}

// Options tune PNG rendering.
type Options struct {
	Currency model.Currency
	Period   Period
	Location *time.Location
	Width    int
	Height   int
}

var currencyColors = map[model.Currency]drawing.Color{
	model.USD: drawing.ColorFromHex("2ecc71"),
	model.EUR: drawing.ColorFromHex("3498db"),
}

// RenderPNG draws buy and sell lines for quotes.
func RenderPNG(w io.Writer, quotes []model.Quote, opts Options) error {
	if len(quotes) < 2 {
		return ErrTooFewPoints
	}
	if opts.Width <= 0 {
		opts.Width = 1200
	}
	if opts.Height <= 0 {
		opts.Height = 600
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	x := make([]time.Time, len(quotes))
	buy := make([]float64, len(quotes))
	sell := make([]float64, len(quotes))
	for i, q := range quotes {
		x[i] = q.ObservedAt
		buy[i] = q.Buy.InexactFloat64()
		sell[i] = q.Sell.InexactFloat64()
	}

	layout := opts.Period.timeLayout()
	timeFormatter := func(v interface{}) string {
		if f, ok := v.(float64); ok {
			return chart.TimeFromFloat64(f).In(loc).Format(layout)
		}
		return ""
	}
	rateFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.2f")
	}

	color, ok := currencyColors[opts.Currency]
	if !ok {
		color = currencyColors[model.USD]
	}

	graph := chart.Chart{
		Title:  fmt.Sprintf("%s/UAH, %s", opts.Currency, opts.Period),
		Width:  opts.Width,
		Height: opts.Height,
		Background: chart.Style{
			Padding: chart.Box{Top: 50, Left: 20, Right: 20, Bottom: 20},
		},
		XAxis: chart.XAxis{
			ValueFormatter: timeFormatter,
			Range:          timeRange(x),
		},
		YAxis: chart.YAxis{
			Name:           "UAH",
			ValueFormatter: rateFormatter,
			Range:          rateRange(buy, sell),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Buy",
				XValues: x,
				YValues: buy,
				Style:   chart.Style{StrokeColor: color, StrokeWidth: 2.5},
			},
			chart.TimeSeries{
				Name:    "Sell",
				XValues: x,
				YValues: sell,
				Style: chart.Style{
					StrokeColor:     drawing.ColorFromHex("e74c3c"),
					StrokeWidth:     2.5,
					StrokeDashArray: []float64{5, 3},
				},
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	return graph.Render(chart.PNG, w)
}

// timeRange pads a degenerate window so the axis never has zero width.
func timeRange(x []time.Time) *chart.ContinuousRange {
	minT, maxT := x[0], x[0]
	for _, t := range x[1:] {
		if t.Before(minT) {
			minT = t
		}
		if t.After(maxT) {
			maxT = t
		}
	}
	if !maxT.After(minT) {
		maxT = minT.Add(time.Minute)
	}
	return &chart.ContinuousRange{Min: chart.TimeToFloat64(minT), Max: chart.TimeToFloat64(maxT)}
}

func rateRange(series ...[]float64) *chart.ContinuousRange {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, values := range series {
		for _, v := range values {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	pad := (hi - lo) * 0.1
	if pad == 0 {
		pad = 0.1
	}
	return &chart.ContinuousRange{Min: lo - pad, Max: hi + pad}
}

// Downsample picks at most max evenly spaced quotes, keeping both ends.
func Downsample(quotes []model.Quote, max int) []model.Quote {
	if max <= 0 || len(quotes) <= max {
		return quotes
	}
	if max == 1 {
		return quotes[len(quotes)-1:]
	}

	result := make([]model.Quote, 0, max)
	step := float64(len(quotes)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(quotes) {
			idx = len(quotes) - 1
		}
		result = append(result, quotes[idx])
	}
	return result
}

// WriteCSV writes quotes with a header row.
func WriteCSV(w io.Writer, quotes []model.Quote, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	writer := csv.NewWriter(w)

	header := []string{"observed_at", "currency", "source", "buy", "sell"}
	if err := writer.Write(header); err != nil {
		return err
	}
	for _, q := range quotes {
		record := []string{
			q.ObservedAt.In(loc).Format(time.RFC3339),
			string(q.Currency),
			string(q.Source),
			q.Buy.StringFixed(2),
			q.Sell.StringFixed(2),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}
