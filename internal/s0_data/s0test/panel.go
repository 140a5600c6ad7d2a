// Package s0test builds small synthetic panels for tests.
package s0test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
)

// PriceFunc returns a symbol's close on a date; values <= 0 mean no observation
type PriceFunc func(d time.Time) float64

// Fixture describes a synthetic panel
type Fixture struct {
	Calendar *calendar.Calendar
	Start, End   time.Time
	Prices       map[string]PriceFunc
	Columns      []string
	Fundamentals map[string]map[string][]float64 // quarter label -> symbol -> values
}

// Date parses YYYY-MM-DD or panics
func Date(s string) time.Time {
	d, err := time.Parse(calendar.DateLayout, s)
	if err != nil {
		panic(err)
	}
	return d
}

// BusinessDays lists Mon-Fri dates in [start, end]
func BusinessDays(start, end time.Time) []time.Time {
	var out []time.Time
	for d := calendar.Day(start); !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			out = append(out, d)
		}
	}
	return out
}

// Calendar builds a calendar from label/date pairs
func Calendar(t testing.TB, pairs map[string]string) *calendar.Calendar {
	t.Helper()
	cal, err := calendar.FromMap(pairs)
	require.NoError(t, err)
	return cal
}

// Panel materializes the fixture
func Panel(t testing.TB, fx Fixture) *s0_data.Panel {
	t.Helper()

	days := BusinessDays(fx.Start, fx.End)
	series := make([]*s0_data.Series, 0, len(fx.Prices))
	for sym, fn := range fx.Prices {
		points := make([]s0_data.Point, 0, len(days))
		for _, d := range days {
			if v := fn(d); v > 0 {
				points = append(points, s0_data.Point{Date: d, Price: v})
			}
		}
		series = append(series, s0_data.NewSeries(sym, points))
	}

	var tables []*s0_data.FundamentalsTable
	for label, rows := range fx.Fundamentals {
		q, err := calendar.ParseQuarter(label)
		require.NoError(t, err)

		fr := make([]s0_data.FundamentalRow, 0, len(rows))
		for sym, values := range rows {
			fr = append(fr, s0_data.FundamentalRow{Symbol: sym, Values: values})
		}
		table, err := s0_data.NewFundamentalsTable(q, fx.Columns, fr)
		require.NoError(t, err)
		tables = append(tables, table)
	}

	panel, err := s0_data.NewPanel(fx.Calendar, s0_data.NewPricePanel(series...), s0_data.NewFundamentalsPanel(tables...))
	require.NoError(t, err)
	return panel
}

// Step returns a PriceFunc that is before until the switch date and after from it on
func Step(switchDate time.Time, before, after float64) PriceFunc {
	return func(d time.Time) float64 {
		if d.Before(switchDate) {
			return before
		}
		return after
	}
}

// Linear returns a PriceFunc growing by slope per calendar day from base at origin
func Linear(origin time.Time, base, slope float64) PriceFunc {
	return func(d time.Time) float64 {
		return base + slope*d.Sub(origin).Hours()/24
	}
}
