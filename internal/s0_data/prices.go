package s0_data

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
)

// Point is one observed close price
type Point struct {
	Date  time.Time
	Price float64
}

// Series is one symbol's observed prices in date order, gaps removed
type Series struct {
	Symbol string
	dates  []time.Time
	prices []float64
}

// NewSeries builds a series from points. Non-positive and NaN prices are dropped,
// later duplicates of a date replace earlier ones.
func NewSeries(symbol string, points []Point) *Series {
	sorted := make([]Point, 0, len(points))
	for _, p := range points {
		if math.IsNaN(p.Price) || p.Price <= 0 {
			continue
		}
		sorted = append(sorted, Point{Date: calendar.Day(p.Date), Price: p.Price})
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	s := &Series{Symbol: symbol}
	for _, p := range sorted {
		if n := len(s.dates); n > 0 && s.dates[n-1].Equal(p.Date) {
			s.prices[n-1] = p.Price
			continue
		}
		s.dates = append(s.dates, p.Date)
		s.prices = append(s.prices, p.Price)
	}
	return s
}

// Len returns the number of observations
func (s *Series) Len() int { return len(s.dates) }

// PriceAtOrBefore returns the last observation on or before d
func (s *Series) PriceAtOrBefore(d time.Time) (Point, error) {
	d = calendar.Day(d)
	i := sort.Search(len(s.dates), func(i int) bool { return s.dates[i].After(d) })
	if i == 0 {
		return Point{}, fmt.Errorf("%w: %s has no price on or before %s", contracts.ErrDataGap, s.Symbol, d.Format(calendar.DateLayout))
	}
	return Point{Date: s.dates[i-1], Price: s.prices[i-1]}, nil
}

// PriceOnOrAfter returns the first observation on or after d
func (s *Series) PriceOnOrAfter(d time.Time) (Point, error) {
	d = calendar.Day(d)
	i := sort.Search(len(s.dates), func(i int) bool { return !s.dates[i].Before(d) })
	if i == len(s.dates) {
		return Point{}, fmt.Errorf("%w: %s has no price on or after %s", contracts.ErrDataGap, s.Symbol, d.Format(calendar.DateLayout))
	}
	return Point{Date: s.dates[i], Price: s.prices[i]}, nil
}

// PriceOn returns the exact observation on d
func (s *Series) PriceOn(d time.Time) (float64, bool) {
	d = calendar.Day(d)
	i := sort.Search(len(s.dates), func(i int) bool { return !s.dates[i].Before(d) })
	if i < len(s.dates) && s.dates[i].Equal(d) {
		return s.prices[i], true
	}
	return 0, false
}

// Window returns observations with start <= date <= end
func (s *Series) Window(start, end time.Time) []Point {
	start, end = calendar.Day(start), calendar.Day(end)
	lo := sort.Search(len(s.dates), func(i int) bool { return !s.dates[i].Before(start) })
	hi := sort.Search(len(s.dates), func(i int) bool { return s.dates[i].After(end) })
	if lo >= hi {
		return nil
	}
	out := make([]Point, 0, hi-lo)
	for i := lo; i < hi; i++ {
		out = append(out, Point{Date: s.dates[i], Price: s.prices[i]})
	}
	return out
}

// Last returns the final observation
func (s *Series) Last() (Point, error) {
	if len(s.dates) == 0 {
		return Point{}, fmt.Errorf("%w: %s has no prices", contracts.ErrDataGap, s.Symbol)
	}
	n := len(s.dates) - 1
	return Point{Date: s.dates[n], Price: s.prices[n]}, nil
}

// PricePanel is the date x symbol close price table
// ⭐ SSOT: 가격 패널 조회는 여기서만
type PricePanel struct {
	series map[string]*Series
	last   time.Time
}

// NewPricePanel indexes the given series by symbol
func NewPricePanel(series ...*Series) *PricePanel {
	p := &PricePanel{series: make(map[string]*Series, len(series))}
	for _, s := range series {
		p.series[s.Symbol] = s
		if pt, err := s.Last(); err == nil && pt.Date.After(p.last) {
			p.last = pt.Date
		}
	}
	return p
}

// NewPricePanelFromColumns builds a panel from a wide table: one date per row,
// one column per symbol, NaN for missing cells.
func NewPricePanelFromColumns(dates []time.Time, columns map[string][]float64) (*PricePanel, error) {
	series := make([]*Series, 0, len(columns))
	for symbol, values := range columns {
		if len(values) != len(dates) {
			return nil, fmt.Errorf("price column %s has %d rows, want %d", symbol, len(values), len(dates))
		}
		points := make([]Point, len(dates))
		for i, d := range dates {
			points[i] = Point{Date: d, Price: values[i]}
		}
		series = append(series, NewSeries(symbol, points))
	}
	return NewPricePanel(series...), nil
}

// Series returns one symbol's prices
func (p *PricePanel) Series(symbol string) (*Series, error) {
	s, ok := p.series[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: unknown symbol %s", contracts.ErrDataGap, symbol)
	}
	return s, nil
}

// Has reports whether the panel holds any price for symbol
func (p *PricePanel) Has(symbol string) bool {
	s, ok := p.series[symbol]
	return ok && s.Len() > 0
}

// Symbols returns all symbols sorted
func (p *PricePanel) Symbols() []string {
	out := make([]string, 0, len(p.series))
	for s := range p.series {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// LastDate is the final date observed for any symbol
func (p *PricePanel) LastDate() time.Time { return p.last }

// PriceAtOrBefore is the "last known price" lookup
func (p *PricePanel) PriceAtOrBefore(symbol string, d time.Time) (Point, error) {
	s, err := p.Series(symbol)
	if err != nil {
		return Point{}, err
	}
	return s.PriceAtOrBefore(d)
}

// PriceOnOrAfter is the "first available price" lookup used for executions
func (p *PricePanel) PriceOnOrAfter(symbol string, d time.Time) (Point, error) {
	s, err := p.Series(symbol)
	if err != nil {
		return Point{}, err
	}
	return s.PriceOnOrAfter(d)
}

// PriceOn returns the exact close on d
func (p *PricePanel) PriceOn(symbol string, d time.Time) (float64, bool) {
	s, ok := p.series[symbol]
	if !ok {
		return 0, false
	}
	return s.PriceOn(d)
}

// Window returns symbol's observations within [start, end]
func (p *PricePanel) Window(symbol string, start, end time.Time) []Point {
	s, ok := p.series[symbol]
	if !ok {
		return nil
	}
	return s.Window(start, end)
}

// Last returns symbol's final observation
func (p *PricePanel) Last(symbol string) (Point, error) {
	s, err := p.Series(symbol)
	if err != nil {
		return Point{}, err
	}
	return s.Last()
}
