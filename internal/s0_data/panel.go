package s0_data

import (
	"context"
	"fmt"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
)

// Panel is the read-only data context handed to every backtest entry point.
// Load it once per process (or per request) and share it read-only.
type Panel struct {
	Calendar     *calendar.Calendar
	Prices       *PricePanel
	Fundamentals *FundamentalsPanel
}

// Source loads a Panel for a calendar
type Source interface {
	Load(ctx context.Context, cal *calendar.Calendar) (*Panel, error)
}

// NewPanel validates that every part is present
func NewPanel(cal *calendar.Calendar, prices *PricePanel, fundamentals *FundamentalsPanel) (*Panel, error) {
	if cal == nil || prices == nil || fundamentals == nil {
		return nil, fmt.Errorf("panel requires calendar, prices and fundamentals")
	}
	return &Panel{Calendar: cal, Prices: prices, Fundamentals: fundamentals}, nil
}

// Universe returns the symbols of a quarter that also have prices
func (p *Panel) Universe(q calendar.Quarter) ([]string, error) {
	t, err := p.Fundamentals.Table(q)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(t.Rows))
	for _, r := range t.Rows {
		if p.Prices.Has(r.Symbol) {
			out = append(out, r.Symbol)
		}
	}
	return out, nil
}
