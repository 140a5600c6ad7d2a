package features

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/parkercarrus/cluster-trading-strategy/internal/calendar"
	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
	"github.com/parkercarrus/cluster-trading-strategy/internal/s0_data"
)

type labelWindow struct {
	start, end time.Time
	avgDays    int
}

// window resolves the label's price window for quarter q.
// relative: [date(q+1), date(q+1)+W]; outright: [date(q+2), date(q+3)+W],
// falling back to date(q+2)+2W when q+3 is past the calendar.
func (b *Builder) window(q calendar.Quarter, relative bool) (labelWindow, error) {
	cal := b.panel.Calendar
	span := time.Duration(b.opts.WindowDays) * 24 * time.Hour

	if relative {
		next, err := cal.Advance(q, 1)
		if err != nil {
			return labelWindow{}, fmt.Errorf("%w: %v", contracts.ErrInsufficientData, err)
		}
		start, _ := cal.DateOf(next)
		return labelWindow{start: start, end: start.Add(span), avgDays: b.opts.RelativeAvgDays}, nil
	}

	startQ, err := cal.Advance(q, 2)
	if err != nil {
		return labelWindow{}, fmt.Errorf("%w: outright label for %s: %v", contracts.ErrInsufficientData, q, err)
	}
	start, _ := cal.DateOf(startQ)
	end := start.Add(2 * span)
	if endQ, err := cal.Advance(q, 3); err == nil {
		d, _ := cal.DateOf(endQ)
		end = d.Add(span)
	}
	return labelWindow{start: start, end: end, avgDays: b.opts.OutrightAvgDays}, nil
}

// labelCluster writes each member's label into targets.
// Relative labels subtract the mean return of the member's peers.
func (b *Builder) labelCluster(universe []string, members []int, w labelWindow, relative bool, targets []float64, table *Table) {
	returns := make(map[int]float64, len(members))
	for _, idx := range members {
		points := b.panel.Prices.Window(universe[idx], w.start, w.end)
		r, err := WindowReturn(points, w.avgDays)
		if err != nil {
			table.Skipped = append(table.Skipped, contracts.NewSkip(contracts.StageFeatures, table.Quarter.String(),
				universe[idx], w.start, err))
			continue
		}
		returns[idx] = r
	}

	for _, idx := range members {
		own, ok := returns[idx]
		if !ok {
			continue
		}
		if !relative {
			targets[idx] = own
			continue
		}

		peers := make([]float64, 0, len(members)-1)
		for _, other := range members {
			if other == idx {
				continue
			}
			if r, ok := returns[other]; ok {
				peers = append(peers, r)
			}
		}
		if len(peers) == 0 {
			table.Skipped = append(table.Skipped, contracts.NewSkip(contracts.StageFeatures, table.Quarter.String(),
				universe[idx], w.start, fmt.Errorf("%w: no cluster peers with returns", contracts.ErrInsufficientData)))
			continue
		}
		targets[idx] = own - stat.Mean(peers, nil)
	}
}

// WindowReturn is the change between the mean of the first avgDays and the
// mean of the last avgDays observations, relative to the first mean.
// It needs at least max(2, avgDays) observations.
func WindowReturn(points []s0_data.Point, avgDays int) (float64, error) {
	if avgDays < 1 {
		avgDays = 1
	}
	need := avgDays
	if need < 2 {
		need = 2
	}
	if len(points) < need {
		return math.NaN(), fmt.Errorf("%w: %d observations in window, need %d", contracts.ErrDataGap, len(points), need)
	}

	prices := make([]float64, len(points))
	for i, p := range points {
		prices[i] = p.Price
	}
	first := stat.Mean(prices[:avgDays], nil)
	last := stat.Mean(prices[len(prices)-avgDays:], nil)
	if first == 0 {
		return math.NaN(), fmt.Errorf("%w: zero starting price", contracts.ErrDataGap)
	}
	return (last - first) / first, nil
}
