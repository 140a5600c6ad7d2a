package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/parkercarrus/cluster-trading-strategy/internal/contracts"
)

// DateLayout is the date format used for calendar entries and exports
const DateLayout = "2006-01-02"

// Entry maps a quarter to its rebalance date
type Entry struct {
	Quarter Quarter
	Date    time.Time
}

// Calendar is an immutable, contiguous, ordered set of quarters
// ⭐ SSOT: 분기 → 리밸런싱 날짜 매핑은 여기서만
type Calendar struct {
	entries []Entry
	index   map[Quarter]int
}

// NewCalendar validates that quarters are contiguous and dates strictly increase
func NewCalendar(entries []Entry) (*Calendar, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: empty quarter calendar", contracts.ErrConfiguration)
	}

	c := &Calendar{
		entries: make([]Entry, len(entries)),
		index:   make(map[Quarter]int, len(entries)),
	}
	for i, e := range entries {
		e.Date = Day(e.Date)
		if i > 0 {
			prev := entries[i-1]
			if prev.Quarter.Next() != e.Quarter {
				return nil, fmt.Errorf("%w: calendar not contiguous at %s -> %s",
					contracts.ErrConfiguration, prev.Quarter, e.Quarter)
			}
			if !Day(prev.Date).Before(e.Date) {
				return nil, fmt.Errorf("%w: rebalance date of %s does not follow %s",
					contracts.ErrConfiguration, e.Quarter, prev.Quarter)
			}
		}
		c.entries[i] = e
		c.index[e.Quarter] = i
	}

	return c, nil
}

// Default is the supported history: 2021_Q1..2024_Q4, rebalancing on the 15th
// of the month after filings are due (May, Aug, Nov, Feb).
func Default() *Calendar {
	var entries []Entry
	for year := 2021; year <= 2024; year++ {
		entries = append(entries,
			Entry{Quarter{year, 1}, time.Date(year, time.May, 15, 0, 0, 0, 0, time.UTC)},
			Entry{Quarter{year, 2}, time.Date(year, time.August, 15, 0, 0, 0, 0, time.UTC)},
			Entry{Quarter{year, 3}, time.Date(year, time.November, 15, 0, 0, 0, 0, time.UTC)},
			Entry{Quarter{year, 4}, time.Date(year+1, time.February, 15, 0, 0, 0, 0, time.UTC)},
		)
	}
	c, err := NewCalendar(entries)
	if err != nil {
		panic(err)
	}
	return c
}

// FromMap builds a calendar from "2021_Q1" -> "2021-05-15" pairs
func FromMap(m map[string]string) (*Calendar, error) {
	entries := make([]Entry, 0, len(m))
	for label, date := range m {
		q, err := ParseQuarter(label)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", contracts.ErrConfiguration, err)
		}
		d, err := time.Parse(DateLayout, date)
		if err != nil {
			return nil, fmt.Errorf("%w: date for %s: %v", contracts.ErrConfiguration, label, err)
		}
		entries = append(entries, Entry{Quarter: q, Date: d})
	}
	sortEntries(entries)
	return NewCalendar(entries)
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Quarter.Before(entries[j].Quarter)
	})
}

// Quarters returns the ordered quarter sequence
func (c *Calendar) Quarters() []Quarter {
	out := make([]Quarter, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Quarter
	}
	return out
}

// Entries returns a copy of the calendar entries
func (c *Calendar) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

func (c *Calendar) Len() int { return len(c.entries) }

func (c *Calendar) First() Quarter { return c.entries[0].Quarter }

func (c *Calendar) Last() Quarter { return c.entries[len(c.entries)-1].Quarter }

// Contains reports whether q is in the calendar
func (c *Calendar) Contains(q Quarter) bool {
	_, ok := c.index[q]
	return ok
}

// DateOf returns the rebalance date of q
func (c *Calendar) DateOf(q Quarter) (time.Time, error) {
	i, ok := c.index[q]
	if !ok {
		return time.Time{}, fmt.Errorf("%w: %s", contracts.ErrOutOfRange, q)
	}
	return c.entries[i].Date, nil
}

// Successor returns the next quarter, failing past the last known quarter
func (c *Calendar) Successor(q Quarter) (Quarter, error) {
	i, ok := c.index[q]
	if !ok || i+1 >= len(c.entries) {
		return Quarter{}, fmt.Errorf("%w: no successor for %s", contracts.ErrOutOfRange, q)
	}
	return c.entries[i+1].Quarter, nil
}

// Predecessor returns the previous quarter, failing before the first known quarter
func (c *Calendar) Predecessor(q Quarter) (Quarter, error) {
	i, ok := c.index[q]
	if !ok || i == 0 {
		return Quarter{}, fmt.Errorf("%w: no predecessor for %s", contracts.ErrOutOfRange, q)
	}
	return c.entries[i-1].Quarter, nil
}

// Advance walks n successors from q
func (c *Calendar) Advance(q Quarter, n int) (Quarter, error) {
	i, ok := c.index[q]
	if !ok || i+n < 0 || i+n >= len(c.entries) {
		return Quarter{}, fmt.Errorf("%w: %s%+d", contracts.ErrOutOfRange, q, n)
	}
	return c.entries[i+n].Quarter, nil
}

// Range returns from..to inclusive. Zero quarters mean the calendar bounds.
func (c *Calendar) Range(from, to Quarter) ([]Quarter, error) {
	if from == (Quarter{}) {
		from = c.First()
	}
	if to == (Quarter{}) {
		to = c.Last()
	}

	i, ok := c.index[from]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contracts.ErrOutOfRange, from)
	}
	j, ok := c.index[to]
	if !ok {
		return nil, fmt.Errorf("%w: %s", contracts.ErrOutOfRange, to)
	}
	if j < i {
		return nil, fmt.Errorf("%w: %s is after %s", contracts.ErrConfiguration, from, to)
	}

	out := make([]Quarter, 0, j-i+1)
	for k := i; k <= j; k++ {
		out = append(out, c.entries[k].Quarter)
	}
	return out, nil
}

// QuarterOn returns the latest quarter whose rebalance date is on or before d
func (c *Calendar) QuarterOn(d time.Time) (Quarter, bool) {
	d = Day(d)
	found := -1
	for i, e := range c.entries {
		if e.Date.After(d) {
			break
		}
		found = i
	}
	if found < 0 {
		return Quarter{}, false
	}
	return c.entries[found].Quarter, true
}

// Day truncates t to midnight UTC
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
