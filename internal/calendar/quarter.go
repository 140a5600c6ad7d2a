package calendar

import (
	"fmt"
	"strconv"
	"strings"
)

// Quarter is a fiscal quarter label such as 2021_Q1
type Quarter struct {
	Year int
	Q    int // 1..4
}

// ParseQuarter parses "2021_Q1" (also accepts "2021Q1" and "2021-Q1")
func ParseQuarter(s string) (Quarter, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer("_", "", "-", "").Replace(norm)

	idx := strings.Index(norm, "Q")
	if idx <= 0 || idx == len(norm)-1 {
		return Quarter{}, fmt.Errorf("invalid quarter %q", s)
	}

	year, err := strconv.Atoi(norm[:idx])
	if err != nil {
		return Quarter{}, fmt.Errorf("invalid quarter year %q: %w", s, err)
	}
	q, err := strconv.Atoi(norm[idx+1:])
	if err != nil || q < 1 || q > 4 {
		return Quarter{}, fmt.Errorf("invalid quarter number %q", s)
	}

	return Quarter{Year: year, Q: q}, nil
}

// MustParse panics on an invalid label. Only for literals.
func MustParse(s string) Quarter {
	q, err := ParseQuarter(s)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quarter) String() string {
	return fmt.Sprintf("%d_Q%d", q.Year, q.Q)
}

// IsZero reports whether q is unset
func (q Quarter) IsZero() bool {
	return q == Quarter{}
}

// Next returns the following quarter; Q4 rolls into Q1 of the next year
func (q Quarter) Next() Quarter {
	if q.Q == 4 {
		return Quarter{Year: q.Year + 1, Q: 1}
	}
	return Quarter{Year: q.Year, Q: q.Q + 1}
}

// Prev returns the preceding quarter
func (q Quarter) Prev() Quarter {
	if q.Q == 1 {
		return Quarter{Year: q.Year - 1, Q: 4}
	}
	return Quarter{Year: q.Year, Q: q.Q - 1}
}

// Before reports whether q sorts strictly before other
func (q Quarter) Before(other Quarter) bool {
	if q.Year != other.Year {
		return q.Year < other.Year
	}
	return q.Q < other.Q
}

// MarshalText lets quarters be map keys and YAML/JSON scalars
// The zero quarter encodes as an empty string.
func (q Quarter) MarshalText() ([]byte, error) {
	if q.IsZero() {
		return []byte{}, nil
	}
	return []byte(q.String()), nil
}

func (q *Quarter) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*q = Quarter{}
		return nil
	}
	parsed, err := ParseQuarter(string(b))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
