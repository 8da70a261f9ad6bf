package scheduleexpr

import (
	"fmt"
	"strconv"
	"time"
)

// everyExpr is "every <N><unit>", unit in {s, m, h, d}. NextAfter is
// anchored to the last fire (or, when anchor is zero, to reference itself
// — the scheduler passes job creation time as the first anchor).
type everyExpr struct {
	n    int
	unit byte
	raw  string
}

func (e *everyExpr) interval() time.Duration {
	d := time.Duration(e.n)
	switch e.unit {
	case 's':
		return d * time.Second
	case 'm':
		return d * time.Minute
	case 'h':
		return d * time.Hour
	case 'd':
		return d * 24 * time.Hour
	default:
		return d * time.Second
	}
}

// NextAfter returns the smallest reference+k*interval strictly greater than
// reference. every's anchor is reference itself: callers supply
// max(last_window, now-slack) as reference per spec §4.3, so "last fire" is
// folded into the reference argument rather than tracked here.
func (e *everyExpr) NextAfter(reference time.Time, loc *time.Location) time.Time {
	return reference.Add(e.interval())
}

func (e *everyExpr) Family() Family { return FamilyEvery }

func (e *everyExpr) SubMinute() bool {
	return e.unit == 's' && e.n < 60
}

func (e *everyExpr) String() string { return "every " + e.raw }

func parseEvery(s string) (Expr, error) {
	if s == "" {
		return nil, fmt.Errorf("%w: empty every expression", ErrParse)
	}
	unit := s[len(s)-1]
	switch unit {
	case 's', 'm', 'h', 'd':
	default:
		return nil, fmt.Errorf("%w: every: unknown unit %q (want s/m/h/d)", ErrParse, string(unit))
	}
	numPart := s[:len(s)-1]
	n, err := strconv.Atoi(numPart)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("%w: every: invalid count %q", ErrParse, numPart)
	}
	return &everyExpr{n: n, unit: unit, raw: s}, nil
}
