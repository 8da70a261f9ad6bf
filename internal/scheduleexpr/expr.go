// Package scheduleexpr parses Lunasched schedule strings and computes the
// next fire instant after a reference time.
package scheduleexpr

import (
	"errors"
	"time"
)

var (
	ErrParse           = errors.New("schedule expression: parse error")
	ErrUnknownTimeZone = errors.New("schedule expression: unknown timezone")
)

// Family identifies which of the three schedule grammars produced an Expr.
// Window-key truncation granularity is chosen by SubMinute, not by Family.
type Family int

const (
	FamilyEvery Family = iota
	FamilyCalendar
	FamilyCron
)

// Expr is a parsed schedule. NextAfter is pure and total for any Expr
// returned by Parse: it returns the strictly-next instant strictly greater
// than reference, resolving exact-boundary ties to the following boundary.
type Expr interface {
	NextAfter(reference time.Time, loc *time.Location) time.Time
	Family() Family
	// SubMinute reports whether this expression can fire more than once a
	// minute, which forces second-granularity window keys (spec §4.2).
	SubMinute() bool
	String() string
}

// WindowKey truncates t to the granularity the family requires and
// serializes it as an ISO-8601 UTC string, matching spec §4.2.
func WindowKey(e Expr, t time.Time) string {
	t = t.UTC()
	if e.SubMinute() {
		return t.Truncate(time.Second).Format(time.RFC3339)
	}
	return t.Truncate(time.Minute).Format("2006-01-02T15:04Z")
}
