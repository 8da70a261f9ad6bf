package scheduleexpr

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// cronParserMinutes parses classic 5-field cron ("minute hour dom month
// dow") plus the "@yearly"/"@every <duration>"-style descriptors.
// cronParserSeconds additionally accepts a leading seconds field.
var (
	cronParserMinutes = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	cronParserSeconds = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
)

// cronExpr wraps a robfig/cron/v3 Schedule, the pack's cron-grammar library
// (also used by the queue-worker examples for their own retry scheduling).
type cronExpr struct {
	schedule  cron.Schedule
	subMinute bool
	raw       string
}

func (e *cronExpr) Family() Family  { return FamilyCron }
func (e *cronExpr) SubMinute() bool { return e.subMinute }
func (e *cronExpr) String() string  { return "cron:" + e.raw }

// NextAfter evaluates the wrapped Schedule in loc so calendar fields
// resolve in the job's timezone, matching every other Expr family.
func (e *cronExpr) NextAfter(reference time.Time, loc *time.Location) time.Time {
	return e.schedule.Next(reference.In(loc))
}

// parseCron parses a classic 5-field cron expression, a 6-field expression
// with a leading seconds field, or an "@hourly"/"@every"-style descriptor.
func parseCron(s string) (Expr, error) {
	orig := strings.TrimSpace(s)

	parser := cronParserMinutes
	subMinute := false
	switch {
	case len(strings.Fields(orig)) == 6:
		parser = cronParserSeconds
		subMinute = true
	case strings.HasPrefix(orig, "@every"):
		if dur, err := everyDescriptorInterval(orig); err == nil && dur < time.Minute {
			subMinute = true
		}
	}

	sched, err := parser.Parse(orig)
	if err != nil {
		return nil, fmt.Errorf("%w: cron: %v", ErrParse, err)
	}
	return &cronExpr{schedule: sched, subMinute: subMinute, raw: orig}, nil
}

func everyDescriptorInterval(s string) (time.Duration, error) {
	parts := strings.Fields(s)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed @every descriptor: %q", s)
	}
	return time.ParseDuration(parts[1])
}
