package scheduleexpr

import (
	"fmt"
	"strings"
)

// Parse dispatches on raw's leading keyword: "every", "at", or "cron:".
func Parse(raw string) (Expr, error) {
	trimmed := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(trimmed, "every "):
		return parseEvery(strings.TrimSpace(trimmed[len("every "):]))
	case strings.HasPrefix(trimmed, "at "):
		return parseCalendar(strings.TrimSpace(trimmed[len("at "):]))
	case strings.HasPrefix(trimmed, "cron:"):
		return parseCron(strings.TrimSpace(trimmed[len("cron:"):]))
	default:
		return nil, fmt.Errorf("%w: %q has no recognized keyword (every/at/cron:)", ErrParse, raw)
	}
}
