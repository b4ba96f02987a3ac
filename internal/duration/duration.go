// Package duration parses the human-readable scan windows accepted by
// the --since flag.
package duration

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// windowUnits maps accepted suffixes to their length. Months and years
// are calendar approximations; issue scanning does not need exactness.
var windowUnits = map[string]time.Duration{
	"m":     time.Minute,
	"min":   time.Minute,
	"h":     time.Hour,
	"hr":    time.Hour,
	"hour":  time.Hour,
	"d":     24 * time.Hour,
	"day":   24 * time.Hour,
	"w":     7 * 24 * time.Hour,
	"wk":    7 * 24 * time.Hour,
	"week":  7 * 24 * time.Hour,
	"mo":    30 * 24 * time.Hour,
	"month": 30 * 24 * time.Hour,
	"y":     365 * 24 * time.Hour,
	"yr":    365 * 24 * time.Hour,
	"year":  365 * 24 * time.Hour,
}

// Parse converts a window like "1w", "30d", or "6mo" into the cutoff
// time that far in the past. Issues created before the cutoff fall
// outside the scan.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)

	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i == len(s) {
		return time.Time{}, fmt.Errorf("invalid scan window %q (use e.g. 1w, 30d, 6mo)", s)
	}

	n, err := strconv.Atoi(s[:i])
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid scan window %q: %w", s, err)
	}

	unit := strings.ToLower(s[i:])
	// Plural suffixes collapse to their singular form ("days" -> "day").
	if len(unit) > 1 {
		unit = strings.TrimSuffix(unit, "s")
	}

	size, ok := windowUnits[unit]
	if !ok {
		return time.Time{}, fmt.Errorf("unknown scan window unit %q in %q", s[i:], s)
	}

	return time.Now().Add(-time.Duration(n) * size), nil
}
