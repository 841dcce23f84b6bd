package types

import (
	"errors"
	"strings"
	"time"
)

// DateLayout is the bare calendar date form (year-month-day, no time).
const DateLayout = "2006-01-02"

// ErrUnparseableTime indicates a string matched none of the accepted layouts.
var ErrUnparseableTime = errors.New("unparseable time")

// Zoned layouts first; zone-less layouts are interpreted in UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
}

// ParseTime parses an absolute instant. dateOnly is true when s is a bare
// calendar date, which callers widen to whole-day bounds.
func ParseTime(s string) (t time.Time, dateOnly bool, err error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(DateLayout, s); err == nil {
		return d, true, nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, false, nil
		}
	}
	return time.Time{}, false, ErrUnparseableTime
}

// StartOfDay returns 00:00:00.000 of t's calendar date in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay returns 23:59:59.999 of t's calendar date in t's location.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, int(999*time.Millisecond), t.Location())
}
