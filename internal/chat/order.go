package chat

import (
	"cmp"
	"slices"
	"sync/atomic"
	"time"
)

// Layouts accepted for message dates without an offset. The backend
// serializes its own wall-clock time this way; the zone it runs in is set
// with SetDateLocation (UTC unless configured).
var localDateLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

var dateLocation atomic.Pointer[time.Location]

// SetDateLocation sets the zone of dates that carry no offset. A nil loc
// restores UTC.
func SetDateLocation(loc *time.Location) {
	dateLocation.Store(loc)
}

func zoneOfLocalDates() *time.Location {
	if loc := dateLocation.Load(); loc != nil {
		return loc
	}
	return time.UTC
}

// ParseDate parses an ISO-8601 message date. Dates with an offset are taken
// as is; the rest are read in the configured backend zone so both kinds
// compare on one timeline. Unparseable dates yield the zero time so they
// sort first instead of failing the caller.
func ParseDate(s string) time.Time {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t
	}
	loc := zoneOfLocalDates()
	for _, layout := range localDateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Compare orders messages by (date, id).
func Compare(a, b Message) int {
	if c := ParseDate(a.Date).Compare(ParseDate(b.Date)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortMessages sorts msgs in place by (date, id).
func SortMessages(msgs []Message) {
	slices.SortStableFunc(msgs, Compare)
}

// Preview truncates a body for room list display.
func Preview(body string, maxRunes int) string {
	r := []rune(body)
	if len(r) <= maxRunes {
		return body
	}
	return string(r[:maxRunes])
}
