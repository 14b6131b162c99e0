// Package timefmt normalises every persisted timestamp to a single UTC
// format so lexicographic comparison of stored values matches time order.
package timefmt

import (
	"fmt"
	"time"
)

// layout always renders six fractional digits and a literal +00:00 offset.
const layout = "2006-01-02T15:04:05.000000"

// Format renders t in the canonical stored form.
func Format(t time.Time) string {
	return t.UTC().Format(layout) + "+00:00"
}

// Now returns the current instant in the canonical stored form.
func Now() string {
	return Format(time.Now())
}

// Parse reads a canonical timestamp back. It tolerates RFC 3339 variants
// with other offsets or missing fractions and normalises to UTC.
func Parse(s string) (time.Time, error) {
	layouts := []string{
		layout + "-07:00",
		"2006-01-02T15:04:05.999999999-07:00",
		"2006-01-02T15:04:05-07:00",
		time.RFC3339Nano,
		time.RFC3339,
	}
	for _, l := range layouts {
		if t, err := time.Parse(l, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
