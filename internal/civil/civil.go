// Package civil handles the timezone-naive timestamp strings the store
// uses on disk. Rows are written as "YYYY-MM-DD HH:MM:SS" in one fixed
// zone; every reader must format query bounds with the exact same layout
// or range scans silently match nothing.
package civil

import (
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Layout is the on-disk timestamp layout.
const Layout = "2006-01-02 15:04:05"

// Format renders t as a civil timestamp string in loc.
func Format(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(Layout)
}

// Parse reads a civil timestamp string as an instant in loc.
func Parse(s string, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(Layout, s, loc)
}

// Normalize converts whatever timestamp representation a device sends
// into the canonical civil string in loc. Accepted inputs: epoch seconds
// or milliseconds (numeric), RFC 3339, and the civil layout itself
// (treated as already being in loc). An empty or unparsable value falls
// back to the current time.
func Normalize(raw string, loc *time.Location, now func() time.Time) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Format(now(), loc)
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		// epoch milliseconds past ~5138 AD can't be seconds
		if n > 1e11 {
			n /= 1000.0
		}
		sec := int64(n)
		nsec := int64((n - float64(sec)) * float64(time.Second))
		return Format(time.Unix(sec, nsec), loc)
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return Format(t, loc)
	}
	if t, err := Parse(strings.TrimSuffix(s, "Z"), loc); err == nil {
		return Format(t, loc)
	}
	return Format(now(), loc)
}

// LoadZone resolves a zone name, defaulting to UTC for "" and "utc".
func LoadZone(name string) (*time.Location, error) {
	switch strings.ToLower(name) {
	case "", "utc":
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.WithMessagef(err, "unknown timezone %s", name)
	}
	return loc, nil
}
