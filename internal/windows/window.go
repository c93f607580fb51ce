// Package windows provides the 5-minute UTC bucket arithmetic that
// drives the publish schedule.
package windows

import "time"

// Size is the fixed aggregation window length.
const Size = 5 * time.Minute

// Window is a half-open UTC time bucket [Start, End) with
// End = Start + Size and Start aligned to a Size boundary.
type Window struct {
	Start time.Time
	End   time.Time
}

// Floor truncates t to the start of the bucket containing it.
func Floor(t time.Time) time.Time {
	return t.UTC().Truncate(Size)
}

// Next returns the window immediately following lastEnd.
func Next(lastEnd time.Time) Window {
	start := lastEnd.UTC()
	return Window{Start: start, End: start.Add(Size)}
}

// Due reports whether the window has fully elapsed at now. A window is
// processed only once it is entirely in the past, since raw rows may
// still be arriving for the current wall-clock minute.
func (w Window) Due(now time.Time) bool {
	return !w.End.After(Floor(now))
}
