package loop

import "time"

// monotonicNow returns a microsecond-resolution monotonic timestamp. Go's
// time.Now() already carries a monotonic reading alongside the wall clock;
// subtracting two such values strips to the monotonic component per the
// time package's documented behavior, which is all the timer queue and
// selector timeout math below ever do (durations, never wall-clock
// comparisons against an external source).
func monotonicNow() time.Time {
	return time.Now()
}
