package tracker

import (
	"time"
)

// ClassifyIdle reports whether a tick counts as idle: at least threshold
// has passed since the last user input. A zero lastInput means the OS
// could not report it; the tick then counts as active so that idle time
// the user never had is not invented.
func ClassifyIdle(now, lastInput time.Time, threshold time.Duration) bool {
	if lastInput.IsZero() {
		return false
	}
	return now.Sub(lastInput) >= threshold
}
