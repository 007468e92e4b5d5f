package utils

import "fmt"

// FormatRoundedUnit renders a duration in its largest whole unit, the
// way the dashboard displays per-app totals.
func FormatRoundedUnit(seconds int64) string {
	if seconds < 0 {
		seconds = -seconds
	}
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}
	if seconds >= 3600 {
		return fmt.Sprintf("%dh", seconds/3600)
	}
	return fmt.Sprintf("%dm", seconds/60)
}

// FormatClock renders a duration as h:mm for report tables.
func FormatClock(seconds int64) string {
	if seconds < 0 {
		seconds = -seconds
	}
	return fmt.Sprintf("%d:%02d", seconds/3600, (seconds%3600)/60)
}
