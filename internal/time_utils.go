package internal

import (
	"fmt"
	"time"
)

const (
	// DisplayTimeFormat is the standard time format used across the application
	DisplayTimeFormat = "2006-01-02 15:04:05"
)

// FormatLocal formats t in the local time zone.
func FormatLocal(t time.Time) string {
	return t.Local().Format(DisplayTimeFormat)
}

// FormatRemaining renders the time left until t, e.g. "1h05m left".
func FormatRemaining(t, now time.Time) string {
	if !t.After(now) {
		return "Expired"
	}
	diff := t.Sub(now)
	return fmt.Sprintf("%dh%02dm left", int(diff.Hours()), int(diff.Minutes())%60)
}

// FormatUptime renders how long ago t was, e.g. "2h10m".
func FormatUptime(t, now time.Time) string {
	diff := now.Sub(t)
	if diff < time.Minute {
		return "<1m"
	}
	return fmt.Sprintf("%dh%02dm", int(diff.Hours()), int(diff.Minutes())%60)
}
