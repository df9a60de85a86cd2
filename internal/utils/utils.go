package utils

import (
	"fmt"
	"os"
	"time"
	"unicode/utf8"
)

// Timeout constants
const (
	ConnectTimeout = 15 // seconds - relay dial
	LeaveTimeout   = 3  // seconds - flushing the relay on exit
)

// FormatTimeDuration formats duration to human readable string
func FormatTimeDuration(d time.Duration) string {
	seconds := int(d.Seconds()) % 60
	minutes := int(d.Minutes()) % 60
	hours := int(d.Hours())

	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	} else if minutes > 0 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	} else {
		return fmt.Sprintf("%ds", seconds)
	}
}

// TruncateString shortens s to maxLen runes, marking the cut with "...".
func TruncateString(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	r := []rune(s)
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// DefaultDisplayName falls back to the login name, then a numbered guest.
func DefaultDisplayName() string {
	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(key); v != "" {
			return v
		}
	}
	return fmt.Sprintf("User %d", time.Now().UnixNano()%1000)
}
