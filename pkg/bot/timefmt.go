package bot

import (
	"fmt"
	"time"
)

// RelativeTime renders a millisecond epoch timestamp as a coarse relative
// phrase for the session picker.
func RelativeTime(ms int64) string {
	return relativeSince(time.Since(time.UnixMilli(ms)))
}

func relativeSince(d time.Duration) string {
	seconds := int(d.Seconds())
	if seconds < 60 {
		return "just now"
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%d min ago", minutes)
	}
	hours := minutes / 60
	if hours < 24 {
		return plural(hours, "hour")
	}
	days := hours / 24
	if days < 7 {
		return plural(days, "day")
	}
	if days < 30 {
		return plural(days/7, "week")
	}
	return plural(days/30, "month")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
