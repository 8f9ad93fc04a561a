package bot

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRelativeSince(t *testing.T) {
	tests := []struct {
		name     string
		elapsed  time.Duration
		expected string
	}{
		{"seconds", 30 * time.Second, "just now"},
		{"minutes", 5 * time.Minute, "5 min ago"},
		{"one hour", 90 * time.Minute, "1 hour ago"},
		{"hours", 5 * time.Hour, "5 hours ago"},
		{"one day", 30 * time.Hour, "1 day ago"},
		{"days", 3 * 24 * time.Hour, "3 days ago"},
		{"weeks", 10 * 24 * time.Hour, "1 week ago"},
		{"two weeks", 15 * 24 * time.Hour, "2 weeks ago"},
		{"months", 65 * 24 * time.Hour, "2 months ago"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, relativeSince(tt.elapsed))
		})
	}
}

func TestRelativeTime(t *testing.T) {
	recent := time.Now().Add(-10 * time.Minute).UnixMilli()
	assert.Equal(t, "10 min ago", RelativeTime(recent))
}
