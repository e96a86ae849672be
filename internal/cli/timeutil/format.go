// Package timeutil formats server start times and uptimes for "dittobtt status".
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// LocalTimeFormat is used for start times shown in the local zone.
const LocalTimeFormat = "Mon Jan 2 15:04:05 2006"

// FormatUptime turns a Go duration string ("72h30m15s") into "3d 0h 30m 15s".
// Leading zero units are dropped. Unparseable input is returned unchanged.
func FormatUptime(uptime string) string {
	d, err := time.ParseDuration(uptime)
	if err != nil {
		return uptime
	}

	total := int64(d.Seconds())
	units := []struct {
		suffix string
		n      int64
	}{
		{"d", total / 86400},
		{"h", total / 3600 % 24},
		{"m", total / 60 % 60},
		{"s", total % 60},
	}

	var parts []string
	for i, u := range units {
		if len(parts) == 0 && u.n == 0 && i < len(units)-1 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%d%s", u.n, u.suffix))
	}
	return strings.Join(parts, " ")
}

// FormatTime renders an RFC3339 timestamp in the local zone, or returns
// it unchanged when it does not parse.
func FormatTime(timestamp string) string {
	t, err := time.Parse(time.RFC3339, timestamp)
	if err != nil {
		return timestamp
	}
	return t.Local().Format(LocalTimeFormat)
}
