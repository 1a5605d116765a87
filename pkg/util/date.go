package util

import (
	"strconv"
	"time"
)

// timeLayouts are tried in order by ParseTime. RFC3339 also accepts
// fractional seconds such as CoinGecko's "2021-11-10T14:24:11.849Z".
var timeLayouts = []string{time.RFC3339, time.DateTime, time.DateOnly}

// ParseTime accepts RFC3339, "2006-01-02 15:04:05", a bare date or unix
// seconds. Results are in UTC.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil && sec > 0 {
		return time.Unix(sec, 0).UTC(), true
	}
	return time.Time{}, false
}

// Day is the UTC calendar day containing t.
func Day(t time.Time) time.Time {
	return t.UTC().Truncate(24 * time.Hour)
}

func FromUnixMillis(ms float64) time.Time {
	return time.UnixMilli(int64(ms)).UTC()
}
