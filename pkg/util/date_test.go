package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseTime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-10-10T10:10:10Z", time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC), true},
		{"2021-11-10T14:24:11.849Z", time.Date(2021, 11, 10, 14, 24, 11, 849_000_000, time.UTC), true},
		{"2024-10-10T17:10:10+07:00", time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC), true},
		{"2024-03-01 08:00:00", time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), true},
		{"2024-03-01", time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), true},
		{"1728555010", time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC), true},
		{"", time.Time{}, false},
		{"-5", time.Time{}, false},
		{"yesterday", time.Time{}, false},
	}
	for _, tc := range cases {
		got, ok := ParseTime(tc.in)
		assert.Equal(t, tc.ok, ok, tc.in)
		assert.True(t, tc.want.Equal(got), "%s: got %v", tc.in, got)
	}
}

func TestDay(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	got := Day(time.Date(2024, 3, 2, 3, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), got)
}

func TestFromUnixMillis(t *testing.T) {
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), FromUnixMillis(1704067200000))
}
