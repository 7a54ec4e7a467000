package util

import (
	"strconv"
	"time"
)

// ParseTime tries RFC3339 and RFC3339Nano. Returns (t, true) if either worked.
func ParseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// ParseMillis accepts epoch milliseconds (any sign) or an RFC3339 timestamp
// and returns epoch milliseconds.
func ParseMillis(s string) (int64, bool) {
	if s == "" {
		return 0, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms, true
	}
	if t, ok := ParseTime(s); ok {
		return t.UnixMilli(), true
	}
	return 0, false
}
