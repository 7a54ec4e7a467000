package rules

import (
	"math"

	"VitalWatch/internal/domain/models"
)

// RapidDropWindowMillis is the trailing window used by the rapid saturation drop rule.
const RapidDropWindowMillis int64 = 600_000

// LastN returns the last n readings of category c, oldest first.
func LastN(window []models.Observation, c models.Category, n int) []models.Observation {
	out := make([]models.Observation, 0, n)
	for i := len(window) - 1; i >= 0 && len(out) < n; i-- {
		if window[i].Category == c {
			out = append(out, window[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Trailing returns the readings in series with from <= timestamp <= to.
// series must be ordered by timestamp.
func Trailing(series []models.Observation, from, to int64) []models.Observation {
	lo := 0
	for lo < len(series) && series[lo].Timestamp < from {
		lo++
	}
	hi := lo
	for hi < len(series) && series[hi].Timestamp <= to {
		hi++
	}
	return series[lo:hi]
}

// windowStart computes ts-span without wrapping below the smallest timestamp.
func windowStart(ts, span int64) int64 {
	if ts < math.MinInt64+span {
		return math.MinInt64
	}
	return ts - span
}
