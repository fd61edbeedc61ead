package conversion

import (
	"fmt"
	"math"
	"time"
)

var etaUnits = []struct {
	size time.Duration
	name string
}{
	{24 * time.Hour, "day"},
	{time.Hour, "hour"},
	{time.Minute, "minute"},
}

// FormatETA estimates the time left given the time spent so far and the
// completed fraction p. p must be greater than zero. Estimates beyond the
// range of time.Duration are clamped to its maximum.
func FormatETA(elapsed time.Duration, p float64) string {
	r := float64(elapsed) * (1 - p) / p
	if r >= float64(math.MaxInt64) {
		return formatRemaining(time.Duration(math.MaxInt64))
	}
	return formatRemaining(time.Duration(r))
}

// formatRemaining renders d in the largest whole unit it spans, rounded down.
func formatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	for _, u := range etaUnits {
		if d >= u.size {
			return plural(int64(d/u.size), u.name)
		}
	}
	return plural(int64(d/time.Second), "second")
}

func plural(n int64, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, unit)
	}
	return fmt.Sprintf("%d %ss", n, unit)
}
