package ratelimit

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// ceilSeconds arredonda para cima; negativos viram 0.
func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}

// RetryAfterSeconds é ceilSeconds com mínimo de 1, como o header espera.
func RetryAfterSeconds(d time.Duration) string {
	return formatInt(max(ceilSeconds(d), 1))
}
