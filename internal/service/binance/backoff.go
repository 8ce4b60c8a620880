package binance

import "time"

// Backoff returns the delay before reconnect attempt n (1-indexed):
// initial doubled n-1 times, capped at max.
func Backoff(initial, max time.Duration, attempt int) time.Duration {
	if initial <= 0 {
		return 0
	}
	d := initial
	for i := 1; i < attempt; i++ {
		if d >= max/2 {
			return max
		}
		d *= 2
	}
	if d > max {
		return max
	}
	return d
}
