package binance

import (
	"strings"
)

// StreamNames expands symbols and channels into stream names such as "btcusdt@trade".
func StreamNames(symbols, channels []string) []string {
	out := make([]string, 0, len(symbols)*len(channels))
	for _, s := range symbols {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		for _, ch := range channels {
			out = append(out, s+"@"+ch)
		}
	}
	return out
}

// streamURL encodes the combined-stream path when streams is non-empty.
func streamURL(base string, streams []string) string {
	base = strings.TrimRight(base, "/")
	if len(streams) == 0 {
		return base + "/ws"
	}
	return base + "/stream?streams=" + strings.Join(streams, "/")
}
