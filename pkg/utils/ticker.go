package utils

import (
	"strings"
)

// NormalizeTicker uppercases and trims a user-supplied ticker. A leading $
// (common in chat and social feeds) is dropped. Pair suffixes such as the
// "-USD" in "XMR-USD" are kept verbatim.
func NormalizeTicker(ticker string) string {
	ticker = strings.TrimSpace(strings.ToUpper(ticker))
	ticker = strings.TrimPrefix(ticker, "$")
	return ticker
}

// ParseTickers splits a comma-separated ticker list, normalizing each entry
// and dropping blanks and duplicates while keeping first-seen order.
func ParseTickers(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, raw := range strings.Split(list, ",") {
		t := NormalizeTicker(raw)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// IsCryptoPair reports whether the ticker looks like a Yahoo crypto pair
// (BASE-QUOTE, e.g. BTC-USD).
func IsCryptoPair(ticker string) bool {
	base, quote, ok := strings.Cut(NormalizeTicker(ticker), "-")
	return ok && base != "" && len(quote) == 3
}
