// Package utils provides common formatting and ticker helpers for yausma.
package utils

import (
	"fmt"
	"math"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// FormatUSD formats an amount as a dollar price with thousands separators,
// e.g. 211.34 → "$211.34", -1234.5 → "-$1,234.50".
func FormatUSD(amount float64) string {
	if amount < 0 {
		return "-" + printer.Sprintf("$%.2f", math.Abs(amount))
	}
	return printer.Sprintf("$%.2f", amount)
}

// FormatPct formats a percentage value with sign and suffix.
// e.g., 2.45 → "+2.45%", -1.23 → "-1.23%"
func FormatPct(pct float64) string {
	if pct >= 0 {
		return fmt.Sprintf("+%.2f%%", pct)
	}
	return fmt.Sprintf("%.2f%%", pct)
}

// FormatVolume formats volume in compact form.
// e.g., 1500000 → "1.50M", 25000 → "25.00K", 999 → "999"
func FormatVolume(volume int64) string {
	v := float64(volume)
	switch {
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	default:
		return fmt.Sprintf("%d", volume)
	}
}

// FormatInt formats an integer with thousands separators, e.g. 1234567 → "1,234,567".
func FormatInt(n int64) string {
	return printer.Sprintf("%d", n)
}
