// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"INR": "₹",
	"JPY": "¥",
}

// FormatMoney formats an amount with two decimals, thousands separators and
// the currency symbol when one is known ("USD" -> "$1,234.50").
func FormatMoney(amount decimal.Decimal, currency string) string {
	negative := amount.IsNegative()
	str := amount.Abs().StringFixed(2)
	intPart, decPart, _ := strings.Cut(str, ".")

	prefix, suffix := "", ""
	if sym, ok := currencySymbols[strings.ToUpper(currency)]; ok {
		prefix = sym
	} else if currency != "" {
		suffix = " " + strings.ToUpper(currency)
	}

	result := prefix + groupThousands(intPart) + "." + decPart + suffix
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts commas every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value decimal.Decimal) string {
	sign := ""
	if value.IsPositive() {
		sign = "+"
	}
	return sign + value.StringFixed(2) + "%"
}

// FormatPnL formats P&L with an explicit sign for gains.
func FormatPnL(pnl decimal.Decimal, currency string) string {
	formatted := FormatMoney(pnl, currency)
	if pnl.IsPositive() {
		return "+" + formatted
	}
	return formatted
}

// FormatOptional formats a nullable decimal, printing "-" when absent.
func FormatOptional(d *decimal.Decimal, places int32) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(places)
}

// FormatQuantity formats a quantity without trailing zeros and with separators.
func FormatQuantity(qty decimal.Decimal) string {
	str := qty.Abs().String()
	intPart, decPart, hasDec := strings.Cut(str, ".")
	out := groupThousands(intPart)
	if hasDec {
		out += "." + decPart
	}
	if qty.IsNegative() {
		out = "-" + out
	}
	return out
}

// FormatDuration formats a holding period compactly ("2d 3h", "45m").
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	days := int(d / (24 * time.Hour))
	hours := int(d % (24 * time.Hour) / time.Hour)
	minutes := int(d % time.Hour / time.Minute)

	switch {
	case days > 0:
		return fmt.Sprintf("%dd %dh", days, hours)
	case hours > 0:
		return fmt.Sprintf("%dh %dm", hours, minutes)
	default:
		return fmt.Sprintf("%dm", minutes)
	}
}
