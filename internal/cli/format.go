package cli

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"tradelens/internal/models"
	"tradelens/pkg/utils"
)

// FormatDate formats a date in loc.
func FormatDate(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02-Jan-2006")
}

// FormatDateTime formats a timestamp in loc.
func FormatDateTime(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("02-Jan-2006 15:04")
}

// FormatOptionalTime formats a nullable timestamp, printing "-" when absent.
func FormatOptionalTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return "-"
	}
	return FormatDateTime(*t, loc)
}

// FormatWinRate formats a 0-100 win rate without a sign.
func FormatWinRate(rate decimal.Decimal) string {
	return rate.StringFixed(1) + "%"
}

// FormatRatio formats a nullable ratio such as profit factor or R multiple.
func FormatRatio(d *decimal.Decimal) string {
	if d == nil {
		return "-"
	}
	return d.StringFixed(2)
}

// FormatSide renders a trade action with its quantity ("BUY 10").
func FormatSide(action models.Action, qty decimal.Decimal) string {
	return strings.ToUpper(string(action)) + " " + utils.FormatQuantity(qty)
}

// bytesToMB converts a byte count to megabytes rounded to one decimal.
func bytesToMB(n int64) decimal.Decimal {
	return decimal.NewFromInt(n).Div(decimal.NewFromInt(1 << 20)).Round(1)
}

// TruncateString truncates a string to max runes with an ellipsis.
func TruncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}

// PadRight pads a string to the right.
func PadRight(s string, length int) string {
	if n := len([]rune(s)); n < length {
		return s + strings.Repeat(" ", length-n)
	}
	return s
}
