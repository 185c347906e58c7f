package cli

import (
	"regexp"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"tradelens/pkg/utils"
)

// Money formatting keeps the value and groups thousands for any amount the
// tables print.
func TestProperty_MoneyFormatting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	grouped := regexp.MustCompile(`^\d{1,3}(,\d{3})*\.\d{2}$`)

	properties.Property("USD amounts are grouped with two decimals", prop.ForAll(
		func(cents int64) bool {
			amount := decimal.New(cents, -2)
			formatted := utils.FormatMoney(amount, "USD")

			body := strings.TrimPrefix(formatted, "-")
			if amount.IsNegative() != strings.HasPrefix(formatted, "-") {
				t.Logf("sign lost for %s: %s", amount, formatted)
				return false
			}
			if !strings.HasPrefix(body, "$") {
				t.Logf("missing symbol for %s: %s", amount, formatted)
				return false
			}
			return grouped.MatchString(strings.TrimPrefix(body, "$"))
		},
		gen.Int64Range(-1e14, 1e14),
	))

	properties.Property("formatting preserves the value", prop.ForAll(
		func(cents int64) bool {
			amount := decimal.New(cents, -2)
			formatted := utils.FormatMoney(amount, "USD")

			plain := strings.NewReplacer("$", "", ",", "").Replace(formatted)
			parsed, err := decimal.NewFromString(plain)
			if err != nil {
				t.Logf("unparseable %s: %v", formatted, err)
				return false
			}
			return parsed.Equal(amount)
		},
		gen.Int64Range(-1e12, 1e12),
	))

	properties.Property("gains carry a plus sign", prop.ForAll(
		func(cents int64) bool {
			amount := decimal.New(cents, -2)
			formatted := utils.FormatPnL(amount, "USD")
			return strings.HasPrefix(formatted, "+") == amount.IsPositive()
		},
		gen.Int64Range(-1e9, 1e9),
	))

	properties.Property("TruncateString respects the limit", prop.ForAll(
		func(s string, limit int) bool {
			out := TruncateString(s, limit)
			if utf8.RuneCountInString(s) <= limit {
				return out == s
			}
			return utf8.RuneCountInString(out) == limit
		},
		gen.AnyString(),
		gen.IntRange(0, 40),
	))

	properties.TestingRun(t)
}
