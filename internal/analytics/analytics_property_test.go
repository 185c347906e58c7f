package analytics

import (
	"fmt"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/shopspring/decimal"

	"tradelens/internal/models"
)

func tradesFromCents(values []int) []models.TradeWithMetrics {
	trades := make([]models.TradeWithMetrics, len(values))
	for i, v := range values {
		trades[i] = closedTrade(fmt.Sprintf("t%d", i), decimal.New(int64(v), -2).String(), base.Add(time.Duration(i)*time.Minute))
	}
	return trades
}

// Property: outcome counts partition the closed trades, the win rate stays
// within [0, 100] and net P&L equals gross profit plus gross loss.
func TestProperty_SummaryConsistency(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("summary counts and totals are consistent", prop.ForAll(
		func(values []int) bool {
			s := Summarize(tradesFromCents(values), decimal.Zero)
			if s.Wins+s.Losses+s.Breakeven != s.TotalTrades || s.TotalTrades != len(values) {
				return false
			}
			if s.WinRate.IsNegative() || s.WinRate.GreaterThan(hundred) {
				return false
			}
			if !s.NetPnL.Equal(s.GrossProfit.Add(s.GrossLoss)) {
				return false
			}
			return !s.MaxDrawdown.IsNegative()
		},
		gen.SliceOf(gen.IntRange(-100000, 100000)),
	))

	properties.TestingRun(t)
}

// Property: the final equity curve point equals the starting balance plus the
// net P&L of every closed trade.
func TestProperty_EquityCurveEndsAtBalance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("last equity = start + net", prop.ForAll(
		func(values []int, start int) bool {
			trades := tradesFromCents(values)
			startBal := decimal.NewFromInt(int64(start))
			points := EquityCurve(trades, startBal)
			if len(points) != len(values) {
				return false
			}
			if len(points) == 0 {
				return true
			}
			s := Summarize(trades, startBal)
			return points[len(points)-1].Equity.Equal(startBal.Add(s.NetPnL))
		},
		gen.SliceOf(gen.IntRange(-100000, 100000)).SuchThat(func(v []int) bool { return len(v) > 0 }),
		gen.IntRange(0, 1000000),
	))

	properties.TestingRun(t)
}
