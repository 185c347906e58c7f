// Package analytics aggregates trade metrics into performance statistics.
package analytics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"tradelens/internal/models"
)

var hundred = decimal.NewFromInt(100)

// Summary holds the aggregate statistics of a set of trades.
// Counts and P&L figures cover closed trades only.
type Summary struct {
	TotalTrades          int              `json:"total_trades"`
	OpenTrades           int              `json:"open_trades"`
	Wins                 int              `json:"wins"`
	Losses               int              `json:"losses"`
	Breakeven            int              `json:"breakeven"`
	WinRate              decimal.Decimal  `json:"win_rate"`
	GrossProfit          decimal.Decimal  `json:"gross_profit"`
	GrossLoss            decimal.Decimal  `json:"gross_loss"`
	NetPnL               decimal.Decimal  `json:"net_pnl"`
	RealizedOpenPnL      decimal.Decimal  `json:"realized_open_pnl"`
	ProfitFactor         *decimal.Decimal `json:"profit_factor,omitempty"`
	AverageWin           decimal.Decimal  `json:"average_win"`
	AverageLoss          decimal.Decimal  `json:"average_loss"`
	Expectancy           decimal.Decimal  `json:"expectancy"`
	LargestWin           decimal.Decimal  `json:"largest_win"`
	LargestLoss          decimal.Decimal  `json:"largest_loss"`
	MaxConsecutiveWins   int              `json:"max_consecutive_wins"`
	MaxConsecutiveLosses int              `json:"max_consecutive_losses"`
	MaxDrawdown          decimal.Decimal  `json:"max_drawdown"`
	MaxDrawdownPercent   decimal.Decimal  `json:"max_drawdown_percent"`
	AverageRMultiple     *decimal.Decimal `json:"average_r_multiple,omitempty"`
	TotalCommission      decimal.Decimal  `json:"total_commission"`
	TotalFees            decimal.Decimal  `json:"total_fees"`
	AverageHoldingSecs   int64            `json:"average_holding_seconds"`
	StartingBalance      decimal.Decimal  `json:"starting_balance"`
	EndingBalance        decimal.Decimal  `json:"ending_balance"`
}

// Closed returns the closed trades ordered by last exit time, oldest first.
func Closed(trades []models.TradeWithMetrics) []models.TradeWithMetrics {
	closed := make([]models.TradeWithMetrics, 0, len(trades))
	for _, t := range trades {
		if t.IsClosed() {
			closed = append(closed, t)
		}
	}
	sort.SliceStable(closed, func(i, j int) bool {
		return exitTime(closed[i]).Before(exitTime(closed[j]))
	})
	return closed
}

func exitTime(t models.TradeWithMetrics) time.Time {
	if t.Metrics.LastExitTime != nil {
		return *t.Metrics.LastExitTime
	}
	return t.Trade.EntryTime
}

// Summarize computes the aggregate statistics of trades. Equity for the drawdown
// calculation starts at startingBalance.
func Summarize(trades []models.TradeWithMetrics, startingBalance decimal.Decimal) Summary {
	s := Summary{
		StartingBalance: startingBalance,
		EndingBalance:   startingBalance,
	}

	for _, t := range trades {
		s.TotalCommission = s.TotalCommission.Add(t.Metrics.TotalCommission)
		s.TotalFees = s.TotalFees.Add(t.Metrics.TotalFees)
		if !t.IsClosed() {
			s.OpenTrades++
			s.RealizedOpenPnL = s.RealizedOpenPnL.Add(t.Metrics.NetPnL)
		}
	}

	closed := Closed(trades)
	s.TotalTrades = len(closed)
	if s.TotalTrades == 0 {
		return s
	}

	var (
		winStreak, lossStreak int
		holding               int64
		rSum                  decimal.Decimal
		rCount                int
	)

	equity := startingBalance
	peak := startingBalance

	for _, t := range closed {
		net := t.Metrics.NetPnL
		s.NetPnL = s.NetPnL.Add(net)
		holding += t.Metrics.DurationSeconds

		switch t.Metrics.Result {
		case models.ResultWin:
			s.Wins++
			s.GrossProfit = s.GrossProfit.Add(net)
			if net.GreaterThan(s.LargestWin) {
				s.LargestWin = net
			}
			winStreak++
			lossStreak = 0
		case models.ResultLoss:
			s.Losses++
			s.GrossLoss = s.GrossLoss.Add(net)
			if net.LessThan(s.LargestLoss) {
				s.LargestLoss = net
			}
			lossStreak++
			winStreak = 0
		default:
			s.Breakeven++
			winStreak = 0
			lossStreak = 0
		}
		if winStreak > s.MaxConsecutiveWins {
			s.MaxConsecutiveWins = winStreak
		}
		if lossStreak > s.MaxConsecutiveLosses {
			s.MaxConsecutiveLosses = lossStreak
		}

		if t.Metrics.RMultiple != nil {
			rSum = rSum.Add(*t.Metrics.RMultiple)
			rCount++
		}

		// Drawdown tracking
		equity = equity.Add(net)
		if equity.GreaterThan(peak) {
			peak = equity
		}
		dd := peak.Sub(equity)
		if dd.GreaterThan(s.MaxDrawdown) {
			s.MaxDrawdown = dd
			if peak.IsPositive() {
				s.MaxDrawdownPercent = dd.Div(peak).Mul(hundred)
			}
		}
	}

	total := decimal.NewFromInt(int64(s.TotalTrades))
	s.WinRate = decimal.NewFromInt(int64(s.Wins)).Div(total).Mul(hundred)
	s.Expectancy = s.NetPnL.Div(total)
	s.EndingBalance = equity
	s.AverageHoldingSecs = holding / int64(s.TotalTrades)

	if s.Wins > 0 {
		s.AverageWin = s.GrossProfit.Div(decimal.NewFromInt(int64(s.Wins)))
	}
	if s.Losses > 0 {
		s.AverageLoss = s.GrossLoss.Div(decimal.NewFromInt(int64(s.Losses)))
		pf := s.GrossProfit.Div(s.GrossLoss.Abs())
		s.ProfitFactor = &pf
	}
	if rCount > 0 {
		avg := rSum.Div(decimal.NewFromInt(int64(rCount)))
		s.AverageRMultiple = &avg
	}

	return s
}

// AccountBalance returns the starting balance of account plus the net P&L,
// realized so far, of every trade booked against it.
func AccountBalance(account models.Account, trades []models.TradeWithMetrics) decimal.Decimal {
	balance := account.StartingBalance
	for _, t := range trades {
		if t.Trade.AccountID != nil && *t.Trade.AccountID == account.ID {
			balance = balance.Add(t.Metrics.NetPnL)
		}
	}
	return balance
}
