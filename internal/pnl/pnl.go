// Package pnl computes trade metrics from a trade and its exit legs.
//
// All arithmetic is done in decimal and stored at full precision; RoundMoney is
// applied only when presenting values.
package pnl

import (
	"time"

	"github.com/shopspring/decimal"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
)

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Direction returns +1 for long (buy) trades and -1 for short (sell) trades.
func Direction(action models.Action) decimal.Decimal {
	if action == models.ActionSell {
		return one.Neg()
	}
	return one
}

// StatusFor derives the trade status from the entered and exited quantities.
func StatusFor(quantity, exited decimal.Decimal) models.TradeStatus {
	switch {
	case exited.LessThanOrEqual(decimal.Zero):
		return models.TradeOpen
	case exited.LessThan(quantity):
		return models.TradePartiallyClosed
	default:
		return models.TradeClosed
	}
}

// ExitedQuantity sums the quantity of all exit legs.
func ExitedQuantity(exits []models.PartialExit) decimal.Decimal {
	total := decimal.Zero
	for _, e := range exits {
		total = total.Add(e.Quantity)
	}
	return total
}

// Compute derives the metrics of a trade from its exit legs. now is used for the
// holding duration of trades that are still open.
func Compute(trade models.Trade, exits []models.PartialExit, now time.Time) (models.TradeMetrics, error) {
	m := models.TradeMetrics{
		TradeID:   trade.ID,
		UpdatedAt: now.UTC(),
	}

	mult := trade.Multiplier()
	dir := Direction(trade.Action)

	exited := decimal.Zero
	gross := decimal.Zero
	notional := decimal.Zero
	commission := trade.Commission
	fees := trade.Fees
	var lastExit time.Time

	for _, e := range exits {
		exited = exited.Add(e.Quantity)
		gross = gross.Add(e.ExitPrice.Sub(trade.EntryPrice).Mul(e.Quantity).Mul(dir).Mul(mult))
		notional = notional.Add(e.ExitPrice.Mul(e.Quantity))
		commission = commission.Add(e.Commission)
		fees = fees.Add(e.Fees)
		if e.ExitTime.After(lastExit) {
			lastExit = e.ExitTime
		}
	}

	if exited.GreaterThan(trade.Quantity) {
		return m, apperrors.NewTradeError(trade.ID, "compute", "exits exceed entered quantity", apperrors.ErrOverExit)
	}

	m.ExitedQuantity = exited
	m.RemainingQuantity = trade.Quantity.Sub(exited)
	m.GrossPnL = gross
	m.TotalCommission = commission
	m.TotalFees = fees
	m.NetPnL = gross.Sub(commission).Sub(fees)
	m.PercentGain = decimal.Zero

	if exited.IsPositive() {
		avg := notional.Div(exited)
		m.AvgExitPrice = &avg

		cost := trade.EntryPrice.Mul(exited).Mul(mult)
		if !cost.IsZero() {
			m.PercentGain = m.NetPnL.Div(cost).Mul(hundred)
		}

		if trade.StopLoss != nil {
			risk := trade.EntryPrice.Sub(*trade.StopLoss).Abs().Mul(exited).Mul(mult)
			if risk.IsPositive() {
				r := m.NetPnL.Div(risk)
				m.RMultiple = &r
			}
		}

		lt := lastExit.UTC()
		m.LastExitTime = &lt
	}

	status := StatusFor(trade.Quantity, exited)
	if status == models.TradeClosed {
		m.Result = ResultFor(m.NetPnL)
		m.DurationSeconds = int64(lastExit.Sub(trade.EntryTime) / time.Second)
	} else {
		m.Result = models.ResultNone
		m.DurationSeconds = int64(now.Sub(trade.EntryTime) / time.Second)
	}
	if m.DurationSeconds < 0 {
		m.DurationSeconds = 0
	}

	return m, nil
}

// ResultFor classifies a net P&L figure.
func ResultFor(net decimal.Decimal) models.TradeResult {
	switch net.Sign() {
	case 1:
		return models.ResultWin
	case -1:
		return models.ResultLoss
	default:
		return models.ResultBreakeven
	}
}

// RoundMoney rounds a money value to two decimal places for display.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
