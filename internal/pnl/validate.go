package pnl

import (
	"strings"

	"github.com/shopspring/decimal"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
)

// ValidateTrade checks the user-supplied fields of a trade.
func ValidateTrade(t *models.Trade) error {
	if strings.TrimSpace(t.Instrument) == "" {
		return apperrors.NewValidationError("instrument", t.Instrument, "is required")
	}
	if !t.Action.Valid() {
		return apperrors.NewValidationError("action", t.Action, "must be buy or sell")
	}
	if t.MarketType != "" && !t.MarketType.Valid() {
		return apperrors.NewValidationError("market_type", t.MarketType, "unknown market type")
	}
	if !t.Quantity.IsPositive() {
		return apperrors.NewValidationError("quantity", t.Quantity.String(), "must be positive")
	}
	if !t.EntryPrice.IsPositive() {
		return apperrors.NewValidationError("entry_price", t.EntryPrice.String(), "must be positive")
	}
	if t.EntryTime.IsZero() {
		return apperrors.NewValidationError("entry_time", t.EntryTime, "is required")
	}
	if t.Commission.IsNegative() {
		return apperrors.NewValidationError("commission", t.Commission.String(), "must not be negative")
	}
	if t.Fees.IsNegative() {
		return apperrors.NewValidationError("fees", t.Fees.String(), "must not be negative")
	}
	if t.ContractMultiplier.IsNegative() {
		return apperrors.NewValidationError("contract_multiplier", t.ContractMultiplier.String(), "must be positive")
	}
	if t.StopLoss != nil && !t.StopLoss.IsPositive() {
		return apperrors.NewValidationError("stop_loss", t.StopLoss.String(), "must be positive")
	}
	if t.Target != nil && !t.Target.IsPositive() {
		return apperrors.NewValidationError("target", t.Target.String(), "must be positive")
	}
	if t.Rating < 0 || t.Rating > 5 {
		return apperrors.NewValidationError("rating", t.Rating, "must be between 0 and 5")
	}
	return nil
}

// ValidateExit checks an exit leg against the trade and its other legs.
// existing must not contain the leg being validated.
func ValidateExit(trade *models.Trade, existing []models.PartialExit, exit *models.PartialExit) error {
	if !exit.Quantity.IsPositive() {
		return apperrors.NewValidationError("quantity", exit.Quantity.String(), "must be positive")
	}
	if !exit.ExitPrice.IsPositive() {
		return apperrors.NewValidationError("exit_price", exit.ExitPrice.String(), "must be positive")
	}
	if exit.ExitTime.IsZero() {
		return apperrors.NewValidationError("exit_time", exit.ExitTime, "is required")
	}
	if exit.ExitTime.Before(trade.EntryTime) {
		return apperrors.NewValidationError("exit_time", exit.ExitTime, "must not be before entry time")
	}
	if exit.Commission.IsNegative() {
		return apperrors.NewValidationError("commission", exit.Commission.String(), "must not be negative")
	}
	if exit.Fees.IsNegative() {
		return apperrors.NewValidationError("fees", exit.Fees.String(), "must not be negative")
	}

	exited := ExitedQuantity(existing)
	if exited.GreaterThanOrEqual(trade.Quantity) {
		return apperrors.NewTradeError(trade.ID, "exit", "no open quantity left", apperrors.ErrTradeClosed)
	}

	remaining := trade.Quantity.Sub(exited)
	if exit.Quantity.GreaterThan(remaining) {
		return apperrors.NewTradeError(trade.ID, "exit",
			"quantity "+exit.Quantity.String()+" exceeds remaining "+remaining.String(), apperrors.ErrOverExit)
	}
	return nil
}

// Remaining returns the quantity still open after the given legs.
func Remaining(trade *models.Trade, exits []models.PartialExit) decimal.Decimal {
	r := trade.Quantity.Sub(ExitedQuantity(exits))
	if r.IsNegative() {
		return decimal.Zero
	}
	return r
}
