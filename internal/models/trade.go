package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade represents a journaled position.
type Trade struct {
	ID                 string           `db:"id" json:"id"`
	UserID             string           `db:"user_id" json:"user_id"`
	AccountID          *string          `db:"account_id" json:"account_id,omitempty"`
	StrategyID         *string          `db:"strategy_id" json:"strategy_id,omitempty"`
	Instrument         string           `db:"instrument" json:"instrument"`
	MarketType         MarketType       `db:"market_type" json:"market_type"`
	Action             Action           `db:"action" json:"action"`
	Quantity           decimal.Decimal  `db:"quantity" json:"quantity"`
	EntryPrice         decimal.Decimal  `db:"entry_price" json:"entry_price"`
	EntryTime          time.Time        `db:"entry_time" json:"entry_time"`
	StopLoss           *decimal.Decimal `db:"stop_loss" json:"stop_loss,omitempty"`
	Target             *decimal.Decimal `db:"target" json:"target,omitempty"`
	Commission         decimal.Decimal  `db:"commission" json:"commission"`
	Fees               decimal.Decimal  `db:"fees" json:"fees"`
	ContractMultiplier decimal.Decimal  `db:"contract_multiplier" json:"contract_multiplier"`
	Status             TradeStatus      `db:"status" json:"status"`
	Notes              string           `db:"notes" json:"notes"`
	Tags               StringList       `db:"tags" json:"tags"`
	Rating             int              `db:"rating" json:"rating"`
	IsShared           bool             `db:"is_shared" json:"is_shared"`
	CreatedAt          time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time        `db:"updated_at" json:"updated_at"`
}

// Multiplier returns the contract multiplier, treating zero as 1.
func (t *Trade) Multiplier() decimal.Decimal {
	if t.ContractMultiplier.IsZero() {
		return decimal.NewFromInt(1)
	}
	return t.ContractMultiplier
}

// PartialExit is one exit leg of a trade.
type PartialExit struct {
	ID         string          `db:"id" json:"id"`
	TradeID    string          `db:"trade_id" json:"trade_id"`
	Quantity   decimal.Decimal `db:"quantity" json:"quantity"`
	ExitPrice  decimal.Decimal `db:"exit_price" json:"exit_price"`
	ExitTime   time.Time       `db:"exit_time" json:"exit_time"`
	Commission decimal.Decimal `db:"commission" json:"commission"`
	Fees       decimal.Decimal `db:"fees" json:"fees"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// TradeMetrics holds the derived figures of a trade.
type TradeMetrics struct {
	TradeID           string           `db:"trade_id" json:"trade_id"`
	ExitedQuantity    decimal.Decimal  `db:"exited_quantity" json:"exited_quantity"`
	RemainingQuantity decimal.Decimal  `db:"remaining_quantity" json:"remaining_quantity"`
	AvgExitPrice      *decimal.Decimal `db:"avg_exit_price" json:"avg_exit_price,omitempty"`
	GrossPnL          decimal.Decimal  `db:"gross_pnl" json:"gross_pnl"`
	TotalCommission   decimal.Decimal  `db:"total_commission" json:"total_commission"`
	TotalFees         decimal.Decimal  `db:"total_fees" json:"total_fees"`
	NetPnL            decimal.Decimal  `db:"net_pnl" json:"net_pnl"`
	PercentGain       decimal.Decimal  `db:"percent_gain" json:"percent_gain"`
	RMultiple         *decimal.Decimal `db:"r_multiple" json:"r_multiple,omitempty"`
	Result            TradeResult      `db:"result" json:"result"`
	DurationSeconds   int64            `db:"duration_seconds" json:"duration_seconds"`
	LastExitTime      *time.Time       `db:"last_exit_time" json:"last_exit_time,omitempty"`
	UpdatedAt         time.Time        `db:"updated_at" json:"updated_at"`
}

// Duration returns the holding duration.
func (m *TradeMetrics) Duration() time.Duration {
	return time.Duration(m.DurationSeconds) * time.Second
}

// TradeWithMetrics bundles a trade with its exits and metrics.
type TradeWithMetrics struct {
	Trade   Trade         `db:"trade" json:"trade"`
	Exits   []PartialExit `db:"-" json:"exits,omitempty"`
	Metrics TradeMetrics  `db:"metrics" json:"metrics"`
}

// IsClosed reports whether the trade has been fully exited.
func (t *TradeWithMetrics) IsClosed() bool {
	return t.Trade.Status == TradeClosed
}

// TradeFilter narrows trade listings.
type TradeFilter struct {
	UserID     string
	AccountID  string
	StrategyID string
	Instrument string
	Status     TradeStatus
	Tag        string
	From       *time.Time
	To         *time.Time
	SharedOnly bool
	Limit      int
	Offset     int
}
