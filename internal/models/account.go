package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account represents a brokerage or prop account trades are booked against.
type Account struct {
	ID              string          `db:"id" json:"id"`
	UserID          string          `db:"user_id" json:"user_id"`
	Name            string          `db:"name" json:"name"`
	Broker          string          `db:"broker" json:"broker"`
	Currency        string          `db:"currency" json:"currency"`
	StartingBalance decimal.Decimal `db:"starting_balance" json:"starting_balance"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// AccountWithBalance is an account with its computed balance.
type AccountWithBalance struct {
	Account
	Balance decimal.Decimal `json:"balance"`
}

// Strategy represents a named trading setup.
type Strategy struct {
	ID          string    `db:"id" json:"id"`
	UserID      string    `db:"user_id" json:"user_id"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
