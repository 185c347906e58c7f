// Package models provides domain models for the trading journal.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Action represents the opening side of a trade.
type Action string

const (
	ActionBuy  Action = "buy"  // long
	ActionSell Action = "sell" // short
)

// Valid reports whether the action is known.
func (a Action) Valid() bool {
	return a == ActionBuy || a == ActionSell
}

// MarketType represents the asset class of an instrument.
type MarketType string

const (
	MarketStocks  MarketType = "stocks"
	MarketOptions MarketType = "options"
	MarketFutures MarketType = "futures"
	MarketForex   MarketType = "forex"
	MarketCrypto  MarketType = "crypto"
)

// Valid reports whether the market type is known.
func (m MarketType) Valid() bool {
	switch m {
	case MarketStocks, MarketOptions, MarketFutures, MarketForex, MarketCrypto:
		return true
	}
	return false
}

// TradeStatus represents the lifecycle state of a trade.
type TradeStatus string

const (
	TradeOpen            TradeStatus = "open"
	TradePartiallyClosed TradeStatus = "partially_closed"
	TradeClosed          TradeStatus = "closed"
)

// TradeResult classifies a closed trade.
type TradeResult string

const (
	ResultNone      TradeResult = ""
	ResultWin       TradeResult = "win"
	ResultLoss      TradeResult = "loss"
	ResultBreakeven TradeResult = "breakeven"
)

// Role represents an application role.
type Role string

const (
	RoleUser      Role = "user"
	RoleModerator Role = "moderator"
	RoleAdmin     Role = "admin"
)

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModerator || r == RoleAdmin
}

// StringList is a list of strings stored as a JSON array column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*l = StringList{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
	if len(data) == 0 {
		*l = StringList{}
		return nil
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// Contains reports whether s is in the list.
func (l StringList) Contains(s string) bool {
	for _, v := range l {
		if v == s {
			return true
		}
	}
	return false
}

// JSONMap is a string map stored as a JSON object column.
type JSONMap map[string]string

// Value implements driver.Valuer.
func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(map[string]string(m))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (m *JSONMap) Scan(src interface{}) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*m = JSONMap{}
		return nil
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("cannot scan %T into JSONMap", src)
	}
	if len(data) == 0 {
		*m = JSONMap{}
		return nil
	}
	return json.Unmarshal(data, (*map[string]string)(m))
}

// User represents an authenticated account holder.
type User struct {
	ID          string    `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	DisplayName string    `db:"display_name" json:"display_name"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// UserRole grants a role to a user.
type UserRole struct {
	UserID    string    `db:"user_id" json:"user_id"`
	Role      Role      `db:"role" json:"role"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
