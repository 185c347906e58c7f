package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Plan is a purchasable subscription plan.
type Plan struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency"`
	DurationDays int             `json:"duration_days"`
}

// SubscriptionStatus represents the state of a subscription.
type SubscriptionStatus string

const (
	SubscriptionTrialing  SubscriptionStatus = "trialing"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionExpired   SubscriptionStatus = "expired"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
)

// Subscription tracks a user's access period. There is at most one per user.
type Subscription struct {
	ID                 string             `db:"id" json:"id"`
	UserID             string             `db:"user_id" json:"user_id"`
	PlanID             string             `db:"plan_id" json:"plan_id"`
	Status             SubscriptionStatus `db:"status" json:"status"`
	Provider           string             `db:"provider" json:"provider"`
	CurrentPeriodStart time.Time          `db:"current_period_start" json:"current_period_start"`
	CurrentPeriodEnd   time.Time          `db:"current_period_end" json:"current_period_end"`
	CancelAtPeriodEnd  bool               `db:"cancel_at_period_end" json:"cancel_at_period_end"`
	ReminderSentAt     *time.Time         `db:"reminder_sent_at" json:"-"`
	CreatedAt          time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time          `db:"updated_at" json:"updated_at"`
}

// ActiveAt reports whether the subscription grants access at t.
func (s *Subscription) ActiveAt(t time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != SubscriptionTrialing && s.Status != SubscriptionActive {
		return false
	}
	return t.Before(s.CurrentPeriodEnd)
}

// PaymentStatus represents the state of a payment.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Payment records one checkout attempt with a provider.
type Payment struct {
	ID                string          `db:"id" json:"id"`
	UserID            string          `db:"user_id" json:"user_id"`
	PlanID            string          `db:"plan_id" json:"plan_id"`
	Provider          string          `db:"provider" json:"provider"`
	ProviderOrderID   string          `db:"provider_order_id" json:"provider_order_id"`
	ProviderPaymentID string          `db:"provider_payment_id" json:"provider_payment_id"`
	Amount            decimal.Decimal `db:"amount" json:"amount"`
	Currency          string          `db:"currency" json:"currency"`
	Status            PaymentStatus   `db:"status" json:"status"`
	RawEvent          string          `db:"raw_event" json:"-"`
	CreatedAt         time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time       `db:"updated_at" json:"updated_at"`
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	UserID   string
	Provider string
	Status   PaymentStatus
	Limit    int
	Offset   int
}
