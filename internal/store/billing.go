package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"tradelens/internal/models"
)

const subscriptionColumns = "id, user_id, plan_id, status, provider, current_period_start, current_period_end, cancel_at_period_end, reminder_sent_at, created_at, updated_at"
const paymentColumns = "id, user_id, plan_id, provider, provider_order_id, provider_payment_id, amount, currency, status, raw_event, created_at, updated_at"

// ============================================================================
// Subscriptions
// ============================================================================

// GetSubscription retrieves the subscription of a user.
func (s *SQLStore) GetSubscription(ctx context.Context, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	if err := s.get(ctx, &sub, "SELECT "+subscriptionColumns+" FROM subscriptions WHERE user_id = ?", userID); err != nil {
		return nil, dbError("subscription", userID, err)
	}
	return &sub, nil
}

// SaveSubscription inserts or replaces the subscription of sub.UserID.
func (s *SQLStore) SaveSubscription(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	now := utcNow()
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = now
	}
	sub.UpdatedAt = now

	var reminder interface{}
	if sub.ReminderSentAt != nil {
		reminder = sub.ReminderSentAt.UTC()
	}

	_, err := s.exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET
			plan_id = excluded.plan_id,
			status = excluded.status,
			provider = excluded.provider,
			current_period_start = excluded.current_period_start,
			current_period_end = excluded.current_period_end,
			cancel_at_period_end = excluded.cancel_at_period_end,
			reminder_sent_at = excluded.reminder_sent_at,
			updated_at = excluded.updated_at
	`, sub.ID, sub.UserID, sub.PlanID, sub.Status, sub.Provider, sub.CurrentPeriodStart.UTC(),
		sub.CurrentPeriodEnd.UTC(), sub.CancelAtPeriodEnd, reminder, sub.CreatedAt.UTC(), sub.UpdatedAt)
	return dbError("subscription", sub.UserID, err)
}

// ListSubscriptionsEndingBefore returns trialing or active subscriptions whose
// period ends at or before t.
func (s *SQLStore) ListSubscriptionsEndingBefore(ctx context.Context, t time.Time) ([]models.Subscription, error) {
	subs := []models.Subscription{}
	err := s.selectRows(ctx, &subs, `
		SELECT `+subscriptionColumns+` FROM subscriptions
		WHERE status IN (?, ?) AND current_period_end <= ?
		ORDER BY current_period_end
	`, models.SubscriptionTrialing, models.SubscriptionActive, t.UTC())
	if err != nil {
		return nil, dbError("subscription", "", err)
	}
	return subs, nil
}

// MarkReminderSent records when the expiry reminder was queued.
func (s *SQLStore) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	return s.execOne(ctx, "subscription", id, "UPDATE subscriptions SET reminder_sent_at = ? WHERE id = ?", at.UTC(), id)
}

// ============================================================================
// Payments
// ============================================================================

// CreatePayment inserts a payment record.
func (s *SQLStore) CreatePayment(ctx context.Context, p *models.Payment) error {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	now := utcNow()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	_, err := s.exec(ctx, `
		INSERT INTO payment_history (`+paymentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.ID, p.UserID, p.PlanID, p.Provider, p.ProviderOrderID, p.ProviderPaymentID,
		p.Amount, p.Currency, p.Status, p.RawEvent, p.CreatedAt.UTC(), p.UpdatedAt)
	return dbError("payment", p.ID, err)
}

// UpdatePayment stores provider references, status and the raw event.
func (s *SQLStore) UpdatePayment(ctx context.Context, p *models.Payment) error {
	p.UpdatedAt = utcNow()
	return s.execOne(ctx, "payment", p.ID, `
		UPDATE payment_history SET provider_order_id = ?, provider_payment_id = ?, status = ?, raw_event = ?, updated_at = ?
		WHERE id = ?
	`, p.ProviderOrderID, p.ProviderPaymentID, p.Status, p.RawEvent, p.UpdatedAt, p.ID)
}

// GetPayment retrieves a payment by id.
func (s *SQLStore) GetPayment(ctx context.Context, id string) (*models.Payment, error) {
	var p models.Payment
	if err := s.get(ctx, &p, "SELECT "+paymentColumns+" FROM payment_history WHERE id = ?", id); err != nil {
		return nil, dbError("payment", id, err)
	}
	return &p, nil
}

// GetPaymentByProviderOrder retrieves a payment by the provider's order reference.
func (s *SQLStore) GetPaymentByProviderOrder(ctx context.Context, provider, orderID string) (*models.Payment, error) {
	var p models.Payment
	err := s.get(ctx, &p, "SELECT "+paymentColumns+" FROM payment_history WHERE provider = ? AND provider_order_id = ?", provider, orderID)
	if err != nil {
		return nil, dbError("payment", orderID, err)
	}
	return &p, nil
}

// ListPayments returns payments, newest first.
func (s *SQLStore) ListPayments(ctx context.Context, f models.PaymentFilter) ([]models.Payment, error) {
	query := "SELECT " + paymentColumns + " FROM payment_history WHERE 1=1"
	args := []interface{}{}

	if f.UserID != "" {
		query += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.Provider != "" {
		query += " AND provider = ?"
		args = append(args, f.Provider)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}

	query += " ORDER BY created_at DESC, id"
	query, args = paginate(query, args, f.Limit, f.Offset)

	payments := []models.Payment{}
	if err := s.selectRows(ctx, &payments, query, args...); err != nil {
		return nil, dbError("payment", "", err)
	}
	return payments, nil
}
