package billing

import (
	"context"
	"time"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
	"tradelens/internal/notify"
	"tradelens/internal/store"
)

// StartTrial gives a new user a trial subscription. Users that already have a
// subscription keep it. It returns nil when trials are disabled.
func (s *Service) StartTrial(ctx context.Context, ds store.DataStore, userID string) (*models.Subscription, error) {
	if ds == nil {
		ds = s.store
	}
	existing, err := ds.GetSubscription(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, err
	}
	if s.opts.TrialDays <= 0 {
		return nil, nil
	}

	now := s.now().UTC()
	sub := &models.Subscription{
		UserID:             userID,
		PlanID:             TrialPlanID,
		Status:             models.SubscriptionTrialing,
		CurrentPeriodStart: now,
		CurrentPeriodEnd:   now.AddDate(0, 0, s.opts.TrialDays),
	}
	if err := ds.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// activate extends the subscription of userID by the plan duration, counting
// from the end of the current period when it is still running.
func (s *Service) activate(ctx context.Context, ds store.DataStore, userID string, plan models.Plan, provider string) (*models.Subscription, error) {
	now := s.now().UTC()

	sub, err := ds.GetSubscription(ctx, userID)
	if err != nil {
		if !apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
		sub = &models.Subscription{UserID: userID}
	}

	start := now
	if sub.ActiveAt(now) {
		start = sub.CurrentPeriodEnd
	} else {
		sub.CurrentPeriodStart = now
	}

	sub.PlanID = plan.ID
	sub.Status = models.SubscriptionActive
	sub.Provider = provider
	sub.CurrentPeriodEnd = start.AddDate(0, 0, plan.DurationDays)
	sub.CancelAtPeriodEnd = false
	sub.ReminderSentAt = nil

	if err := ds.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// revoke takes one plan period off the user's subscription after a refund.
// The subscription expires when nothing of its period is left.
func (s *Service) revoke(ctx context.Context, ds store.DataStore, userID string, plan models.Plan) (*models.Subscription, error) {
	now := s.now().UTC()

	sub, err := ds.GetSubscription(ctx, userID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if sub.Status != models.SubscriptionActive {
		return sub, nil
	}

	sub.CurrentPeriodEnd = sub.CurrentPeriodEnd.AddDate(0, 0, -plan.DurationDays)
	if !sub.CurrentPeriodEnd.After(now) {
		sub.CurrentPeriodEnd = now
		sub.Status = models.SubscriptionExpired
	}
	if err := ds.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("user_id", userID).
		Str("plan_id", plan.ID).
		Str("status", string(sub.Status)).
		Time("period_end", sub.CurrentPeriodEnd).
		Msg("Subscription period revoked after refund")
	return sub, nil
}

// Grant activates a plan for a user without a payment (admin).
func (s *Service) Grant(ctx context.Context, userID, planID string) (*models.Subscription, error) {
	plan, err := s.Plan(planID)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	var sub *models.Subscription
	err = s.store.WithTx(ctx, func(tx store.DataStore) error {
		var err error
		sub, err = s.activate(ctx, tx, userID, plan, ProviderManual)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("user_id", userID).Str("plan_id", planID).Time("period_end", sub.CurrentPeriodEnd).Msg("Plan granted")
	return sub, nil
}

// Cancel stops renewal: access continues until the end of the current period.
func (s *Service) Cancel(ctx context.Context, userID string) (*models.Subscription, error) {
	sub, err := s.store.GetSubscription(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !sub.ActiveAt(s.now()) {
		return nil, apperrors.NewValidationError("subscription", string(sub.Status), "no running subscription to cancel")
	}
	if sub.CancelAtPeriodEnd {
		return sub, nil
	}
	sub.CancelAtPeriodEnd = true
	if err := s.store.SaveSubscription(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Access describes whether a user can use premium features.
type Access struct {
	Active       bool                 `json:"active"`
	Subscription *models.Subscription `json:"subscription,omitempty"`
	Plans        []models.Plan        `json:"plans,omitempty"`
}

// Access reports the subscription state of a user. Trialing and active
// subscriptions grant access until their period ends, even before Sweep runs.
func (s *Service) Access(ctx context.Context, userID string) (*Access, error) {
	sub, err := s.store.GetSubscription(ctx, userID)
	if err != nil {
		if apperrors.Is(err, apperrors.ErrNotFound) {
			return &Access{Active: false, Plans: s.plans}, nil
		}
		return nil, err
	}
	return &Access{Active: sub.ActiveAt(s.now()), Subscription: sub, Plans: s.plans}, nil
}

// SweepResult summarizes a subscription sweep.
type SweepResult struct {
	Expired  int `json:"expired"`
	Reminded int `json:"reminded"`
}

// Sweep expires subscriptions past their period end and reminds users whose
// subscription ends within the reminder window. Each subscription is reminded once.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := s.now().UTC()
	horizon := now.AddDate(0, 0, s.opts.ReminderDays)

	subs, err := s.store.ListSubscriptionsEndingBefore(ctx, horizon)
	if err != nil {
		return res, err
	}

	for i := range subs {
		sub := &subs[i]
		if !sub.CurrentPeriodEnd.After(now) {
			if err := s.expire(ctx, sub); err != nil {
				return res, err
			}
			res.Expired++
			continue
		}
		if sub.ReminderSentAt != nil || sub.CancelAtPeriodEnd || s.opts.ReminderDays <= 0 {
			continue
		}
		if err := s.remind(ctx, sub, now); err != nil {
			return res, err
		}
		res.Reminded++
	}

	if res.Expired > 0 || res.Reminded > 0 {
		s.logger.Info().Int("expired", res.Expired).Int("reminded", res.Reminded).Msg("Subscription sweep finished")
	}
	return res, nil
}

func (s *Service) expire(ctx context.Context, sub *models.Subscription) error {
	return s.store.WithTx(ctx, func(tx store.DataStore) error {
		if sub.CancelAtPeriodEnd {
			sub.Status = models.SubscriptionCancelled
		} else {
			sub.Status = models.SubscriptionExpired
		}
		if err := tx.SaveSubscription(ctx, sub); err != nil {
			return err
		}
		user, err := tx.GetUser(ctx, sub.UserID)
		if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		return s.notifier.Send(ctx, tx, notify.SubscriptionExpired(user, sub, s.planName(sub.PlanID)))
	})
}

func (s *Service) remind(ctx context.Context, sub *models.Subscription, now time.Time) error {
	return s.store.WithTx(ctx, func(tx store.DataStore) error {
		if err := tx.MarkReminderSent(ctx, sub.ID, now); err != nil {
			return err
		}
		user, err := tx.GetUser(ctx, sub.UserID)
		if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}
		return s.notifier.Send(ctx, tx, notify.SubscriptionExpiring(user, sub, s.planName(sub.PlanID), now))
	})
}
