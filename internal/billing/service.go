package billing

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradelens/internal/config"
	apperrors "tradelens/internal/errors"
	"tradelens/internal/logging"
	"tradelens/internal/metrics"
	"tradelens/internal/models"
	"tradelens/internal/notify"
	"tradelens/internal/store"
)

// TrialPlanID identifies the free trial period.
const TrialPlanID = "trial"

// Options are the settings of the billing service.
type Options struct {
	ReturnURL    string
	CancelURL    string
	PublicURL    string // base of the webhook notify URLs
	TrialDays    int
	ReminderDays int
}

// Service implements checkout, webhook handling and the subscription lifecycle.
type Service struct {
	store     store.DataStore
	providers map[string]Provider
	plans     []models.Plan
	opts      Options
	notifier  notify.Notifier
	logger    zerolog.Logger
	now       func() time.Time
}

// PlansFromConfig converts the configured plans.
func PlansFromConfig(cfg []config.PlanConfig) ([]models.Plan, error) {
	plans := make([]models.Plan, 0, len(cfg))
	for _, p := range cfg {
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, fmt.Errorf("plan %s: invalid price %q: %w", p.ID, p.Price, apperrors.ErrConfigInvalid)
		}
		plans = append(plans, models.Plan{
			ID:           p.ID,
			Name:         p.Name,
			Price:        price,
			Currency:     strings.ToUpper(p.Currency),
			DurationDays: p.DurationDays,
		})
	}
	return plans, nil
}

// NewService creates the billing service.
func NewService(ds store.DataStore, providers []Provider, plans []models.Plan, opts Options, notifier notify.Notifier, logger zerolog.Logger) *Service {
	byName := make(map[string]Provider, len(providers))
	for _, p := range providers {
		byName[p.Name()] = p
	}
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	return &Service{
		store:     ds,
		providers: byName,
		plans:     plans,
		opts:      opts,
		notifier:  notifier,
		logger:    logging.WithOperation(logger, "billing"),
		now:       time.Now,
	}
}

// Plans returns the purchasable plans.
func (s *Service) Plans() []models.Plan {
	return s.plans
}

// Plan returns the plan with id.
func (s *Service) Plan(id string) (models.Plan, error) {
	for _, p := range s.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return models.Plan{}, apperrors.NotFound("plan", id)
}

func (s *Service) planName(id string) string {
	if id == TrialPlanID {
		return "Free trial"
	}
	if p, err := s.Plan(id); err == nil {
		return p.Name
	}
	return id
}

// Providers returns the names of the enabled providers.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Service) provider(name string) (Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, apperrors.NewValidationError("provider", name, "payment provider is not enabled")
	}
	return p, nil
}

// CheckoutResult is returned to the client to continue the payment.
type CheckoutResult struct {
	Payment *models.Payment `json:"payment"`
	Order   *Order          `json:"order"`
}

// Checkout records a pending payment and creates the provider order.
func (s *Service) Checkout(ctx context.Context, user *models.User, planID, providerName string) (*CheckoutResult, error) {
	plan, err := s.Plan(planID)
	if err != nil {
		return nil, err
	}
	provider, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	payment := &models.Payment{
		ID:       uuid.NewString(),
		UserID:   user.ID,
		PlanID:   plan.ID,
		Provider: provider.Name(),
		Amount:   plan.Price,
		Currency: plan.Currency,
		Status:   models.PaymentPending,
	}
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		return nil, err
	}

	order, err := provider.CreateOrder(ctx, OrderRequest{
		PaymentID: payment.ID,
		UserID:    user.ID,
		Email:     user.Email,
		Name:      user.DisplayName,
		Plan:      plan,
		Amount:    plan.Price,
		Currency:  plan.Currency,
		ReturnURL: s.opts.ReturnURL,
		CancelURL: s.opts.CancelURL,
		NotifyURL: strings.TrimRight(s.opts.PublicURL, "/") + "/webhooks/" + provider.Name(),
	})
	if err != nil {
		payment.Status = models.PaymentFailed
		payment.RawEvent = err.Error()
		if uerr := s.store.UpdatePayment(ctx, payment); uerr != nil {
			s.logger.Error().Err(uerr).Str("payment_id", payment.ID).Msg("Failed to mark payment failed")
		}
		metrics.RecordPayment(provider.Name(), string(models.PaymentFailed))
		return nil, apperrors.Wrapf(err, "creating %s order", provider.Name())
	}

	payment.ProviderOrderID = order.ProviderOrderID
	if err := s.store.UpdatePayment(ctx, payment); err != nil {
		return nil, err
	}
	logging.LogPayment(s.logger, payment.ID, payment.Provider, string(payment.Status), payment.Amount.String())
	metrics.RecordPayment(provider.Name(), string(models.PaymentPending))
	return &CheckoutResult{Payment: payment, Order: order}, nil
}

// Capture captures an approved PayPal order of the user.
func (s *Service) Capture(ctx context.Context, userID, orderID string) (*models.Payment, error) {
	provider, err := s.provider(ProviderPayPal)
	if err != nil {
		return nil, err
	}
	payment, err := s.store.GetPaymentByProviderOrder(ctx, ProviderPayPal, orderID)
	if err != nil {
		return nil, err
	}
	if payment.UserID != userID {
		return nil, apperrors.NotFound("payment", orderID)
	}
	if payment.Status != models.PaymentPending {
		return payment, nil
	}

	upd, err := provider.CaptureOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if upd.PaymentID == "" {
		upd.PaymentID = payment.ID
	}
	captured, _, err := s.apply(ctx, ProviderPayPal, upd)
	return captured, err
}

// HandleWebhook verifies and applies a provider webhook. It returns the
// affected payment, or nil when the event is ignored.
func (s *Service) HandleWebhook(ctx context.Context, providerName string, headers http.Header, body []byte) (*models.Payment, error) {
	provider, err := s.provider(providerName)
	if err != nil {
		return nil, err
	}

	upd, err := provider.ParseWebhook(ctx, headers, body)
	if err != nil {
		metrics.RecordWebhook(providerName, "rejected")
		return nil, err
	}
	if upd.Ignored {
		metrics.RecordWebhook(providerName, "ignored")
		return nil, nil
	}

	if upd.NeedsCapture {
		payment, err := s.locate(ctx, s.store, providerName, upd)
		if err != nil {
			return nil, err
		}
		if payment.Status != models.PaymentPending {
			metrics.RecordWebhook(providerName, "duplicate")
			return payment, nil
		}
		captured, err := provider.CaptureOrder(ctx, upd.ProviderOrderID)
		if err != nil {
			return nil, err
		}
		if captured.PaymentID == "" {
			captured.PaymentID = payment.ID
		}
		upd = captured
	}

	payment, changed, err := s.apply(ctx, providerName, upd)
	if err != nil {
		return nil, err
	}
	if changed {
		metrics.RecordWebhook(providerName, "applied")
	} else {
		metrics.RecordWebhook(providerName, "duplicate")
	}
	return payment, nil
}

func (s *Service) locate(ctx context.Context, ds store.DataStore, providerName string, upd *PaymentUpdate) (*models.Payment, error) {
	if upd.PaymentID != "" {
		p, err := ds.GetPayment(ctx, upd.PaymentID)
		if err == nil {
			if p.Provider != providerName {
				return nil, apperrors.NotFound("payment", upd.PaymentID)
			}
			return p, nil
		}
		if !apperrors.Is(err, apperrors.ErrNotFound) || upd.ProviderOrderID == "" {
			return nil, err
		}
	}
	if upd.ProviderOrderID == "" {
		return nil, apperrors.NewValidationError("order_id", "", "event does not reference a payment")
	}
	return ds.GetPaymentByProviderOrder(ctx, providerName, upd.ProviderOrderID)
}

// transitionAllowed lists the payment state machine. Replays of the current
// status are handled before this check.
func transitionAllowed(from, to models.PaymentStatus) bool {
	switch from {
	case models.PaymentPending:
		return to != models.PaymentPending
	case models.PaymentFailed:
		return to == models.PaymentCompleted
	case models.PaymentCompleted:
		return to == models.PaymentRefunded
	default:
		return false
	}
}

// apply moves a payment to the reported status once and reports whether it
// changed. Completing a payment activates or extends the subscription, and a
// refund takes the purchased period back.
func (s *Service) apply(ctx context.Context, providerName string, upd *PaymentUpdate) (*models.Payment, bool, error) {
	var (
		result  *models.Payment
		changed bool
	)

	err := s.store.WithTx(ctx, func(tx store.DataStore) error {
		payment, err := s.locate(ctx, tx, providerName, upd)
		if err != nil {
			return err
		}
		result = payment

		if payment.Status == upd.Status || !transitionAllowed(payment.Status, upd.Status) {
			return nil
		}

		payment.Status = upd.Status
		if upd.ProviderPaymentID != "" {
			payment.ProviderPaymentID = upd.ProviderPaymentID
		}
		if payment.ProviderOrderID == "" {
			payment.ProviderOrderID = upd.ProviderOrderID
		}
		payment.RawEvent = upd.Raw
		if err := tx.UpdatePayment(ctx, payment); err != nil {
			return err
		}
		changed = true

		user, err := tx.GetUser(ctx, payment.UserID)
		if err != nil && !apperrors.Is(err, apperrors.ErrNotFound) {
			return err
		}

		switch payment.Status {
		case models.PaymentCompleted:
			plan, err := s.Plan(payment.PlanID)
			if err != nil {
				return err
			}
			sub, err := s.activate(ctx, tx, payment.UserID, plan, providerName)
			if err != nil {
				return err
			}
			return s.notifier.Send(ctx, tx, notify.PaymentSucceeded(user, payment, plan, sub))
		case models.PaymentFailed:
			plan, _ := s.Plan(payment.PlanID)
			return s.notifier.Send(ctx, tx, notify.PaymentFailed(user, payment, plan))
		case models.PaymentRefunded:
			plan, err := s.Plan(payment.PlanID)
			if err != nil {
				return err
			}
			_, err = s.revoke(ctx, tx, payment.UserID, plan)
			return err
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if changed {
		logging.LogPayment(s.logger, result.ID, providerName, string(result.Status), result.Amount.String())
		metrics.RecordPayment(providerName, string(result.Status))
	}
	return result, changed, nil
}

// ListPayments returns payments for the admin view or a user's history.
func (s *Service) ListPayments(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, error) {
	return s.store.ListPayments(ctx, filter)
}
