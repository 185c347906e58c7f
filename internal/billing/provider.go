// Package billing handles plans, checkouts with payment providers, webhooks and
// the subscription lifecycle.
package billing

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"tradelens/internal/config"
	"tradelens/internal/models"
	"tradelens/internal/resilience"
)

// Provider names.
const (
	ProviderPayPal      = "paypal"
	ProviderCashfree    = "cashfree"
	ProviderNOWPayments = "nowpayments"
	ProviderManual      = "manual"
)

// OrderRequest describes the checkout created with a provider.
type OrderRequest struct {
	PaymentID string // our payment id, echoed back by the provider
	UserID    string
	Email     string
	Name      string
	Plan      models.Plan
	Amount    decimal.Decimal
	Currency  string
	ReturnURL string
	CancelURL string
	NotifyURL string
}

// Order is the provider side of a checkout.
type Order struct {
	ProviderOrderID string `json:"provider_order_id"`
	// CheckoutURL is where the user approves the payment (PayPal, NOWPayments).
	CheckoutURL string `json:"checkout_url,omitempty"`
	// SessionID is handed to the provider's browser SDK (Cashfree).
	SessionID string `json:"session_id,omitempty"`
}

// PaymentUpdate is a provider-reported payment state, from a webhook or a capture.
type PaymentUpdate struct {
	EventID           string
	EventType         string
	PaymentID         string // our id when the provider echoes it
	ProviderOrderID   string
	ProviderPaymentID string
	Status            models.PaymentStatus
	// NeedsCapture is set when the buyer approved an order that still has to be captured.
	NeedsCapture bool
	// Ignored marks events that do not affect payments.
	Ignored bool
	Raw     string
}

// Provider is a payment gateway.
type Provider interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	// CaptureOrder finalizes an approved order. Providers without a capture
	// step return errors.ErrUnsupported.
	CaptureOrder(ctx context.Context, orderID string) (*PaymentUpdate, error)
	// ParseWebhook verifies the signature of a webhook and decodes it.
	ParseWebhook(ctx context.Context, headers http.Header, body []byte) (*PaymentUpdate, error)
}

// ProvidersFromConfig builds the enabled providers, each guarded by its own
// breaker from breakers (which may be nil).
func ProvidersFromConfig(cfg *config.Config, breakers *resilience.CircuitBreakerRegistry, logger zerolog.Logger) []Provider {
	breaker := func(name string) *resilience.CircuitBreaker {
		if breakers == nil {
			return nil
		}
		return breakers.Get(name)
	}

	var providers []Provider
	creds := cfg.Credentials
	if cfg.Billing.PayPal.Enabled {
		providers = append(providers, NewPayPal(cfg.Billing.PayPal, creds.PayPal, breaker(ProviderPayPal), logger))
	}
	if cfg.Billing.Cashfree.Enabled {
		providers = append(providers, NewCashfree(cfg.Billing.Cashfree, creds.Cashfree, breaker(ProviderCashfree), logger))
	}
	if cfg.Billing.NOWPayments.Enabled {
		providers = append(providers, NewNOWPayments(cfg.Billing.NOWPayments, creds.NOWPayments, breaker(ProviderNOWPayments), logger))
	}
	return providers
}

// OptionsFromConfig maps the billing, server and subscription sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		ReturnURL:    cfg.Billing.ReturnURL,
		CancelURL:    cfg.Billing.CancelURL,
		PublicURL:    cfg.Server.PublicURL,
		TrialDays:    cfg.Subscription.TrialDays,
		ReminderDays: cfg.Subscription.ReminderDays,
	}
}
