package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradelens/internal/config"
	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
	"tradelens/internal/resilience"
)

// PayPal event types handled by the webhook.
const (
	paypalCaptureCompleted = "PAYMENT.CAPTURE.COMPLETED"
	paypalOrderApproved    = "CHECKOUT.ORDER.APPROVED"
	paypalCaptureDenied    = "PAYMENT.CAPTURE.DENIED"
	paypalCaptureRefunded  = "PAYMENT.CAPTURE.REFUNDED"
)

// PayPal implements Provider over the PayPal Orders v2 REST API.
type PayPal struct {
	api          apiClient
	clientID     string
	clientSecret string
	webhookID    string
	now          func() time.Time

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewPayPal creates a PayPal provider.
func NewPayPal(cfg config.PayPalConfig, creds config.PayPalCredentials, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *PayPal {
	return &PayPal{
		api:          newAPIClient(ProviderPayPal, cfg.BaseURL, breaker, logger),
		clientID:     creds.ClientID,
		clientSecret: creds.ClientSecret,
		webhookID:    cfg.WebhookID,
		now:          time.Now,
	}
}

// Name returns the provider name.
func (p *PayPal) Name() string {
	return ProviderPayPal
}

// accessToken returns a cached OAuth2 client-credentials token, refreshing it
// a minute before it expires.
func (p *PayPal) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.token != "" && p.now().Before(p.tokenExpiry) {
		return p.token, nil
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	err := p.api.do(ctx, request{
		Method:      http.MethodPost,
		Path:        "/v1/oauth2/token",
		Body:        []byte(url.Values{"grant_type": {"client_credentials"}}.Encode()),
		ContentType: "application/x-www-form-urlencoded",
		BasicUser:   p.clientID,
		BasicPass:   p.clientSecret,
		Idempotent:  true,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", apperrors.NewProviderError(ProviderPayPal, http.StatusOK, "", "empty access token", nil)
	}

	p.token = resp.AccessToken
	p.tokenExpiry = p.now().Add(time.Duration(resp.ExpiresIn)*time.Second - time.Minute)
	return p.token, nil
}

func (p *PayPal) authed(ctx context.Context, r request, out interface{}) error {
	token, err := p.accessToken(ctx)
	if err != nil {
		return err
	}
	if r.Headers == nil {
		r.Headers = map[string]string{}
	}
	r.Headers["Authorization"] = "Bearer " + token
	return p.api.do(ctx, r, out)
}

type paypalAmount struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalCapture struct {
	ID       string `json:"id"`
	Status   string `json:"status"`
	CustomID string `json:"custom_id"`
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

type paypalOrder struct {
	ID     string       `json:"id"`
	Status string       `json:"status"`
	Links  []paypalLink `json:"links"`
	PurchaseUnits []struct {
		CustomID string `json:"custom_id"`
		Payments struct {
			Captures []paypalCapture `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

// CreateOrder creates a CAPTURE intent order. custom_id carries our payment id.
func (p *PayPal) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body := map[string]interface{}{
		"intent": "CAPTURE",
		"purchase_units": []map[string]interface{}{{
			"reference_id": req.Plan.ID,
			"custom_id":    req.PaymentID,
			"description":  "TradeLens " + req.Plan.Name,
			"amount": paypalAmount{
				CurrencyCode: req.Currency,
				Value:        req.Amount.StringFixed(2),
			},
		}},
		"application_context": map[string]string{
			"brand_name":  "TradeLens",
			"user_action": "PAY_NOW",
			"return_url":  req.ReturnURL,
			"cancel_url":  req.CancelURL,
		},
	}

	var order paypalOrder
	err := p.authed(ctx, request{
		Method:     http.MethodPost,
		Path:       "/v2/checkout/orders",
		Headers:    map[string]string{"PayPal-Request-Id": req.PaymentID},
		JSON:       body,
		Idempotent: true,
	}, &order)
	if err != nil {
		return nil, err
	}

	out := &Order{ProviderOrderID: order.ID}
	for _, l := range order.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			out.CheckoutURL = l.Href
			break
		}
	}
	return out, nil
}

// CaptureOrder captures an approved order.
func (p *PayPal) CaptureOrder(ctx context.Context, orderID string) (*PaymentUpdate, error) {
	var order paypalOrder
	err := p.authed(ctx, request{
		Method:     http.MethodPost,
		Path:       "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture",
		Headers:    map[string]string{"PayPal-Request-Id": "capture-" + orderID},
		JSON:       map[string]string{},
		Idempotent: true,
	}, &order)
	if err != nil {
		return nil, err
	}

	upd := &PaymentUpdate{
		EventType:       "capture",
		ProviderOrderID: order.ID,
		Status:          models.PaymentPending,
	}
	if raw, err := json.Marshal(order); err == nil {
		upd.Raw = string(raw)
	}
	if len(order.PurchaseUnits) > 0 {
		pu := order.PurchaseUnits[0]
		upd.PaymentID = pu.CustomID
		if len(pu.Payments.Captures) > 0 {
			c := pu.Payments.Captures[0]
			upd.ProviderPaymentID = c.ID
			if upd.PaymentID == "" {
				upd.PaymentID = c.CustomID
			}
			upd.Status = paypalCaptureStatus(c.Status)
		}
	}
	if order.Status == "COMPLETED" && upd.Status == models.PaymentPending {
		upd.Status = models.PaymentCompleted
	}
	return upd, nil
}

func paypalCaptureStatus(s string) models.PaymentStatus {
	switch s {
	case "COMPLETED":
		return models.PaymentCompleted
	case "DECLINED", "FAILED":
		return models.PaymentFailed
	case "REFUNDED":
		return models.PaymentRefunded
	default:
		return models.PaymentPending
	}
}

// ParseWebhook verifies the event with PayPal and decodes it.
func (p *PayPal) ParseWebhook(ctx context.Context, headers http.Header, body []byte) (*PaymentUpdate, error) {
	if p.webhookID == "" {
		return nil, fmt.Errorf("paypal webhook_id is not configured: %w", apperrors.ErrInvalidSignature)
	}

	var verify struct {
		VerificationStatus string `json:"verification_status"`
	}
	err := p.authed(ctx, request{
		Method: http.MethodPost,
		Path:   "/v1/notifications/verify-webhook-signature",
		JSON: map[string]interface{}{
			"auth_algo":         headers.Get("Paypal-Auth-Algo"),
			"cert_url":          headers.Get("Paypal-Cert-Url"),
			"transmission_id":   headers.Get("Paypal-Transmission-Id"),
			"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
			"transmission_time": headers.Get("Paypal-Transmission-Time"),
			"webhook_id":        p.webhookID,
			"webhook_event":     json.RawMessage(body),
		},
		Idempotent: true,
	}, &verify)
	if err != nil {
		var pe *apperrors.ProviderError
		if apperrors.As(err, &pe) && pe.StatusCode == http.StatusBadRequest {
			return nil, fmt.Errorf("paypal rejected verification request: %w", apperrors.ErrInvalidSignature)
		}
		return nil, err
	}
	if verify.VerificationStatus != "SUCCESS" {
		return nil, fmt.Errorf("paypal verification status %q: %w", verify.VerificationStatus, apperrors.ErrInvalidSignature)
	}

	var event struct {
		ID        string          `json:"id"`
		EventType string          `json:"event_type"`
		Resource  json.RawMessage `json:"resource"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, apperrors.NewValidationError("body", "", "invalid paypal event")
	}

	upd := &PaymentUpdate{EventID: event.ID, EventType: event.EventType, Raw: string(body)}
	switch event.EventType {
	case paypalCaptureCompleted, paypalCaptureDenied, paypalCaptureRefunded:
		var c paypalCapture
		if err := json.Unmarshal(event.Resource, &c); err != nil {
			return nil, apperrors.NewValidationError("resource", "", "invalid paypal capture")
		}
		upd.PaymentID = c.CustomID
		upd.ProviderOrderID = c.SupplementaryData.RelatedIDs.OrderID
		switch event.EventType {
		case paypalCaptureCompleted:
			upd.Status = models.PaymentCompleted
			upd.ProviderPaymentID = c.ID
		case paypalCaptureDenied:
			upd.Status = models.PaymentFailed
			upd.ProviderPaymentID = c.ID
		default:
			upd.Status = models.PaymentRefunded
		}
	case paypalOrderApproved:
		var o paypalOrder
		if err := json.Unmarshal(event.Resource, &o); err != nil {
			return nil, apperrors.NewValidationError("resource", "", "invalid paypal order")
		}
		upd.ProviderOrderID = o.ID
		if len(o.PurchaseUnits) > 0 {
			upd.PaymentID = o.PurchaseUnits[0].CustomID
		}
		upd.Status = models.PaymentPending
		upd.NeedsCapture = true
	default:
		upd.Ignored = true
	}
	return upd, nil
}
