package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"tradelens/internal/config"
	apperrors "tradelens/internal/errors"
	"tradelens/internal/models"
	"tradelens/internal/resilience"
)

// Cashfree webhook types.
const (
	cashfreePaymentSuccess = "PAYMENT_SUCCESS_WEBHOOK"
	cashfreePaymentFailed  = "PAYMENT_FAILED_WEBHOOK"
)

// Cashfree implements Provider over the Cashfree Payment Gateway API.
type Cashfree struct {
	api        apiClient
	appID      string
	secretKey  string
	apiVersion string
}

// NewCashfree creates a Cashfree provider.
func NewCashfree(cfg config.CashfreeConfig, creds config.CashfreeCredentials, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *Cashfree {
	version := cfg.APIVersion
	if version == "" {
		version = "2023-08-01"
	}
	return &Cashfree{
		api:        newAPIClient(ProviderCashfree, cfg.BaseURL, breaker, logger),
		appID:      creds.AppID,
		secretKey:  creds.SecretKey,
		apiVersion: version,
	}
}

// Name returns the provider name.
func (c *Cashfree) Name() string {
	return ProviderCashfree
}

// CreateOrder creates an order whose order_id is our payment id.
func (c *Cashfree) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	customer := map[string]string{
		"customer_id":    req.UserID,
		"customer_email": req.Email,
	}
	if req.Name != "" {
		customer["customer_name"] = req.Name
	}

	returnURL := req.ReturnURL
	if returnURL != "" {
		sep := "?"
		if strings.Contains(returnURL, "?") {
			sep = "&"
		}
		returnURL += sep + "order_id={order_id}"
	}

	body := map[string]interface{}{
		"order_id":         req.PaymentID,
		"order_amount":     json.Number(req.Amount.StringFixed(2)),
		"order_currency":   req.Currency,
		"order_note":       "TradeLens " + req.Plan.Name,
		"customer_details": customer,
		"order_meta": map[string]string{
			"return_url": returnURL,
			"notify_url": req.NotifyURL,
		},
	}

	var resp struct {
		CFOrderID        json.Number `json:"cf_order_id"`
		OrderID          string      `json:"order_id"`
		PaymentSessionID string      `json:"payment_session_id"`
		OrderStatus      string      `json:"order_status"`
	}
	err := c.api.do(ctx, request{
		Method:  http.MethodPost,
		Path:    "/pg/orders",
		Headers: c.headers(),
		JSON:    body,
	}, &resp)
	if err != nil {
		return nil, err
	}

	return &Order{ProviderOrderID: resp.OrderID, SessionID: resp.PaymentSessionID}, nil
}

func (c *Cashfree) headers() map[string]string {
	return map[string]string{
		"x-client-id":     c.appID,
		"x-client-secret": c.secretKey,
		"x-api-version":   c.apiVersion,
	}
}

// CaptureOrder is not supported; Cashfree payments settle without a capture call.
func (c *Cashfree) CaptureOrder(context.Context, string) (*PaymentUpdate, error) {
	return nil, fmt.Errorf("cashfree capture: %w", apperrors.ErrUnsupported)
}

// Sign returns base64(HMAC-SHA256(timestamp + body)) as sent in x-webhook-signature.
func (c *Cashfree) Sign(timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.secretKey))
	_, _ = mac.Write([]byte(timestamp))
	_, _ = mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// ParseWebhook verifies x-webhook-signature and decodes the payment event.
func (c *Cashfree) ParseWebhook(_ context.Context, headers http.Header, body []byte) (*PaymentUpdate, error) {
	sig := headers.Get("x-webhook-signature")
	ts := headers.Get("x-webhook-timestamp")
	if sig == "" || ts == "" {
		return nil, fmt.Errorf("cashfree: missing signature headers: %w", apperrors.ErrInvalidSignature)
	}
	if !hmac.Equal([]byte(sig), []byte(c.Sign(ts, body))) {
		return nil, fmt.Errorf("cashfree: %w", apperrors.ErrInvalidSignature)
	}

	var event struct {
		Type string `json:"type"`
		Data struct {
			Order struct {
				OrderID string `json:"order_id"`
			} `json:"order"`
			Payment struct {
				CFPaymentID   json.Number `json:"cf_payment_id"`
				PaymentStatus string      `json:"payment_status"`
			} `json:"payment"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, apperrors.NewValidationError("body", "", "invalid cashfree event")
	}

	upd := &PaymentUpdate{
		EventType:         event.Type,
		PaymentID:         event.Data.Order.OrderID,
		ProviderOrderID:   event.Data.Order.OrderID,
		ProviderPaymentID: event.Data.Payment.CFPaymentID.String(),
		Raw:               string(body),
	}
	switch event.Type {
	case cashfreePaymentSuccess:
		upd.Status = models.PaymentCompleted
	case cashfreePaymentFailed:
		upd.Status = models.PaymentFailed
	default:
		upd.Ignored = true
	}
	return upd, nil
}
