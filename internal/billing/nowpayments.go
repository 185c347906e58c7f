package billing

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
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

// NOWPayments implements Provider over the NOWPayments invoice API.
type NOWPayments struct {
	api       apiClient
	apiKey    string
	ipnSecret string
}

// NewNOWPayments creates a NOWPayments provider.
func NewNOWPayments(cfg config.NOWPaymentsConfig, creds config.NOWPaymentsCredentials, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *NOWPayments {
	return &NOWPayments{
		api:       newAPIClient(ProviderNOWPayments, cfg.BaseURL, breaker, logger),
		apiKey:    creds.APIKey,
		ipnSecret: creds.IPNSecret,
	}
}

// Name returns the provider name.
func (n *NOWPayments) Name() string {
	return ProviderNOWPayments
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	*f = flexString(b)
	return nil
}

// CreateOrder creates a hosted invoice. order_id carries our payment id.
func (n *NOWPayments) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	body := map[string]interface{}{
		"price_amount":      json.Number(req.Amount.StringFixed(2)),
		"price_currency":    strings.ToLower(req.Currency),
		"order_id":          req.PaymentID,
		"order_description": "TradeLens " + req.Plan.Name,
		"ipn_callback_url":  req.NotifyURL,
		"success_url":       req.ReturnURL,
		"cancel_url":        req.CancelURL,
	}

	var resp struct {
		ID         flexString `json:"id"`
		InvoiceURL string     `json:"invoice_url"`
	}
	err := n.api.do(ctx, request{
		Method:  http.MethodPost,
		Path:    "/v1/invoice",
		Headers: map[string]string{"x-api-key": n.apiKey},
		JSON:    body,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return &Order{ProviderOrderID: string(resp.ID), CheckoutURL: resp.InvoiceURL}, nil
}

// CaptureOrder is not supported; invoices settle on chain.
func (n *NOWPayments) CaptureOrder(context.Context, string) (*PaymentUpdate, error) {
	return nil, fmt.Errorf("nowpayments capture: %w", apperrors.ErrUnsupported)
}

// Sign returns hex(HMAC-SHA512(body with keys sorted recursively)).
func (n *NOWPayments) Sign(body []byte) (string, error) {
	canonical, err := sortedJSON(body)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha512.New, []byte(n.ipnSecret))
	_, _ = mac.Write(canonical)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// sortedJSON re-encodes a JSON document with object keys sorted at every level,
// preserving number literals and leaving HTML characters unescaped.
func sortedJSON(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// ParseWebhook verifies x-nowpayments-sig and decodes the IPN.
func (n *NOWPayments) ParseWebhook(_ context.Context, headers http.Header, body []byte) (*PaymentUpdate, error) {
	sig := strings.ToLower(headers.Get("x-nowpayments-sig"))
	if sig == "" {
		return nil, fmt.Errorf("nowpayments: missing signature header: %w", apperrors.ErrInvalidSignature)
	}
	expected, err := n.Sign(body)
	if err != nil {
		return nil, apperrors.NewValidationError("body", "", "invalid nowpayments ipn")
	}
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		return nil, fmt.Errorf("nowpayments: %w", apperrors.ErrInvalidSignature)
	}

	var ipn struct {
		PaymentID     flexString `json:"payment_id"`
		InvoiceID     flexString `json:"invoice_id"`
		OrderID       string     `json:"order_id"`
		PaymentStatus string     `json:"payment_status"`
	}
	if err := json.Unmarshal(body, &ipn); err != nil {
		return nil, apperrors.NewValidationError("body", "", "invalid nowpayments ipn")
	}

	upd := &PaymentUpdate{
		EventType:         ipn.PaymentStatus,
		PaymentID:         ipn.OrderID,
		ProviderOrderID:   string(ipn.InvoiceID),
		ProviderPaymentID: string(ipn.PaymentID),
		Status:            nowpaymentsStatus(ipn.PaymentStatus),
		Raw:               string(body),
	}
	return upd, nil
}

// nowpaymentsStatus maps IPN statuses. Intermediate states, including
// partially_paid, stay pending.
func nowpaymentsStatus(s string) models.PaymentStatus {
	switch s {
	case "finished":
		return models.PaymentCompleted
	case "failed", "expired":
		return models.PaymentFailed
	case "refunded":
		return models.PaymentRefunded
	default:
		return models.PaymentPending
	}
}
