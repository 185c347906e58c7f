package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"tradelens/internal/config"
	apperrors "tradelens/internal/errors"
	"tradelens/internal/logging"
	"tradelens/internal/resilience"
)

const providerBrevo = "brevo"

// Message is a rendered email ready for delivery.
type Message struct {
	ToEmail string
	ToName  string
	Subject string
	HTML    string
	Tags    []string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// BrevoClient sends transactional email through the Brevo SMTP API.
type BrevoClient struct {
	baseURL     string
	apiKey      string
	senderName  string
	senderEmail string
	client      *http.Client
	breaker     *resilience.CircuitBreaker
	logger      zerolog.Logger
}

// NewBrevoClient creates a Brevo client. breaker may be nil.
func NewBrevoClient(cfg config.EmailConfig, apiKey string, breaker *resilience.CircuitBreaker, logger zerolog.Logger) *BrevoClient {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.brevo.com"
	}
	return &BrevoClient{
		baseURL:     base,
		apiKey:      apiKey,
		senderName:  cfg.SenderName,
		senderEmail: cfg.SenderEmail,
		client:      &http.Client{Timeout: 15 * time.Second},
		breaker:     breaker,
		logger:      logging.WithProvider(logger, providerBrevo),
	}
}

type brevoContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type brevoRequest struct {
	Sender      brevoContact   `json:"sender"`
	To          []brevoContact `json:"to"`
	Subject     string         `json:"subject"`
	HTMLContent string         `json:"htmlContent"`
	Tags        []string       `json:"tags,omitempty"`
}

type brevoError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Send delivers one message. Non-2xx responses become *errors.ProviderError.
func (c *BrevoClient) Send(ctx context.Context, msg Message) error {
	if c.breaker == nil {
		return c.send(ctx, msg)
	}
	return c.breaker.Execute(ctx, func(ctx context.Context) error { return c.send(ctx, msg) })
}

func (c *BrevoClient) send(ctx context.Context, msg Message) error {
	payload := brevoRequest{
		Sender:      brevoContact{Email: c.senderEmail, Name: c.senderName},
		To:          []brevoContact{{Email: msg.ToEmail, Name: msg.ToName}},
		Subject:     msg.Subject,
		HTMLContent: msg.HTML,
		Tags:        msg.Tags,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling brevo payload: %w", err)
	}

	endpoint := c.baseURL + "/v3/smtp/email"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating brevo request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.apiKey)
	req.Header.Set("User-Agent", "TradeLens/1.0")

	start := time.Now()
	resp, err := c.client.Do(req)
	logging.LogAPICall(c.logger, http.MethodPost, endpoint, time.Since(start), err)
	if err != nil {
		return apperrors.NewProviderError(providerBrevo, 0, "", "sending email", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var be brevoError
	if json.Unmarshal(raw, &be) != nil || be.Message == "" {
		be.Message = strings.TrimSpace(string(raw))
	}
	return apperrors.NewProviderError(providerBrevo, resp.StatusCode, be.Code, be.Message, nil)
}
