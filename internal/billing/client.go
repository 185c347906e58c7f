package billing

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

	apperrors "tradelens/internal/errors"
	"tradelens/internal/logging"
	"tradelens/internal/resilience"
	"tradelens/pkg/utils"
)

// apiClient performs JSON calls to one provider behind its circuit breaker.
type apiClient struct {
	provider string
	baseURL  string
	client   *http.Client
	breaker  *resilience.CircuitBreaker
	retry    utils.RetryConfig
	logger   zerolog.Logger
}

func newAPIClient(provider, baseURL string, breaker *resilience.CircuitBreaker, logger zerolog.Logger) apiClient {
	return apiClient{
		provider: provider,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: 20 * time.Second},
		breaker:  breaker,
		retry:    retryConfig(),
		logger:   logging.WithProvider(logger, provider),
	}
}

// retryConfig repeats idempotent calls that failed on the provider side.
func retryConfig() utils.RetryConfig {
	cfg := utils.DefaultRetryConfig()
	cfg.Retryable = func(err error) bool {
		var pe *apperrors.ProviderError
		return apperrors.As(err, &pe) && pe.Retryable()
	}
	return cfg
}

// request is one outbound call. Body is either raw bytes with ContentType or a
// value marshaled as JSON.
type request struct {
	Method      string
	Path        string
	Headers     map[string]string
	JSON        interface{}
	Body        []byte
	ContentType string
	BasicUser   string
	BasicPass   string

	// Idempotent calls are retried on transient provider failures.
	Idempotent bool
}

func (c apiClient) do(ctx context.Context, r request, out interface{}) error {
	call := func(ctx context.Context) error {
		if c.breaker == nil {
			return c.send(ctx, r, out)
		}
		return c.breaker.Execute(ctx, func(ctx context.Context) error { return c.send(ctx, r, out) })
	}
	if !r.Idempotent {
		return call(ctx)
	}
	return utils.Retry(ctx, c.retry, call)
}

func (c apiClient) send(ctx context.Context, r request, out interface{}) error {
	body := r.Body
	contentType := r.ContentType
	if r.JSON != nil {
		b, err := json.Marshal(r.JSON)
		if err != nil {
			return fmt.Errorf("marshaling %s request: %w", c.provider, err)
		}
		body = b
		contentType = "application/json"
	}

	endpoint := c.baseURL + r.Path
	req, err := http.NewRequestWithContext(ctx, r.Method, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating %s request: %w", c.provider, err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "TradeLens/1.0")
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	if r.BasicUser != "" {
		req.SetBasicAuth(r.BasicUser, r.BasicPass)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	logging.LogAPICall(c.logger, r.Method, endpoint, time.Since(start), err)
	if err != nil {
		return apperrors.NewProviderError(c.provider, 0, "", "request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return apperrors.NewProviderError(c.provider, resp.StatusCode, "", "reading response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		code, msg := parseErrorBody(raw)
		return apperrors.NewProviderError(c.provider, resp.StatusCode, code, msg, nil)
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return apperrors.NewProviderError(c.provider, resp.StatusCode, "", "decoding response", err)
		}
	}
	return nil
}

// parseErrorBody extracts a code and message from the error shapes used by the
// providers ({"name","message"}, {"code","message"}, {"error","error_description"}).
func parseErrorBody(raw []byte) (code, message string) {
	var body struct {
		Name        string `json:"name"`
		Code        string `json:"code"`
		Type        string `json:"type"`
		Message     string `json:"message"`
		Error       string `json:"error"`
		Description string `json:"error_description"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return "", strings.TrimSpace(string(raw))
	}
	for _, c := range []string{body.Name, body.Code, body.Type, body.Error} {
		if c != "" {
			code = c
			break
		}
	}
	message = body.Message
	if message == "" {
		message = body.Description
	}
	if message == "" {
		message = strings.TrimSpace(string(raw))
	}
	return code, message
}
