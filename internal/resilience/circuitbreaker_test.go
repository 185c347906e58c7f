package resilience

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tradelens/internal/errors"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg CircuitBreakerConfig) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker("paypal", cfg)
	cb.now = clock.Now
	return cb, clock
}

var errUpstream = apperrors.NewProviderError("paypal", http.StatusBadGateway, "", "bad gateway", nil)

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	var transitions []CircuitState
	cb, _ := newTestBreaker(CircuitBreakerConfig{
		FailureThreshold: 3,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		OnStateChange: func(name string, from, to CircuitState) {
			assert.Equal(t, "paypal", name)
			transitions = append(transitions, to)
		},
	})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, func(context.Context) error { return errUpstream })
		assert.ErrorIs(t, err, errUpstream)
	}
	assert.Equal(t, CircuitOpen, cb.State())
	assert.Equal(t, []CircuitState{CircuitOpen}, transitions)

	called := false
	err := cb.Execute(ctx, func(context.Context) error { called = true; return nil })
	assert.False(t, called)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.ErrorIs(t, err, apperrors.ErrProviderUnavailable)
	assert.Equal(t, http.StatusBadGateway, apperrors.HTTPStatus(err))
	assert.Equal(t, int64(1), cb.Stats().TotalRejected)
}

func TestCircuitBreakerHalfOpenRecovery(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, func(context.Context) error { return errUpstream })
	require.Equal(t, CircuitOpen, cb.State())

	clock.Advance(time.Minute)
	require.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, CircuitHalfOpen, cb.State())
	require.NoError(t, cb.Execute(ctx, func(context.Context) error { return nil }))
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 2, Timeout: time.Minute})
	ctx := context.Background()

	_ = cb.Execute(ctx, func(context.Context) error { return errUpstream })
	clock.Advance(2 * time.Minute)
	_ = cb.Execute(ctx, func(context.Context) error { return errUpstream })
	assert.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreakerIgnoresClientErrors(t *testing.T) {
	cb, _ := newTestBreaker(CircuitBreakerConfig{FailureThreshold: 1, SuccessThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()

	badRequest := apperrors.NewProviderError("paypal", http.StatusBadRequest, "INVALID_REQUEST", "bad amount", nil)
	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, func(context.Context) error { return badRequest })
		_ = cb.Execute(ctx, func(context.Context) error { return apperrors.ErrInvalidSignature })
		_ = cb.Execute(ctx, func(context.Context) error { return context.Canceled })
	}
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestExecuteWithResult(t *testing.T) {
	cb, _ := newTestBreaker(DefaultCircuitBreakerConfig())

	v, err := ExecuteWithResult(cb, context.Background(), func(context.Context) (string, error) {
		return "ORDER-1", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ORDER-1", v)

	v, err = ExecuteWithResult(cb, context.Background(), func(context.Context) (string, error) {
		return "ignored", errors.New("boom")
	})
	assert.Error(t, err)
	assert.Empty(t, v)
}

func TestProviderFault(t *testing.T) {
	assert.False(t, ProviderFault(nil))
	assert.True(t, ProviderFault(errors.New("dial tcp: connection refused")))
	assert.True(t, ProviderFault(apperrors.NewProviderError("brevo", 0, "", "timeout", nil)))
	assert.False(t, ProviderFault(apperrors.NewValidationError("amount", "x", "invalid")))
}

func TestRegistry(t *testing.T) {
	r := NewCircuitBreakerRegistry(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour})
	a := r.Get("paypal")
	assert.Same(t, a, r.Get("paypal"))
	r.Get("cashfree")

	_ = a.Execute(context.Background(), func(context.Context) error { return errUpstream })
	stats := r.AllStats()
	require.Len(t, stats, 2)
	assert.Equal(t, "cashfree", stats[0].Name)
	assert.Equal(t, CircuitOpen, stats[1].State)
	assert.Equal(t, 100.0, stats[1].FailureRate())

	r.ResetAll()
	assert.Equal(t, CircuitClosed, a.State())
}

func TestHealthMonitor(t *testing.T) {
	breakers := NewCircuitBreakerRegistry(CircuitBreakerConfig{FailureThreshold: 1, Timeout: time.Hour})
	m := NewHealthMonitor(time.Second, breakers)
	m.RegisterComponent("database", PingHealthCheck("database", 0, func(context.Context) error { return nil }))

	h := m.Check(context.Background())
	assert.Equal(t, HealthStatusHealthy, h.Status)
	require.Len(t, h.Components, 1)

	_ = breakers.Get("nowpayments").Execute(context.Background(), func(context.Context) error { return errUpstream })
	assert.Equal(t, HealthStatusDegraded, m.Check(context.Background()).Status)

	m.RegisterComponent("cache", PingHealthCheck("cache", 0, func(context.Context) error { return errors.New("refused") }))
	rec := httptest.NewRecorder()
	m.HealthHTTPHandler()(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"unhealthy"`)
}
