package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	done := RequestStarted()
	assert.Equal(t, 1.0, testutil.ToFloat64(httpInFlight))
	done(http.MethodGet, "/api/v1/trades/:id", http.StatusOK)
	assert.Equal(t, 0.0, testutil.ToFloat64(httpInFlight))
	assert.Equal(t, 1.0, testutil.ToFloat64(httpRequests.WithLabelValues("GET", "/api/v1/trades/:id", "200")))

	RecordEmail("welcome", "sent")
	assert.Equal(t, 1.0, testutil.ToFloat64(emailsProcessed.WithLabelValues("welcome", "sent")))

	SetProviderCircuit("paypal", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(providerOpen.WithLabelValues("paypal")))
	SetProviderCircuit("paypal", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(providerOpen.WithLabelValues("paypal")))

	RecordJob("", time.Millisecond, true)
	assert.Equal(t, 1.0, testutil.ToFloat64(jobRuns.WithLabelValues("unknown", "true")))
}

func TestHandlerServesRegistry(t *testing.T) {
	RecordPayment("cashfree", "completed")
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `tradelens_billing_payments_total{provider="cashfree",status="completed"}`)
}
