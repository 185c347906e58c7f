package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", NotFound("trade", "t1"), http.StatusNotFound},
		{"validation", NewValidationError("quantity", -1, "must be positive"), http.StatusBadRequest},
		{"wrapped validation", Wrap(NewValidationError("price", 0, "must be positive"), "create trade"), http.StatusBadRequest},
		{"over exit", NewTradeError("t1", "exit", "too much", ErrOverExit), http.StatusConflict},
		{"closed", ErrTradeClosed, http.StatusConflict},
		{"signature", fmt.Errorf("paypal: %w", ErrInvalidSignature), http.StatusUnauthorized},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"subscription", ErrSubscriptionRequired, http.StatusPaymentRequired},
		{"provider", NewProviderError("brevo", 500, "", "boom", nil), http.StatusBadGateway},
		{"other", New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestProviderErrorRetryable(t *testing.T) {
	assert.True(t, NewProviderError("brevo", 0, "", "network", nil).Retryable())
	assert.True(t, NewProviderError("brevo", http.StatusTooManyRequests, "", "slow down", nil).Retryable())
	assert.True(t, NewProviderError("brevo", http.StatusBadGateway, "", "bad gateway", nil).Retryable())
	assert.False(t, NewProviderError("brevo", http.StatusBadRequest, "invalid_parameter", "bad email", nil).Retryable())
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "ctx"))
	assert.Nil(t, Wrapf(nil, "ctx %d", 1))
}
