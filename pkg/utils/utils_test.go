package utils

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount   string
		currency string
		want     string
	}{
		{"0", "USD", "$0.00"},
		{"1234.5", "USD", "$1,234.50"},
		{"-1234567.891", "EUR", "-€1,234,567.89"},
		{"999", "", "999.00"},
		{"100000", "SGD", "100,000.00 SGD"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatMoney(decimal.RequireFromString(tt.amount), tt.currency))
		})
	}
}

func TestFormatPnLAndPercent(t *testing.T) {
	assert.Equal(t, "+$148.00", FormatPnL(decimal.NewFromInt(148), "USD"))
	assert.Equal(t, "-$52.00", FormatPnL(decimal.NewFromInt(-52), "USD"))
	assert.Equal(t, "+14.80%", FormatPercent(decimal.RequireFromString("14.8")))
	assert.Equal(t, "0.00%", FormatPercent(decimal.Zero))
	assert.Equal(t, "-", FormatOptional(nil, 2))
}

func TestFormatQuantity(t *testing.T) {
	assert.Equal(t, "1,500", FormatQuantity(decimal.NewFromInt(1500)))
	assert.Equal(t, "0.25", FormatQuantity(decimal.RequireFromString("0.25")))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "30s", FormatDuration(30*time.Second))
	assert.Equal(t, "45m", FormatDuration(45*time.Minute))
	assert.Equal(t, "2h 5m", FormatDuration(2*time.Hour+5*time.Minute))
	assert.Equal(t, "3d 4h", FormatDuration(76*time.Hour))
}

func TestCalculateBackoff(t *testing.T) {
	assert.Equal(t, time.Minute, CalculateBackoff(0, time.Minute, time.Hour, 2))
	assert.Equal(t, 4*time.Minute, CalculateBackoff(2, time.Minute, time.Hour, 2))
	assert.Equal(t, time.Hour, CalculateBackoff(10, time.Minute, time.Hour, 2))
}

func TestRetry(t *testing.T) {
	cfg := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := Retry(context.Background(), cfg, func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	permanent := errors.New("permanent")
	cfg.Retryable = func(err error) bool { return !errors.Is(err, permanent) }
	calls = 0
	err = Retry(context.Background(), cfg, func(context.Context) error { calls++; return permanent })
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestRetryContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := RetryConfig{MaxAttempts: 5, InitialDelay: time.Hour, MaxDelay: time.Hour}
	_, err := RetryWithResult(ctx, cfg, func(context.Context) (int, error) { return 0, errors.New("down") })
	assert.ErrorIs(t, err, context.Canceled)
}
