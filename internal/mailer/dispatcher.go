package mailer

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"tradelens/internal/config"
	apperrors "tradelens/internal/errors"
	"tradelens/internal/logging"
	"tradelens/internal/metrics"
	"tradelens/internal/models"
	"tradelens/internal/performance"
	"tradelens/internal/store"
	"tradelens/pkg/utils"
)

// DispatcherConfig controls batch size, concurrency and retry policy.
type DispatcherConfig struct {
	BatchSize      int
	Concurrency    int
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// Lease is how long a claimed email stays in sending before another run
	// may pick it up again.
	Lease time.Duration
}

// DispatcherConfigFrom maps the email configuration section.
func DispatcherConfigFrom(cfg config.EmailConfig) DispatcherConfig {
	return DispatcherConfig{
		BatchSize:      cfg.BatchSize,
		Concurrency:    cfg.Concurrency,
		MaxAttempts:    cfg.MaxAttempts,
		InitialBackoff: cfg.InitialBackoff,
		MaxBackoff:     cfg.MaxBackoff,
		Lease:          10 * time.Minute,
	}
}

// DispatchResult summarizes one dispatcher run.
type DispatchResult struct {
	Released int64 `json:"released"`
	Claimed  int   `json:"claimed"`
	Sent     int   `json:"sent"`
	Retried  int   `json:"retried"`
	Failed   int   `json:"failed"`
}

// Dispatcher delivers due emails from the queue.
type Dispatcher struct {
	store  store.DataStore
	sender Sender
	cfg    DispatcherConfig
	logger zerolog.Logger
	now    func() time.Time
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(ds store.DataStore, sender Sender, cfg DispatcherConfig, logger zerolog.Logger) *Dispatcher {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 25
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Minute
	}
	if cfg.Lease <= 0 {
		cfg.Lease = 10 * time.Minute
	}
	return &Dispatcher{
		store:  ds,
		sender: sender,
		cfg:    cfg,
		logger: logging.WithOperation(logger, "email_dispatch"),
		now:    time.Now,
	}
}

// Run claims one batch of due emails and delivers it.
func (d *Dispatcher) Run(ctx context.Context) (DispatchResult, error) {
	var res DispatchResult
	now := d.now().UTC()

	released, err := d.store.ReleaseStaleEmails(ctx, now)
	if err != nil {
		return res, apperrors.Wrap(err, "releasing stale emails")
	}
	res.Released = released

	emails, err := d.store.ClaimDueEmails(ctx, now, d.cfg.BatchSize, d.cfg.Lease)
	if err != nil {
		return res, apperrors.Wrap(err, "claiming emails")
	}
	res.Claimed = len(emails)
	if len(emails) == 0 {
		return res, nil
	}

	var sent, retried, failed atomic.Int64
	performance.ForEach(ctx, d.cfg.Concurrency, emails, func(ctx context.Context, e models.Email) {
		switch d.deliver(ctx, e) {
		case outcomeSent:
			sent.Add(1)
		case outcomeRetry:
			retried.Add(1)
		case outcomeFailed:
			failed.Add(1)
		}
	})

	res.Sent = int(sent.Load())
	res.Retried = int(retried.Load())
	res.Failed = int(failed.Load())
	d.logger.Info().
		Int("claimed", res.Claimed).
		Int("sent", res.Sent).
		Int("retried", res.Retried).
		Int("failed", res.Failed).
		Msg("Email batch dispatched")
	return res, nil
}

type outcome string

const (
	outcomeSent   outcome = "sent"
	outcomeRetry  outcome = "retry"
	outcomeFailed outcome = "failed"
	outcomeError  outcome = "error"
)

func (d *Dispatcher) deliver(ctx context.Context, e models.Email) outcome {
	attempt := e.Attempts + 1

	html, err := RenderHTML(e.Template, e.Params)
	if err == nil {
		err = d.sender.Send(ctx, Message{
			ToEmail: e.ToEmail,
			ToName:  e.ToName,
			Subject: e.Subject,
			HTML:    html,
			Tags:    []string{e.Template},
		})
	}
	logging.LogEmail(d.logger, e.ID, e.Template, attempt, err)

	result := outcomeSent
	var markErr error
	switch {
	case err == nil:
		markErr = d.store.MarkEmailSent(ctx, e.ID, d.now().UTC())
	case retryable(err) && attempt < d.cfg.MaxAttempts:
		result = outcomeRetry
		next := d.now().UTC().Add(utils.CalculateBackoff(attempt-1, d.cfg.InitialBackoff, d.cfg.MaxBackoff, 2))
		markErr = d.store.MarkEmailRetry(ctx, e.ID, attempt, err.Error(), next)
	default:
		result = outcomeFailed
		markErr = d.store.MarkEmailFailed(ctx, e.ID, attempt, err.Error())
	}

	if markErr != nil {
		d.logger.Error().Err(markErr).Str("email_id", e.ID).Msg("Failed to record email outcome")
		return outcomeError
	}
	metrics.RecordEmail(e.Template, string(result))
	return result
}

// retryable treats provider 429/5xx, network failures and an open circuit as
// transient. Rendering problems and 4xx rejections are permanent.
func retryable(err error) bool {
	var pe *apperrors.ProviderError
	if apperrors.As(err, &pe) {
		return pe.Retryable()
	}
	return apperrors.Is(err, apperrors.ErrProviderUnavailable)
}
