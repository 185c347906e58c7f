package scheduler

import (
	"context"
	"time"

	"tradelens/internal/billing"
	"tradelens/internal/config"
	"tradelens/internal/mailer"
)

// Job names.
const (
	JobEmailDispatch     = "email_dispatch"
	JobSubscriptionSweep = "subscription_sweep"
	JobProfileRefresh    = "profile_refresh"
	JobTradeDigest       = "trade_digest"
)

// EmailDispatcher delivers one batch of queued emails.
type EmailDispatcher interface {
	Run(ctx context.Context) (mailer.DispatchResult, error)
}

// SubscriptionSweeper expires and reminds subscriptions.
type SubscriptionSweeper interface {
	Sweep(ctx context.Context) (billing.SweepResult, error)
}

// ProfileRefresher recomputes public profile statistics.
type ProfileRefresher interface {
	RefreshPublicProfiles(ctx context.Context, workers int) (int, error)
}

// DigestSender sends trade digests for a closed window.
type DigestSender interface {
	SendDigests(ctx context.Context, period string, from, to time.Time) (int, error)
}

// Deps are the services the background jobs drive. Nil services leave their
// job out.
type Deps struct {
	Emails         EmailDispatcher
	Subscriptions  SubscriptionSweeper
	Profiles       ProfileRefresher
	Digests        DigestSender
	ProfileWorkers int
	Now            func() time.Time
}

// Register adds the standard jobs with the schedules in cfg.
func Register(s *Scheduler, cfg config.CronConfig, deps Deps) error {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	workers := deps.ProfileWorkers
	if workers <= 0 {
		workers = 4
	}

	var jobs []Job
	if deps.Emails != nil {
		jobs = append(jobs, Job{Name: JobEmailDispatch, Spec: cfg.EmailDispatch, Run: func(ctx context.Context) error {
			_, err := deps.Emails.Run(ctx)
			return err
		}})
	}
	if deps.Subscriptions != nil {
		jobs = append(jobs, Job{Name: JobSubscriptionSweep, Spec: cfg.SubscriptionSweep, Run: func(ctx context.Context) error {
			_, err := deps.Subscriptions.Sweep(ctx)
			return err
		}})
	}
	if deps.Profiles != nil {
		jobs = append(jobs, Job{Name: JobProfileRefresh, Spec: cfg.ProfileRefresh, Run: func(ctx context.Context) error {
			_, err := deps.Profiles.RefreshPublicProfiles(ctx, workers)
			return err
		}})
	}
	if deps.Digests != nil {
		jobs = append(jobs, Job{Name: JobTradeDigest, Spec: cfg.TradeDigest, Run: func(ctx context.Context) error {
			to := now().UTC().Truncate(time.Minute)
			_, err := deps.Digests.SendDigests(ctx, "daily", to.Add(-24*time.Hour), to)
			return err
		}})
	}

	for _, j := range jobs {
		if err := s.Add(j); err != nil {
			return err
		}
	}
	return nil
}
