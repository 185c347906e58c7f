package cli

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"tradelens/internal/billing"
	"tradelens/internal/cache"
	"tradelens/internal/community"
	"tradelens/internal/config"
	"tradelens/internal/journal"
	"tradelens/internal/mailer"
	"tradelens/internal/metrics"
	"tradelens/internal/notify"
	"tradelens/internal/resilience"
	"tradelens/internal/store"
	"tradelens/internal/trades"
)

// Services is the wired application graph shared by the API server, the
// scheduler and the admin commands.
type Services struct {
	Store     *store.SQLStore
	Cache     cache.Store
	Breakers  *resilience.CircuitBreakerRegistry
	Health    *resilience.HealthMonitor
	Notifier  *notify.MultiNotifier
	Inbox     *notify.Inbox
	Trades    *trades.Service
	Journal   *journal.Service
	Community *community.Service
	Billing   *billing.Service
	// Emails is nil when email delivery is disabled.
	Emails *mailer.Dispatcher

	closers []func() error
}

// Close releases the database and cache connections.
func (s *Services) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewServices opens the store and cache and wires every service from cfg.
func NewServices(cfg *config.Config, logger zerolog.Logger) (*Services, error) {
	svc := &Services{}

	cbConfig := resilience.DefaultCircuitBreakerConfig()
	cbConfig.OnStateChange = func(name string, from, to resilience.CircuitState) {
		metrics.SetProviderCircuit(name, to == resilience.CircuitOpen)
		logger.Warn().
			Str("provider", name).
			Str("from", string(from)).
			Str("to", string(to)).
			Msg("Circuit breaker state changed")
	}
	svc.Breakers = resilience.NewCircuitBreakerRegistry(cbConfig)
	svc.Health = resilience.NewHealthMonitor(5*time.Second, svc.Breakers)

	ds, err := store.Open(cfg.Database.Driver, cfg.Database.DSN, store.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	svc.Store = ds
	svc.closers = append(svc.closers, ds.Close)
	svc.Health.RegisterComponent("database", resilience.PingHealthCheck("database", 500*time.Millisecond, ds.Ping))
	logger.Debug().Str("driver", cfg.Database.Driver).Msg("Store initialized")

	if cfg.Cache.RedisURL != "" {
		rs, err := cache.NewRedisStore(cfg.Cache.RedisURL, "tradelens:")
		if err != nil {
			svc.Close()
			return nil, err
		}
		svc.Cache = rs
		svc.closers = append(svc.closers, rs.Close)
		svc.Health.RegisterComponent("cache", resilience.PingHealthCheck("cache", 200*time.Millisecond, rs.Ping))
		logger.Debug().Msg("Redis cache initialized")
	} else {
		svc.Cache = cache.NewMemoryStore()
	}

	var queue *mailer.Queue
	if cfg.Email.Enabled {
		if cfg.Credentials.Brevo.APIKey == "" {
			svc.Close()
			return nil, fmt.Errorf("email is enabled but the brevo api_key is empty")
		}
		queue = mailer.NewQueue(ds)
		sender := mailer.NewBrevoClient(cfg.Email, cfg.Credentials.Brevo.APIKey, svc.Breakers.Get("brevo"), logger)
		svc.Emails = mailer.NewDispatcher(ds, sender, mailer.DispatcherConfigFrom(cfg.Email), logger)
	}
	svc.Notifier = notify.NewMultiNotifier(cfg.Notify, queue, logger)
	svc.Inbox = notify.NewInbox(ds)

	images, err := journal.NewLocalImageStore(cfg.Storage.ImagesDir, cfg.Storage.PublicBaseURL)
	if err != nil {
		svc.Close()
		return nil, err
	}

	plans, err := billing.PlansFromConfig(cfg.Billing.Plans)
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.Trades = trades.NewService(ds, svc.Cache, cfg.Cache.TTL, svc.Notifier, logger)
	svc.Journal = journal.NewService(ds, images, cfg.Storage.MaxImageBytes, logger)
	svc.Community = community.NewService(ds, svc.Cache, cfg.Cache.TTL, svc.Notifier, logger)
	svc.Billing = billing.NewService(ds,
		billing.ProvidersFromConfig(cfg, svc.Breakers, logger),
		plans,
		billing.OptionsFromConfig(cfg),
		svc.Notifier,
		logger,
	)

	return svc, nil
}

// services opens the application graph on first use.
func (a *App) services() (*Services, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	svc, err := NewServices(a.Config, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("initializing services: %w", err)
	}
	a.svc = svc
	return svc, nil
}
