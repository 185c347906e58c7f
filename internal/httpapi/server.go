// Package httpapi exposes the journal, community and billing services over a
// JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"tradelens/internal/billing"
	"tradelens/internal/community"
	"tradelens/internal/config"
	"tradelens/internal/journal"
	"tradelens/internal/metrics"
	"tradelens/internal/models"
	"tradelens/internal/notify"
	"tradelens/internal/resilience"
	"tradelens/internal/store"
	"tradelens/internal/trades"
)

// Deps are the services behind the API.
type Deps struct {
	Config    config.ServerConfig
	JWTSecret string
	Store     store.DataStore
	Trades    *trades.Service
	Journal   *journal.Service
	Community *community.Service
	Inbox     *notify.Inbox
	Billing   *billing.Service
	Notifier  notify.Notifier
	Health    *resilience.HealthMonitor
	// ImagesDir is served under /files when set.
	ImagesDir string
	Logger    zerolog.Logger
}

// Server is the HTTP API server.
type Server struct {
	deps   Deps
	engine *gin.Engine
	logger zerolog.Logger
}

// New builds the API server and its routes.
func New(deps Deps) *Server {
	if deps.Notifier == nil {
		deps.Notifier = notify.NoOpNotifier{}
	}
	if deps.Inbox == nil {
		deps.Inbox = notify.NewInbox(deps.Store)
	}
	s := &Server{
		deps:   deps,
		engine: gin.New(),
		logger: deps.Logger.With().Str("component", "httpapi").Logger(),
	}
	s.routes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	r := s.engine
	r.HandleMethodNotAllowed = true
	r.NoRoute(noRoute)
	r.NoMethod(noMethod)
	r.Use(requestContext(s.logger), recovery(), recordMetrics())

	if s.deps.Health != nil {
		r.GET("/healthz", gin.WrapF(s.deps.Health.HealthHTTPHandler()))
	} else {
		r.GET("/healthz", func(c *gin.Context) { ok(c, gin.H{"status": "healthy"}) })
	}
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	r.POST("/webhooks/:provider", s.webhook)
	if s.deps.ImagesDir != "" {
		r.Static("/files", s.deps.ImagesDir)
	}

	auth := newAuthenticator(s.deps.JWTSecret, s)
	limiter := newRateLimiter(s.deps.Config.RateLimit, s.deps.Config.RateBurst)
	api := r.Group("/api/v1", auth.middleware(), limiter.middleware())
	premium := s.requireSubscription()

	api.GET("/me", s.me)
	api.GET("/plans", s.listPlans)

	tr := api.Group("/trades")
	tr.GET("", s.listTrades)
	tr.POST("", s.createTrade)
	tr.GET("/export", premium, s.exportTrades)
	tr.POST("/import", premium, s.importTrades)
	tr.GET("/:id", s.getTrade)
	tr.PATCH("/:id", s.updateTrade)
	tr.DELETE("/:id", s.deleteTrade)
	tr.POST("/:id/exits", s.addExit)
	tr.PUT("/:id/exits/:exitId", s.updateExit)
	tr.DELETE("/:id/exits/:exitId", s.deleteExit)
	tr.POST("/:id/close", s.closeTrade)
	tr.POST("/:id/like", s.likeTrade)
	tr.DELETE("/:id/like", s.unlikeTrade)

	api.GET("/accounts", s.listAccounts)
	api.POST("/accounts", s.createAccount)
	api.PUT("/accounts/:id", s.updateAccount)
	api.DELETE("/accounts/:id", s.deleteAccount)
	api.GET("/strategies", s.listStrategies)
	api.POST("/strategies", s.createStrategy)
	api.PUT("/strategies/:id", s.updateStrategy)
	api.DELETE("/strategies/:id", s.deleteStrategy)

	an := api.Group("/analytics")
	an.GET("/summary", s.summary)
	an.GET("/breakdown", premium, s.breakdown)
	an.GET("/daily", s.daily)
	an.GET("/equity", s.equity)

	jr := api.Group("/journal")
	jr.GET("", s.listJournal)
	jr.PUT("", s.saveJournal)
	jr.GET("/date/:date", s.journalByDate)
	jr.DELETE("/images/:imageId", s.deleteJournalImage)
	jr.GET("/:id", s.getJournal)
	jr.DELETE("/:id", s.deleteJournal)
	jr.POST("/:id/images", s.uploadJournalImage)

	nt := api.Group("/notifications")
	nt.GET("", s.listNotifications)
	nt.GET("/unread-count", s.unreadCount)
	nt.POST("/read-all", s.markAllRead)
	nt.POST("/:id/read", s.markRead)
	nt.DELETE("/:id", s.deleteNotification)

	api.GET("/profile", s.getProfile)
	api.PUT("/profile", s.saveProfile)
	api.GET("/feed", s.feed)
	api.GET("/traders/:username", s.trader)
	api.GET("/traders/:username/trades", s.traderTrades)
	api.POST("/traders/:username/follow", s.follow)
	api.DELETE("/traders/:username/follow", s.unfollow)

	api.GET("/subscription", s.subscription)
	api.POST("/subscription/cancel", s.cancelSubscription)
	api.POST("/checkout", s.checkout)
	api.POST("/paypal/orders/:id/capture", s.capturePayPal)

	admin := api.Group("/admin", s.requireRole(models.RoleAdmin))
	admin.GET("/roles", s.listRoleGrants)
	admin.POST("/roles", s.grantRole)
	admin.DELETE("/roles/:userId/:role", s.revokeRole)
	admin.GET("/payments", s.listPayments)
	admin.POST("/subscriptions/grant", s.grantSubscription)
}

// Run serves on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.deps.Config.Addr,
		Handler:           s.engine,
		ReadTimeout:       s.deps.Config.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      s.deps.Config.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	s.logger.Info().Msg("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
