package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/logging"
	"tradelens/internal/metrics"
	"tradelens/internal/models"
)

const requestIDHeader = "X-Request-ID"

// requestContext tags the request with an id and a request-scoped logger, and
// writes one access log line when it finishes.
func requestContext(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		reqLogger := logger.With().Str("request_id", id).Logger()
		ctx := logging.WithRequestID(c.Request.Context(), id)
		ctx = logging.WithLogger(ctx, reqLogger)
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := reqLogger.Info()
		switch {
		case status >= 500:
			event = reqLogger.Error()
		case status >= 400:
			event = reqLogger.Warn()
		}
		if u := currentUser(c); u != nil {
			event = event.Str("user_id", u.ID)
		}
		event.
			Str("method", c.Request.Method).
			Str("route", c.FullPath()).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}

func recordMetrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		done := metrics.RequestStarted()
		c.Next()
		done(c.Request.Method, c.FullPath(), c.Writer.Status())
	}
}

func recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, rec any) {
		logging.FromContext(c.Request.Context()).Error().
			Str("panic", fmt.Sprint(rec)).
			Str("path", c.Request.URL.Path).
			Msg("Handler panicked")
		fail(c, fmt.Errorf("panic: %v", rec))
	})
}

// rateLimiter holds one token bucket per user, or per client IP before
// authentication.
type rateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rate     rate.Limit
	burst    int
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newRateLimiter(perSecond float64, burst int) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &rateLimiter{
		limiters: make(map[string]*limiterEntry),
		rate:     rate.Limit(perSecond),
		burst:    burst,
		now:      time.Now,
	}
}

func (rl *rateLimiter) allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.limiters[key]
	if !ok {
		if len(rl.limiters) >= 10000 {
			rl.evict(now.Add(-10 * time.Minute))
		}
		e = &limiterEntry{limiter: rate.NewLimiter(rl.rate, rl.burst)}
		rl.limiters[key] = e
	}
	e.lastSeen = now
	return e.limiter.AllowN(now, 1)
}

// evict drops buckets idle since before cutoff. Callers hold mu.
func (rl *rateLimiter) evict(cutoff time.Time) {
	for k, e := range rl.limiters {
		if e.lastSeen.Before(cutoff) {
			delete(rl.limiters, k)
		}
	}
}

func (rl *rateLimiter) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.rate <= 0 {
			c.Next()
			return
		}
		key := "ip:" + c.ClientIP()
		if u := currentUser(c); u != nil {
			key = "user:" + u.ID
		}
		if !rl.allow(key) {
			c.Header("Retry-After", "1")
			fail(c, apperrors.ErrRateLimited)
			return
		}
		c.Next()
	}
}

// requireRole lets through users holding role. Admins pass every role check.
func (s *Server) requireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		u := currentUser(c)
		roles, err := s.deps.Store.ListRoles(c.Request.Context(), u.ID)
		if err != nil {
			fail(c, err)
			return
		}
		for _, r := range roles {
			if r == role || r == models.RoleAdmin {
				c.Next()
				return
			}
		}
		fail(c, fmt.Errorf("role %s required: %w", role, apperrors.ErrForbidden))
	}
}

// requireSubscription guards premium routes.
func (s *Server) requireSubscription() gin.HandlerFunc {
	return func(c *gin.Context) {
		access, err := s.deps.Billing.Access(c.Request.Context(), currentUser(c).ID)
		if err != nil {
			fail(c, err)
			return
		}
		if !access.Active {
			fail(c, apperrors.ErrSubscriptionRequired)
			return
		}
		c.Next()
	}
}

func noRoute(c *gin.Context) {
	fail(c, apperrors.NotFound("route", c.Request.Method+" "+c.Request.URL.Path))
}

func noMethod(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusMethodNotAllowed, errorBody{
		Code:      "method_not_allowed",
		Message:   c.Request.Method + " not allowed",
		RequestID: logging.RequestID(c.Request.Context()),
	})
}
