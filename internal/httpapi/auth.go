package httpapi

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/logging"
	"tradelens/internal/models"
	"tradelens/internal/notify"
	"tradelens/internal/store"
)

const userKey = "tradelens.user"

// Claims are the claims of a Supabase access token.
type Claims struct {
	Email        string       `json:"email"`
	Role         string       `json:"role"`
	UserMetadata UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

// UserMetadata is the profile data Supabase copies into the token.
type UserMetadata struct {
	FullName string `json:"full_name"`
	Name     string `json:"name"`
}

// authenticator verifies HS256 bearer tokens and onboards first-seen users.
type authenticator struct {
	secret []byte
	srv    *Server

	mu   sync.Mutex
	seen map[string]bool
}

func newAuthenticator(secret string, srv *Server) *authenticator {
	return &authenticator{secret: []byte(secret), srv: srv, seen: make(map[string]bool)}
}

// parse validates a token and returns its claims.
func (a *authenticator) parse(raw string) (*Claims, error) {
	if len(a.secret) == 0 {
		return nil, apperrors.Wrap(apperrors.ErrUnauthorized, "token verification is not configured")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrUnauthorized, "invalid token: %v", err)
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, apperrors.Wrap(apperrors.ErrUnauthorized, "token has no subject")
	}
	return claims, nil
}

func (a *authenticator) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		scheme, raw, found := strings.Cut(header, " ")
		if !found || !strings.EqualFold(scheme, "bearer") || strings.TrimSpace(raw) == "" {
			fail(c, apperrors.Wrap(apperrors.ErrUnauthorized, "missing bearer token"))
			return
		}

		claims, err := a.parse(strings.TrimSpace(raw))
		if err != nil {
			fail(c, err)
			return
		}
		user := &models.User{
			ID:          claims.Subject,
			Email:       claims.Email,
			DisplayName: claims.UserMetadata.FullName,
		}
		if user.DisplayName == "" {
			user.DisplayName = claims.UserMetadata.Name
		}
		if err := a.ensureUser(c.Request.Context(), user); err != nil {
			fail(c, err)
			return
		}

		c.Set(userKey, user)
		ctx := logging.WithLogger(c.Request.Context(), logging.WithUser(*logging.FromContext(c.Request.Context()), user.ID))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// ensureUser records a user the first time this process sees them. New users
// get a trial subscription and a welcome notification.
func (a *authenticator) ensureUser(ctx context.Context, user *models.User) error {
	a.mu.Lock()
	known := a.seen[user.ID]
	a.mu.Unlock()
	if known {
		return nil
	}

	if err := Onboard(ctx, a.srv.deps, user); err != nil {
		return err
	}
	a.mu.Lock()
	a.seen[user.ID] = true
	a.mu.Unlock()
	return nil
}

// Onboard upserts user. When the user is new it also starts their trial and
// sends the welcome notification, all in one transaction.
func Onboard(ctx context.Context, deps Deps, user *models.User) error {
	var isNew bool
	err := deps.Store.WithTx(ctx, func(tx store.DataStore) error {
		created, err := tx.UpsertUser(ctx, user)
		if err != nil || !created {
			return err
		}
		isNew = true

		sub, err := deps.Billing.StartTrial(ctx, tx, user.ID)
		if err != nil {
			return err
		}
		var trialEnd *time.Time
		if sub != nil {
			trialEnd = &sub.CurrentPeriodEnd
		}
		return deps.Notifier.Send(ctx, tx, notify.Welcome(user, trialEnd))
	})
	if err != nil {
		return apperrors.Wrap(err, "onboarding user")
	}
	if isNew {
		logging.FromContext(ctx).Info().Str("user_id", user.ID).Msg("New user registered")
	}
	return nil
}

func currentUser(c *gin.Context) *models.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*models.User)
	return u
}

func userID(c *gin.Context) string {
	if u := currentUser(c); u != nil {
		return u.ID
	}
	return ""
}
