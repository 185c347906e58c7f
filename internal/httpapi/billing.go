package httpapi

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/logging"
	"tradelens/internal/models"
)

// maxWebhookBytes bounds webhook bodies.
const maxWebhookBytes = 1 << 20

func (s *Server) me(c *gin.Context) {
	u := currentUser(c)
	roles, err := s.deps.Store.ListRoles(c.Request.Context(), u.ID)
	if err != nil {
		fail(c, err)
		return
	}
	access, err := s.deps.Billing.Access(c.Request.Context(), u.ID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"user": u, "roles": roles, "subscription": access.Subscription, "active": access.Active})
}

func (s *Server) listPlans(c *gin.Context) {
	ok(c, gin.H{"items": s.deps.Billing.Plans(), "providers": s.deps.Billing.Providers()})
}

func (s *Server) subscription(c *gin.Context) {
	access, err := s.deps.Billing.Access(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, access)
}

func (s *Server) cancelSubscription(c *gin.Context) {
	sub, err := s.deps.Billing.Cancel(c.Request.Context(), userID(c))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, sub)
}

type checkoutRequest struct {
	PlanID   string `json:"plan_id"`
	Provider string `json:"provider"`
}

func (s *Server) checkout(c *gin.Context) {
	var req checkoutRequest
	if !bind(c, &req) {
		return
	}
	res, err := s.deps.Billing.Checkout(c.Request.Context(), currentUser(c), req.PlanID, req.Provider)
	if err != nil {
		fail(c, err)
		return
	}
	created(c, res)
}

func (s *Server) capturePayPal(c *gin.Context) {
	p, err := s.deps.Billing.Capture(c.Request.Context(), userID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

// webhook receives provider callbacks. It answers 2xx once an event is applied
// or deliberately ignored, so that providers stop retrying.
func (s *Server) webhook(c *gin.Context) {
	provider := c.Param("provider")
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBytes+1))
	if err != nil {
		fail(c, apperrors.NewValidationError("body", "", err.Error()))
		return
	}
	if len(body) > maxWebhookBytes {
		fail(c, apperrors.NewValidationError("body", len(body), "webhook body too large"))
		return
	}

	logger := logging.WithProvider(*logging.FromContext(c.Request.Context()), provider)
	payment, err := s.deps.Billing.HandleWebhook(c.Request.Context(), provider, c.Request.Header, body)
	if err != nil {
		logger.Warn().Err(err).Msg("Webhook rejected")
		fail(c, err)
		return
	}
	if payment == nil {
		ok(c, gin.H{"status": "ignored"})
		return
	}
	ok(c, gin.H{"status": "ok", "payment_id": payment.ID, "payment_status": payment.Status})
}

func (s *Server) listRoleGrants(c *gin.Context) {
	grants, err := s.deps.Store.ListRoleGrants(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	items(c, grants)
}

type roleRequest struct {
	UserID string      `json:"user_id"`
	Role   models.Role `json:"role"`
}

func (s *Server) grantRole(c *gin.Context) {
	var req roleRequest
	if !bind(c, &req) {
		return
	}
	if !req.Role.Valid() {
		fail(c, apperrors.NewValidationError("role", req.Role, "unknown role"))
		return
	}
	if _, err := s.deps.Store.GetUser(c.Request.Context(), req.UserID); err != nil {
		fail(c, err)
		return
	}
	if err := s.deps.Store.GrantRole(c.Request.Context(), req.UserID, req.Role); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) revokeRole(c *gin.Context) {
	role := models.Role(c.Param("role"))
	if !role.Valid() {
		fail(c, apperrors.NewValidationError("role", role, "unknown role"))
		return
	}
	if err := s.deps.Store.RevokeRole(c.Request.Context(), c.Param("userId"), role); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listPayments(c *gin.Context) {
	list, err := s.deps.Billing.ListPayments(c.Request.Context(), models.PaymentFilter{
		UserID:   c.Query("user_id"),
		Provider: c.Query("provider"),
		Status:   models.PaymentStatus(c.Query("status")),
		Limit:    intQuery(c, "limit", 100),
		Offset:   intQuery(c, "offset", 0),
	})
	if err != nil {
		fail(c, err)
		return
	}
	items(c, list)
}

type grantRequest struct {
	UserID string `json:"user_id"`
	PlanID string `json:"plan_id"`
}

func (s *Server) grantSubscription(c *gin.Context) {
	var req grantRequest
	if !bind(c, &req) {
		return
	}
	sub, err := s.deps.Billing.Grant(c.Request.Context(), req.UserID, req.PlanID)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, sub)
}
