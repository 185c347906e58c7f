package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "tradelens/internal/errors"
	"tradelens/internal/logging"
)

// errorBody is the JSON body of every failed request.
type errorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

var statusCodes = map[int]string{
	http.StatusBadRequest:         "invalid_request",
	http.StatusUnauthorized:       "unauthorized",
	http.StatusPaymentRequired:    "subscription_required",
	http.StatusForbidden:          "forbidden",
	http.StatusNotFound:           "not_found",
	http.StatusConflict:           "conflict",
	http.StatusTooManyRequests:    "rate_limited",
	http.StatusBadGateway:         "provider_error",
	http.StatusServiceUnavailable: "unavailable",
}

// fail aborts the request with the status mapped from err. Internal errors are
// logged and their details withheld from the client.
func fail(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	body := errorBody{
		Code:      statusCodes[status],
		Message:   err.Error(),
		RequestID: logging.RequestID(c.Request.Context()),
	}
	var ve *apperrors.ValidationError
	if apperrors.As(err, &ve) {
		body.Field = ve.Field
		body.Message = ve.Field + ": " + ve.Message
	}
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway {
		logging.FromContext(c.Request.Context()).Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request failed")
		body.Code = "internal"
		body.Message = "internal server error"
	}
	if body.Code == "" {
		body.Code = "error"
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

func created(c *gin.Context, data any) {
	c.JSON(http.StatusCreated, data)
}

func items[T any](c *gin.Context, list []T) {
	if list == nil {
		list = []T{}
	}
	c.JSON(http.StatusOK, gin.H{"items": list})
}

// bind decodes the JSON body into v.
func bind(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		fail(c, apperrors.NewValidationError("body", "", err.Error()))
		return false
	}
	return true
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func boolQuery(c *gin.Context, key string) bool {
	v, _ := strconv.ParseBool(strings.TrimSpace(c.Query(key)))
	return v
}

// timeQuery parses an RFC 3339 time or a YYYY-MM-DD date. Absent values are nil.
func timeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, apperrors.NewValidationError(key, raw, "expected RFC 3339 time or YYYY-MM-DD")
}
