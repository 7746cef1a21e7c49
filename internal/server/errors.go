package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/Wollie333/vilo-sub003/internal/subscription/domain"
)

var (
	ErrUnauthorized    = &APIError{Status: http.StatusUnauthorized, Code: "unauthorized", Message: "unauthorized"}
	ErrNotFound        = &APIError{Status: http.StatusNotFound, Code: "not_found", Message: "not found"}
	ErrTooManyRequests = &APIError{Status: http.StatusTooManyRequests, Code: "rate_limited", Message: "too many requests"}
)

// APIError is the wire shape for every non-2xx response.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e *APIError) Error() string { return e.Message }

func newValidationError(field, code, message string) *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: code, Field: field, Message: message}
}

func invalidRequestError() *APIError {
	return &APIError{Status: http.StatusBadRequest, Code: "invalid_request", Message: "invalid request body"}
}

// AbortWithError translates domain errors into HTTP responses. Unrecognized
// errors surface as opaque 500s.
func AbortWithError(c *gin.Context, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		c.AbortWithStatusJSON(apiErr.Status, gin.H{"error": apiErr})
		return
	}

	switch {
	case errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, subscriptiondomain.ErrGracePeriodNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": &APIError{
			Status: http.StatusNotFound, Code: "not_found", Message: err.Error(),
		}})
	case errors.Is(err, subscriptiondomain.ErrInvalidState):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": &APIError{
			Status: http.StatusConflict, Code: "invalid_state", Message: err.Error(),
		}})
	case errors.Is(err, subscriptiondomain.ErrInvalidPlan),
		errors.Is(err, subscriptiondomain.ErrInvalidExtension):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": &APIError{
			Status: http.StatusBadRequest, Code: "invalid_request", Message: err.Error(),
		}})
	default:
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": &APIError{
			Status: http.StatusInternalServerError, Code: "internal", Message: "internal error",
		}})
	}
}
