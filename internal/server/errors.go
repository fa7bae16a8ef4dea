package server

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/scailup/creditledger/internal/authorization"
	catalogdomain "github.com/scailup/creditledger/internal/catalog/domain"
	creditsdomain "github.com/scailup/creditledger/internal/credits/domain"
	"github.com/scailup/creditledger/internal/ratelimit"
	"github.com/scailup/creditledger/internal/reset"
	tenantdomain "github.com/scailup/creditledger/internal/tenant/domain"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Errors    []ValidationError `json:"errors,omitempty"`
	Available *int64            `json:"available,omitempty"`
	Requested *int64            `json:"requested,omitempty"`
}

type errorResponse struct {
	Success bool         `json:"success"`
	Error   errorPayload `json:"error"`
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status == http.StatusTooManyRequests {
			if retryAfter, ok := c.Get("retry_after_seconds"); ok {
				if seconds, isInt := retryAfter.(int); isInt && seconds > 0 {
					c.Header("Retry-After", strconv.Itoa(seconds))
				}
			}
		}
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	var insufficient *creditsdomain.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		available := insufficient.Available
		requested := insufficient.Requested
		return http.StatusBadRequest, errorPayload{
			Type:      "insufficient_credits",
			Message:   fmt.Sprintf("requested %d credits, %d remaining", requested, available),
			Available: &available,
			Requested: &requested,
		}
	}

	if code, ok := validationCode(err); ok {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, tenantdomain.ErrInvalidAPIKey):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden),
		errors.Is(err, creditsdomain.ErrPermissionDenied):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, ratelimit.ErrRateLimited),
		errors.Is(err, reset.ErrResetInProgress):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, creditsdomain.ErrInsufficientCredits):
		return http.StatusBadRequest, errorPayload{
			Type:    "insufficient_credits",
			Message: "insufficient credits",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func isNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, gorm.ErrRecordNotFound) ||
		errors.Is(err, tenantdomain.ErrNotFound) ||
		errors.Is(err, creditsdomain.ErrTenantNotFound) ||
		errors.Is(err, reset.ErrTenantNotFound)
}

func validationCode(err error) (string, bool) {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request", true
	case errors.Is(err, creditsdomain.ErrInvalidModuleCode),
		errors.Is(err, catalogdomain.ErrInvalidModuleCode):
		return "invalid_module_id", true
	case errors.Is(err, creditsdomain.ErrInvalidCreditType):
		return "invalid_credit_type", true
	case errors.Is(err, creditsdomain.ErrInvalidAmount):
		return "invalid_amount", true
	case errors.Is(err, catalogdomain.ErrInvalidTierCode):
		return "invalid_tier_code", true
	case errors.Is(err, tenantdomain.ErrInvalidID):
		return "invalid_tenant_id", true
	case errors.Is(err, reset.ErrInvalidRequest):
		return "invalid_reset_request", true
	default:
		return "", false
	}
}

func validationField(code string) string {
	switch code {
	case "invalid_module_id":
		return "module_id"
	case "invalid_credit_type":
		return "credit_type"
	case "invalid_amount":
		return "amount"
	case "invalid_tier_code":
		return "tier_code"
	case "invalid_tenant_id":
		return "tenant_id"
	case "invalid_reset_request":
		return "reset_date"
	default:
		return "request"
	}
}

// classifyErrorForLog feeds the request logger so expected rejections stay
// at debug level.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	status, payload := mapError(err)
	return payload.Type, strconv.Itoa(status)
}
