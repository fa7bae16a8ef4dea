package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/scailup/creditledger/internal/reset"
)

type creditResetRequest struct {
	TenantID          int64  `json:"tenant_id"`
	ResetDate         string `json:"reset_date"`
	BillingCycleStart string `json:"billing_cycle_start"`
}

type creditResetResponse struct {
	Success          bool             `json:"success"`
	Status           reset.Status     `json:"status"`
	TenantID         int64            `json:"tenant_id"`
	CreditsAllocated int64            `json:"credits_allocated"`
	RolloverApplied  int64            `json:"rollover_applied"`
	RowErrors        []reset.RowError `json:"row_errors,omitempty"`
	Timestamp        time.Time        `json:"timestamp"`
}

// HandleCreditReset runs a period reset for one tenant on demand. The
// sweeper covers the steady state; this endpoint serves support tooling
// and billing-cycle alignment.
func (s *Server) HandleCreditReset(c *gin.Context) {
	var req creditResetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_json", "request body must be valid JSON"))
		return
	}
	if req.TenantID <= 0 {
		AbortWithError(c, newValidationError("tenant_id", "invalid_tenant_id", "tenant_id is required"))
		return
	}

	resetDate, err := parseResetDate(req.ResetDate, s.clock.Now())
	if err != nil {
		AbortWithError(c, newValidationError("reset_date", "invalid_reset_date", "reset_date must be YYYY-MM-DD"))
		return
	}
	cycleStart := resetDate
	if strings.TrimSpace(req.BillingCycleStart) != "" {
		cycleStart, err = parseResetDate(req.BillingCycleStart, resetDate)
		if err != nil {
			AbortWithError(c, newValidationError("billing_cycle_start", "invalid_billing_cycle_start", "billing_cycle_start must be YYYY-MM-DD"))
			return
		}
	}

	result, err := s.processor.Run(c.Request.Context(), reset.Request{
		TenantID:          req.TenantID,
		ResetDate:         resetDate,
		BillingCycleStart: cycleStart,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, creditResetResponse{
		Success:          result.Success(),
		Status:           result.Status,
		TenantID:         result.TenantID,
		CreditsAllocated: result.CreditsAllocated,
		RolloverApplied:  result.RolloverApplied,
		RowErrors:        result.RowErrors,
		Timestamp:        result.Timestamp,
	})
}

// parseResetDate accepts a calendar date or a full RFC 3339 timestamp and
// falls back to the provided default when empty.
func parseResetDate(value string, fallback time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	if parsed, err := time.Parse("2006-01-02", value); err == nil {
		return parsed, nil
	}
	return time.Parse(time.RFC3339, value)
}
