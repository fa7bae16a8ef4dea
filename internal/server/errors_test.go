package server

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/scailup/creditledger/internal/authorization"
	creditsdomain "github.com/scailup/creditledger/internal/credits/domain"
	"github.com/scailup/creditledger/internal/ratelimit"
	"github.com/scailup/creditledger/internal/reset"
	tenantdomain "github.com/scailup/creditledger/internal/tenant/domain"
)

func TestMapError(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
	}{
		{"validation", newValidationError("amount", "invalid_amount", "must be positive"), http.StatusBadRequest, "validation_error"},
		{"invalid amount sentinel", creditsdomain.ErrInvalidAmount, http.StatusBadRequest, "validation_error"},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"invalid api key", tenantdomain.ErrInvalidAPIKey, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", authorization.ErrForbidden, http.StatusForbidden, "forbidden"},
		{"permission denied", creditsdomain.ErrPermissionDenied, http.StatusForbidden, "forbidden"},
		{"tenant missing", tenantdomain.ErrNotFound, http.StatusNotFound, "not_found"},
		{"rate limited", ratelimit.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{"reset in progress", reset.ErrResetInProgress, http.StatusTooManyRequests, "rate_limited"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, payload := mapError(tc.err)
			assert.Equal(t, tc.wantStatus, status)
			assert.Equal(t, tc.wantType, payload.Type)
		})
	}
}

func TestMapErrorInsufficientCreditsCarriesFigures(t *testing.T) {
	status, payload := mapError(&creditsdomain.InsufficientCreditsError{Available: 30, Requested: 50})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "insufficient_credits", payload.Type)
	if assert.NotNil(t, payload.Available) {
		assert.Equal(t, int64(30), *payload.Available)
	}
	if assert.NotNil(t, payload.Requested) {
		assert.Equal(t, int64(50), *payload.Requested)
	}
}

func TestMapErrorNeverLeaksInternals(t *testing.T) {
	_, payload := mapError(errors.New("pq: connection refused host=10.0.0.1"))
	assert.Equal(t, "internal server error", payload.Message)
}
