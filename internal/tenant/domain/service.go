package domain

import (
	"context"
	"errors"
	"time"
)

type Service interface {
	GetByID(ctx context.Context, tenantID int64) (*Tenant, error)
	// ResolveByAPIKey maps a raw bearer credential to its tenant.
	ResolveByAPIKey(ctx context.Context, apiKey string) (*Tenant, error)
	ListActiveActivations(ctx context.Context, tenantID int64) ([]ModuleActivation, error)
	// StampLastReset records a completed reset. A stamp that already
	// matches resetDate returns ErrAlreadyReset.
	StampLastReset(ctx context.Context, tenantID int64, resetDate time.Time) error
	// ListResetCandidates returns paid tenants whose last reset is older
	// than the cutoff (or never happened).
	ListResetCandidates(ctx context.Context, before time.Time, limit int) ([]Tenant, error)
}

var (
	ErrNotFound      = errors.New("tenant_not_found")
	ErrInvalidAPIKey = errors.New("invalid_api_key")
	ErrInvalidID     = errors.New("invalid_tenant_id")
	ErrAlreadyReset  = errors.New("already_reset")
)
