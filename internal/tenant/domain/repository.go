package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repository interface {
	FindByID(ctx context.Context, db *gorm.DB, tenantID int64) (*Tenant, error)
	FindByAPIKeyHash(ctx context.Context, db *gorm.DB, keyHash string) (*Tenant, error)
	FindActiveActivations(ctx context.Context, db *gorm.DB, tenantID int64) ([]ModuleActivation, error)
	// StampLastReset returns the number of rows updated; zero means the
	// tenant was already stamped with resetDate.
	StampLastReset(ctx context.Context, db *gorm.DB, tenantID int64, resetDate time.Time) (int64, error)
	FindResetCandidates(ctx context.Context, db *gorm.DB, status BillingStatus, before time.Time, limit int) ([]Tenant, error)
}
