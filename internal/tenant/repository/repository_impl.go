package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/scailup/creditledger/internal/tenant/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, tenantID int64) (*domain.Tenant, error) {
	var t domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, billing_status, last_reset_at, api_key_hash, is_admin, created_at, updated_at
		 FROM tenants WHERE id = ?`,
		tenantID,
	).Scan(&t).Error
	if err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	return &t, nil
}

func (r *repo) FindByAPIKeyHash(ctx context.Context, db *gorm.DB, keyHash string) (*domain.Tenant, error) {
	var t domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, billing_status, last_reset_at, api_key_hash, is_admin, created_at, updated_at
		 FROM tenants WHERE api_key_hash = ?`,
		keyHash,
	).Scan(&t).Error
	if err != nil {
		return nil, err
	}
	if t.ID == 0 {
		return nil, nil
	}
	return &t, nil
}

func (r *repo) FindActiveActivations(ctx context.Context, db *gorm.DB, tenantID int64) ([]domain.ModuleActivation, error) {
	var items []domain.ModuleActivation
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, module_code, tier_code, active, created_at, updated_at
		 FROM module_activations WHERE tenant_id = ? AND active = ? ORDER BY module_code ASC`,
		tenantID,
		true,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) StampLastReset(ctx context.Context, db *gorm.DB, tenantID int64, resetDate time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE tenants SET last_reset_at = ?, updated_at = ?
		 WHERE id = ? AND (last_reset_at IS NULL OR last_reset_at <> ?)`,
		resetDate,
		time.Now().UTC(),
		tenantID,
		resetDate,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) FindResetCandidates(ctx context.Context, db *gorm.DB, status domain.BillingStatus, before time.Time, limit int) ([]domain.Tenant, error) {
	if limit <= 0 {
		limit = 100
	}
	var items []domain.Tenant
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, billing_status, last_reset_at, api_key_hash, is_admin, created_at, updated_at
		 FROM tenants
		 WHERE billing_status = ? AND (last_reset_at IS NULL OR last_reset_at < ?)
		 ORDER BY last_reset_at ASC
		 LIMIT ?`,
		status,
		before,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}
