package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/scailup/creditledger/internal/catalog/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindActiveTier(ctx context.Context, db *gorm.DB, moduleCode, tierCode string) (*domain.ModuleTier, error) {
	var tier domain.ModuleTier
	err := db.WithContext(ctx).Raw(
		`SELECT id, module_code, tier_code, label, active, created_at, updated_at
		 FROM module_tiers WHERE module_code = ? AND tier_code = ? AND active = ?`,
		moduleCode,
		tierCode,
		true,
	).Scan(&tier).Error
	if err != nil {
		return nil, err
	}
	if tier.ID == 0 {
		return nil, nil
	}
	return &tier, nil
}

func (r *repo) FindTierCredits(ctx context.Context, db *gorm.DB, moduleTierID int64) ([]domain.TierCredit, error) {
	var credits []domain.TierCredit
	err := db.WithContext(ctx).Raw(
		`SELECT id, module_tier_id, credit_type, amount, reset_interval, rollover_months, created_at, updated_at
		 FROM tier_credits WHERE module_tier_id = ? ORDER BY credit_type ASC`,
		moduleTierID,
	).Scan(&credits).Error
	if err != nil {
		return nil, err
	}
	return credits, nil
}
