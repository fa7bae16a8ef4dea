package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	FindActiveTier(ctx context.Context, db *gorm.DB, moduleCode, tierCode string) (*ModuleTier, error)
	FindTierCredits(ctx context.Context, db *gorm.DB, moduleTierID int64) ([]TierCredit, error)
}
