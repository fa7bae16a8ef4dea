package rollover

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type repo struct{}

func ProvideRepository() Repository {
	return &repo{}
}

func (r *repo) SumGrantsBetween(ctx context.Context, db *gorm.DB, tenantID int64, moduleCode, creditType string, from, to time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(change), 0)
		 FROM credit_transactions
		 WHERE tenant_id = ? AND module_code = ? AND credit_type = ?
		   AND change > 0 AND created_at >= ? AND created_at < ?`,
		tenantID,
		moduleCode,
		creditType,
		from,
		to,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) SumConsumptionBetween(ctx context.Context, db *gorm.DB, tenantID int64, moduleCode, creditType string, from, to time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(-change), 0)
		 FROM credit_transactions
		 WHERE tenant_id = ? AND module_code = ? AND credit_type = ?
		   AND change < 0 AND created_at >= ? AND created_at < ?`,
		tenantID,
		moduleCode,
		creditType,
		from,
		to,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}
