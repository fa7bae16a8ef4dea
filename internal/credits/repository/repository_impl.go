package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/scailup/creditledger/internal/credits/domain"
	"github.com/scailup/creditledger/pkg/db/option"
	"github.com/scailup/creditledger/pkg/db/pagination"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindBalance(ctx context.Context, db *gorm.DB, tenantID int64, moduleCode, creditType string) (*domain.CreditBalance, error) {
	var b domain.CreditBalance
	err := db.WithContext(ctx).Raw(
		`SELECT id, tenant_id, module_code, credit_type, used_this_period, period_start, reset_interval, created_at, updated_at
		 FROM credit_balances WHERE tenant_id = ? AND module_code = ? AND credit_type = ?`,
		tenantID,
		moduleCode,
		creditType,
	).Scan(&b).Error
	if err != nil {
		return nil, err
	}
	if b.ID == 0 {
		return nil, nil
	}
	return &b, nil
}

func (r *repo) UpsertBalance(ctx context.Context, db *gorm.DB, balance *domain.CreditBalance) error {
	if balance == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_balances (id, tenant_id, module_code, credit_type, used_this_period, period_start, reset_interval, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, module_code, credit_type) DO UPDATE SET
			used_this_period = excluded.used_this_period,
			period_start = excluded.period_start,
			reset_interval = excluded.reset_interval,
			updated_at = excluded.updated_at`,
		balance.ID,
		balance.TenantID,
		balance.ModuleCode,
		balance.CreditType,
		balance.UsedThisPeriod,
		balance.PeriodStart,
		balance.ResetInterval,
		balance.CreatedAt,
		balance.UpdatedAt,
	).Error
}

func (r *repo) EnsureBalance(ctx context.Context, db *gorm.DB, balance *domain.CreditBalance) error {
	if balance == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_balances (id, tenant_id, module_code, credit_type, used_this_period, period_start, reset_interval, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, module_code, credit_type) DO NOTHING`,
		balance.ID,
		balance.TenantID,
		balance.ModuleCode,
		balance.CreditType,
		balance.UsedThisPeriod,
		balance.PeriodStart,
		balance.ResetInterval,
		balance.CreatedAt,
		balance.UpdatedAt,
	).Error
}

// ConsumeAtomic is the overspend guard. The WHERE clause re-checks the cap
// inside the UPDATE so concurrent consumers serialize on the row.
func (r *repo) ConsumeAtomic(ctx context.Context, db *gorm.DB, tenantID int64, moduleCode, creditType string, amount, cap int64) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE credit_balances
		 SET used_this_period = used_this_period + ?, updated_at = ?
		 WHERE tenant_id = ? AND module_code = ? AND credit_type = ?
		   AND used_this_period + ? <= ?`,
		amount,
		time.Now().UTC(),
		tenantID,
		moduleCode,
		creditType,
		amount,
		cap,
	)
	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

func (r *repo) SumGrants(ctx context.Context, db *gorm.DB, tenantID int64, moduleCode, creditType string, since time.Time) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(change), 0)
		 FROM credit_transactions
		 WHERE tenant_id = ? AND module_code = ? AND credit_type = ?
		   AND change > 0 AND created_at >= ?`,
		tenantID,
		moduleCode,
		creditType,
		since,
	).Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, trx *domain.CreditTransaction) error {
	if trx == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO credit_transactions (id, tenant_id, module_code, credit_type, change, reason, related_id, metadata, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		trx.ID,
		trx.TenantID,
		trx.ModuleCode,
		trx.CreditType,
		trx.Change,
		trx.Reason,
		trx.RelatedID,
		trx.Metadata,
		trx.CreatedAt,
	).Error
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, tenantID int64, p pagination.Pagination) ([]domain.CreditTransaction, error) {
	var items []domain.CreditTransaction
	stmt := db.WithContext(ctx).
		Model(&domain.CreditTransaction{}).
		Where("tenant_id = ?", tenantID)

	stmt = option.ApplyPagination(p).Apply(stmt)
	stmt = option.WithSortBy(option.QuerySortBy{Column: "created_at", Descend: true}).Apply(stmt)

	if err := stmt.Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) HasUnlimited(ctx context.Context, db *gorm.DB, tenantID int64, moduleCode, creditType string) (bool, error) {
	var count int64
	err := db.WithContext(ctx).Raw(
		`SELECT COUNT(1) FROM unlimited_overrides
		 WHERE tenant_id = ? AND module_code = ? AND credit_type = ?`,
		tenantID,
		moduleCode,
		creditType,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repo) InsertUnlimited(ctx context.Context, db *gorm.DB, override *domain.UnlimitedOverride) error {
	if override == nil {
		return gorm.ErrInvalidData
	}
	return db.WithContext(ctx).Exec(
		`INSERT INTO unlimited_overrides (id, tenant_id, module_code, credit_type, created_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (tenant_id, module_code, credit_type) DO NOTHING`,
		override.ID,
		override.TenantID,
		override.ModuleCode,
		override.CreditType,
		override.CreatedAt,
	).Error
}
