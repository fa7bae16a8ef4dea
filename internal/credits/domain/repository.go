package domain

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/scailup/creditledger/pkg/db/pagination"
)

type Repository interface {
	FindBalance(ctx context.Context, db *gorm.DB, tenantID int64, moduleCode, creditType string) (*CreditBalance, error)
	// UpsertBalance resets used_this_period and period_start on conflict
	// with the (tenant, module, credit_type) key.
	UpsertBalance(ctx context.Context, db *gorm.DB, balance *CreditBalance) error
	// EnsureBalance inserts the row if absent, leaving an existing row
	// untouched.
	EnsureBalance(ctx context.Context, db *gorm.DB, balance *CreditBalance) error
	// ConsumeAtomic adds amount to used_this_period only while the result
	// stays within cap. Returns rows affected; zero means rejection.
	ConsumeAtomic(ctx context.Context, db *gorm.DB, tenantID int64, moduleCode, creditType string, amount, cap int64) (int64, error)
	// SumGrants totals positive transaction changes since the period start.
	SumGrants(ctx context.Context, db *gorm.DB, tenantID int64, moduleCode, creditType string, since time.Time) (int64, error)
	InsertTransaction(ctx context.Context, db *gorm.DB, trx *CreditTransaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, tenantID int64, p pagination.Pagination) ([]CreditTransaction, error)
	HasUnlimited(ctx context.Context, db *gorm.DB, tenantID int64, moduleCode, creditType string) (bool, error)
	InsertUnlimited(ctx context.Context, db *gorm.DB, override *UnlimitedOverride) error
}
