package domain

import (
	"time"

	"gorm.io/datatypes"

	catalogdomain "github.com/scailup/creditledger/internal/catalog/domain"
)

// Transaction reasons recorded in the append-only log.
const (
	ReasonConsume    = "consume"
	ReasonPeriodInit = "period_init"
	ReasonAdminAdd   = "admin_add"
)

// CreditBalance is the current-period ledger row. One row per
// (tenant, module, credit_type); used_this_period never exceeds the cap
// derived from the transaction log.
type CreditBalance struct {
	ID             int64                       `json:"id" gorm:"primaryKey"`
	TenantID       int64                       `json:"tenant_id" gorm:"not null;uniqueIndex:ux_credit_balances_key,priority:1"`
	ModuleCode     string                      `json:"module_code" gorm:"type:text;not null;uniqueIndex:ux_credit_balances_key,priority:2"`
	CreditType     string                      `json:"credit_type" gorm:"type:text;not null;uniqueIndex:ux_credit_balances_key,priority:3"`
	UsedThisPeriod int64                       `json:"used_this_period" gorm:"not null;default:0"`
	PeriodStart    time.Time                   `json:"period_start" gorm:"not null"`
	ResetInterval  catalogdomain.ResetInterval `json:"reset_interval" gorm:"type:text;not null;default:'monthly'"`
	CreatedAt      time.Time                   `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time                   `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (CreditBalance) TableName() string { return "credit_balances" }

// CreditTransaction is append-only. Positive change raises the period cap,
// negative change records consumption. Period grants are unique per
// (tenant, module, credit_type, related_id) so a reset re-run cannot grant
// twice; the related_id encodes the reset date.
type CreditTransaction struct {
	ID         int64             `json:"id" gorm:"primaryKey"`
	TenantID   int64             `json:"tenant_id" gorm:"not null;index:ix_credit_transactions_tenant_created,priority:1;index:ux_credit_transactions_period_grant,unique,where:reason = 'period_init',priority:1"`
	ModuleCode string            `json:"module_code" gorm:"type:text;not null;index:ux_credit_transactions_period_grant,priority:2"`
	CreditType string            `json:"credit_type" gorm:"type:text;not null;index:ux_credit_transactions_period_grant,priority:3"`
	Change     int64             `json:"change" gorm:"not null"`
	Reason     string            `json:"reason" gorm:"type:text;not null"`
	RelatedID  string            `json:"related_id,omitempty" gorm:"type:text;index:ux_credit_transactions_period_grant,priority:4"`
	Metadata   datatypes.JSONMap `json:"metadata,omitempty" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at" gorm:"not null;index:ix_credit_transactions_tenant_created,priority:2"`
}

func (CreditTransaction) TableName() string { return "credit_transactions" }

// UnlimitedOverride marks a (tenant, module, credit_type) as uncapped.
// Row presence is the flag.
type UnlimitedOverride struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	TenantID   int64     `json:"tenant_id" gorm:"not null;uniqueIndex:ux_unlimited_overrides_key,priority:1"`
	ModuleCode string    `json:"module_code" gorm:"type:text;not null;uniqueIndex:ux_unlimited_overrides_key,priority:2"`
	CreditType string    `json:"credit_type" gorm:"type:text;not null;uniqueIndex:ux_unlimited_overrides_key,priority:3"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (UnlimitedOverride) TableName() string { return "unlimited_overrides" }
