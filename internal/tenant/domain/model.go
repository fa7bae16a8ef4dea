package domain

import "time"

// BillingStatus gates period resets. Only paid tenants are reset.
type BillingStatus string

const (
	BillingStatusPaid     BillingStatus = "paid"
	BillingStatusTrial    BillingStatus = "trial"
	BillingStatusPastDue  BillingStatus = "past_due"
	BillingStatusCanceled BillingStatus = "canceled"
)

func (s BillingStatus) Valid() bool {
	switch s {
	case BillingStatusPaid, BillingStatusTrial, BillingStatusPastDue, BillingStatusCanceled:
		return true
	default:
		return false
	}
}

type Tenant struct {
	ID            int64         `json:"id" gorm:"primaryKey"`
	Name          string        `json:"name" gorm:"type:text;not null"`
	BillingStatus BillingStatus `json:"billing_status" gorm:"type:text;not null;default:'trial'"`
	LastResetAt   *time.Time    `json:"last_reset_at,omitempty"`
	APIKeyHash    string        `json:"-" gorm:"type:text;not null;uniqueIndex:ux_tenants_api_key_hash"`
	IsAdmin       bool          `json:"is_admin" gorm:"not null;default:false"`
	CreatedAt     time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (Tenant) TableName() string { return "tenants" }

type ModuleActivation struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	TenantID   int64     `json:"tenant_id" gorm:"not null;index:ux_module_activations_tenant_module,priority:1"`
	ModuleCode string    `json:"module_code" gorm:"type:text;not null;index:ux_module_activations_tenant_module,priority:2"`
	TierCode   string    `json:"tier_code" gorm:"type:text;not null"`
	Active     bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ModuleActivation) TableName() string { return "module_activations" }
