package domain

import "time"

// ResetInterval is how often a tier credit's period restarts.
type ResetInterval string

const (
	ResetIntervalMonthly ResetInterval = "monthly"
	ResetIntervalWeekly  ResetInterval = "weekly"
)

func (r ResetInterval) Valid() bool {
	switch r {
	case ResetIntervalMonthly, ResetIntervalWeekly:
		return true
	default:
		return false
	}
}

type ModuleTier struct {
	ID         int64     `json:"id" gorm:"primaryKey"`
	ModuleCode string    `json:"module_code" gorm:"type:text;not null;index:ux_module_tiers_module_tier,priority:1"`
	TierCode   string    `json:"tier_code" gorm:"type:text;not null;index:ux_module_tiers_module_tier,priority:2"`
	Label      string    `json:"label" gorm:"type:text;not null"`
	Active     bool      `json:"active" gorm:"not null;default:true"`
	CreatedAt  time.Time `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt  time.Time `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (ModuleTier) TableName() string { return "module_tiers" }

type TierCredit struct {
	ID             int64         `json:"id" gorm:"primaryKey"`
	ModuleTierID   int64         `json:"module_tier_id" gorm:"not null;index:ux_tier_credits_tier_type,priority:1"`
	CreditType     string        `json:"credit_type" gorm:"type:text;not null;index:ux_tier_credits_tier_type,priority:2"`
	Amount         int64         `json:"amount" gorm:"not null;default:0"`
	ResetInterval  ResetInterval `json:"reset_interval" gorm:"type:text;not null;default:'monthly'"`
	RolloverMonths int           `json:"rollover_months" gorm:"not null;default:0"`
	CreatedAt      time.Time     `json:"created_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
	UpdatedAt      time.Time     `json:"updated_at" gorm:"not null;default:CURRENT_TIMESTAMP"`
}

func (TierCredit) TableName() string { return "tier_credits" }
