package domain

import (
	"context"
	"errors"
)

// Service is the read-only tier catalog lookup.
type Service interface {
	// ListTierCredits returns the credit allowances for a (module, tier)
	// pair. Unknown or inactive tiers resolve to an empty slice.
	ListTierCredits(ctx context.Context, moduleCode, tierCode string) ([]TierCredit, error)
}

var (
	ErrInvalidModuleCode = errors.New("invalid_module_code")
	ErrInvalidTierCode   = errors.New("invalid_tier_code")
)
