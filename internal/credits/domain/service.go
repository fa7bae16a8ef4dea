package domain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/scailup/creditledger/pkg/db/pagination"
)

// UnlimitedBalance is the balance sentinel reported for uncapped ledgers.
const UnlimitedBalance int64 = -1

type Service interface {
	GetBalance(ctx context.Context, moduleCode, creditType string) (*BalanceResponse, error)
	// Check is read-only. It never mutates the ledger.
	Check(ctx context.Context, moduleCode, creditType string, amount int64) (*CheckResponse, error)
	// Use consumes credits atomically. Concurrent calls never jointly
	// overspend the period cap.
	Use(ctx context.Context, req UseRequest) (*UseResponse, error)
	// Add grants credits, raising the current period cap.
	Add(ctx context.Context, req AddRequest) (*BalanceResponse, error)
	// SetUnlimited flags a ledger as uncapped. Admin only.
	SetUnlimited(ctx context.Context, tenantID int64, moduleCode, creditType string) error
	ListTransactions(ctx context.Context, req ListTransactionsRequest) (*TransactionPage, error)
}

type UseRequest struct {
	ModuleCode  string
	CreditType  string
	Amount      int64
	Description string
	RelatedID   string
}

type AddRequest struct {
	ModuleCode  string
	CreditType  string
	Amount      int64
	Description string
	ExpiresAt   *time.Time
}

type ListTransactionsRequest struct {
	Pagination pagination.Pagination
}

type BalanceResponse struct {
	ModuleCode  string `json:"module_id"`
	CreditType  string `json:"credit_type"`
	Balance     int64  `json:"balance"`
	Cap         int64  `json:"cap"`
	Used        int64  `json:"used"`
	IsUnlimited bool   `json:"is_unlimited"`
}

type CheckResponse struct {
	HasEnough   bool  `json:"has_enough"`
	Available   int64 `json:"available"`
	IsUnlimited bool  `json:"is_unlimited"`
}

type UseResponse struct {
	Used        bool  `json:"used"`
	NewBalance  int64 `json:"new_balance"`
	IsUnlimited bool  `json:"is_unlimited"`
}

type TransactionPage struct {
	Transactions []CreditTransaction `json:"transactions"`
	PageInfo     pagination.PageInfo `json:"page_info"`
}

var (
	ErrTenantNotFound      = errors.New("tenant_not_found")
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrPermissionDenied    = errors.New("permission_denied")
	ErrInvalidModuleCode   = errors.New("invalid_module_code")
	ErrInvalidCreditType   = errors.New("invalid_credit_type")
	ErrInvalidAmount       = errors.New("invalid_amount")
)

// InsufficientCreditsError carries the figures callers surface as
// "requested X of Y remaining". errors.Is matches ErrInsufficientCredits.
type InsufficientCreditsError struct {
	Available int64
	Requested int64
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient_credits: requested %d, available %d", e.Requested, e.Available)
}

func (e *InsufficientCreditsError) Unwrap() error { return ErrInsufficientCredits }
