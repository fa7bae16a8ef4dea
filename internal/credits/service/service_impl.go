package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/scailup/creditledger/internal/authorization"
	catalogdomain "github.com/scailup/creditledger/internal/catalog/domain"
	"github.com/scailup/creditledger/internal/clock"
	"github.com/scailup/creditledger/internal/credits/domain"
	obsmetrics "github.com/scailup/creditledger/internal/observability/metrics"
	"github.com/scailup/creditledger/internal/tenantctx"
	"github.com/scailup/creditledger/pkg/db/pagination"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    domain.Repository
	AuthSvc authorization.Service
	Metrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    domain.Repository
	authSvc authorization.Service
	metrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("credits.service"),
		genID:   p.GenID,
		clock:   p.Clock,
		repo:    p.Repo,
		authSvc: p.AuthSvc,
		metrics: p.Metrics,
	}
}

func (s *Service) GetBalance(ctx context.Context, moduleCode, creditType string) (*domain.BalanceResponse, error) {
	tenantID, err := tenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	moduleCode, creditType, err = normalizeLedgerKey(moduleCode, creditType)
	if err != nil {
		return nil, err
	}
	return s.balanceFor(ctx, tenantID, moduleCode, creditType)
}

func (s *Service) Check(ctx context.Context, moduleCode, creditType string, amount int64) (*domain.CheckResponse, error) {
	tenantID, err := tenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	moduleCode, creditType, err = normalizeLedgerKey(moduleCode, creditType)
	if err != nil {
		return nil, err
	}
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	balance, err := s.balanceFor(ctx, tenantID, moduleCode, creditType)
	if err != nil {
		return nil, err
	}
	if balance.IsUnlimited {
		return &domain.CheckResponse{HasEnough: true, Available: domain.UnlimitedBalance, IsUnlimited: true}, nil
	}
	return &domain.CheckResponse{
		HasEnough: balance.Balance >= amount,
		Available: balance.Balance,
	}, nil
}

func (s *Service) Use(ctx context.Context, req domain.UseRequest) (*domain.UseResponse, error) {
	tenantID, err := tenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	moduleCode, creditType, err := normalizeLedgerKey(req.ModuleCode, req.CreditType)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	unlimited, err := s.repo.HasUnlimited(ctx, s.db, tenantID, moduleCode, creditType)
	if err != nil {
		return nil, err
	}
	if unlimited {
		trx := s.newTransaction(tenantID, moduleCode, creditType, -req.Amount, domain.ReasonConsume, req.RelatedID, req.Description)
		trx.Metadata["unlimited"] = true
		if err := s.repo.InsertTransaction(ctx, s.db, trx); err != nil {
			return nil, err
		}
		s.recordUse(ctx, moduleCode, creditType, req.Amount)
		return &domain.UseResponse{Used: true, NewBalance: domain.UnlimitedBalance, IsUnlimited: true}, nil
	}

	var resp *domain.UseResponse
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := s.repo.FindBalance(ctx, tx, tenantID, moduleCode, creditType)
		if err != nil {
			return err
		}
		if balance == nil {
			return &domain.InsufficientCreditsError{Available: 0, Requested: req.Amount}
		}

		cap, err := s.repo.SumGrants(ctx, tx, tenantID, moduleCode, creditType, balance.PeriodStart)
		if err != nil {
			return err
		}

		affected, err := s.repo.ConsumeAtomic(ctx, tx, tenantID, moduleCode, creditType, req.Amount, cap)
		if err != nil {
			return err
		}
		if affected == 0 {
			available := cap - balance.UsedThisPeriod
			if available < 0 {
				available = 0
			}
			return &domain.InsufficientCreditsError{Available: available, Requested: req.Amount}
		}

		trx := s.newTransaction(tenantID, moduleCode, creditType, -req.Amount, domain.ReasonConsume, req.RelatedID, req.Description)
		if err := s.repo.InsertTransaction(ctx, tx, trx); err != nil {
			return err
		}

		newBalance := cap - (balance.UsedThisPeriod + req.Amount)
		if newBalance < 0 {
			newBalance = 0
		}
		resp = &domain.UseResponse{Used: true, NewBalance: newBalance}
		return nil
	})
	if err != nil {
		if insufficient, ok := asInsufficient(err); ok {
			s.recordInsufficient(ctx, moduleCode, creditType)
			return nil, insufficient
		}
		return nil, err
	}

	s.recordUse(ctx, moduleCode, creditType, req.Amount)
	return resp, nil
}

func (s *Service) Add(ctx context.Context, req domain.AddRequest) (*domain.BalanceResponse, error) {
	tenantID, err := tenantFromContext(ctx)
	if err != nil {
		return nil, err
	}
	moduleCode, creditType, err := normalizeLedgerKey(req.ModuleCode, req.CreditType)
	if err != nil {
		return nil, err
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	subject := tenantctx.SubjectFromContext(ctx)
	allowed, err := s.authSvc.Can(ctx, subject, authorization.ObjectCredits, authorization.ActionCreditsAdd)
	if err != nil || !allowed {
		return nil, domain.ErrPermissionDenied
	}

	now := s.clock.Now()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seed := &domain.CreditBalance{
			ID:             s.genID.Generate().Int64(),
			TenantID:       tenantID,
			ModuleCode:     moduleCode,
			CreditType:     creditType,
			UsedThisPeriod: 0,
			PeriodStart:    startOfMonth(now),
			ResetInterval:  catalogdomain.ResetIntervalMonthly,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := s.repo.EnsureBalance(ctx, tx, seed); err != nil {
			return err
		}

		trx := s.newTransaction(tenantID, moduleCode, creditType, req.Amount, domain.ReasonAdminAdd, "", req.Description)
		if req.ExpiresAt != nil {
			// Advisory only. Expiry is never enforced by the ledger.
			trx.Metadata["expires_at"] = req.ExpiresAt.UTC().Format(time.RFC3339)
		}
		return s.repo.InsertTransaction(ctx, tx, trx)
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.RecordCreditGrant(ctx, moduleCode, creditType, domain.ReasonAdminAdd, req.Amount)
	}
	return s.balanceFor(ctx, tenantID, moduleCode, creditType)
}

func (s *Service) SetUnlimited(ctx context.Context, tenantID int64, moduleCode, creditType string) error {
	moduleCode, creditType, err := normalizeLedgerKey(moduleCode, creditType)
	if err != nil {
		return err
	}
	if tenantID == 0 {
		return domain.ErrTenantNotFound
	}

	subject := tenantctx.SubjectFromContext(ctx)
	if !s.authSvc.IsAdmin(ctx, subject) {
		return domain.ErrPermissionDenied
	}

	override := &domain.UnlimitedOverride{
		ID:         s.genID.Generate().Int64(),
		TenantID:   tenantID,
		ModuleCode: moduleCode,
		CreditType: creditType,
		CreatedAt:  s.clock.Now(),
	}
	return s.repo.InsertUnlimited(ctx, s.db, override)
}

func (s *Service) ListTransactions(ctx context.Context, req domain.ListTransactionsRequest) (*domain.TransactionPage, error) {
	tenantID, err := tenantFromContext(ctx)
	if err != nil {
		return nil, err
	}

	size := req.Pagination.PageSize
	if size <= 0 {
		size = 10
	}

	items, err := s.repo.ListTransactions(ctx, s.db, tenantID, req.Pagination)
	if err != nil {
		return nil, err
	}

	ptrs := make([]*domain.CreditTransaction, 0, len(items))
	for i := range items {
		ptrs = append(ptrs, &items[i])
	}
	pageInfo := pagination.BuildCursorPageInfo(ptrs, size, func(t *domain.CreditTransaction) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        snowflake.ID(t.ID).String(),
			CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			return ""
		}
		return token
	})

	if len(items) > size {
		items = items[:size]
	}
	return &domain.TransactionPage{Transactions: items, PageInfo: *pageInfo}, nil
}

func (s *Service) balanceFor(ctx context.Context, tenantID int64, moduleCode, creditType string) (*domain.BalanceResponse, error) {
	unlimited, err := s.repo.HasUnlimited(ctx, s.db, tenantID, moduleCode, creditType)
	if err != nil {
		return nil, err
	}
	if unlimited {
		return &domain.BalanceResponse{
			ModuleCode:  moduleCode,
			CreditType:  creditType,
			Balance:     domain.UnlimitedBalance,
			IsUnlimited: true,
		}, nil
	}

	balance, err := s.repo.FindBalance(ctx, s.db, tenantID, moduleCode, creditType)
	if err != nil {
		return nil, err
	}
	if balance == nil {
		return &domain.BalanceResponse{ModuleCode: moduleCode, CreditType: creditType}, nil
	}

	cap, err := s.repo.SumGrants(ctx, s.db, tenantID, moduleCode, creditType, balance.PeriodStart)
	if err != nil {
		return nil, err
	}

	remaining := cap - balance.UsedThisPeriod
	if remaining < 0 {
		remaining = 0
	}
	return &domain.BalanceResponse{
		ModuleCode: moduleCode,
		CreditType: creditType,
		Balance:    remaining,
		Cap:        cap,
		Used:       balance.UsedThisPeriod,
	}, nil
}

func (s *Service) newTransaction(tenantID int64, moduleCode, creditType string, change int64, reason, relatedID, description string) *domain.CreditTransaction {
	relatedID = strings.TrimSpace(relatedID)
	if relatedID == "" {
		relatedID = ulid.Make().String()
	}

	metadata := datatypes.JSONMap{}
	if description = strings.TrimSpace(description); description != "" {
		metadata["description"] = description
	}

	return &domain.CreditTransaction{
		ID:         s.genID.Generate().Int64(),
		TenantID:   tenantID,
		ModuleCode: moduleCode,
		CreditType: creditType,
		Change:     change,
		Reason:     reason,
		RelatedID:  relatedID,
		Metadata:   metadata,
		CreatedAt:  s.clock.Now(),
	}
}

func (s *Service) recordUse(ctx context.Context, moduleCode, creditType string, amount int64) {
	if s.metrics != nil {
		s.metrics.RecordCreditUse(ctx, moduleCode, creditType, amount)
	}
}

func (s *Service) recordInsufficient(ctx context.Context, moduleCode, creditType string) {
	if s.metrics != nil {
		s.metrics.RecordInsufficientCredits(ctx, moduleCode, creditType)
	}
}

func tenantFromContext(ctx context.Context) (int64, error) {
	id, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return 0, domain.ErrTenantNotFound
	}
	return id.Int64(), nil
}

func normalizeLedgerKey(moduleCode, creditType string) (string, string, error) {
	moduleCode = strings.TrimSpace(moduleCode)
	if moduleCode == "" {
		return "", "", domain.ErrInvalidModuleCode
	}
	creditType = strings.TrimSpace(creditType)
	if creditType == "" {
		return "", "", domain.ErrInvalidCreditType
	}
	return moduleCode, creditType, nil
}

func startOfMonth(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func asInsufficient(err error) (*domain.InsufficientCreditsError, bool) {
	var insufficient *domain.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		return insufficient, true
	}
	return nil, false
}
