package reset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	catalogdomain "github.com/scailup/creditledger/internal/catalog/domain"
	"github.com/scailup/creditledger/internal/clock"
	creditsdomain "github.com/scailup/creditledger/internal/credits/domain"
	obsmetrics "github.com/scailup/creditledger/internal/observability/metrics"
	"github.com/scailup/creditledger/internal/ratelimit"
	"github.com/scailup/creditledger/internal/rollover"
	tenantdomain "github.com/scailup/creditledger/internal/tenant/domain"
	"github.com/scailup/creditledger/pkg/db"
)

type Status string

const (
	StatusSuccess         Status = "success"
	StatusNoActiveModules Status = "no_active_modules"
	StatusIneligible      Status = "ineligible"
	StatusPartialFailure  Status = "partial_failure"
)

var (
	ErrInvalidRequest  = errors.New("invalid_reset_request")
	ErrResetInProgress = errors.New("reset_in_progress")
	ErrTenantNotFound  = errors.New("tenant_not_found")
)

type Request struct {
	TenantID          int64
	ResetDate         time.Time
	BillingCycleStart time.Time
}

type RowError struct {
	ModuleCode string `json:"module_id"`
	CreditType string `json:"credit_type"`
	Message    string `json:"error"`
}

type Result struct {
	Status           Status     `json:"status"`
	TenantID         int64      `json:"tenant_id"`
	CreditsAllocated int64      `json:"credits_allocated"`
	RolloverApplied  int64      `json:"rollover_applied"`
	RowErrors        []RowError `json:"row_errors,omitempty"`
	Timestamp        time.Time  `json:"timestamp"`
}

func (r *Result) Success() bool {
	return r != nil && r.Status != StatusIneligible
}

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Clock       clock.Clock
	TenantSvc   tenantdomain.Service
	CatalogSvc  catalogdomain.Service
	RolloverSvc rollover.Service
	CreditsRepo creditsdomain.Repository
	Locker      *ratelimit.Locker   `optional:"true"`
	Metrics     *obsmetrics.Metrics `optional:"true"`
}

// Processor performs per-tenant period resets. Runs are idempotent per
// (tenant, reset_date): a second run for the same date allocates nothing.
type Processor struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	clock       clock.Clock
	tenantSvc   tenantdomain.Service
	catalogSvc  catalogdomain.Service
	rolloverSvc rollover.Service
	creditsRepo creditsdomain.Repository
	locker      *ratelimit.Locker
	metrics     *obsmetrics.Metrics
}

func NewProcessor(p Params) *Processor {
	return &Processor{
		db:          p.DB,
		log:         p.Log.Named("reset.processor"),
		genID:       p.GenID,
		clock:       p.Clock,
		tenantSvc:   p.TenantSvc,
		catalogSvc:  p.CatalogSvc,
		rolloverSvc: p.RolloverSvc,
		creditsRepo: p.CreditsRepo,
		locker:      p.Locker,
		metrics:     p.Metrics,
	}
}

func (p *Processor) Run(ctx context.Context, req Request) (*Result, error) {
	if req.TenantID == 0 || req.ResetDate.IsZero() {
		return nil, ErrInvalidRequest
	}
	resetDate := truncateToDay(req.ResetDate)

	tenant, err := p.tenantSvc.GetByID(ctx, req.TenantID)
	if err != nil {
		if errors.Is(err, tenantdomain.ErrNotFound) {
			return nil, ErrTenantNotFound
		}
		return nil, err
	}

	result := &Result{
		TenantID:  req.TenantID,
		Status:    StatusSuccess,
		Timestamp: p.clock.Now(),
	}

	if tenant.BillingStatus != tenantdomain.BillingStatusPaid {
		result.Status = StatusIneligible
		return result, nil
	}
	if tenant.LastResetAt != nil && truncateToDay(*tenant.LastResetAt).Equal(resetDate) {
		// Already reset for this date. Report success with nothing new.
		return result, nil
	}

	if p.locker != nil {
		key := fmt.Sprintf("reset:tenant:%d", req.TenantID)
		token, acquired, err := p.locker.TryLock(ctx, key, time.Minute)
		if err != nil {
			p.log.Warn("reset lock unavailable, continuing unlocked",
				zap.Int64("tenant_id", req.TenantID), zap.Error(err))
		} else if !acquired {
			return nil, ErrResetInProgress
		} else {
			defer func() {
				if err := p.locker.Release(ctx, key, token); err != nil {
					p.log.Warn("reset lock release failed", zap.Error(err))
				}
			}()
		}
	}

	activations, err := p.tenantSvc.ListActiveActivations(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if len(activations) == 0 {
		result.Status = StatusNoActiveModules
		return result, nil
	}

	log := p.log.With(
		zap.Int64("tenant_id", req.TenantID),
		zap.Time("reset_date", resetDate),
	)

	for _, activation := range activations {
		credits, err := p.catalogSvc.ListTierCredits(ctx, activation.ModuleCode, activation.TierCode)
		if err != nil {
			log.Warn("tier lookup failed",
				zap.String("module_code", activation.ModuleCode),
				zap.String("tier_code", activation.TierCode),
				zap.Error(err),
			)
			result.RowErrors = append(result.RowErrors, RowError{
				ModuleCode: activation.ModuleCode,
				Message:    "tier lookup failed",
			})
			continue
		}

		for _, credit := range credits {
			allocated, carried, err := p.resetLedgerRow(ctx, req.TenantID, activation.ModuleCode, credit, resetDate)
			if err != nil {
				log.Warn("ledger row reset failed",
					zap.String("module_code", activation.ModuleCode),
					zap.String("credit_type", credit.CreditType),
					zap.Error(err),
				)
				result.RowErrors = append(result.RowErrors, RowError{
					ModuleCode: activation.ModuleCode,
					CreditType: credit.CreditType,
					Message:    err.Error(),
				})
				continue
			}
			result.CreditsAllocated += allocated
			result.RolloverApplied += carried

			resetMetrics := obsmetrics.ResetProcessor()
			resetMetrics.AddCreditsAllocated(activation.ModuleCode, credit.CreditType, allocated)
			resetMetrics.AddRolloverApplied(activation.ModuleCode, credit.CreditType, carried)
			if p.metrics != nil {
				p.metrics.RecordCreditGrant(ctx, activation.ModuleCode, credit.CreditType, creditsdomain.ReasonPeriodInit, allocated)
			}
		}
	}

	if len(result.RowErrors) > 0 {
		// Leave last_reset_at unstamped so the failed rows are retried on
		// the next run. Rows that already succeeded are deduplicated by the
		// period-grant key, so the retry cannot grant them twice.
		result.Status = StatusPartialFailure
		log.Warn("period reset partially failed",
			zap.Int64("credits_allocated", result.CreditsAllocated),
			zap.Int("row_errors", len(result.RowErrors)),
		)
		return result, nil
	}

	// Stamp last so a failed run can be retried. Grants and balance upserts
	// above are idempotent per reset date.
	if err := p.tenantSvc.StampLastReset(ctx, req.TenantID, resetDate); err != nil {
		if !errors.Is(err, tenantdomain.ErrAlreadyReset) {
			log.Warn("last_reset_at stamp failed, allocations stand", zap.Error(err))
		}
	}

	log.Info("period reset complete",
		zap.String("status", string(result.Status)),
		zap.Int64("credits_allocated", result.CreditsAllocated),
		zap.Int64("rollover_applied", result.RolloverApplied),
		zap.Int("row_errors", len(result.RowErrors)),
	)
	return result, nil
}

// errGrantAlreadyApplied aborts a ledger-row transaction when the period
// grant for this reset date already exists.
var errGrantAlreadyApplied = errors.New("period grant already applied")

// resetLedgerRow appends the period grant and zeroes the ledger row. The
// grant is inserted first: its (tenant, module, credit_type, related_id)
// key is unique per reset date, so a re-run hits the constraint, rolls
// back, and leaves the row exactly as the first run left it. The grant
// includes whatever rollover the handler could compute; rollover failure
// degrades to zero carry.
func (p *Processor) resetLedgerRow(ctx context.Context, tenantID int64, moduleCode string, credit catalogdomain.TierCredit, resetDate time.Time) (int64, int64, error) {
	carried := int64(0)
	if credit.RolloverMonths > 0 {
		value, err := p.rolloverSvc.Compute(ctx, rollover.ComputeRequest{
			TenantID:       tenantID,
			ModuleCode:     moduleCode,
			CreditType:     credit.CreditType,
			RolloverMonths: credit.RolloverMonths,
			ResetInterval:  credit.ResetInterval,
			ResetDate:      resetDate,
		})
		if err != nil {
			p.log.Warn("rollover computation failed, carrying zero",
				zap.Int64("tenant_id", tenantID),
				zap.String("module_code", moduleCode),
				zap.String("credit_type", credit.CreditType),
				zap.Error(err),
			)
		} else {
			carried = value
		}
	}

	grant := credit.Amount + carried
	now := p.clock.Now()

	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if grant > 0 {
			trx := &creditsdomain.CreditTransaction{
				ID:         p.genID.Generate().Int64(),
				TenantID:   tenantID,
				ModuleCode: moduleCode,
				CreditType: credit.CreditType,
				Change:     grant,
				Reason:     creditsdomain.ReasonPeriodInit,
				RelatedID:  fmt.Sprintf("reset-%s", resetDate.Format("2006-01-02")),
				Metadata: datatypes.JSONMap{
					"tier_amount": credit.Amount,
					"rollover":    carried,
				},
				CreatedAt: now,
			}
			if err := p.creditsRepo.InsertTransaction(ctx, tx, trx); err != nil {
				if db.IsDuplicateKeyErr(err) {
					return errGrantAlreadyApplied
				}
				return err
			}
		}

		balance := &creditsdomain.CreditBalance{
			ID:             p.genID.Generate().Int64(),
			TenantID:       tenantID,
			ModuleCode:     moduleCode,
			CreditType:     credit.CreditType,
			UsedThisPeriod: 0,
			PeriodStart:    resetDate,
			ResetInterval:  credit.ResetInterval,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return p.creditsRepo.UpsertBalance(ctx, tx, balance)
	})
	if errors.Is(err, errGrantAlreadyApplied) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, err
	}
	return grant, carried, nil
}

func truncateToDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
