package rollover

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/scailup/creditledger/internal/catalog/domain"
)

// Service computes how many unused credits carry into the next period.
// Results are advisory. Callers treat any failure as zero rollover.
type Service interface {
	Compute(ctx context.Context, req ComputeRequest) (int64, error)
}

type ComputeRequest struct {
	TenantID       int64
	ModuleCode     string
	CreditType     string
	RolloverMonths int
	ResetInterval  catalogdomain.ResetInterval
	ResetDate      time.Time
}

var ErrInvalidWindow = errors.New("invalid_rollover_window")

// Repository reads period sums from the transaction log.
type Repository interface {
	SumGrantsBetween(ctx context.Context, db *gorm.DB, tenantID int64, moduleCode, creditType string, from, to time.Time) (int64, error)
	SumConsumptionBetween(ctx context.Context, db *gorm.DB, tenantID int64, moduleCode, creditType string, from, to time.Time) (int64, error)
}

type Params struct {
	fx.In

	DB   *gorm.DB
	Log  *zap.Logger
	Repo Repository
}

type service struct {
	db   *gorm.DB
	log  *zap.Logger
	repo Repository
}

func New(p Params) Service {
	return &service{
		db:   p.DB,
		log:  p.Log.Named("rollover.service"),
		repo: p.Repo,
	}
}

// Compute walks the trailing look-back periods reconstructed from the
// transaction log. Per period, unused = max(0, grants - consumption); the
// total never exceeds the window's grant sum.
func (s *service) Compute(ctx context.Context, req ComputeRequest) (int64, error) {
	if req.RolloverMonths <= 0 {
		return 0, nil
	}
	if req.TenantID == 0 || req.ResetDate.IsZero() {
		return 0, ErrInvalidWindow
	}

	periods := periodBounds(req.ResetDate.UTC(), req.ResetInterval, req.RolloverMonths)
	if len(periods) == 0 {
		return 0, nil
	}

	var totalUnused, totalGrants int64
	for _, period := range periods {
		grants, err := s.repo.SumGrantsBetween(ctx, s.db, req.TenantID, req.ModuleCode, req.CreditType, period.start, period.end)
		if err != nil {
			return 0, err
		}
		consumed, err := s.repo.SumConsumptionBetween(ctx, s.db, req.TenantID, req.ModuleCode, req.CreditType, period.start, period.end)
		if err != nil {
			return 0, err
		}

		unused := grants - consumed
		if unused > 0 {
			totalUnused += unused
		}
		totalGrants += grants
	}

	if totalUnused > totalGrants {
		totalUnused = totalGrants
	}
	return totalUnused, nil
}

type period struct {
	start time.Time
	end   time.Time
}

// periodBounds returns look-back periods newest first, ending at resetDate.
// Weekly intervals cover the same trailing months as monthly ones, sliced
// into 7-day periods.
func periodBounds(resetDate time.Time, interval catalogdomain.ResetInterval, rolloverMonths int) []period {
	switch interval {
	case catalogdomain.ResetIntervalWeekly:
		windowStart := addMonthsClamped(resetDate, -rolloverMonths)
		periods := make([]period, 0, rolloverMonths*5)
		end := resetDate
		for end.After(windowStart) {
			start := end.AddDate(0, 0, -7)
			if start.Before(windowStart) {
				start = windowStart
			}
			periods = append(periods, period{start: start, end: end})
			end = start
		}
		return periods
	default:
		periods := make([]period, 0, rolloverMonths)
		end := resetDate
		for i := 0; i < rolloverMonths; i++ {
			start := addMonthsClamped(end, -1)
			periods = append(periods, period{start: start, end: end})
			end = start
		}
		return periods
	}
}

// addMonthsClamped shifts t by whole months, clamping the day-of-month to
// the target month's length. AddDate alone normalizes forward (Mar 31 minus
// one month becomes Mar 3), which would slide a month-end anchor past the
// prior period's reset stamp.
func addMonthsClamped(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, t.Location())
	lastDay := time.Date(first.Year(), first.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
	if day > lastDay {
		day = lastDay
	}
	return time.Date(first.Year(), first.Month(), day,
		t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

var Module = fx.Module("rollover.service",
	fx.Provide(ProvideRepository),
	fx.Provide(New),
)
