package reset

import (
	"context"
	"errors"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/scailup/creditledger/internal/clock"
	"github.com/scailup/creditledger/internal/config"
	obsmetrics "github.com/scailup/creditledger/internal/observability/metrics"
	tenantdomain "github.com/scailup/creditledger/internal/tenant/domain"
)

type SweeperParams struct {
	fx.In

	Log       *zap.Logger
	Clock     clock.Clock
	Holder    *config.EngineConfigHolder
	Processor *Processor
	TenantSvc tenantdomain.Service
}

// Sweeper drives the processor on a schedule, resetting paid tenants whose
// billing period has elapsed.
type Sweeper struct {
	log       *zap.Logger
	clock     clock.Clock
	holder    *config.EngineConfigHolder
	processor *Processor
	tenantSvc tenantdomain.Service
}

func NewSweeper(p SweeperParams) *Sweeper {
	return &Sweeper{
		log:       p.Log.Named("reset.sweeper").With(zap.String("component", "reset_sweeper")),
		clock:     p.Clock,
		holder:    p.Holder,
		processor: p.Processor,
		tenantSvc: p.TenantSvc,
	}
}

func (s *Sweeper) runJob(
	parent context.Context,
	name string,
	timeout time.Duration,
	fn func(ctx context.Context) error,
) error {
	start := s.clock.Now()
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	resetMetrics := obsmetrics.ResetProcessor()
	resetMetrics.IncJobRun(name)

	err := fn(ctx)
	resetMetrics.ObserveJobDuration(name, time.Since(start))
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		resetMetrics.IncJobTimeout(name)
		s.log.Warn("job timed out",
			zap.String("job", name),
			zap.Duration("timeout", timeout),
			zap.Error(err),
		)
		return nil
	}

	resetMetrics.IncJobError(name, err)
	return err
}

// RunDue resets every paid tenant whose last reset predates the current
// period boundary. Batches repeat until the candidate list drains.
func (s *Sweeper) RunDue(ctx context.Context) error {
	cfg := s.holder.Get().Reset
	now := s.clock.Now()
	cutoff := currentPeriodStart(now)
	resetDate := cutoff

	var jobErr error
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		candidates, err := s.tenantSvc.ListResetCandidates(ctx, cutoff, cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(candidates) == 0 {
			break
		}

		processed := 0
		for _, tenant := range candidates {
			if ctx.Err() != nil {
				return errors.Join(jobErr, ctx.Err())
			}

			result, err := s.processor.Run(ctx, Request{
				TenantID:          tenant.ID,
				ResetDate:         resetDate,
				BillingCycleStart: resetDate,
			})
			if err != nil {
				if errors.Is(err, ErrResetInProgress) {
					continue
				}
				jobErr = errors.Join(jobErr, err)
				s.log.Warn("tenant reset failed",
					zap.Int64("tenant_id", tenant.ID),
					zap.Error(err),
				)
				continue
			}
			processed++
			if result.Status == StatusPartialFailure {
				s.log.Warn("tenant reset partially failed",
					zap.Int64("tenant_id", tenant.ID),
					zap.Int("row_errors", len(result.RowErrors)),
				)
			}
		}

		// Candidates whose stamp failed to advance would repeat forever.
		// Stop once a batch makes no progress or the list is short.
		if processed == 0 || len(candidates) < cfg.BatchSize {
			break
		}
	}
	return jobErr
}

func (s *Sweeper) RunOnce(ctx context.Context) error {
	cfg := s.holder.Get().Reset
	if !cfg.SweepJob {
		return nil
	}
	return s.runJob(ctx, "reset_sweep", cfg.JobTimeout, s.RunDue)
}

func (s *Sweeper) RunForever(ctx context.Context) {
	interval := s.holder.Get().Reset.RunInterval
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	nextRun := s.clock.Now().Add(interval)
	resetMetrics := obsmetrics.ResetProcessor()

	for {
		runLag := time.Since(nextRun)
		if runLag > 0 {
			resetMetrics.ObserveRunLoopLag(runLag)
		}
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("reset sweep failed", zap.Error(err))
		}
		nextRun = nextRun.Add(interval)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// currentPeriodStart is the monthly boundary resets anchor to. Tenants
// reset ahead of it (for example via the internal trigger) are skipped by
// the candidate query.
func currentPeriodStart(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
}
