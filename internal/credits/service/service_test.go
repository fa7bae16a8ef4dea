package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/scailup/creditledger/internal/clock"
	"github.com/scailup/creditledger/internal/credits/domain"
	"github.com/scailup/creditledger/internal/credits/repository"
	"github.com/scailup/creditledger/internal/tenantctx"
	"github.com/scailup/creditledger/pkg/db/pagination"
)

type authStub struct {
	admin  bool
	canAdd bool
}

func (a *authStub) IsAdmin(context.Context, string) bool { return a.admin }

func (a *authStub) Can(context.Context, string, string, string) (bool, error) {
	return a.canAdd, nil
}

func (a *authStub) SyncTenantRole(context.Context, string, bool) error { return nil }

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.CreditBalance{},
		&domain.CreditTransaction{},
		&domain.UnlimitedOverride{},
	))
	return db
}

func newTestService(t *testing.T, db *gorm.DB, clk clock.Clock, auth *authStub) domain.Service {
	t.Helper()
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return New(Params{
		DB:      db,
		Log:     zap.NewNop(),
		GenID:   node,
		Clock:   clk,
		Repo:    repository.Provide(),
		AuthSvc: auth,
	})
}

func tenantContext(tenantID int64) context.Context {
	ctx := tenantctx.WithTenantID(context.Background(), snowflake.ID(tenantID))
	return tenantctx.WithSubject(ctx, "tenant:42")
}

func seedBalance(t *testing.T, db *gorm.DB, tenantID int64, used int64, periodStart time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&domain.CreditBalance{
		ID:             1,
		TenantID:       tenantID,
		ModuleCode:     "lead-engine",
		CreditType:     "leads",
		UsedThisPeriod: used,
		PeriodStart:    periodStart,
		ResetInterval:  "monthly",
		CreatedAt:      periodStart,
		UpdatedAt:      periodStart,
	}).Error)
}

func seedGrant(t *testing.T, db *gorm.DB, tenantID, change int64, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&domain.CreditTransaction{
		ID:         time.Now().UnixNano() + change,
		TenantID:   tenantID,
		ModuleCode: "lead-engine",
		CreditType: "leads",
		Change:     change,
		Reason:     domain.ReasonPeriodInit,
		RelatedID:  "seed-" + at.Format(time.RFC3339Nano),
		CreatedAt:  at,
	}).Error)
}

func TestGetBalanceEmptyLedger(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk, &authStub{})

	resp, err := svc.GetBalance(tenantContext(42), "lead-engine", "leads")
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.Balance)
	assert.Equal(t, int64(0), resp.Cap)
	assert.False(t, resp.IsUnlimited)
}

func TestGetBalanceComputesRemaining(t *testing.T) {
	db := newTestDB(t)
	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(periodStart.Add(9 * 24 * time.Hour))
	svc := newTestService(t, db, clk, &authStub{})

	seedBalance(t, db, 42, 30, periodStart)
	seedGrant(t, db, 42, 50, periodStart)

	resp, err := svc.GetBalance(tenantContext(42), "lead-engine", "leads")
	require.NoError(t, err)
	assert.Equal(t, int64(20), resp.Balance)
	assert.Equal(t, int64(50), resp.Cap)
	assert.Equal(t, int64(30), resp.Used)
}

func TestCheckDoesNotMutate(t *testing.T) {
	db := newTestDB(t)
	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(periodStart.Add(24 * time.Hour))
	svc := newTestService(t, db, clk, &authStub{})

	seedBalance(t, db, 42, 30, periodStart)
	seedGrant(t, db, 42, 50, periodStart)

	resp, err := svc.Check(tenantContext(42), "lead-engine", "leads", 25)
	require.NoError(t, err)
	assert.True(t, resp.HasEnough)
	assert.Equal(t, int64(20), resp.Available)

	resp, err = svc.Check(tenantContext(42), "lead-engine", "leads", 21)
	require.NoError(t, err)
	assert.False(t, resp.HasEnough)

	var balance domain.CreditBalance
	require.NoError(t, db.First(&balance, "tenant_id = ?", 42).Error)
	assert.Equal(t, int64(30), balance.UsedThisPeriod)

	var trxCount int64
	require.NoError(t, db.Model(&domain.CreditTransaction{}).Count(&trxCount).Error)
	assert.Equal(t, int64(1), trxCount)
}

func TestUseConsumesAndLogs(t *testing.T) {
	db := newTestDB(t)
	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(periodStart.Add(24 * time.Hour))
	svc := newTestService(t, db, clk, &authStub{})

	seedBalance(t, db, 42, 0, periodStart)
	seedGrant(t, db, 42, 100, periodStart)

	resp, err := svc.Use(tenantContext(42), domain.UseRequest{
		ModuleCode:  "lead-engine",
		CreditType:  "leads",
		Amount:      40,
		Description: "batch export",
	})
	require.NoError(t, err)
	assert.True(t, resp.Used)
	assert.Equal(t, int64(60), resp.NewBalance)

	var trx domain.CreditTransaction
	require.NoError(t, db.First(&trx, "reason = ?", domain.ReasonConsume).Error)
	assert.Equal(t, int64(-40), trx.Change)
	assert.NotEmpty(t, trx.RelatedID)
}

func TestUseInsufficientReportsFigures(t *testing.T) {
	db := newTestDB(t)
	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(periodStart.Add(24 * time.Hour))
	svc := newTestService(t, db, clk, &authStub{})

	seedBalance(t, db, 42, 70, periodStart)
	seedGrant(t, db, 42, 100, periodStart)

	_, err := svc.Use(tenantContext(42), domain.UseRequest{
		ModuleCode: "lead-engine",
		CreditType: "leads",
		Amount:     50,
	})
	require.Error(t, err)
	require.ErrorIs(t, err, domain.ErrInsufficientCredits)

	var insufficient *domain.InsufficientCreditsError
	require.ErrorAs(t, err, &insufficient)
	assert.Equal(t, int64(30), insufficient.Available)
	assert.Equal(t, int64(50), insufficient.Requested)

	// Failed consumption must not burn credits.
	var balance domain.CreditBalance
	require.NoError(t, db.First(&balance, "tenant_id = ?", 42).Error)
	assert.Equal(t, int64(70), balance.UsedThisPeriod)
}

func TestUseSequentialNeverOverspends(t *testing.T) {
	db := newTestDB(t)
	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(periodStart.Add(24 * time.Hour))
	svc := newTestService(t, db, clk, &authStub{})

	seedBalance(t, db, 42, 0, periodStart)
	seedGrant(t, db, 42, 1000, periodStart)

	_, err := svc.Use(tenantContext(42), domain.UseRequest{ModuleCode: "lead-engine", CreditType: "leads", Amount: 700})
	require.NoError(t, err)

	_, err = svc.Use(tenantContext(42), domain.UseRequest{ModuleCode: "lead-engine", CreditType: "leads", Amount: 700})
	require.ErrorIs(t, err, domain.ErrInsufficientCredits)

	var balance domain.CreditBalance
	require.NoError(t, db.First(&balance, "tenant_id = ?", 42).Error)
	assert.Equal(t, int64(700), balance.UsedThisPeriod)
}

func TestUseConcurrentNeverOverspends(t *testing.T) {
	db := newTestDB(t)
	// A pooled in-memory sqlite hands each connection its own database;
	// pin the pool to one connection so both goroutines see the same data.
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(periodStart.Add(24 * time.Hour))
	svc := newTestService(t, db, clk, &authStub{})

	seedBalance(t, db, 42, 0, periodStart)
	seedGrant(t, db, 42, 1000, periodStart)

	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Use(tenantContext(42), domain.UseRequest{ModuleCode: "lead-engine", CreditType: "leads", Amount: 700})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	var succeeded, rejected int
	for err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, domain.ErrInsufficientCredits):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, rejected)

	var balance domain.CreditBalance
	require.NoError(t, db.First(&balance, "tenant_id = ?", 42).Error)
	assert.Equal(t, int64(700), balance.UsedThisPeriod)
}

func TestUseExactRemainderSucceeds(t *testing.T) {
	db := newTestDB(t)
	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(periodStart.Add(24 * time.Hour))
	svc := newTestService(t, db, clk, &authStub{})

	seedBalance(t, db, 42, 90, periodStart)
	seedGrant(t, db, 42, 100, periodStart)

	resp, err := svc.Use(tenantContext(42), domain.UseRequest{ModuleCode: "lead-engine", CreditType: "leads", Amount: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(0), resp.NewBalance)
}

func TestAddRequiresPermission(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk, &authStub{canAdd: false})

	_, err := svc.Add(tenantContext(42), domain.AddRequest{
		ModuleCode: "lead-engine",
		CreditType: "leads",
		Amount:     100,
	})
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
}

func TestAddRaisesCap(t *testing.T) {
	db := newTestDB(t)
	periodStart := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(periodStart.Add(9 * 24 * time.Hour))
	svc := newTestService(t, db, clk, &authStub{canAdd: true})

	seedBalance(t, db, 42, 80, periodStart)
	seedGrant(t, db, 42, 100, periodStart)

	resp, err := svc.Add(tenantContext(42), domain.AddRequest{
		ModuleCode:  "lead-engine",
		CreditType:  "leads",
		Amount:      50,
		Description: "support goodwill",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(150), resp.Cap)
	assert.Equal(t, int64(70), resp.Balance)
	assert.Equal(t, int64(80), resp.Used)
}

func TestAddSeedsMissingBalanceRow(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk, &authStub{canAdd: true})

	resp, err := svc.Add(tenantContext(42), domain.AddRequest{
		ModuleCode: "outreach",
		CreditType: "emails",
		Amount:     200,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(200), resp.Balance)

	var balance domain.CreditBalance
	require.NoError(t, db.First(&balance, "tenant_id = ?", 42).Error)
	assert.True(t, balance.PeriodStart.UTC().Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)))
}

func TestSetUnlimitedAdminOnly(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))

	svc := newTestService(t, db, clk, &authStub{admin: false})
	err := svc.SetUnlimited(tenantContext(42), 42, "lead-engine", "leads")
	require.ErrorIs(t, err, domain.ErrPermissionDenied)

	svc = newTestService(t, db, clk, &authStub{admin: true})
	require.NoError(t, svc.SetUnlimited(tenantContext(42), 42, "lead-engine", "leads"))

	// Repeated grants are a no-op, not an error.
	require.NoError(t, svc.SetUnlimited(tenantContext(42), 42, "lead-engine", "leads"))
}

func TestUnlimitedBypassesCap(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	admin := newTestService(t, db, clk, &authStub{admin: true})
	require.NoError(t, admin.SetUnlimited(tenantContext(42), 42, "lead-engine", "leads"))

	svc := newTestService(t, db, clk, &authStub{})

	balance, err := svc.GetBalance(tenantContext(42), "lead-engine", "leads")
	require.NoError(t, err)
	assert.True(t, balance.IsUnlimited)
	assert.Equal(t, domain.UnlimitedBalance, balance.Balance)

	check, err := svc.Check(tenantContext(42), "lead-engine", "leads", 1_000_000)
	require.NoError(t, err)
	assert.True(t, check.HasEnough)

	use, err := svc.Use(tenantContext(42), domain.UseRequest{ModuleCode: "lead-engine", CreditType: "leads", Amount: 1_000_000})
	require.NoError(t, err)
	assert.True(t, use.IsUnlimited)
	assert.Equal(t, domain.UnlimitedBalance, use.NewBalance)

	// Consumption is still logged for reporting.
	var trx domain.CreditTransaction
	require.NoError(t, db.First(&trx, "reason = ?", domain.ReasonConsume).Error)
	assert.Equal(t, int64(-1_000_000), trx.Change)
}

func TestUseValidatesInput(t *testing.T) {
	db := newTestDB(t)
	clk := clock.NewFakeClock(time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC))
	svc := newTestService(t, db, clk, &authStub{})

	_, err := svc.Use(tenantContext(42), domain.UseRequest{CreditType: "leads", Amount: 1})
	require.ErrorIs(t, err, domain.ErrInvalidModuleCode)

	_, err = svc.Use(tenantContext(42), domain.UseRequest{ModuleCode: "lead-engine", Amount: 1})
	require.ErrorIs(t, err, domain.ErrInvalidCreditType)

	_, err = svc.Use(tenantContext(42), domain.UseRequest{ModuleCode: "lead-engine", CreditType: "leads", Amount: 0})
	require.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = svc.Use(context.Background(), domain.UseRequest{ModuleCode: "lead-engine", CreditType: "leads", Amount: 1})
	require.ErrorIs(t, err, domain.ErrTenantNotFound)
}

func TestListTransactionsPaginates(t *testing.T) {
	db := newTestDB(t)
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	clk := clock.NewFakeClock(base)
	svc := newTestService(t, db, clk, &authStub{})

	for i := int64(0); i < 5; i++ {
		seedGrant(t, db, 42, 10+i, base.Add(time.Duration(i)*time.Hour))
	}

	page, err := svc.ListTransactions(tenantContext(42), domain.ListTransactionsRequest{
		Pagination: pagination.Pagination{PageSize: 2},
	})
	require.NoError(t, err)
	require.Len(t, page.Transactions, 2)
	assert.True(t, page.PageInfo.HasMore)
	assert.NotEmpty(t, page.PageInfo.NextPageToken)

	// Newest first.
	assert.True(t, page.Transactions[0].CreatedAt.After(page.Transactions[1].CreatedAt))

	next, err := svc.ListTransactions(tenantContext(42), domain.ListTransactionsRequest{
		Pagination: pagination.Pagination{PageSize: 2, PageToken: page.PageInfo.NextPageToken},
	})
	require.NoError(t, err)
	require.Len(t, next.Transactions, 2)
	assert.True(t, next.Transactions[0].CreatedAt.Before(page.Transactions[1].CreatedAt))
}
