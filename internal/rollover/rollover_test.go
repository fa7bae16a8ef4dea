package rollover

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	catalogdomain "github.com/scailup/creditledger/internal/catalog/domain"
	creditsdomain "github.com/scailup/creditledger/internal/credits/domain"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&creditsdomain.CreditTransaction{}))
	return db
}

func newTestService(db *gorm.DB) Service {
	return New(Params{
		DB:   db,
		Log:  zap.NewNop(),
		Repo: ProvideRepository(),
	})
}

func insertTrx(t *testing.T, db *gorm.DB, id, change int64, at time.Time) {
	t.Helper()
	reason := creditsdomain.ReasonPeriodInit
	if change < 0 {
		reason = creditsdomain.ReasonConsume
	}
	require.NoError(t, db.Create(&creditsdomain.CreditTransaction{
		ID:         id,
		TenantID:   42,
		ModuleCode: "lead-engine",
		CreditType: "leads",
		Change:     change,
		Reason:     reason,
		RelatedID:  "seed-" + strconv.FormatInt(id, 10),
		CreatedAt:  at,
	}).Error)
}

func TestComputeUnusedFromPreviousPeriod(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(db)
	resetDate := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	insertTrx(t, db, 1, 1000, resetDate.AddDate(0, -1, 0))
	insertTrx(t, db, 2, -400, resetDate.AddDate(0, -1, 2))

	carried, err := svc.Compute(context.Background(), ComputeRequest{
		TenantID:       42,
		ModuleCode:     "lead-engine",
		CreditType:     "leads",
		RolloverMonths: 1,
		ResetInterval:  catalogdomain.ResetIntervalMonthly,
		ResetDate:      resetDate,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(600), carried)
}

func TestComputeZeroWhenDisabled(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(db)
	resetDate := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	insertTrx(t, db, 1, 1000, resetDate.AddDate(0, -1, 0))

	carried, err := svc.Compute(context.Background(), ComputeRequest{
		TenantID:       42,
		ModuleCode:     "lead-engine",
		CreditType:     "leads",
		RolloverMonths: 0,
		ResetInterval:  catalogdomain.ResetIntervalMonthly,
		ResetDate:      resetDate,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), carried)
}

func TestComputeFullyConsumedPeriodCarriesNothing(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(db)
	resetDate := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	insertTrx(t, db, 1, 500, resetDate.AddDate(0, -1, 0))
	insertTrx(t, db, 2, -500, resetDate.AddDate(0, -1, 5))

	carried, err := svc.Compute(context.Background(), ComputeRequest{
		TenantID:       42,
		ModuleCode:     "lead-engine",
		CreditType:     "leads",
		RolloverMonths: 1,
		ResetInterval:  catalogdomain.ResetIntervalMonthly,
		ResetDate:      resetDate,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), carried)
}

func TestComputeOverconsumedPeriodDoesNotGoNegative(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(db)
	resetDate := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	// Month -2: 300 unused. Month -1: overconsumed via admin grants spent late.
	insertTrx(t, db, 1, 300, resetDate.AddDate(0, -2, 1))
	insertTrx(t, db, 2, 100, resetDate.AddDate(0, -1, 1))
	insertTrx(t, db, 3, -250, resetDate.AddDate(0, -1, 10))

	carried, err := svc.Compute(context.Background(), ComputeRequest{
		TenantID:       42,
		ModuleCode:     "lead-engine",
		CreditType:     "leads",
		RolloverMonths: 2,
		ResetInterval:  catalogdomain.ResetIntervalMonthly,
		ResetDate:      resetDate,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(300), carried)
}

func TestComputeCappedAtWindowGrants(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(db)
	resetDate := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)

	insertTrx(t, db, 1, 200, resetDate.AddDate(0, -1, 0))

	carried, err := svc.Compute(context.Background(), ComputeRequest{
		TenantID:       42,
		ModuleCode:     "lead-engine",
		CreditType:     "leads",
		RolloverMonths: 3,
		ResetInterval:  catalogdomain.ResetIntervalMonthly,
		ResetDate:      resetDate,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(200), carried)
}

func TestComputeMonthEndWindowSpansClampedReset(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(db)

	// Tenant billed on the 31st: the previous reset was clamped to Feb 28.
	// The look-back window must reach that grant instead of normalizing
	// forward to Mar 3 and missing it.
	insertTrx(t, db, 1, 1000, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC))
	insertTrx(t, db, 2, -400, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))

	carried, err := svc.Compute(context.Background(), ComputeRequest{
		TenantID:       42,
		ModuleCode:     "lead-engine",
		CreditType:     "leads",
		RolloverMonths: 1,
		ResetInterval:  catalogdomain.ResetIntervalMonthly,
		ResetDate:      time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(600), carried)
}

func TestAddMonthsClamped(t *testing.T) {
	cases := []struct {
		name   string
		in     time.Time
		months int
		want   time.Time
	}{
		{"mid-month", time.Date(2026, 4, 15, 0, 0, 0, 0, time.UTC), -1, time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)},
		{"month-end into shorter month", time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC), -1, time.Date(2026, 2, 28, 0, 0, 0, 0, time.UTC)},
		{"leap february", time.Date(2028, 3, 31, 0, 0, 0, 0, time.UTC), -1, time.Date(2028, 2, 29, 0, 0, 0, 0, time.UTC)},
		{"year boundary", time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC), -2, time.Date(2025, 11, 30, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, addMonthsClamped(tc.in, tc.months).Equal(tc.want))
		})
	}
}

func TestComputeWeeklySlices(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(db)
	resetDate := time.Date(2026, 4, 6, 0, 0, 0, 0, time.UTC)

	// One grant per trailing week, half of each consumed.
	insertTrx(t, db, 1, 100, resetDate.AddDate(0, 0, -6))
	insertTrx(t, db, 2, -50, resetDate.AddDate(0, 0, -5))
	insertTrx(t, db, 3, 100, resetDate.AddDate(0, 0, -13))
	insertTrx(t, db, 4, -50, resetDate.AddDate(0, 0, -12))

	carried, err := svc.Compute(context.Background(), ComputeRequest{
		TenantID:       42,
		ModuleCode:     "lead-engine",
		CreditType:     "leads",
		RolloverMonths: 1,
		ResetInterval:  catalogdomain.ResetIntervalWeekly,
		ResetDate:      resetDate,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(100), carried)
}

func TestComputeRejectsInvalidWindow(t *testing.T) {
	db := newTestDB(t)
	svc := newTestService(db)

	_, err := svc.Compute(context.Background(), ComputeRequest{
		TenantID:       0,
		RolloverMonths: 1,
		ResetDate:      time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	})
	require.ErrorIs(t, err, ErrInvalidWindow)
}
