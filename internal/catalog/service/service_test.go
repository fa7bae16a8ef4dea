package service

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/scailup/creditledger/internal/cache"
	"github.com/scailup/creditledger/internal/catalog/domain"
	"github.com/scailup/creditledger/internal/catalog/repository"
)

func newTestService(t *testing.T) (domain.Service, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.ModuleTier{}, &domain.TierCredit{}))

	svc := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.Provide(),
		Cache: cache.NewCatalogResolverCache(),
	})
	return svc, db
}

func seedTier(t *testing.T, db *gorm.DB, id int64, moduleCode, tierCode string, active bool) {
	t.Helper()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&domain.ModuleTier{
		ID:         id,
		ModuleCode: moduleCode,
		TierCode:   tierCode,
		Label:      tierCode,
		Active:     active,
		CreatedAt:  now,
		UpdatedAt:  now,
	}).Error)
	if !active {
		// gorm's Create skips zero-value fields carrying a default tag, so
		// persist Active=false explicitly.
		require.NoError(t, db.Model(&domain.ModuleTier{ID: id}).Update("active", false).Error)
	}
}

func seedCredit(t *testing.T, db *gorm.DB, id, tierID int64, creditType string, amount int64) {
	t.Helper()
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&domain.TierCredit{
		ID:            id,
		ModuleTierID:  tierID,
		CreditType:    creditType,
		Amount:        amount,
		ResetInterval: domain.ResetIntervalMonthly,
		CreatedAt:     now,
		UpdatedAt:     now,
	}).Error)
}

func TestListTierCredits(t *testing.T) {
	svc, db := newTestService(t)
	seedTier(t, db, 1, "outreach", "pro", true)
	seedCredit(t, db, 10, 1, "emails", 5000)
	seedCredit(t, db, 11, 1, "connections", 400)

	credits, err := svc.ListTierCredits(context.Background(), "outreach", "pro")
	require.NoError(t, err)
	require.Len(t, credits, 2)
}

func TestListTierCreditsUnknownTierIsEmpty(t *testing.T) {
	svc, db := newTestService(t)
	seedTier(t, db, 1, "outreach", "pro", true)

	credits, err := svc.ListTierCredits(context.Background(), "outreach", "enterprise")
	require.NoError(t, err)
	assert.Empty(t, credits)
}

func TestListTierCreditsInactiveTierIsEmpty(t *testing.T) {
	svc, db := newTestService(t)
	seedTier(t, db, 1, "outreach", "legacy", false)
	seedCredit(t, db, 10, 1, "emails", 100)

	credits, err := svc.ListTierCredits(context.Background(), "outreach", "legacy")
	require.NoError(t, err)
	assert.Empty(t, credits)
}

func TestListTierCreditsServedFromCache(t *testing.T) {
	svc, db := newTestService(t)
	seedTier(t, db, 1, "outreach", "pro", true)
	seedCredit(t, db, 10, 1, "emails", 5000)

	first, err := svc.ListTierCredits(context.Background(), "outreach", "pro")
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A catalog edit is invisible until the cache entry expires.
	require.NoError(t, db.Delete(&domain.TierCredit{}, 10).Error)

	second, err := svc.ListTierCredits(context.Background(), "outreach", "pro")
	require.NoError(t, err)
	assert.Len(t, second, 1)
}

func TestListTierCreditsValidatesInput(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.ListTierCredits(context.Background(), "", "pro")
	require.ErrorIs(t, err, domain.ErrInvalidModuleCode)

	_, err = svc.ListTierCredits(context.Background(), "outreach", "")
	require.ErrorIs(t, err, domain.ErrInvalidTierCode)
}
