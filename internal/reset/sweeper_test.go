package reset

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scailup/creditledger/internal/config"
	creditsdomain "github.com/scailup/creditledger/internal/credits/domain"
	tenantdomain "github.com/scailup/creditledger/internal/tenant/domain"
)

func newSweeper(f *fixture) *Sweeper {
	holder := config.NewStaticEngineConfigHolder(config.EngineConfig{
		Reset: config.ResetConfig{
			RunInterval: time.Minute,
			BatchSize:   10,
			JobTimeout:  5 * time.Second,
			SweepJob:    true,
		},
	})
	return NewSweeper(SweeperParams{
		Log:       zap.NewNop(),
		Clock:     f.clk,
		Holder:    holder,
		Processor: f.processor,
		TenantSvc: f.tenantSvc,
	})
}

func TestRunDueResetsDuePaidTenants(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantdomain.BillingStatusPaid)
	f.seedCatalog(t, 500, 0)

	// Trial tenant is never swept.
	now := f.clk.Now()
	require.NoError(t, f.db.Create(&tenantdomain.Tenant{
		ID:            43,
		Name:          "Beta Corp",
		BillingStatus: tenantdomain.BillingStatusTrial,
		APIKeyHash:    "hash-43",
		CreatedAt:     now,
		UpdatedAt:     now,
	}).Error)

	sweeper := newSweeper(f)
	require.NoError(t, sweeper.RunDue(context.Background()))

	var tenant tenantdomain.Tenant
	require.NoError(t, f.db.First(&tenant, "id = ?", 42).Error)
	require.NotNil(t, tenant.LastResetAt)
	assert.True(t, tenant.LastResetAt.UTC().Equal(time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)))

	var trial tenantdomain.Tenant
	require.NoError(t, f.db.First(&trial, "id = ?", 43).Error)
	assert.Nil(t, trial.LastResetAt)

	var grant creditsdomain.CreditTransaction
	require.NoError(t, f.db.First(&grant, "reason = ?", creditsdomain.ReasonPeriodInit).Error)
	assert.Equal(t, int64(500), grant.Change)
}

func TestRunDueSkipsAlreadyResetTenants(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantdomain.BillingStatusPaid)
	f.seedCatalog(t, 500, 0)

	sweeper := newSweeper(f)
	require.NoError(t, sweeper.RunDue(context.Background()))
	require.NoError(t, sweeper.RunDue(context.Background()))

	var grants int64
	require.NoError(t, f.db.Model(&creditsdomain.CreditTransaction{}).
		Where("reason = ?", creditsdomain.ReasonPeriodInit).
		Count(&grants).Error)
	assert.Equal(t, int64(1), grants)
}

func TestRunOnceHonorsSweepToggle(t *testing.T) {
	f := newFixture(t)
	f.seedTenant(t, tenantdomain.BillingStatusPaid)
	f.seedCatalog(t, 500, 0)

	holder := config.NewStaticEngineConfigHolder(config.EngineConfig{
		Reset: config.ResetConfig{SweepJob: false},
	})
	sweeper := NewSweeper(SweeperParams{
		Log:       zap.NewNop(),
		Clock:     f.clk,
		Holder:    holder,
		Processor: f.processor,
		TenantSvc: f.tenantSvc,
	})

	require.NoError(t, sweeper.RunOnce(context.Background()))

	var grants int64
	require.NoError(t, f.db.Model(&creditsdomain.CreditTransaction{}).Count(&grants).Error)
	assert.Equal(t, int64(0), grants)
}
