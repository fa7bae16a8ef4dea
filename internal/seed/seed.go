package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	catalogdomain "github.com/scailup/creditledger/internal/catalog/domain"
	"github.com/scailup/creditledger/pkg/repository"
)

type tierSeed struct {
	ModuleLabel string
	TierLabel   string
	Credits     []creditSeed
}

type creditSeed struct {
	CreditType     string
	Amount         int64
	ResetInterval  catalogdomain.ResetInterval
	RolloverMonths int
}

// defaultCatalog is the out-of-the-box tier catalog. Codes are derived
// from the labels so lookups stay stable when operators rename tiers.
var defaultCatalog = []tierSeed{
	{
		ModuleLabel: "Lead Engine",
		TierLabel:   "Starter",
		Credits: []creditSeed{
			{CreditType: "leads", Amount: 100, ResetInterval: catalogdomain.ResetIntervalMonthly},
		},
	},
	{
		ModuleLabel: "Lead Engine",
		TierLabel:   "Pro",
		Credits: []creditSeed{
			{CreditType: "leads", Amount: 1000, ResetInterval: catalogdomain.ResetIntervalMonthly, RolloverMonths: 1},
		},
	},
	{
		ModuleLabel: "Outreach",
		TierLabel:   "Starter",
		Credits: []creditSeed{
			{CreditType: "emails", Amount: 500, ResetInterval: catalogdomain.ResetIntervalMonthly},
			{CreditType: "connections", Amount: 100, ResetInterval: catalogdomain.ResetIntervalWeekly},
		},
	},
	{
		ModuleLabel: "Outreach",
		TierLabel:   "Pro",
		Credits: []creditSeed{
			{CreditType: "emails", Amount: 5000, ResetInterval: catalogdomain.ResetIntervalMonthly, RolloverMonths: 2},
			{CreditType: "connections", Amount: 400, ResetInterval: catalogdomain.ResetIntervalWeekly},
		},
	},
}

// EnsureDefaultCatalog seeds the tier catalog for startup bootstrap. Safe
// to run on every boot; existing rows are left untouched.
func EnsureDefaultCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tiers := repository.ProvideStore[catalogdomain.ModuleTier](tx)
		credits := repository.ProvideStore[catalogdomain.TierCredit](tx)

		for _, seed := range defaultCatalog {
			tier, err := ensureTier(ctx, tiers, node, seed)
			if err != nil {
				return err
			}
			for _, credit := range seed.Credits {
				if err := ensureTierCredit(ctx, credits, node, tier.ID, credit); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func ensureTier(ctx context.Context, tiers repository.Repository[catalogdomain.ModuleTier], node *snowflake.Node, seed tierSeed) (*catalogdomain.ModuleTier, error) {
	moduleCode := slug.Make(seed.ModuleLabel)
	tierCode := slug.Make(seed.TierLabel)

	existing, err := tiers.FindOne(ctx, &catalogdomain.ModuleTier{
		ModuleCode: moduleCode,
		TierCode:   tierCode,
	})
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := time.Now().UTC()
	tier := &catalogdomain.ModuleTier{
		ID:         node.Generate().Int64(),
		ModuleCode: moduleCode,
		TierCode:   tierCode,
		Label:      seed.TierLabel,
		Active:     true,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := tiers.Create(ctx, tier); err != nil {
		return nil, err
	}
	return tier, nil
}

func ensureTierCredit(ctx context.Context, credits repository.Repository[catalogdomain.TierCredit], node *snowflake.Node, tierID int64, seed creditSeed) error {
	existing, err := credits.FindOne(ctx, &catalogdomain.TierCredit{
		ModuleTierID: tierID,
		CreditType:   seed.CreditType,
	})
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	now := time.Now().UTC()
	return credits.Create(ctx, &catalogdomain.TierCredit{
		ID:             node.Generate().Int64(),
		ModuleTierID:   tierID,
		CreditType:     seed.CreditType,
		Amount:         seed.Amount,
		ResetInterval:  seed.ResetInterval,
		RolloverMonths: seed.RolloverMonths,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
}
