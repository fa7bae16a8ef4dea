package migration

import (
	"go.uber.org/fx"
	"gorm.io/gorm"

	catalogdomain "github.com/scailup/creditledger/internal/catalog/domain"
	"github.com/scailup/creditledger/internal/config"
	creditsdomain "github.com/scailup/creditledger/internal/credits/domain"
	"github.com/scailup/creditledger/internal/seed"
	tenantdomain "github.com/scailup/creditledger/internal/tenant/domain"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
		if conn.Dialector.Name() == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-postgres targets (sqlite dev environments) derive the
			// schema from the models directly.
			if err := conn.AutoMigrate(
				&tenantdomain.Tenant{},
				&tenantdomain.ModuleActivation{},
				&catalogdomain.ModuleTier{},
				&catalogdomain.TierCredit{},
				&creditsdomain.CreditBalance{},
				&creditsdomain.CreditTransaction{},
				&creditsdomain.UnlimitedOverride{},
			); err != nil {
				return err
			}
		}

		if cfg.SeedCatalog {
			return seed.EnsureDefaultCatalog(conn)
		}
		return nil
	}),
)
