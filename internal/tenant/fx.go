package tenant

import (
	"go.uber.org/fx"

	"github.com/scailup/creditledger/internal/tenant/repository"
	"github.com/scailup/creditledger/internal/tenant/service"
)

var Module = fx.Module("tenant.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
