package catalog

import (
	"go.uber.org/fx"

	"github.com/scailup/creditledger/internal/cache"
	"github.com/scailup/creditledger/internal/catalog/repository"
	"github.com/scailup/creditledger/internal/catalog/service"
)

var Module = fx.Module("catalog.service",
	fx.Provide(cache.NewCatalogResolverCache),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
