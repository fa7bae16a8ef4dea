package credits

import (
	"go.uber.org/fx"

	"github.com/scailup/creditledger/internal/credits/repository"
	"github.com/scailup/creditledger/internal/credits/service"
)

var Module = fx.Module("credits.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
