package reset

import (
	"context"

	"go.uber.org/fx"

	"github.com/scailup/creditledger/internal/config"
)

var Module = fx.Module("reset",
	fx.Provide(NewProcessor),
	fx.Provide(NewSweeper),
	fx.Invoke(startSweeper),
)

func startSweeper(lc fx.Lifecycle, sweeper *Sweeper, holder *config.EngineConfigHolder) {
	if !holder.Get().Reset.SweepJob {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				sweeper.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
