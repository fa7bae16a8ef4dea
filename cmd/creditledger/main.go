package main

import (
	"log"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/scailup/creditledger/internal/clock"
	"github.com/scailup/creditledger/internal/config"
	"github.com/scailup/creditledger/internal/migration"
	"github.com/scailup/creditledger/internal/observability"
	"github.com/scailup/creditledger/internal/server"
	"github.com/scailup/creditledger/pkg/db"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		log.Fatalf("snowflake node: %v", err)
	}
	return node
}
