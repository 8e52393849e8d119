package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/pinksky/orderflow/internal/clock"
	"github.com/pinksky/orderflow/internal/config"
	"github.com/pinksky/orderflow/internal/migration"
	"github.com/pinksky/orderflow/internal/observability"
	"github.com/pinksky/orderflow/internal/scheduler"
	"github.com/pinksky/orderflow/internal/server"
	"github.com/pinksky/orderflow/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// Order domains and the HTTP surface
		server.Module,
		scheduler.Module,

		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
