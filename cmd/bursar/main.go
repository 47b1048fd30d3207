package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/bursar/internal/clock"
	"github.com/smallbiznis/bursar/internal/config"
	"github.com/smallbiznis/bursar/internal/migration"
	"github.com/smallbiznis/bursar/internal/observability"
	"github.com/smallbiznis/bursar/internal/scheduler"
	"github.com/smallbiznis/bursar/internal/server"
	"github.com/smallbiznis/bursar/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// Ledger domains and HTTP API
		server.Module,

		// Background jobs
		scheduler.Module,
	)
	app.Run()
}

// RegisterSnowflake builds the ID node for this instance. Every running
// instance needs its own SNOWFLAKE_NODE_ID.
func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.NodeID)
}
