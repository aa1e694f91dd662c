package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/timberline-hq/timberline/internal/audit"
	"github.com/timberline-hq/timberline/internal/auth"
	"github.com/timberline-hq/timberline/internal/authorization"
	"github.com/timberline-hq/timberline/internal/bidding"
	"github.com/timberline-hq/timberline/internal/clock"
	"github.com/timberline-hq/timberline/internal/config"
	"github.com/timberline-hq/timberline/internal/document"
	"github.com/timberline-hq/timberline/internal/invitation"
	"github.com/timberline-hq/timberline/internal/migration"
	"github.com/timberline-hq/timberline/internal/notification"
	"github.com/timberline-hq/timberline/internal/observability"
	"github.com/timberline-hq/timberline/internal/order"
	"github.com/timberline-hq/timberline/internal/project"
	"github.com/timberline-hq/timberline/internal/providers"
	"github.com/timberline-hq/timberline/internal/ratelimit"
	"github.com/timberline-hq/timberline/internal/report"
	"github.com/timberline-hq/timberline/internal/scheduler"
	"github.com/timberline-hq/timberline/internal/server"
	"github.com/timberline-hq/timberline/internal/timeline"
	"github.com/timberline-hq/timberline/pkg/db"
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
		providers.Module,
		ratelimit.Module,

		// Domains
		authorization.Module,
		audit.Module,
		auth.Module,
		project.Module,
		invitation.Module,
		timeline.Module,
		document.Module,
		bidding.Module,
		order.Module,
		notification.Module,
		report.Module,

		// Periodic sweeps and HTTP surface
		scheduler.Module,
		server.Module,
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
