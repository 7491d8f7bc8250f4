package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/bozorlab/marketpulse/internal/clock"
	"github.com/bozorlab/marketpulse/internal/competitor"
	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/currency"
	"github.com/bozorlab/marketpulse/internal/discovery"
	"github.com/bozorlab/marketpulse/internal/fetcher"
	"github.com/bozorlab/marketpulse/internal/item"
	"github.com/bozorlab/marketpulse/internal/marketplace"
	"github.com/bozorlab/marketpulse/internal/migration"
	"github.com/bozorlab/marketpulse/internal/observability"
	"github.com/bozorlab/marketpulse/internal/queue"
	"github.com/bozorlab/marketpulse/internal/ratelimit"
	"github.com/bozorlab/marketpulse/internal/reanalysis"
	"github.com/bozorlab/marketpulse/internal/relevance"
	"github.com/bozorlab/marketpulse/internal/schedule"
	"github.com/bozorlab/marketpulse/internal/scoring"
	"github.com/bozorlab/marketpulse/internal/snapshot"
	"github.com/bozorlab/marketpulse/internal/sourcing"
	"github.com/bozorlab/marketpulse/internal/worker"
	"github.com/bozorlab/marketpulse/pkg/db"
)

// Worker entrypoint: consumes the four pipeline queues and promotes delayed
// and recurring jobs. No HTTP surface beyond what observability exposes.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		queue.Module,
		ratelimit.Module,
		marketplace.Module,
		scoring.Module,
		fetcher.Module,
		schedule.Module,
		relevance.Module,
		currency.Module,
		snapshot.Module,
		item.Module,
		reanalysis.Module,
		discovery.Module,
		competitor.Module,
		sourcing.Module,
		worker.Module,

		fx.Invoke(queue.RunScheduler),
		fx.Invoke(worker.RunWorkers),
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
