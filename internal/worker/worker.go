package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/bozorlab/marketpulse/internal/clock"
	competitordomain "github.com/bozorlab/marketpulse/internal/competitor/domain"
	"github.com/bozorlab/marketpulse/internal/config"
	discoverydomain "github.com/bozorlab/marketpulse/internal/discovery/domain"
	"github.com/bozorlab/marketpulse/internal/observability/metrics"
	"github.com/bozorlab/marketpulse/internal/queue"
	"github.com/bozorlab/marketpulse/internal/ratelimit"
	"github.com/bozorlab/marketpulse/internal/reanalysis"
	sourcingdomain "github.com/bozorlab/marketpulse/internal/sourcing/domain"
)

// sweepLockTTL caps how long a crashed process can block the next sweep.
const sweepLockTTL = 15 * time.Minute

// reanalyzer is the slice of the reanalysis pipeline the consumers need.
type reanalyzer interface {
	RunDue(ctx context.Context) (reanalysis.RunSummary, error)
	AnalyzeProduct(ctx context.Context, productID int64) error
}

type pipelineAdapter struct {
	pipeline *reanalysis.Pipeline
}

func (a pipelineAdapter) RunDue(ctx context.Context) (reanalysis.RunSummary, error) {
	return a.pipeline.RunDue(ctx)
}

func (a pipelineAdapter) AnalyzeProduct(ctx context.Context, productID int64) error {
	_, err := a.pipeline.AnalyzeProduct(ctx, productID)
	return err
}

// Handlers routes dequeued jobs to the pipeline services. One Handlers value
// backs all four queue consumers.
type Handlers struct {
	log        *zap.Logger
	locks      *ratelimit.SweepLocker
	reanalysis reanalyzer
	discovery  discoverydomain.Service
	competitor competitordomain.Service
	sourcing   sourcingdomain.Service
}

type HandlersParams struct {
	fx.In

	Log        *zap.Logger
	Locks      *ratelimit.SweepLocker
	Reanalysis *reanalysis.Pipeline
	Discovery  discoverydomain.Service
	Competitor competitordomain.Service
	Sourcing   sourcingdomain.Service
}

func NewHandlers(p HandlersParams) *Handlers {
	return &Handlers{
		log:        p.Log.Named("worker"),
		locks:      p.Locks,
		reanalysis: pipelineAdapter{pipeline: p.Reanalysis},
		discovery:  p.Discovery,
		competitor: p.Competitor,
		sourcing:   p.Sourcing,
	}
}

// withSweepLock runs fn under the named cross-process lock. When another
// process already holds it the sweep is skipped, not queued behind it.
func (h *Handlers) withSweepLock(ctx context.Context, name string, fn func(context.Context) error) error {
	lease, err := h.locks.Acquire(ctx, name, sweepLockTTL)
	if err != nil {
		return fmt.Errorf("acquire %s sweep lock: %w", name, err)
	}
	if lease == nil {
		h.log.Info("sweep already running on another process, skipping", zap.String("sweep", name))
		return nil
	}
	defer func() {
		if err := lease.Release(ctx); err != nil {
			h.log.Warn("sweep lock release failed", zap.String("sweep", name), zap.Error(err))
		}
	}()
	return fn(ctx)
}

// HandleReanalysis serves both the recurring sweep and one-off product jobs.
func (h *Handlers) HandleReanalysis(ctx context.Context, job queue.Job) error {
	switch job.Name {
	case JobReanalysisRunDue:
		return h.withSweepLock(ctx, queue.QueueReanalysis, h.drainDue)
	case JobReanalysisOne:
		var payload analyzePayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode analyze payload: %w", err)
		}
		return h.reanalysis.AnalyzeProduct(ctx, payload.ProductID)
	default:
		return fmt.Errorf("unknown reanalysis job %q", job.Name)
	}
}

// drainDue keeps running batches until the due backlog is empty. A batch
// error aborts the drain; failed items were already pushed onto the failure
// schedule so the next sweep does not pick them up again.
func (h *Handlers) drainDue(ctx context.Context) error {
	for {
		summary, err := h.reanalysis.RunDue(ctx)
		if err != nil {
			return err
		}
		h.log.Info("reanalysis batch done",
			zap.Int("due", summary.Due),
			zap.Int("processed", summary.Processed),
			zap.Int("failed", summary.Failed),
		)
		if summary.Due == 0 {
			return nil
		}
	}
}

func (h *Handlers) HandleDiscovery(ctx context.Context, job queue.Job) error {
	var payload runPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode discovery payload: %w", err)
	}
	return h.discovery.Execute(ctx, snowflake.ID(payload.RunID))
}

func (h *Handlers) HandleCompetitor(ctx context.Context, job queue.Job) error {
	return h.withSweepLock(ctx, queue.QueueCompetitor, func(ctx context.Context) error {
		summary, err := h.competitor.Sweep(ctx)
		if err != nil {
			return err
		}
		h.log.Info("competitor sweep done",
			zap.Int("trackings", summary.Trackings),
			zap.Int("alerts", summary.Alerts),
			zap.Int("failed", summary.Failed),
		)
		return nil
	})
}

func (h *Handlers) HandleSourcing(ctx context.Context, job queue.Job) error {
	if !strings.HasPrefix(job.Name, "execute") {
		return fmt.Errorf("unknown sourcing job %q", job.Name)
	}
	var payload sourcingPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode sourcing payload: %w", err)
	}
	return h.sourcing.Execute(ctx, snowflake.ID(payload.JobID))
}

// RunWorkers starts one consumer per queue and registers the recurring
// sweeps. Consumers stop when the fx app shuts down.
func RunWorkers(
	lc fx.Lifecycle,
	q *queue.Queue,
	client *redis.Client,
	clk clock.Clock,
	log *zap.Logger,
	cfg config.Config,
	handlers *Handlers,
) {
	pm := metrics.Pipeline()
	configs := []queue.WorkerConfig{
		{Queue: queue.QueueReanalysis, Handler: handlers.HandleReanalysis},
		{Queue: queue.QueueDiscovery, Handler: handlers.HandleDiscovery},
		{Queue: queue.QueueCompetitor, Handler: handlers.HandleCompetitor},
		{Queue: queue.QueueSourcing, Handler: handlers.HandleSourcing},
	}

	workers := make([]*queue.Worker, 0, len(configs))
	for _, wc := range configs {
		wc.PollInterval = cfg.Worker.PollInterval
		wc.BackoffBase = cfg.Worker.BackoffBaseDelay
		workers = append(workers, queue.NewWorker(q, client, clk, log, pm, wc))
	}

	runCtx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := registerRecurring(ctx, q, cfg); err != nil {
				cancel()
				return err
			}
			for _, w := range workers {
				w.Start(runCtx)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			_ = ctx
			cancel()
			for _, w := range workers {
				w.Stop()
			}
			return nil
		},
	})
}

func registerRecurring(ctx context.Context, q *queue.Queue, cfg config.Config) error {
	if err := q.ScheduleRepeating(ctx, queue.QueueReanalysis, JobReanalysisRunDue, cfg.Worker.ReanalysisEvery); err != nil {
		return fmt.Errorf("schedule reanalysis sweep: %w", err)
	}
	if err := q.ScheduleRepeating(ctx, queue.QueueCompetitor, JobCompetitorSweep, cfg.Worker.CompetitorEvery); err != nil {
		return fmt.Errorf("schedule competitor sweep: %w", err)
	}
	return nil
}

var Module = fx.Module("worker",
	fx.Provide(
		NewDispatcher,
		NewHandlers,
	),
)
