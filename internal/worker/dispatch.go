package worker

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"

	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/queue"
)

// Job names per queue. Recurring registrations and API triggers use the same
// names so one handler serves both paths.
const (
	JobReanalysisRunDue = "run_due"
	JobReanalysisOne    = "analyze"
	JobDiscoveryExecute = "execute_run"
	JobCompetitorSweep  = "sweep"
)

type analyzePayload struct {
	ProductID int64 `json:"product_id"`
}

type runPayload struct {
	RunID int64 `json:"run_id"`
}

type sourcingPayload struct {
	JobID int64 `json:"job_id"`
}

// Dispatcher enqueues pipeline work. It is the only write path into the
// queues; HTTP handlers and recurring schedules both go through it.
type Dispatcher struct {
	queue *queue.Queue
	opts  queue.EnqueueOptions
}

func NewDispatcher(q *queue.Queue, cfg config.Config) *Dispatcher {
	return &Dispatcher{
		queue: q,
		opts:  queue.EnqueueOptions{MaxAttempts: cfg.Worker.JobAttempts},
	}
}

func (d *Dispatcher) EnqueueAnalyze(ctx context.Context, productID int64) (string, error) {
	return d.queue.Enqueue(ctx, queue.QueueReanalysis, JobReanalysisOne, analyzePayload{ProductID: productID}, d.opts)
}

func (d *Dispatcher) EnqueueDiscoveryRun(ctx context.Context, runID snowflake.ID) (string, error) {
	return d.queue.Enqueue(ctx, queue.QueueDiscovery, JobDiscoveryExecute, runPayload{RunID: int64(runID)}, d.opts)
}

func (d *Dispatcher) EnqueueCompetitorSweep(ctx context.Context) (string, error) {
	return d.queue.Enqueue(ctx, queue.QueueCompetitor, JobCompetitorSweep, nil, d.opts)
}

// EnqueueSourcingJob names the job after the query slug so queue inspection
// tools show what is being sourced.
func (d *Dispatcher) EnqueueSourcingJob(ctx context.Context, jobID snowflake.ID, query string) (string, error) {
	name := "execute_" + slug.Make(query)
	return d.queue.Enqueue(ctx, queue.QueueSourcing, name, sourcingPayload{JobID: int64(jobID)}, d.opts)
}
