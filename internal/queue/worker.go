package queue

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bozorlab/marketpulse/internal/clock"
	"github.com/bozorlab/marketpulse/internal/observability/metrics"
)

// Handler processes a single job. A returned error triggers the retry policy.
type Handler func(ctx context.Context, job Job) error

// Worker consumes one queue with concurrency fixed at one. Jobs move through
// a processing list via BRPOPLPUSH so an interrupted handler leaves the job
// recoverable instead of lost.
type Worker struct {
	queue   *Queue
	client  *redis.Client
	clock   clock.Clock
	log     *zap.Logger
	metrics *metrics.PipelineMetrics

	name         string
	handler      Handler
	pollInterval time.Duration
	backoffBase  time.Duration

	done chan struct{}
}

// WorkerConfig configures a queue consumer.
type WorkerConfig struct {
	Queue        string
	Handler      Handler
	PollInterval time.Duration
	BackoffBase  time.Duration
}

func NewWorker(q *Queue, client *redis.Client, clk clock.Clock, log *zap.Logger, pm *metrics.PipelineMetrics, cfg WorkerConfig) *Worker {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	backoffBase := cfg.BackoffBase
	if backoffBase <= 0 {
		backoffBase = 5 * time.Second
	}
	return &Worker{
		queue:        q,
		client:       client,
		clock:        clk,
		log:          log.Named("queue.worker." + cfg.Queue),
		metrics:      pm,
		name:         cfg.Queue,
		handler:      cfg.Handler,
		pollInterval: pollInterval,
		backoffBase:  backoffBase,
		done:         make(chan struct{}),
	}
}

// Start launches the consume loop.
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop waits for the consume loop to exit.
func (w *Worker) Stop() {
	<-w.done
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)
	for {
		if ctx.Err() != nil {
			return
		}
		processed, err := w.ProcessOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("consume failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(w.pollInterval):
			}
			continue
		}
		if !processed {
			continue
		}
	}
}

// ProcessOne claims and processes at most one job, blocking up to the poll
// interval. It reports whether a job was handled. Exposed for tests.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	encoded, err := w.client.BRPopLPush(ctx, waitKey(w.name), activeKey(w.name), w.pollInterval).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim job from %s: %w", w.name, err)
	}

	job, decodeErr := decodeJob(encoded)
	if decodeErr != nil {
		// Undecodable payloads go straight to the dead list.
		w.log.Error("discarding undecodable job", zap.Error(decodeErr))
		_ = w.client.LPush(ctx, deadKey(w.name), encoded).Err()
		_ = w.client.LRem(ctx, activeKey(w.name), 1, encoded).Err()
		return true, nil
	}

	w.metrics.IncQueueJob(w.name)
	handlerErr := w.invoke(ctx, job)
	if ackErr := w.client.LRem(ctx, activeKey(w.name), 1, encoded).Err(); ackErr != nil {
		w.log.Warn("failed to ack job", zap.String("job_id", job.ID), zap.Error(ackErr))
	}

	if handlerErr == nil {
		return true, nil
	}

	w.metrics.IncQueueJobFailure(w.name)
	job.Attempts++
	if job.Attempts >= job.MaxAttempts {
		w.log.Error("job exhausted attempts",
			zap.String("job_id", job.ID),
			zap.String("job", job.Name),
			zap.Int("attempts", job.Attempts),
			zap.Error(handlerErr),
		)
		if deadEncoded, err := encodeJob(job); err == nil {
			_ = w.client.LPush(ctx, deadKey(w.name), deadEncoded).Err()
		}
		return true, nil
	}

	delay := w.backoffBase << (job.Attempts - 1)
	w.log.Warn("job failed, retrying",
		zap.String("job_id", job.ID),
		zap.String("job", job.Name),
		zap.Int("attempt", job.Attempts),
		zap.Duration("delay", delay),
		zap.Error(handlerErr),
	)
	retryEncoded, err := encodeJob(job)
	if err != nil {
		return true, err
	}
	err = w.client.ZAdd(ctx, delayedKey(w.name), redis.Z{
		Score:  float64(w.clock.Now().Add(delay).UnixMilli()),
		Member: retryEncoded,
	}).Err()
	if err != nil {
		return true, fmt.Errorf("schedule retry for %s: %w", job.ID, err)
	}
	return true, nil
}

func (w *Worker) invoke(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return w.handler(ctx, job)
}
