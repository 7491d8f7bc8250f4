package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/bozorlab/marketpulse/internal/clock"
)

const promoteBatch = 64

var promoteDelayedScript = redis.NewScript(`
local due = redis.call("ZRANGEBYSCORE", KEYS[1], "-inf", ARGV[1], "LIMIT", 0, ARGV[2])
for _, job in ipairs(due) do
  redis.call("ZREM", KEYS[1], job)
  redis.call("LPUSH", KEYS[2], job)
end
return #due
`)

// Scheduler promotes due delayed jobs and fires repeatable registrations.
// One instance per process is enough; promotion is idempotent because the
// Lua script removes members atomically.
type Scheduler struct {
	queue  *Queue
	client *redis.Client
	clock  clock.Clock
	log    *zap.Logger

	interval time.Duration
	queues   []string

	done chan struct{}
}

func NewScheduler(queue *Queue, client *redis.Client, clk clock.Clock, log *zap.Logger, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Scheduler{
		queue:    queue,
		client:   client,
		clock:    clk,
		log:      log.Named("queue.scheduler"),
		interval: interval,
		queues:   []string{QueueReanalysis, QueueDiscovery, QueueCompetitor, QueueSourcing},
		done:     make(chan struct{}),
	}
}

// Start launches the promotion loop.
func (s *Scheduler) Start(ctx context.Context) {
	go s.run(ctx)
}

// Stop waits for the promotion loop to exit.
func (s *Scheduler) Stop() {
	<-s.done
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil && ctx.Err() == nil {
				s.log.Warn("promotion tick failed", zap.Error(err))
			}
		}
	}
}

// Tick promotes everything currently due. Exposed for tests.
func (s *Scheduler) Tick(ctx context.Context) error {
	now := s.clock.Now()
	for _, queue := range s.queues {
		if err := s.promoteDelayed(ctx, queue, now); err != nil {
			return err
		}
	}
	return s.fireRepeatables(ctx, now)
}

func (s *Scheduler) promoteDelayed(ctx context.Context, queue string, now time.Time) error {
	for {
		promoted, err := promoteDelayedScript.Run(ctx, s.client,
			[]string{delayedKey(queue), waitKey(queue)},
			now.UnixMilli(), promoteBatch,
		).Int()
		if err != nil {
			return fmt.Errorf("promote delayed %s: %w", queue, err)
		}
		if promoted < promoteBatch {
			return nil
		}
	}
}

func (s *Scheduler) fireRepeatables(ctx context.Context, now time.Time) error {
	due, err := s.client.ZRangeByScore(ctx, repeatKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: promoteBatch,
	}).Result()
	if err != nil {
		return fmt.Errorf("list due repeatables: %w", err)
	}

	for _, member := range due {
		queueName, jobName, every, err := parseRepeatMember(member)
		if err != nil {
			s.log.Warn("dropping malformed repeatable", zap.String("member", member), zap.Error(err))
			_ = s.client.ZRem(ctx, repeatKey, member).Err()
			continue
		}

		// Re-arm first so a crash mid-fire skips a beat instead of doubling.
		removed, err := s.client.ZRem(ctx, repeatKey, member).Result()
		if err != nil {
			return fmt.Errorf("re-arm repeatable %s/%s: %w", queueName, jobName, err)
		}
		if removed == 0 {
			// Another scheduler instance already claimed this fire.
			continue
		}
		score := float64(now.Add(every).UnixMilli())
		if err := s.client.ZAdd(ctx, repeatKey, redis.Z{Score: score, Member: member}).Err(); err != nil {
			return fmt.Errorf("re-arm repeatable %s/%s: %w", queueName, jobName, err)
		}

		if _, err := s.queue.Enqueue(ctx, queueName, jobName, nil, EnqueueOptions{}); err != nil {
			s.log.Error("failed to enqueue repeatable fire",
				zap.String("queue", queueName),
				zap.String("job", jobName),
				zap.Error(err),
			)
		}
	}
	return nil
}
