package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/bozorlab/marketpulse/internal/clock"
)

const (
	QueueReanalysis = "reanalysis"
	QueueDiscovery  = "discovery"
	QueueCompetitor = "competitor"
	QueueSourcing   = "sourcing"
)

var (
	ErrEmptyQueueName = errors.New("queue name is required")
	ErrEmptyJobName   = errors.New("job name is required")
)

// Job is a unit of queued work. Payload carries the handler arguments.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Name        string          `json:"name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
}

// EnqueueOptions control retry behavior for a job.
type EnqueueOptions struct {
	MaxAttempts int
}

// Queue is a Redis-backed durable work queue. Jobs wait on a list, delayed
// and repeatable work sits in sorted sets keyed by ready time, and consumers
// move jobs through a processing list so a crash never loses them.
type Queue struct {
	client *redis.Client
	clock  clock.Clock
}

func New(client *redis.Client, clk clock.Clock) *Queue {
	return &Queue{client: client, clock: clk}
}

func waitKey(queue string) string    { return "queue:" + queue + ":wait" }
func activeKey(queue string) string  { return "queue:" + queue + ":active" }
func delayedKey(queue string) string { return "queue:" + queue + ":delayed" }
func deadKey(queue string) string    { return "queue:" + queue + ":dead" }

const repeatKey = "queue:repeat"

// Enqueue pushes a job onto the queue's wait list.
func (q *Queue) Enqueue(ctx context.Context, queue, name string, payload any, opts EnqueueOptions) (string, error) {
	job, err := q.buildJob(queue, name, payload, opts)
	if err != nil {
		return "", err
	}
	encoded, err := encodeJob(job)
	if err != nil {
		return "", err
	}
	if err := q.client.LPush(ctx, waitKey(queue), encoded).Err(); err != nil {
		return "", fmt.Errorf("enqueue %s/%s: %w", queue, name, err)
	}
	return job.ID, nil
}

// EnqueueDelayed schedules a job to become available after the delay.
func (q *Queue) EnqueueDelayed(ctx context.Context, queue, name string, payload any, delay time.Duration, opts EnqueueOptions) (string, error) {
	job, err := q.buildJob(queue, name, payload, opts)
	if err != nil {
		return "", err
	}
	encoded, err := encodeJob(job)
	if err != nil {
		return "", err
	}
	readyAt := q.clock.Now().Add(delay)
	err = q.client.ZAdd(ctx, delayedKey(queue), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: encoded,
	}).Err()
	if err != nil {
		return "", fmt.Errorf("enqueue delayed %s/%s: %w", queue, name, err)
	}
	return job.ID, nil
}

func (q *Queue) buildJob(queue, name string, payload any, opts EnqueueOptions) (Job, error) {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return Job{}, ErrEmptyQueueName
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Job{}, ErrEmptyJobName
	}

	var raw json.RawMessage
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Job{}, fmt.Errorf("marshal payload for %s/%s: %w", queue, name, err)
		}
		raw = encoded
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	return Job{
		ID:          uuid.NewString(),
		Queue:       queue,
		Name:        name,
		Payload:     raw,
		Attempts:    0,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  q.clock.Now(),
	}, nil
}

// ScheduleRepeating registers a recurring job. Re-registering the same
// queue/name pair replaces the previous schedule, so changing the interval
// never leaves a stale registration behind. State lives in Redis and
// survives restarts.
func (q *Queue) ScheduleRepeating(ctx context.Context, queue, name string, every time.Duration) error {
	queue = strings.TrimSpace(queue)
	if queue == "" {
		return ErrEmptyQueueName
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyJobName
	}
	if every <= 0 {
		return fmt.Errorf("repeat interval for %s/%s must be positive", queue, name)
	}

	if err := q.removeRepeatingMembers(ctx, queue, name); err != nil {
		return err
	}

	member := repeatMember(queue, name, every)
	score := float64(q.clock.Now().Add(every).UnixMilli())
	if err := q.client.ZAdd(ctx, repeatKey, redis.Z{Score: score, Member: member}).Err(); err != nil {
		return fmt.Errorf("register repeatable %s/%s: %w", queue, name, err)
	}
	return nil
}

// RemoveRepeating deregisters a recurring job.
func (q *Queue) RemoveRepeating(ctx context.Context, queue, name string) error {
	return q.removeRepeatingMembers(ctx, queue, name)
}

func (q *Queue) removeRepeatingMembers(ctx context.Context, queue, name string) error {
	members, err := q.client.ZRange(ctx, repeatKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("list repeatables: %w", err)
	}
	prefix := queue + "|" + name + "|"
	for _, member := range members {
		if !strings.HasPrefix(member, prefix) {
			continue
		}
		if err := q.client.ZRem(ctx, repeatKey, member).Err(); err != nil {
			return fmt.Errorf("remove repeatable %s/%s: %w", queue, name, err)
		}
	}
	return nil
}

// DeadJobs returns jobs that exhausted their attempts.
func (q *Queue) DeadJobs(ctx context.Context, queue string) ([]Job, error) {
	raw, err := q.client.LRange(ctx, deadKey(queue), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]Job, 0, len(raw))
	for _, encoded := range raw {
		job, err := decodeJob(encoded)
		if err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// WaitDepth returns the number of jobs waiting on the queue.
func (q *Queue) WaitDepth(ctx context.Context, queue string) (int64, error) {
	return q.client.LLen(ctx, waitKey(queue)).Result()
}

func repeatMember(queue, name string, every time.Duration) string {
	return queue + "|" + name + "|" + strconv.FormatInt(every.Milliseconds(), 10)
}

func parseRepeatMember(member string) (queue, name string, every time.Duration, err error) {
	parts := strings.Split(member, "|")
	if len(parts) != 3 {
		return "", "", 0, fmt.Errorf("malformed repeat member %q", member)
	}
	millis, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return "", "", 0, fmt.Errorf("malformed repeat interval in %q: %w", member, err)
	}
	return parts[0], parts[1], time.Duration(millis) * time.Millisecond, nil
}

func encodeJob(job Job) (string, error) {
	raw, err := json.Marshal(job)
	if err != nil {
		return "", fmt.Errorf("marshal job %s: %w", job.ID, err)
	}
	return string(snappy.Encode(nil, raw)), nil
}

func decodeJob(encoded string) (Job, error) {
	raw, err := snappy.Decode(nil, []byte(encoded))
	if err != nil {
		return Job{}, fmt.Errorf("decompress job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return Job{}, fmt.Errorf("unmarshal job: %w", err)
	}
	return job, nil
}
