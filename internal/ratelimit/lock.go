package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
)

// Release is token-checked so an expired holder cannot free a lock that was
// re-acquired by another process in the meantime.
const sweepLockReleaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`

// SweepLocker hands out expiring redis locks so the recurring sweeps run on
// at most one process at a time. Queue concurrency keeps a single consumer
// per queue within a process; the lock extends that across processes.
type SweepLocker struct {
	client *redis.Client
	script *redis.Script
}

func NewSweepLocker(client *redis.Client) *SweepLocker {
	return &SweepLocker{
		client: client,
		script: redis.NewScript(sweepLockReleaseScript),
	}
}

// Lease is a held sweep lock. It expires on its own after the TTL; Release
// frees it early.
type Lease struct {
	locker *SweepLocker
	key    string
	token  string
}

// Acquire takes the named lock for at most ttl. A nil lease with a nil error
// means another process holds it.
func (l *SweepLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, errors.New("sweep locker not configured")
	}
	if name == "" {
		return nil, errors.New("sweep lock name is empty")
	}
	if ttl <= 0 {
		return nil, errors.New("sweep lock ttl must be positive")
	}

	key := "lock:sweep:" + name
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return &Lease{locker: l, key: key, token: token}, nil
}

func (le *Lease) Release(ctx context.Context) error {
	if le == nil || le.locker == nil {
		return nil
	}
	return le.locker.script.Run(ctx, le.locker.client, []string{le.key}, le.token).Err()
}
