package ratelimit

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/bozorlab/marketpulse/internal/config"
)

const keyMarketplaceDetail = "marketplace:detail"

// MarketplaceLimiter throttles outbound marketplace calls across all
// processes sharing the Redis instance.
type MarketplaceLimiter struct {
	bucket *TokenBucket

	rate  float64
	burst int
}

func NewMarketplaceLimiter(client *redis.Client, cfg config.Config) *MarketplaceLimiter {
	rate := cfg.Marketplace.RatePerSecond
	if rate <= 0 {
		rate = 5
	}
	burst := cfg.Marketplace.RateBurst
	if burst <= 0 {
		burst = 5
	}
	return &MarketplaceLimiter{
		bucket: NewTokenBucket(client),
		rate:   rate,
		burst:  burst,
	}
}

// Wait blocks until a request token is available or the context ends.
func (l *MarketplaceLimiter) Wait(ctx context.Context) error {
	if l == nil || l.bucket == nil {
		return nil
	}
	for {
		res, err := l.bucket.Allow(ctx, keyMarketplaceDetail, l.rate, l.burst)
		if err != nil {
			// Redis trouble should not stall the pipelines.
			return nil
		}
		if res.Allowed {
			return nil
		}
		delay := res.RetryAfter
		if delay <= 0 {
			delay = 50 * time.Millisecond
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
}
