package fetcher

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/marketplace"
	"github.com/bozorlab/marketpulse/internal/marketplace/domain"
	"github.com/bozorlab/marketpulse/internal/observability/metrics"
)

// Result holds per-id outcomes of a batch fetch. A missing id is a fact
// about the marketplace; an errored id is a fact about the fetch.
type Result struct {
	Details map[int64]*domain.DetailRecord
	Missing []int64
	Errors  map[int64]error
}

// BatchFetcher fetches product details in fixed-size batches with a pause
// between rounds so bulk work stays under the marketplace's radar.
type BatchFetcher struct {
	client  marketplace.Client
	policy  *config.PolicyHolder
	log     *zap.Logger
	metrics *metrics.PipelineMetrics
}

func NewBatchFetcher(client marketplace.Client, policy *config.PolicyHolder, log *zap.Logger) *BatchFetcher {
	return &BatchFetcher{
		client:  client,
		policy:  policy,
		log:     log.Named("fetcher"),
		metrics: metrics.Pipeline(),
	}
}

// FetchAll fetches details for the given ids. Duplicates are collapsed,
// order within a batch does not matter, and a failed id never aborts the
// rest of the round.
func (f *BatchFetcher) FetchAll(ctx context.Context, ids []int64) (Result, error) {
	result := Result{
		Details: make(map[int64]*domain.DetailRecord),
		Errors:  make(map[int64]error),
	}

	unique := dedupe(ids)
	if len(unique) == 0 {
		return result, nil
	}

	fetchPolicy := f.policy.Get().Fetch
	batchSize := fetchPolicy.BatchSize
	if batchSize <= 0 {
		batchSize = 5
	}

	var mu sync.Mutex
	for start := 0; start < len(unique); start += batchSize {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		end := start + batchSize
		if end > len(unique) {
			end = len(unique)
		}
		batch := unique[start:end]

		var wg sync.WaitGroup
		for _, id := range batch {
			wg.Add(1)
			go func(id int64) {
				defer wg.Done()
				detail, err := f.client.FetchDetail(ctx, id)

				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					result.Details[id] = detail
					f.metrics.IncFetchOutcome(metrics.FetchOutcomeOK)
				case errors.Is(err, domain.ErrNotFound):
					result.Missing = append(result.Missing, id)
					f.metrics.IncFetchOutcome(metrics.FetchOutcomeNotFound)
				default:
					result.Errors[id] = err
					f.metrics.IncFetchOutcome(metrics.FetchOutcomeError)
					f.log.Warn("detail fetch failed", zap.Int64("product_id", id), zap.Error(err))
				}
			}(id)
		}
		wg.Wait()

		if end < len(unique) && fetchPolicy.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(fetchPolicy.BatchDelay):
			}
		}
	}

	return result, nil
}

// FetchOne fetches a single product detail, counting the outcome the same
// way a batch round does.
func (f *BatchFetcher) FetchOne(ctx context.Context, id int64) (*domain.DetailRecord, error) {
	detail, err := f.client.FetchDetail(ctx, id)
	switch {
	case err == nil:
		f.metrics.IncFetchOutcome(metrics.FetchOutcomeOK)
		return detail, nil
	case errors.Is(err, domain.ErrNotFound):
		f.metrics.IncFetchOutcome(metrics.FetchOutcomeNotFound)
		return nil, err
	default:
		f.metrics.IncFetchOutcome(metrics.FetchOutcomeError)
		return nil, err
	}
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	unique := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		unique = append(unique, id)
	}
	return unique
}
