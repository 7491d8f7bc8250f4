package fetcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/marketplace/domain"
)

type fakeClient struct {
	mu        sync.Mutex
	calls     []int64
	batchGaps []time.Time
	notFound  map[int64]bool
	failing   map[int64]error
}

func (c *fakeClient) FetchDetail(ctx context.Context, productID int64) (*domain.DetailRecord, error) {
	c.mu.Lock()
	c.calls = append(c.calls, productID)
	c.batchGaps = append(c.batchGaps, time.Now())
	c.mu.Unlock()

	if c.notFound[productID] {
		return nil, domain.ErrNotFound
	}
	if err := c.failing[productID]; err != nil {
		return nil, err
	}
	return &domain.DetailRecord{ExternalID: productID, Title: "item", Rating: 4.5}, nil
}

func (c *fakeClient) SearchCategory(ctx context.Context, categoryID int64, limit int) ([]domain.CatalogCard, error) {
	return nil, nil
}

func newTestFetcher(client *fakeClient, batchSize int, batchDelay time.Duration) *BatchFetcher {
	policy := config.DefaultPolicyConfig()
	policy.Fetch.BatchSize = batchSize
	policy.Fetch.BatchDelay = batchDelay
	return NewBatchFetcher(client, config.NewStaticPolicyHolder(policy), zap.NewNop())
}

func TestFetchAllBatchesWithDelay(t *testing.T) {
	client := &fakeClient{}
	fetcher := newTestFetcher(client, 5, 30*time.Millisecond)

	ids := make([]int64, 0, 12)
	for i := int64(1); i <= 12; i++ {
		ids = append(ids, i)
	}

	start := time.Now()
	result, err := fetcher.FetchAll(context.Background(), ids)
	require.NoError(t, err)
	require.Len(t, result.Details, 12)
	require.Empty(t, result.Missing)
	require.Empty(t, result.Errors)
	require.Len(t, client.calls, 12)

	// 12 ids at batch size 5 means 3 rounds and 2 inter-batch pauses.
	require.GreaterOrEqual(t, time.Since(start), 60*time.Millisecond)
}

func TestFetchAllCollapsesDuplicates(t *testing.T) {
	client := &fakeClient{}
	fetcher := newTestFetcher(client, 5, 0)

	result, err := fetcher.FetchAll(context.Background(), []int64{7, 7, 8, 7, 8})
	require.NoError(t, err)
	require.Len(t, result.Details, 2)
	require.Len(t, client.calls, 2)
}

func TestFetchAllSeparatesMissingFromErrors(t *testing.T) {
	client := &fakeClient{
		notFound: map[int64]bool{2: true},
		failing:  map[int64]error{3: errors.New("timeout")},
	}
	fetcher := newTestFetcher(client, 5, 0)

	result, err := fetcher.FetchAll(context.Background(), []int64{1, 2, 3})
	require.NoError(t, err)
	require.Len(t, result.Details, 1)
	require.Equal(t, []int64{2}, result.Missing)
	require.Len(t, result.Errors, 1)
	require.Error(t, result.Errors[3])
}

func TestFetchAllEmptyInput(t *testing.T) {
	client := &fakeClient{}
	fetcher := newTestFetcher(client, 5, 0)

	result, err := fetcher.FetchAll(context.Background(), nil)
	require.NoError(t, err)
	require.Empty(t, result.Details)
	require.Empty(t, client.calls)
}

func TestFetchAllStopsOnCancelledContext(t *testing.T) {
	client := &fakeClient{}
	fetcher := newTestFetcher(client, 2, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fetcher.FetchAll(ctx, []int64{1, 2, 3, 4})
	require.ErrorIs(t, err, context.Canceled)
}
