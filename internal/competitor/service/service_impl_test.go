package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/accountctx"
	"github.com/bozorlab/marketpulse/internal/clock"
	"github.com/bozorlab/marketpulse/internal/competitor/domain"
	"github.com/bozorlab/marketpulse/internal/competitor/repository"
	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/fetcher"
	marketdomain "github.com/bozorlab/marketpulse/internal/marketplace/domain"
)

type priceClient struct {
	mu     sync.Mutex
	prices map[int64]float64
	calls  int
}

func (c *priceClient) FetchDetail(ctx context.Context, productID int64) (*marketdomain.DetailRecord, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	price, ok := c.prices[productID]
	if !ok {
		return nil, marketdomain.ErrNotFound
	}
	return &marketdomain.DetailRecord{
		ExternalID:   productID,
		Title:        "Competitor Product",
		MinSellPrice: price,
		StockType:    marketdomain.StockTypeFBO,
	}, nil
}

func (c *priceClient) SearchCategory(ctx context.Context, categoryID int64, limit int) ([]marketdomain.CatalogCard, error) {
	return nil, nil
}

func (c *priceClient) setPrice(id int64, price float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.prices[id] = price
}

func (c *priceClient) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

type fixture struct {
	svc    domain.Service
	clock  *clock.FakeClock
	client *priceClient
}

func newFixture(t *testing.T, dsn string) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&domain.CompetitorTracking{},
		&domain.CompetitorPriceSnapshot{},
		&domain.AlertRule{},
		&domain.AlertEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	policyCfg := config.DefaultPolicyConfig()
	policyCfg.Fetch.BatchDelay = 0
	policy := config.NewStaticPolicyHolder(policyCfg)

	client := &priceClient{prices: map[int64]float64{}}
	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))

	svc := New(Params{
		DB:      db,
		Log:     log,
		GenID:   node,
		Clock:   fakeClock,
		Policy:  policy,
		Repo:    repository.Provide(),
		Fetcher: fetcher.NewBatchFetcher(client, policy, log),
	})
	return &fixture{svc: svc, clock: fakeClock, client: client}
}

func accountContext(id int64) context.Context {
	return accountctx.WithAccountID(context.Background(), id)
}

func TestSweepEmitsAlertWhenDropBreachesThreshold(t *testing.T) {
	f := newFixture(t, "file:competitor_alert?mode=memory&cache=shared")
	ctx := accountContext(1)

	_, err := f.svc.Track(ctx, domain.TrackRequest{ProductID: 100, CompetitorProductID: 900})
	require.NoError(t, err)
	_, err = f.svc.CreateRule(ctx, domain.CreateRuleRequest{ProductID: 100, ThresholdPct: 10})
	require.NoError(t, err)

	f.client.setPrice(900, 100000)
	summary, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Snapshots)
	require.Zero(t, summary.Alerts) // baseline, nothing to compare against

	f.clock.Advance(6 * time.Hour)
	f.client.setPrice(900, 85000) // 15% drop
	summary, err = f.svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Alerts)

	alerts, err := f.svc.Alerts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alerts, 1)
	require.Equal(t, int64(100), alerts[0].ProductID)
	require.Contains(t, alerts[0].Message, "15.0%")

	var details domain.AlertDetails
	require.NoError(t, json.Unmarshal(alerts[0].Details, &details))
	require.Equal(t, int64(900), details.CompetitorProductID)
	require.InDelta(t, 15.0, details.DropPct, 1e-9)
	require.Equal(t, 85000.0, details.NewPrice)
}

func TestSweepSmallDropIsSilent(t *testing.T) {
	f := newFixture(t, "file:competitor_small?mode=memory&cache=shared")
	ctx := accountContext(1)

	_, err := f.svc.Track(ctx, domain.TrackRequest{ProductID: 100, CompetitorProductID: 901})
	require.NoError(t, err)
	_, err = f.svc.CreateRule(ctx, domain.CreateRuleRequest{ProductID: 100, ThresholdPct: 10})
	require.NoError(t, err)

	f.client.setPrice(901, 100000)
	_, err = f.svc.Sweep(context.Background())
	require.NoError(t, err)

	f.clock.Advance(6 * time.Hour)
	f.client.setPrice(901, 95000) // 5% drop
	summary, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Snapshots)
	require.Zero(t, summary.Alerts)
}

func TestSweepWithoutRuleIsSilent(t *testing.T) {
	f := newFixture(t, "file:competitor_norule?mode=memory&cache=shared")
	ctx := accountContext(1)

	_, err := f.svc.Track(ctx, domain.TrackRequest{ProductID: 100, CompetitorProductID: 902})
	require.NoError(t, err)

	f.client.setPrice(902, 100000)
	_, err = f.svc.Sweep(context.Background())
	require.NoError(t, err)

	f.clock.Advance(6 * time.Hour)
	f.client.setPrice(902, 70000) // 30% drop, nobody asked to be told
	summary, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Snapshots)
	require.Zero(t, summary.Alerts)
}

func TestSweepDedupesCompetitorFetches(t *testing.T) {
	f := newFixture(t, "file:competitor_dedupe?mode=memory&cache=shared")

	_, err := f.svc.Track(accountContext(1), domain.TrackRequest{ProductID: 100, CompetitorProductID: 903})
	require.NoError(t, err)
	_, err = f.svc.Track(accountContext(2), domain.TrackRequest{ProductID: 200, CompetitorProductID: 903})
	require.NoError(t, err)

	f.client.setPrice(903, 50000)
	summary, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, summary.Trackings)
	require.Equal(t, 2, summary.Snapshots)
	require.Equal(t, 1, f.client.callCount())
}

func TestSweepCountsMissingCompetitors(t *testing.T) {
	f := newFixture(t, "file:competitor_missing?mode=memory&cache=shared")

	_, err := f.svc.Track(accountContext(1), domain.TrackRequest{ProductID: 100, CompetitorProductID: 904})
	require.NoError(t, err)

	summary, err := f.svc.Sweep(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Zero(t, summary.Snapshots)
}

func TestTrackReactivatesAndValidates(t *testing.T) {
	f := newFixture(t, "file:competitor_track?mode=memory&cache=shared")
	ctx := accountContext(1)

	_, err := f.svc.Track(context.Background(), domain.TrackRequest{ProductID: 1, CompetitorProductID: 2})
	require.ErrorIs(t, err, domain.ErrInvalidAccount)

	_, err = f.svc.Track(ctx, domain.TrackRequest{ProductID: 0, CompetitorProductID: 2})
	require.ErrorIs(t, err, domain.ErrInvalidProduct)

	tracking, err := f.svc.Track(ctx, domain.TrackRequest{ProductID: 1, CompetitorProductID: 2})
	require.NoError(t, err)

	require.NoError(t, f.svc.Untrack(ctx, domain.TrackRequest{ProductID: 1, CompetitorProductID: 2}))

	again, err := f.svc.Track(ctx, domain.TrackRequest{ProductID: 1, CompetitorProductID: 2})
	require.NoError(t, err)
	require.Equal(t, tracking.ID, again.ID)
	require.True(t, again.IsActive)
}

func TestCreateRuleDefaultsThreshold(t *testing.T) {
	f := newFixture(t, "file:competitor_ruledefault?mode=memory&cache=shared")

	rule, err := f.svc.CreateRule(accountContext(1), domain.CreateRuleRequest{ProductID: 5})
	require.NoError(t, err)
	require.Equal(t, 10.0, rule.ThresholdPct)
}
