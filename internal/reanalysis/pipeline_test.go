package reanalysis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/clock"
	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/fetcher"
	itemdomain "github.com/bozorlab/marketpulse/internal/item/domain"
	itemrepository "github.com/bozorlab/marketpulse/internal/item/repository"
	marketdomain "github.com/bozorlab/marketpulse/internal/marketplace/domain"
	"github.com/bozorlab/marketpulse/internal/schedule"
	"github.com/bozorlab/marketpulse/internal/scoring"
	snapshotdomain "github.com/bozorlab/marketpulse/internal/snapshot/domain"
	snapshotrepository "github.com/bozorlab/marketpulse/internal/snapshot/repository"
	snapshotservice "github.com/bozorlab/marketpulse/internal/snapshot/service"
)

type fakeClient struct {
	details map[int64]*marketdomain.DetailRecord
	errs    map[int64]error
}

func (f *fakeClient) FetchDetail(ctx context.Context, productID int64) (*marketdomain.DetailRecord, error) {
	if err, ok := f.errs[productID]; ok {
		return nil, err
	}
	if detail, ok := f.details[productID]; ok {
		return detail, nil
	}
	return nil, marketdomain.ErrNotFound
}

func (f *fakeClient) SearchCategory(ctx context.Context, categoryID int64, limit int) ([]marketdomain.CatalogCard, error) {
	return nil, nil
}

type fixture struct {
	pipeline *Pipeline
	db       *gorm.DB
	clock    *clock.FakeClock
	items    itemdomain.Repository
	genID    *snowflake.Node
}

func newFixture(t *testing.T, dsn string, client *fakeClient) *fixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&itemdomain.Product{},
		&itemdomain.TrackedItem{},
		&snapshotdomain.ProductSnapshot{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	policyCfg := config.DefaultPolicyConfig()
	policyCfg.Fetch.BatchDelay = 0
	policy := config.NewStaticPolicyHolder(policyCfg)

	log := zap.NewNop()
	fakeClock := clock.NewFakeClock(time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC))
	items := itemrepository.Provide()

	snapshotSvc := snapshotservice.New(snapshotservice.Params{
		Log:    log,
		GenID:  node,
		Policy: policy,
		Repo:   snapshotrepository.Provide(),
	})

	pipeline := New(Params{
		DB:       db,
		Log:      log,
		Clock:    fakeClock,
		Items:    items,
		Fetcher:  fetcher.NewBatchFetcher(client, policy, log),
		Scorer:   scoring.NewEngine(policy),
		Snapshot: snapshotSvc,
		Schedule: schedule.NewPolicy(policy),
	})

	return &fixture{pipeline: pipeline, db: db, clock: fakeClock, items: items, genID: node}
}

func (f *fixture) track(t *testing.T, accountID snowflake.ID, productID int64) {
	t.Helper()
	now := f.clock.Now()
	require.NoError(t, f.items.InsertTracked(context.Background(), f.db, &itemdomain.TrackedItem{
		ID:        f.genID.Generate(),
		AccountID: accountID,
		ProductID: productID,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

func detail(id int64, orders int64, weeklyDemand float64) *marketdomain.DetailRecord {
	return &marketdomain.DetailRecord{
		ExternalID:      id,
		Title:           "Test Product",
		Rating:          4.7,
		ReviewCount:     120,
		OrdersQuantity:  orders,
		WeeklyDemand:    &weeklyDemand,
		AvailableAmount: 35,
		MinSellPrice:    99000,
		StockType:       marketdomain.StockTypeFBO,
		CategoryID:      10090,
	}
}

func TestRunDueProcessesAndReschedules(t *testing.T) {
	client := &fakeClient{details: map[int64]*marketdomain.DetailRecord{
		1001: detail(1001, 540, 42),
		1002: detail(1002, 80, 7),
	}}
	f := newFixture(t, "file:reanalysis_ok?mode=memory&cache=shared", client)
	ctx := context.Background()

	f.track(t, 1, 1001)
	f.track(t, 1, 1002)
	f.track(t, 2, 1001) // second subscriber, same product

	summary, err := f.pipeline.RunDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, summary.Due)
	require.Equal(t, 2, summary.Processed)
	require.Zero(t, summary.Missing)
	require.Zero(t, summary.Failed)

	now := f.clock.Now()
	for _, accountID := range []snowflake.ID{1, 2} {
		item, err := f.items.FindTracked(ctx, f.db, accountID, 1001)
		require.NoError(t, err)
		require.NotNil(t, item.LastRunAt)
		require.True(t, item.LastRunAt.Equal(now))
		require.NotNil(t, item.NextDueAt)
		require.False(t, item.NextDueAt.Before(now.Add(24*time.Hour)))
		require.True(t, item.NextDueAt.Before(now.Add(24*time.Hour+30*time.Minute)))
	}

	var count int64
	require.NoError(t, f.db.Model(&snapshotdomain.ProductSnapshot{}).Count(&count).Error)
	require.EqualValues(t, 2, count)

	var snap snapshotdomain.ProductSnapshot
	require.NoError(t, f.db.Where("product_id = ?", 1001).First(&snap).Error)
	require.Equal(t, snapshotdomain.DemandSourceMeasured, snap.WeeklyDemandSource)
	require.Greater(t, snap.Score, 0.0)

	// nothing is due anymore
	summary, err = f.pipeline.RunDue(ctx)
	require.NoError(t, err)
	require.Zero(t, summary.Due)
}

func TestRunDueFetchErrorUsesFailureSchedule(t *testing.T) {
	client := &fakeClient{errs: map[int64]error{
		2001: errors.New("upstream 500"),
	}}
	f := newFixture(t, "file:reanalysis_fail?mode=memory&cache=shared", client)
	ctx := context.Background()

	f.track(t, 1, 2001)

	// a transient per-product failure does not fail the sweep invocation
	summary, err := f.pipeline.RunDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Zero(t, summary.Processed)

	item, findErr := f.items.FindTracked(ctx, f.db, 1, 2001)
	require.NoError(t, findErr)
	require.NotNil(t, item.NextDueAt)
	require.True(t, item.NextDueAt.Equal(f.clock.Now().Add(6*time.Hour)))
}

func TestRunDueFetchErrorDoesNotMaskHealthyItems(t *testing.T) {
	client := &fakeClient{
		details: map[int64]*marketdomain.DetailRecord{
			2101: detail(2101, 310, 18),
		},
		errs: map[int64]error{
			2102: errors.New("upstream 500"),
		},
	}
	f := newFixture(t, "file:reanalysis_mixed?mode=memory&cache=shared", client)
	ctx := context.Background()

	f.track(t, 1, 2101)
	f.track(t, 1, 2102)

	summary, err := f.pipeline.RunDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 1, summary.Failed)
}

func TestDedupeLeavesInputIntact(t *testing.T) {
	ids := []int64{7, 7, 8, 9, 8}

	out := dedupe(ids)
	require.Equal(t, []int64{7, 8, 9}, out)
	require.Equal(t, []int64{7, 7, 8, 9, 8}, ids)
}

func TestRunDueMissingProductUsesFailureSchedule(t *testing.T) {
	client := &fakeClient{}
	f := newFixture(t, "file:reanalysis_missing?mode=memory&cache=shared", client)
	ctx := context.Background()

	f.track(t, 1, 3001)

	summary, err := f.pipeline.RunDue(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, summary.Missing)
	require.Zero(t, summary.Processed)

	item, findErr := f.items.FindTracked(ctx, f.db, 1, 3001)
	require.NoError(t, findErr)
	require.NotNil(t, item.NextDueAt)
	require.True(t, item.NextDueAt.Equal(f.clock.Now().Add(6*time.Hour)))

	var count int64
	require.NoError(t, f.db.Model(&snapshotdomain.ProductSnapshot{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestAnalyzeProduct(t *testing.T) {
	client := &fakeClient{details: map[int64]*marketdomain.DetailRecord{
		4001: detail(4001, 300, 21),
	}}
	f := newFixture(t, "file:reanalysis_analyze?mode=memory&cache=shared", client)
	ctx := context.Background()

	f.track(t, 1, 4001)

	snap, err := f.pipeline.AnalyzeProduct(ctx, 4001)
	require.NoError(t, err)
	require.NotNil(t, snap)
	require.Equal(t, snapshotdomain.DemandSourceMeasured, snap.WeeklyDemandSource)
	require.NotNil(t, snap.WeeklyDemand)
	require.Equal(t, 21.0, *snap.WeeklyDemand)

	product, err := f.items.FindProduct(ctx, f.db, 4001)
	require.NoError(t, err)
	require.NotNil(t, product)
	require.Equal(t, "Test Product", product.Title)
}

func TestAnalyzeProductNotFound(t *testing.T) {
	client := &fakeClient{}
	f := newFixture(t, "file:reanalysis_analyze_missing?mode=memory&cache=shared", client)

	f.track(t, 1, 5001)

	_, err := f.pipeline.AnalyzeProduct(context.Background(), 5001)
	require.ErrorIs(t, err, marketdomain.ErrNotFound)
}
