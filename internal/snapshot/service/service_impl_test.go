package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/snapshot/domain"
	"github.com/bozorlab/marketpulse/internal/snapshot/repository"
)

func newTestService(t *testing.T, dsn string) (domain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.ProductSnapshot{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := New(Params{
		Log:    zap.NewNop(),
		GenID:  node,
		Policy: config.NewStaticPolicyHolder(config.DefaultPolicyConfig()),
		Repo:   repository.Provide(),
	})
	return svc, db
}

func floatPtr(v float64) *float64 { return &v }

func TestRecordMeasuredDemandWins(t *testing.T) {
	svc, db := newTestService(t, "file:snapshot_measured?mode=memory&cache=shared")
	ctx := context.Background()
	at := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	snap, written, err := svc.Record(ctx, db, domain.RecordInput{
		ProductID:            101,
		OrdersQuantity:       100,
		MeasuredWeeklyDemand: floatPtr(42),
		Rating:               4.8,
		At:                   at,
	})
	require.NoError(t, err)
	require.True(t, written)
	require.Equal(t, domain.DemandSourceMeasured, snap.WeeklyDemandSource)
	require.NotNil(t, snap.WeeklyDemand)
	require.Equal(t, 42.0, *snap.WeeklyDemand)
}

func TestRecordDerivesDemandFromOrdersDelta(t *testing.T) {
	svc, db := newTestService(t, "file:snapshot_derived?mode=memory&cache=shared")
	ctx := context.Background()
	t0 := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	_, written, err := svc.Record(ctx, db, domain.RecordInput{
		ProductID:      202,
		OrdersQuantity: 100,
		At:             t0,
	})
	require.NoError(t, err)
	require.True(t, written)

	snap, written, err := svc.Record(ctx, db, domain.RecordInput{
		ProductID:      202,
		OrdersQuantity: 170,
		At:             t0.Add(7 * 24 * time.Hour),
	})
	require.NoError(t, err)
	require.True(t, written)
	require.Equal(t, domain.DemandSourceDerived, snap.WeeklyDemandSource)
	require.NotNil(t, snap.WeeklyDemand)
	require.InDelta(t, 70.0, *snap.WeeklyDemand, 1e-9)
}

func TestRecordDedupsWithinMinGap(t *testing.T) {
	svc, db := newTestService(t, "file:snapshot_dedup?mode=memory&cache=shared")
	ctx := context.Background()
	t0 := time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)

	first, written, err := svc.Record(ctx, db, domain.RecordInput{
		ProductID:      303,
		OrdersQuantity: 10,
		At:             t0,
	})
	require.NoError(t, err)
	require.True(t, written)

	again, written, err := svc.Record(ctx, db, domain.RecordInput{
		ProductID:      303,
		OrdersQuantity: 11,
		At:             t0.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	require.False(t, written)
	require.Equal(t, first.ID, again.ID)

	history, err := svc.History(ctx, db, 303, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)

	later, written, err := svc.Record(ctx, db, domain.RecordInput{
		ProductID:      303,
		OrdersQuantity: 12,
		At:             t0.Add(6 * time.Minute),
	})
	require.NoError(t, err)
	require.True(t, written)
	require.NotEqual(t, first.ID, later.ID)
}

func TestRecordCarriesForwardOnNegativeDelta(t *testing.T) {
	svc, db := newTestService(t, "file:snapshot_carry?mode=memory&cache=shared")
	ctx := context.Background()
	t0 := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	_, _, err := svc.Record(ctx, db, domain.RecordInput{
		ProductID:            404,
		OrdersQuantity:       500,
		MeasuredWeeklyDemand: floatPtr(50),
		At:                   t0,
	})
	require.NoError(t, err)

	// the marketplace counter went backwards, the delta is not trusted
	snap, written, err := svc.Record(ctx, db, domain.RecordInput{
		ProductID:      404,
		OrdersQuantity: 480,
		At:             t0.Add(24 * time.Hour),
	})
	require.NoError(t, err)
	require.True(t, written)
	require.Equal(t, domain.DemandSourceCarriedForward, snap.WeeklyDemandSource)
	require.NotNil(t, snap.WeeklyDemand)
	require.Equal(t, 50.0, *snap.WeeklyDemand)
}

func TestRecordNilDemandWithNoHistory(t *testing.T) {
	svc, db := newTestService(t, "file:snapshot_nil?mode=memory&cache=shared")
	ctx := context.Background()

	snap, written, err := svc.Record(ctx, db, domain.RecordInput{
		ProductID:      505,
		OrdersQuantity: 3,
		At:             time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	require.True(t, written)
	require.Nil(t, snap.WeeklyDemand)
	require.Equal(t, domain.DemandSourceCarriedForward, snap.WeeklyDemandSource)
}

func TestHistoryNewestFirst(t *testing.T) {
	svc, db := newTestService(t, "file:snapshot_history?mode=memory&cache=shared")
	ctx := context.Background()
	t0 := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, written, err := svc.Record(ctx, db, domain.RecordInput{
			ProductID:      606,
			OrdersQuantity: int64(100 + i),
			At:             t0.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
		require.True(t, written)
	}

	history, err := svc.History(ctx, db, 606, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.True(t, history[0].SnapshotAt.After(history[1].SnapshotAt))
}
