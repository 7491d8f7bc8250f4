package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/bozorlab/marketpulse/internal/snapshot/domain"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

const snapshotColumns = `id, product_id, snapshot_at, orders_quantity, weekly_demand, weekly_demand_source, rating, review_count, available_amount, min_sell_price, score`

func (r *repo) Insert(ctx context.Context, db *gorm.DB, snap *domain.ProductSnapshot) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO product_snapshots (`+snapshotColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID,
		snap.ProductID,
		snap.SnapshotAt,
		snap.OrdersQuantity,
		snap.WeeklyDemand,
		snap.WeeklyDemandSource,
		snap.Rating,
		snap.ReviewCount,
		snap.AvailableAmount,
		snap.MinSellPrice,
		snap.Score,
	).Error
}

func (r *repo) Latest(ctx context.Context, db *gorm.DB, productID int64) (*domain.ProductSnapshot, error) {
	var snap domain.ProductSnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT `+snapshotColumns+`
		 FROM product_snapshots
		 WHERE product_id = ?
		 ORDER BY snapshot_at DESC
		 LIMIT 1`,
		productID,
	).Scan(&snap).Error
	if err != nil {
		return nil, err
	}
	if snap.ID == 0 {
		return nil, nil
	}
	return &snap, nil
}

func (r *repo) LatestWithDemand(ctx context.Context, db *gorm.DB, productID int64) (*domain.ProductSnapshot, error) {
	var snap domain.ProductSnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT `+snapshotColumns+`
		 FROM product_snapshots
		 WHERE product_id = ? AND weekly_demand IS NOT NULL
		 ORDER BY snapshot_at DESC
		 LIMIT 1`,
		productID,
	).Scan(&snap).Error
	if err != nil {
		return nil, err
	}
	if snap.ID == 0 {
		return nil, nil
	}
	return &snap, nil
}

func (r *repo) History(ctx context.Context, db *gorm.DB, productID int64, limit int) ([]*domain.ProductSnapshot, error) {
	var snaps []*domain.ProductSnapshot
	err := db.WithContext(ctx).Raw(
		`SELECT `+snapshotColumns+`
		 FROM product_snapshots
		 WHERE product_id = ?
		 ORDER BY snapshot_at DESC
		 LIMIT ?`,
		productID,
		limit,
	).Scan(&snaps).Error
	if err != nil {
		return nil, err
	}
	return snaps, nil
}
