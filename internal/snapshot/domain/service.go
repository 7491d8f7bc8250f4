package domain

import (
	"context"
	"time"

	"gorm.io/gorm"
)

// RecordInput is one observation of a product taken from the marketplace.
// MeasuredWeeklyDemand carries the counter the marketplace itself exposes;
// when it is nil the recorder derives or carries a value from history.
type RecordInput struct {
	ProductID            int64
	OrdersQuantity       int64
	MeasuredWeeklyDemand *float64
	Rating               float64
	ReviewCount          int64
	AvailableAmount      int64
	MinSellPrice         float64
	Score                float64
	At                   time.Time
}

type Service interface {
	// Record persists a snapshot unless one was taken too recently. The bool
	// reports whether a row was written; when false the returned snapshot is
	// the recent one that suppressed the write.
	Record(ctx context.Context, db *gorm.DB, in RecordInput) (*ProductSnapshot, bool, error)

	// ResolveWeeklyDemand computes the weekly demand a snapshot at the given
	// observation would carry, without writing anything.
	ResolveWeeklyDemand(ctx context.Context, db *gorm.DB, in RecordInput) (*float64, string, error)

	History(ctx context.Context, db *gorm.DB, productID int64, limit int) ([]*ProductSnapshot, error)
}
