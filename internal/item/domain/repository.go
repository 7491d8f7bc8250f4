package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	UpsertProduct(ctx context.Context, db *gorm.DB, product *Product) error
	FindProduct(ctx context.Context, db *gorm.DB, externalID int64) (*Product, error)

	InsertTracked(ctx context.Context, db *gorm.DB, item *TrackedItem) error
	FindTracked(ctx context.Context, db *gorm.DB, accountID snowflake.ID, productID int64) (*TrackedItem, error)
	SetTrackedActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error

	// ListDue returns active items whose next_due_at is unset or has passed,
	// never-run items first, capped at limit.
	ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*TrackedItem, error)

	// MarkRun records a completed run and the next due time for every
	// subscription of the product.
	MarkRun(ctx context.Context, db *gorm.DB, productID int64, ranAt time.Time, nextDueAt time.Time) error
}
