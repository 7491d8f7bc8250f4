package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, snap *ProductSnapshot) error

	// Latest returns the most recent snapshot for a product, nil when none.
	Latest(ctx context.Context, db *gorm.DB, productID int64) (*ProductSnapshot, error)

	// LatestWithDemand returns the most recent snapshot carrying a non-null
	// weekly demand, nil when none.
	LatestWithDemand(ctx context.Context, db *gorm.DB, productID int64) (*ProductSnapshot, error)

	History(ctx context.Context, db *gorm.DB, productID int64, limit int) ([]*ProductSnapshot, error)
}
