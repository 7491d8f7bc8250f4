package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/bozorlab/marketpulse/internal/item/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) UpsertProduct(ctx context.Context, db *gorm.DB, product *domain.Product) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO products (external_id, title, rating, review_count, orders_quantity, available_amount, min_sell_price, stock_type, category_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (external_id) DO UPDATE SET
		   title = excluded.title,
		   rating = excluded.rating,
		   review_count = excluded.review_count,
		   orders_quantity = excluded.orders_quantity,
		   available_amount = excluded.available_amount,
		   min_sell_price = excluded.min_sell_price,
		   stock_type = excluded.stock_type,
		   category_id = excluded.category_id,
		   updated_at = excluded.updated_at`,
		product.ExternalID,
		product.Title,
		product.Rating,
		product.ReviewCount,
		product.OrdersQuantity,
		product.AvailableAmount,
		product.MinSellPrice,
		product.StockType,
		product.CategoryID,
		product.CreatedAt,
		product.UpdatedAt,
	).Error
}

func (r *repo) FindProduct(ctx context.Context, db *gorm.DB, externalID int64) (*domain.Product, error) {
	var product domain.Product
	err := db.WithContext(ctx).Raw(
		`SELECT external_id, title, rating, review_count, orders_quantity, available_amount, min_sell_price, stock_type, category_id, created_at, updated_at
		 FROM products WHERE external_id = ?`,
		externalID,
	).Scan(&product).Error
	if err != nil {
		return nil, err
	}
	if product.ExternalID == 0 {
		return nil, nil
	}
	return &product, nil
}

func (r *repo) InsertTracked(ctx context.Context, db *gorm.DB, item *domain.TrackedItem) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO tracked_items (id, account_id, product_id, is_active, last_run_at, next_due_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		item.AccountID,
		item.ProductID,
		item.IsActive,
		item.LastRunAt,
		item.NextDueAt,
		item.CreatedAt,
		item.UpdatedAt,
	).Error
}

func (r *repo) FindTracked(ctx context.Context, db *gorm.DB, accountID snowflake.ID, productID int64) (*domain.TrackedItem, error) {
	var item domain.TrackedItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, product_id, is_active, last_run_at, next_due_at, created_at, updated_at
		 FROM tracked_items WHERE account_id = ? AND product_id = ?`,
		accountID,
		productID,
	).Scan(&item).Error
	if err != nil {
		return nil, err
	}
	if item.ID == 0 {
		return nil, nil
	}
	return &item, nil
}

func (r *repo) SetTrackedActive(ctx context.Context, db *gorm.DB, id snowflake.ID, active bool) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tracked_items SET is_active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		active,
		id,
	).Error
}

func (r *repo) ListDue(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]*domain.TrackedItem, error) {
	var items []*domain.TrackedItem
	err := db.WithContext(ctx).Raw(
		`SELECT id, account_id, product_id, is_active, last_run_at, next_due_at, created_at, updated_at
		 FROM tracked_items
		 WHERE is_active AND (next_due_at IS NULL OR next_due_at <= ?)
		 ORDER BY next_due_at ASC NULLS FIRST
		 LIMIT ?`,
		now,
		limit,
	).Scan(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) MarkRun(ctx context.Context, db *gorm.DB, productID int64, ranAt time.Time, nextDueAt time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE tracked_items SET last_run_at = ?, next_due_at = ?, updated_at = CURRENT_TIMESTAMP
		 WHERE product_id = ? AND is_active`,
		ranAt,
		nextDueAt,
		productID,
	).Error
}
