package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Product is the shared marketplace item record. The primary key is the
// marketplace's own id, so every owner tracking the same item shares one row.
type Product struct {
	ExternalID      int64     `gorm:"column:external_id;primaryKey" json:"external_id"`
	Title           string    `gorm:"not null" json:"title"`
	Rating          float64   `gorm:"not null" json:"rating"`
	ReviewCount     int64     `gorm:"not null" json:"review_count"`
	OrdersQuantity  int64     `gorm:"not null" json:"orders_quantity"`
	AvailableAmount int64     `gorm:"not null" json:"available_amount"`
	MinSellPrice    float64   `gorm:"not null" json:"min_sell_price"`
	StockType       string    `gorm:"not null" json:"stock_type"`
	CategoryID      int64     `gorm:"not null" json:"category_id"`
	CreatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt       time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Product) TableName() string { return "products" }

// TrackedItem is one owner's subscription to a product's reanalysis cycle.
type TrackedItem struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID `gorm:"not null;index" json:"account_id"`
	ProductID int64        `gorm:"not null" json:"product_id"`
	IsActive  bool         `gorm:"not null;default:true" json:"is_active"`
	LastRunAt *time.Time   `json:"last_run_at,omitempty"`
	NextDueAt *time.Time   `json:"next_due_at,omitempty"`
	CreatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time    `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (TrackedItem) TableName() string { return "tracked_items" }
