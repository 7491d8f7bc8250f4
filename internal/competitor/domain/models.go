package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

const RuleTypePriceDrop = "PRICE_DROP"

// CompetitorTracking pairs one owner's item with a competitor listing whose
// price is worth watching.
type CompetitorTracking struct {
	ID                  snowflake.ID `json:"id" gorm:"column:id;primaryKey"`
	AccountID           snowflake.ID `json:"account_id" gorm:"column:account_id"`
	ProductID           int64        `json:"product_id" gorm:"column:product_id"`
	CompetitorProductID int64        `json:"competitor_product_id" gorm:"column:competitor_product_id"`
	IsActive            bool         `json:"is_active" gorm:"column:is_active"`
	CreatedAt           time.Time    `json:"created_at" gorm:"column:created_at"`
}

func (CompetitorTracking) TableName() string { return "competitor_trackings" }

// CompetitorPriceSnapshot is a dense price series entry; unlike product
// snapshots there is no minimum gap.
type CompetitorPriceSnapshot struct {
	ID         snowflake.ID `json:"id" gorm:"column:id;primaryKey"`
	TrackingID snowflake.ID `json:"tracking_id" gorm:"column:tracking_id"`
	SellPrice  float64      `json:"sell_price" gorm:"column:sell_price"`
	SnapshotAt time.Time    `json:"snapshot_at" gorm:"column:snapshot_at"`
}

func (CompetitorPriceSnapshot) TableName() string { return "competitor_price_snapshots" }

type AlertRule struct {
	ID           snowflake.ID `json:"id" gorm:"column:id;primaryKey"`
	AccountID    snowflake.ID `json:"account_id" gorm:"column:account_id"`
	ProductID    int64        `json:"product_id" gorm:"column:product_id"`
	RuleType     string       `json:"rule_type" gorm:"column:rule_type"`
	ThresholdPct float64      `json:"threshold_pct" gorm:"column:threshold_pct"`
	IsActive     bool         `json:"is_active" gorm:"column:is_active"`
	CreatedAt    time.Time    `json:"created_at" gorm:"column:created_at"`
}

func (AlertRule) TableName() string { return "alert_rules" }

type AlertEvent struct {
	ID        snowflake.ID   `json:"id" gorm:"column:id;primaryKey"`
	RuleID    snowflake.ID   `json:"rule_id" gorm:"column:rule_id"`
	ProductID int64          `json:"product_id" gorm:"column:product_id"`
	Message   string         `json:"message" gorm:"column:message"`
	Details   datatypes.JSON `json:"details" gorm:"column:details"`
	CreatedAt time.Time      `json:"created_at" gorm:"column:created_at"`
}

// AlertDetails is the structured payload behind AlertEvent.Details.
type AlertDetails struct {
	CompetitorProductID int64   `json:"competitor_product_id"`
	PrevPrice           float64 `json:"prev_price"`
	NewPrice            float64 `json:"new_price"`
	DropPct             float64 `json:"drop_pct"`
}

func (AlertEvent) TableName() string { return "alert_events" }
