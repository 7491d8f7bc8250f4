package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Weekly demand provenance. Measured values come straight from the
// marketplace counter, derived values are extrapolated from the orders delta
// between two snapshots, carried values repeat the last known figure when the
// delta is unusable.
const (
	DemandSourceMeasured       = "measured"
	DemandSourceDerived        = "derived"
	DemandSourceCarriedForward = "carried_forward"
)

type ProductSnapshot struct {
	ID                 snowflake.ID `json:"id" gorm:"column:id;primaryKey"`
	ProductID          int64        `json:"product_id" gorm:"column:product_id"`
	SnapshotAt         time.Time    `json:"snapshot_at" gorm:"column:snapshot_at"`
	OrdersQuantity     int64        `json:"orders_quantity" gorm:"column:orders_quantity"`
	WeeklyDemand       *float64     `json:"weekly_demand" gorm:"column:weekly_demand"`
	WeeklyDemandSource string       `json:"weekly_demand_source" gorm:"column:weekly_demand_source"`
	Rating             float64      `json:"rating" gorm:"column:rating"`
	ReviewCount        int64        `json:"review_count" gorm:"column:review_count"`
	AvailableAmount    int64        `json:"available_amount" gorm:"column:available_amount"`
	MinSellPrice       float64      `json:"min_sell_price" gorm:"column:min_sell_price"`
	Score              float64      `json:"score" gorm:"column:score"`
}

func (ProductSnapshot) TableName() string {
	return "product_snapshots"
}
