package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Run lifecycle. A run is accepted as PENDING and only ever finishes in a
// terminal status; callers poll for it.
const (
	RunStatusPending = "PENDING"
	RunStatusRunning = "RUNNING"
	RunStatusDone    = "DONE"
	RunStatusFailed  = "FAILED"
)

type CategoryRun struct {
	ID              snowflake.ID `json:"id" gorm:"column:id;primaryKey"`
	AccountID       snowflake.ID `json:"account_id" gorm:"column:account_id"`
	CategoryID      int64        `json:"category_id" gorm:"column:category_id"`
	Topic           string       `json:"topic" gorm:"column:topic"`
	Status          string       `json:"status" gorm:"column:status"`
	TotalCandidates int          `json:"total_candidates" gorm:"column:total_candidates"`
	Processed       int          `json:"processed" gorm:"column:processed"`
	Error           string       `json:"error" gorm:"column:error"`
	StartedAt       *time.Time   `json:"started_at,omitempty" gorm:"column:started_at"`
	FinishedAt      *time.Time   `json:"finished_at,omitempty" gorm:"column:finished_at"`
	CreatedAt       time.Time    `json:"created_at" gorm:"column:created_at"`
}

func (CategoryRun) TableName() string { return "category_runs" }

// CategoryWinner is one ranked discovery result. Rows are immutable; a rerun
// produces a new run with its own winners.
type CategoryWinner struct {
	ID             snowflake.ID `json:"id" gorm:"column:id;primaryKey"`
	RunID          snowflake.ID `json:"run_id" gorm:"column:run_id"`
	ProductID      int64        `json:"product_id" gorm:"column:product_id"`
	Rank           int          `json:"rank" gorm:"column:rank"`
	Score          float64      `json:"score" gorm:"column:score"`
	WeeklyDemand   *float64     `json:"weekly_demand" gorm:"column:weekly_demand"`
	OrdersQuantity int64        `json:"orders_quantity" gorm:"column:orders_quantity"`
	SellPrice      float64      `json:"sell_price" gorm:"column:sell_price"`
	CreatedAt      time.Time    `json:"created_at" gorm:"column:created_at"`
}

func (CategoryWinner) TableName() string { return "category_winners" }
