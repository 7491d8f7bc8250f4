package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

const (
	JobStatusPending = "PENDING"
	JobStatusRunning = "RUNNING"
	JobStatusDone    = "DONE"
	JobStatusFailed  = "FAILED"
)

// SourcingJob is one supplier search. ProductID optionally links the job to
// a marketplace item whose sell price anchors the margin math.
type SourcingJob struct {
	ID         snowflake.ID `json:"id" gorm:"column:id;primaryKey"`
	AccountID  snowflake.ID `json:"account_id" gorm:"column:account_id"`
	ProductID  *int64       `json:"product_id,omitempty" gorm:"column:product_id"`
	Query      string       `json:"query" gorm:"column:query"`
	Status     string       `json:"status" gorm:"column:status"`
	Error      string       `json:"error" gorm:"column:error"`
	StartedAt  *time.Time   `json:"started_at,omitempty" gorm:"column:started_at"`
	FinishedAt *time.Time   `json:"finished_at,omitempty" gorm:"column:finished_at"`
	CreatedAt  time.Time    `json:"created_at" gorm:"column:created_at"`
}

func (SourcingJob) TableName() string { return "sourcing_jobs" }

// SourcingOffer is one supplier listing. The staged fields (relevance, cost,
// rank) start null and are overwritten idempotently as the pipeline advances;
// an offer below the relevance cutoff keeps its row but never gets a rank.
type SourcingOffer struct {
	ID             snowflake.ID `json:"id" gorm:"column:id;primaryKey"`
	JobID          snowflake.ID `json:"job_id" gorm:"column:job_id"`
	Source         string       `json:"source" gorm:"column:source"`
	Title          string       `json:"title" gorm:"column:title"`
	Price          float64      `json:"price" gorm:"column:price"`
	Currency       string       `json:"currency" gorm:"column:currency"`
	OfferURL       string       `json:"offer_url" gorm:"column:offer_url"`
	StoreName      string       `json:"store_name" gorm:"column:store_name"`
	StoreRating    float64      `json:"store_rating" gorm:"column:store_rating"`
	WeightKg       float64      `json:"weight_kg" gorm:"column:weight_kg"`
	ShippingDays   int          `json:"shipping_days" gorm:"column:shipping_days"`
	RelevanceScore *float64     `json:"relevance_score" gorm:"column:relevance_score"`
	LandedCost     *float64     `json:"landed_cost" gorm:"column:landed_cost"`
	Margin         *float64     `json:"margin" gorm:"column:margin"`
	ROI            *float64     `json:"roi" gorm:"column:roi"`
	Rank           *int         `json:"rank" gorm:"column:rank"`
	CreatedAt      time.Time    `json:"created_at" gorm:"column:created_at"`
}

func (SourcingOffer) TableName() string { return "sourcing_offers" }

// CargoProvider is a shipping lane from a supplier region to Uzbekistan.
// RatePerKg is USD.
type CargoProvider struct {
	ID           snowflake.ID `json:"id" gorm:"column:id;primaryKey"`
	Name         string       `json:"name" gorm:"column:name"`
	Origin       string       `json:"origin" gorm:"column:origin"`
	Method       string       `json:"method" gorm:"column:method"`
	RatePerKg    float64      `json:"rate_per_kg" gorm:"column:rate_per_kg"`
	DeliveryDays int          `json:"delivery_days" gorm:"column:delivery_days"`
	IsActive     bool         `json:"is_active" gorm:"column:is_active"`
}

func (CargoProvider) TableName() string { return "cargo_providers" }
