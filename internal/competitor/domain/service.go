package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidAccount = errors.New("competitor: account id missing or invalid")
	ErrInvalidProduct = errors.New("competitor: product ids must be positive")
	ErrNotTracking    = errors.New("competitor: tracking not found")
)

type TrackRequest struct {
	ProductID           int64 `json:"product_id"`
	CompetitorProductID int64 `json:"competitor_product_id"`
}

type CreateRuleRequest struct {
	ProductID    int64   `json:"product_id"`
	ThresholdPct float64 `json:"threshold_pct"`
}

// SweepSummary reports one monitoring pass over all active trackings.
type SweepSummary struct {
	Trackings int `json:"trackings"`
	Snapshots int `json:"snapshots"`
	Alerts    int `json:"alerts"`
	Failed    int `json:"failed"`
}

type Service interface {
	Track(ctx context.Context, req TrackRequest) (*CompetitorTracking, error)
	Untrack(ctx context.Context, req TrackRequest) error

	CreateRule(ctx context.Context, req CreateRuleRequest) (*AlertRule, error)
	Alerts(ctx context.Context, limit int) ([]*AlertEvent, error)

	// Sweep snapshots every active tracking and emits price-drop alerts where
	// an active rule demands one. Worker-side entry point; it runs across all
	// accounts.
	Sweep(ctx context.Context) (SweepSummary, error)
}
