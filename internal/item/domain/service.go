package domain

import (
	"context"
	"errors"
)

var (
	ErrInvalidAccount = errors.New("item: account id is required")
	ErrInvalidProduct = errors.New("item: product id is required")
	ErrNotTracked     = errors.New("item: product is not tracked")
)

type TrackRequest struct {
	ProductID int64 `json:"product_id"`
}

type Service interface {
	// Track subscribes the account to a product, creating the shared product
	// row from live marketplace data on first sight. Re-tracking an inactive
	// subscription reactivates it.
	Track(ctx context.Context, req TrackRequest) (TrackedItem, error)

	// Untrack deactivates the subscription. Snapshots are kept.
	Untrack(ctx context.Context, productID int64) error

	// Tracked returns the account's subscription for a product.
	Tracked(ctx context.Context, productID int64) (*TrackedItem, error)
}
