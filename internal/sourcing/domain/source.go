package domain

import "context"

// OfferInput is a raw listing returned by a supplier platform, before any
// relevance or cost staging.
type OfferInput struct {
	Title       string
	Price       float64
	Currency    string
	OfferURL    string
	StoreName   string
	StoreRating float64
	WeightKg    float64
}

// Source is one supplier platform. Sources are fanned out in parallel; a
// failing source degrades the result set instead of failing the job.
type Source interface {
	Name() string

	// Origin is the cargo corridor the platform ships from (CN, EU).
	Origin() string

	Search(ctx context.Context, query string, limit int) ([]OfferInput, error)
}
