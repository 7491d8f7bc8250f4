package marketplace

import (
	"context"

	"github.com/bozorlab/marketpulse/internal/marketplace/domain"
)

// Client fetches marketplace data. Implementations own transport concerns;
// callers only see typed records.
type Client interface {
	// FetchDetail returns the current detail record for a product, or
	// domain.ErrNotFound when the marketplace does not know the id.
	FetchDetail(ctx context.Context, productID int64) (*domain.DetailRecord, error)

	// SearchCategory lists catalog cards for a category, best-ranked first,
	// up to limit entries.
	SearchCategory(ctx context.Context, categoryID int64, limit int) ([]domain.CatalogCard, error)
}
