package domain

import "errors"

// Stock fulfillment types. FBO stock ships from the marketplace warehouse,
// FBS from the seller.
const (
	StockTypeFBO = "FBO"
	StockTypeFBS = "FBS"
)

// ErrNotFound reports that the marketplace has no such product.
var ErrNotFound = errors.New("marketplace: product not found")

// DetailRecord is the typed boundary for a product detail fetch.
type DetailRecord struct {
	ExternalID      int64
	Title           string
	Rating          float64
	ReviewCount     int64
	OrdersQuantity  int64
	WeeklyDemand    *float64
	AvailableAmount int64
	MinSellPrice    float64
	StockType       string
	CategoryID      int64
}

// CatalogCard is a lightweight listing entry from category search.
type CatalogCard struct {
	ProductID      int64
	Title          string
	Rating         float64
	ReviewCount    int64
	OrdersQuantity int64
	MinSellPrice   float64
	StockType      string
}
