package currency

import (
	"time"
)

// Rate is one cached conversion entry. Rates are stored against UZS, the
// marketplace's settlement currency.
type Rate struct {
	FromCode  string    `json:"from_code" gorm:"column:from_code;primaryKey"`
	ToCode    string    `json:"to_code" gorm:"column:to_code;primaryKey"`
	Rate      float64   `json:"rate" gorm:"column:rate"`
	UpdatedAt time.Time `json:"updated_at" gorm:"column:updated_at"`
}

func (Rate) TableName() string { return "currency_rates" }

const codeUZS = "UZS"

// maxRateAge is how stale a cached rate may get before a refresh is attempted.
const maxRateAge = 24 * time.Hour

// fallbackToUZS keeps cost math alive when both the cache and the central
// bank are unavailable.
var fallbackToUZS = map[string]float64{
	"USD": 12900,
}
