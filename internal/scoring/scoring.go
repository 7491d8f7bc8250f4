package scoring

import (
	"math"

	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/marketplace/domain"
)

// Input carries the signals a product is scored on.
type Input struct {
	WeeklyDemand   *float64
	LifetimeOrders int64
	Rating         float64
	SupplyPressure float64
}

// Engine computes the momentum-first product score. Coefficients come from
// the hot-reloadable policy so weight changes need no redeploy.
type Engine struct {
	policy *config.PolicyHolder
}

func NewEngine(policy *config.PolicyHolder) *Engine {
	return &Engine{policy: policy}
}

// Score implements
//
//	score = wdW*ln(1+weekly_demand) + loW*ln(1+lifetime_orders) + rW*rating + spW*supply_pressure
//
// A missing weekly demand contributes zero rather than poisoning the score.
func (e *Engine) Score(input Input) float64 {
	p := e.policy.Get().Scoring

	weeklyDemand := 0.0
	if input.WeeklyDemand != nil && *input.WeeklyDemand > 0 {
		weeklyDemand = *input.WeeklyDemand
	}
	lifetimeOrders := float64(input.LifetimeOrders)
	if lifetimeOrders < 0 {
		lifetimeOrders = 0
	}

	return p.WeeklyDemandWeight*math.Log(1+weeklyDemand) +
		p.LifetimeOrdersWeight*math.Log(1+lifetimeOrders) +
		p.RatingWeight*input.Rating +
		p.SupplyPressureWeight*input.SupplyPressure
}

// SupplyPressure maps a stock type to its pressure weight. FBO stock is a
// stronger commitment signal than FBS.
func (e *Engine) SupplyPressure(stockType string) float64 {
	p := e.policy.Get().Scoring
	if stockType == domain.StockTypeFBO {
		return p.SupplyPressureFBO
	}
	return p.SupplyPressureFBS
}
