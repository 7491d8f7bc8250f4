package scoring

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bozorlab/marketpulse/internal/config"
	"github.com/bozorlab/marketpulse/internal/marketplace/domain"
)

func newTestEngine() *Engine {
	return NewEngine(config.NewStaticPolicyHolder(config.DefaultPolicyConfig()))
}

func floatPtr(v float64) *float64 { return &v }

func TestScoreMatchesFormula(t *testing.T) {
	engine := newTestEngine()

	score := engine.Score(Input{
		WeeklyDemand:   floatPtr(70),
		LifetimeOrders: 1000,
		Rating:         4.8,
		SupplyPressure: 1.0,
	})

	want := 0.55*math.Log(71) + 0.25*math.Log(1001) + 0.10*4.8 + 0.10*1.0
	require.InDelta(t, want, score, 1e-9)
}

func TestScoreNilWeeklyDemandContributesZero(t *testing.T) {
	engine := newTestEngine()

	withNil := engine.Score(Input{LifetimeOrders: 500, Rating: 4, SupplyPressure: 0.5})
	withZero := engine.Score(Input{WeeklyDemand: floatPtr(0), LifetimeOrders: 500, Rating: 4, SupplyPressure: 0.5})
	require.Equal(t, withZero, withNil)
}

func TestScoreMonotonicInEachSignal(t *testing.T) {
	engine := newTestEngine()
	base := Input{WeeklyDemand: floatPtr(10), LifetimeOrders: 100, Rating: 4, SupplyPressure: 0.5}
	baseScore := engine.Score(base)

	moreDemand := base
	moreDemand.WeeklyDemand = floatPtr(20)
	require.Greater(t, engine.Score(moreDemand), baseScore)

	moreOrders := base
	moreOrders.LifetimeOrders = 200
	require.Greater(t, engine.Score(moreOrders), baseScore)

	betterRating := base
	betterRating.Rating = 4.5
	require.Greater(t, engine.Score(betterRating), baseScore)

	fboPressure := base
	fboPressure.SupplyPressure = 1.0
	require.Greater(t, engine.Score(fboPressure), baseScore)
}

func TestScoreStaysFiniteOnExtremes(t *testing.T) {
	engine := newTestEngine()

	score := engine.Score(Input{
		WeeklyDemand:   floatPtr(1e12),
		LifetimeOrders: math.MaxInt64,
		Rating:         5,
		SupplyPressure: 1,
	})
	require.False(t, math.IsNaN(score))
	require.False(t, math.IsInf(score, 0))

	negative := engine.Score(Input{WeeklyDemand: floatPtr(-5), LifetimeOrders: -10})
	require.False(t, math.IsNaN(negative))
}

func TestSupplyPressure(t *testing.T) {
	engine := newTestEngine()
	require.Equal(t, 1.0, engine.SupplyPressure(domain.StockTypeFBO))
	require.Equal(t, 0.5, engine.SupplyPressure(domain.StockTypeFBS))
	require.Equal(t, 0.5, engine.SupplyPressure(""))
}
