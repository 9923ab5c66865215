package fare

import (
	"math"

	"github.com/example/trip-dispatch/internal/models"
)

// Pricing holds the per-category rate card.
type Pricing struct {
	BaseFare      float64
	CostPerKm     float64
	CostPerMinute float64
}

// DefaultPricing mirrors the production rate cards. Unknown categories
// fall back to the bakkie row.
var DefaultPricing = map[models.VehicleCategory]Pricing{
	models.VehicleMotorbike:  {BaseFare: 50, CostPerKm: 7, CostPerMinute: 1.5},
	models.VehicleBakkie:     {BaseFare: 80, CostPerKm: 10, CostPerMinute: 2},
	models.VehicleTruck1Ton:  {BaseFare: 100, CostPerKm: 12, CostPerMinute: 2.5},
	models.VehicleTruck1_5Ton: {BaseFare: 120, CostPerKm: 13, CostPerMinute: 2.5},
	models.VehicleTruck2Ton:  {BaseFare: 150, CostPerKm: 15, CostPerMinute: 3},
	models.VehicleTruck4Ton:  {BaseFare: 200, CostPerKm: 18, CostPerMinute: 3.5},
	models.VehicleTruck8Ton:  {BaseFare: 300, CostPerKm: 22, CostPerMinute: 4},
}

const defaultSurgeMultiplier = 1.5

// Estimator computes fares. It is pure: no I/O, no clock.
type Estimator struct {
	Pricing         map[models.VehicleCategory]Pricing
	Fallback        Pricing
	SurgeMultiplier float64
}

func NewEstimator(surgeMultiplier float64) *Estimator {
	if surgeMultiplier <= 1 {
		surgeMultiplier = defaultSurgeMultiplier
	}
	return &Estimator{
		Pricing:         DefaultPricing,
		Fallback:        DefaultPricing[models.VehicleBakkie],
		SurgeMultiplier: surgeMultiplier,
	}
}

// Estimate returns base + distance*costPerKm + duration*costPerMinute,
// multiplied by the surge multiplier when surge is set, rounded to two
// decimal places.
func (e *Estimator) Estimate(category models.VehicleCategory, distanceKm, durationMin float64, surge bool) float64 {
	p, ok := e.Pricing[category]
	if !ok {
		p = e.Fallback
	}
	amount := p.BaseFare + distanceKm*p.CostPerKm + durationMin*p.CostPerMinute
	if surge {
		amount *= e.SurgeMultiplier
	}
	return round2(amount)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
