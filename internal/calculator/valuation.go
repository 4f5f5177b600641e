package calculator

import "math"

// Growth assumptions are clamped to this range before they enter the
// growth formula.
const (
	MinGrowthPct = 0.0
	MaxGrowthPct = 25.0
)

// GrahamIntrinsicValue applies Graham's growth formula EPS x (8.5 + 2g),
// with g the expected annual growth in percent. Undefined for non-positive EPS.
func GrahamIntrinsicValue(eps, growthPct float64) *float64 {
	if eps <= 0 || math.IsNaN(eps) {
		return nil
	}
	g := clampGrowth(growthPct)
	return round(eps*(8.5+2*g), 2)
}

// GrahamNumber returns sqrt(22.5 x EPS x BVPS). Undefined unless both inputs are positive.
func GrahamNumber(eps, bvps float64) *float64 {
	if eps <= 0 || bvps <= 0 {
		return nil
	}
	return round(math.Sqrt(22.5*eps*bvps), 2)
}

// MarginOfSafety returns how far price sits below value, in percent of value.
func MarginOfSafety(value, price float64) *float64 {
	if value <= 0 {
		return nil
	}
	return round((value-price)/value*100, 2)
}

func clampGrowth(g float64) float64 {
	if math.IsNaN(g) || g < MinGrowthPct {
		return MinGrowthPct
	}
	if g > MaxGrowthPct {
		return MaxGrowthPct
	}
	return g
}
