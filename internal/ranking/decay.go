package ranking

import "math"

// AgeRate returns the rate to persist for an edge at a step. A raw rate
// identical to the one persisted at the previous step was not reinforced
// by new evidence and is multiplied by aging; any other rate is kept.
func AgeRate(raw, previous float64, hasPrevious bool, aging float64) float64 {
	if hasPrevious && previous == raw {
		return raw * aging
	}
	return raw
}

// DefaultDecayRate is the default decay rate for stale edge estimates.
// At 0.01, an estimate loses ~1% of its weight per time unit.
const DefaultDecayRate = 0.01

// EdgeDecay calculates the effective weight of an edge estimated elapsed
// time units ago. Returns weight * e^(-rho * elapsed); a non-positive
// elapsed returns the full weight.
func EdgeDecay(weight, elapsed, rho float64) float64 {
	if weight == 0 {
		return 0
	}
	if elapsed <= 0 {
		return weight
	}
	return weight * math.Exp(-rho*elapsed)
}
