package ranking

import (
	"math"
	"testing"
)

func TestAgeRate(t *testing.T) {
	tests := []struct {
		name        string
		raw         float64
		previous    float64
		hasPrevious bool
		want        float64
	}{
		{"first step", 0.4, 0, false, 0.4},
		{"unchanged", 0.4, 0.4, true, 0.2},
		{"changed", 0.4, 0.3, true, 0.4},
		{"previous aged value", 0.4, 0.2, true, 0.4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := AgeRate(tt.raw, tt.previous, tt.hasPrevious, 0.5); got != tt.want {
				t.Errorf("AgeRate() = %f, want %f", got, tt.want)
			}
		})
	}
}

func TestEdgeDecay(t *testing.T) {
	tests := []struct {
		name    string
		weight  float64
		elapsed float64
		want    float64
	}{
		{"zero weight", 0, 10, 0},
		{"no elapsed time", 0.7, 0, 0.7},
		{"negative elapsed", 0.7, -3, 0.7},
		{"ten units", 1, 10, math.Exp(-0.1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EdgeDecay(tt.weight, tt.elapsed, DefaultDecayRate)
			if math.Abs(got-tt.want) > 1e-12 {
				t.Errorf("EdgeDecay() = %f, want %f", got, tt.want)
			}
		})
	}
}
