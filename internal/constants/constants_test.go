package constants

import "testing"

func TestRateDefaultsOrdered(t *testing.T) {
	if !(DefaultMinAlpha < DefaultInitAlpha && DefaultInitAlpha < DefaultMaxAlpha) {
		t.Errorf("expected MinAlpha < InitAlpha < MaxAlpha, got %g, %g, %g",
			DefaultMinAlpha, DefaultInitAlpha, DefaultMaxAlpha)
	}
	if NegligibleRate >= DefaultMinAlpha {
		t.Errorf("NegligibleRate (%g) should be below DefaultMinAlpha (%g)", NegligibleRate, DefaultMinAlpha)
	}
}

func TestOptimizerDefaults(t *testing.T) {
	if DefaultRMSPropDecay <= 0 || DefaultRMSPropDecay >= 1 {
		t.Errorf("DefaultRMSPropDecay = %g, want in (0, 1)", DefaultRMSPropDecay)
	}
	if DefaultAging <= 0 || DefaultAging > 1 {
		t.Errorf("DefaultAging = %g, want in (0, 1]", DefaultAging)
	}
	if MinCascadeLen < 2 {
		t.Errorf("MinCascadeLen = %d, a cascade needs a source and a destination", MinCascadeLen)
	}
}
