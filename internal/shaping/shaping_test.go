package shaping

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExponential(t *testing.T) {
	f := Exponential{}

	assert.Equal(t, 1.0, f.Value(0, 5))
	assert.Equal(t, 5.0, f.Integral(0, 5))
	assert.True(t, f.Before(0, 5))

	assert.Equal(t, 0.0, f.Value(5, 0))
	assert.Equal(t, 0.0, f.Integral(5, 5))
	assert.False(t, f.Before(5, 5))
}

func TestPowerLaw(t *testing.T) {
	f := PowerLaw{Delta: 1}

	assert.True(t, f.Before(0, 1.5))
	assert.InDelta(t, math.Log(1.5), f.Integral(0, 1.5), 1e-12)
	assert.InDelta(t, 1/1.5, f.Value(0, 1.5), 1e-12)

	// Inside the minimum delay nothing counts.
	assert.False(t, f.Before(0, 1))
	assert.Equal(t, 0.0, f.Value(0, 0.5))
	assert.Equal(t, 0.0, f.Integral(0, 0.5))
}

func TestRayleigh(t *testing.T) {
	f := Rayleigh{}

	assert.Equal(t, 3.0, f.Value(0, 3))
	assert.Equal(t, 4.5, f.Integral(0, 3))
	assert.True(t, f.Before(0, 3))
	assert.Equal(t, 0.0, f.Value(3, 0))
	assert.Equal(t, 0.0, f.Integral(3, 3))
}

// The derivative of Integral with respect to the destination time is Value
// for every family.
func TestIntegralDerivativeMatchesValue(t *testing.T) {
	funcs := map[string]Func{
		"exp": Exponential{},
		"pow": PowerLaw{Delta: 0.5},
		"ray": Rayleigh{},
	}
	pairs := [][2]float64{{0, 2}, {1, 4.5}, {3, 3.75}, {10, 17}}
	const h = 1e-6

	for name, f := range funcs {
		t.Run(name, func(t *testing.T) {
			for _, p := range pairs {
				src, dst := p[0], p[1]
				if !f.Before(src, dst-h) {
					continue
				}
				numeric := (f.Integral(src, dst+h) - f.Integral(src, dst-h)) / (2 * h)
				assert.InDelta(t, f.Value(src, dst), numeric, 1e-4, "src=%v dst=%v", src, dst)
			}
		})
	}
}

func TestParseModel(t *testing.T) {
	tests := []struct {
		input   string
		want    Model
		wantErr bool
	}{
		{"exp", ModelExponential, false},
		{"", ModelExponential, false},
		{"POW", ModelPowerLaw, false},
		{"power-law", ModelPowerLaw, false},
		{"rayleigh", ModelRayleigh, false},
		{"2", ModelRayleigh, false},
		{"gamma", ModelExponential, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseModel(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	assert.IsType(t, Exponential{}, New(ModelExponential, 1))
	assert.Equal(t, PowerLaw{Delta: 2}, New(ModelPowerLaw, 2))
	assert.IsType(t, Rayleigh{}, New(ModelRayleigh, 1))
	assert.Equal(t, "pow", ModelPowerLaw.String())
}
