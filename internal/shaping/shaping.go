// Package shaping implements the time-shaping (hazard) functions that turn a
// pair of activation times into an infection intensity and its cumulative
// hazard. A Func is chosen once per model configuration and shared read-only.
package shaping

import (
	"fmt"
	"math"
	"strings"
)

// Func maps a (source, destination) activation-time pair to a hazard value,
// its time integral and a validity predicate.
type Func interface {
	// Value returns the hazard contribution if src precedes dst, else 0.
	Value(srcTime, dstTime float64) float64

	// Integral returns the cumulative hazard over the same interval, else 0.
	Integral(srcTime, dstTime float64) float64

	// Before reports whether src may have infected dst under this family.
	Before(srcTime, dstTime float64) bool
}

// Model selects a hazard family.
type Model int

const (
	ModelExponential Model = iota
	ModelPowerLaw
	ModelRayleigh
)

// String returns the short name used in config files and node metadata.
func (m Model) String() string {
	switch m {
	case ModelPowerLaw:
		return "pow"
	case ModelRayleigh:
		return "ray"
	default:
		return "exp"
	}
}

// ParseModel maps a name ("exp", "pow", "ray" or their long forms,
// case-insensitive) to a Model.
func ParseModel(s string) (Model, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "exp", "exponential", "0":
		return ModelExponential, nil
	case "pow", "power", "powerlaw", "power-law", "1":
		return ModelPowerLaw, nil
	case "ray", "rayleigh", "2":
		return ModelRayleigh, nil
	default:
		return ModelExponential, fmt.Errorf("unknown hazard model %q (valid: exp, pow, ray)", s)
	}
}

// New builds the Func for model. delta is only used by the power-law family.
func New(model Model, delta float64) Func {
	switch model {
	case ModelPowerLaw:
		return PowerLaw{Delta: delta}
	case ModelRayleigh:
		return Rayleigh{}
	default:
		return Exponential{}
	}
}

// Exponential is the constant-hazard family.
type Exponential struct{}

func (Exponential) Value(srcTime, dstTime float64) float64 {
	if srcTime < dstTime {
		return 1.0
	}
	return 0.0
}

func (Exponential) Integral(srcTime, dstTime float64) float64 {
	if srcTime < dstTime {
		return dstTime - srcTime
	}
	return 0.0
}

func (Exponential) Before(srcTime, dstTime float64) bool {
	return srcTime < dstTime
}

// PowerLaw is the heavy-tailed family with a minimum infection delay Delta.
type PowerLaw struct {
	Delta float64
}

func (p PowerLaw) Value(srcTime, dstTime float64) float64 {
	if p.Before(srcTime, dstTime) {
		return 1.0 / (dstTime - srcTime)
	}
	return 0.0
}

func (p PowerLaw) Integral(srcTime, dstTime float64) float64 {
	if p.Before(srcTime, dstTime) {
		return math.Log((dstTime - srcTime) / p.Delta)
	}
	return 0.0
}

// Before requires the destination to activate at least Delta after the source.
func (p PowerLaw) Before(srcTime, dstTime float64) bool {
	return srcTime+p.Delta < dstTime
}

// Rayleigh is the linearly increasing hazard family.
type Rayleigh struct{}

func (Rayleigh) Value(srcTime, dstTime float64) float64 {
	if srcTime < dstTime {
		return dstTime - srcTime
	}
	return 0.0
}

func (Rayleigh) Integral(srcTime, dstTime float64) float64 {
	if srcTime < dstTime {
		d := dstTime - srcTime
		return d * d / 2.0
	}
	return 0.0
}

func (Rayleigh) Before(srcTime, dstTime float64) bool {
	return srcTime < dstTime
}
