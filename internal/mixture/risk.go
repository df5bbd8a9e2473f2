package mixture

import (
	"fmt"
	"math"
	"strings"

	"github.com/nvandessel/diffmix/internal/cascade"
	"github.com/nvandessel/diffmix/internal/rates"
	"github.com/nvandessel/diffmix/internal/shaping"
)

// Regularizer selects the penalty added to the per-topic risk.
type Regularizer int

const (
	RegularizerNone Regularizer = iota
	RegularizerL1
	RegularizerL2
)

// String returns the config name of the regularizer.
func (r Regularizer) String() string {
	switch r {
	case RegularizerL1:
		return "l1"
	case RegularizerL2:
		return "l2"
	default:
		return "none"
	}
}

// ParseRegularizer maps a config name ("none", "l1", "l2") to a Regularizer.
func ParseRegularizer(s string) (Regularizer, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return RegularizerNone, nil
	case "l1":
		return RegularizerL1, nil
	case "l2":
		return RegularizerL2, nil
	default:
		return RegularizerNone, fmt.Errorf("unknown regularizer %q (want none, l1 or l2)", s)
	}
}

// Datum is one selected cascade observed up to Time.
type Datum struct {
	Index   int
	Cascade *cascade.Cascade
	Time    float64
}

// riskModel is the survival-analysis risk of a single topic over the rates
// it is handed. Gradients go into a caller-supplied buffer.
type riskModel struct {
	cfg   Config
	shape shaping.Func
}

// loss returns the negative log-likelihood of d under this topic's rates:
// cumulative hazards of every infection and of every survival up to the
// horizon, minus the log instantaneous hazard of every explained infection.
func (m riskModel) loss(d Datum, alphas *rates.TopicRates) float64 {
	hits := d.Cascade.Before(d.Time)
	infected := make(map[int]bool, len(hits))
	for _, h := range hits {
		infected[h.NodeID] = true
	}

	loss := 0.0
	for i, dst := range hits {
		hazard := 0.0
		hasParent := false
		for _, src := range hits[:i] {
			if !m.shape.Before(src.Time, dst.Time) {
				continue
			}
			hasParent = true
			a := alphas.Value(src.NodeID, dst.NodeID)
			loss += a * m.shape.Integral(src.Time, dst.Time)
			hazard += a * m.shape.Value(src.Time, dst.Time)
			loss += m.penalty(a)
		}
		if hasParent {
			loss -= math.Log(math.Max(hazard, m.cfg.Tol))
		}
	}

	for _, src := range hits {
		for dst, a := range alphas.Out(src.NodeID) {
			if infected[dst] {
				continue
			}
			loss += a * m.shape.Integral(src.Time, d.Time)
			loss += m.penalty(a)
		}
	}
	return loss
}

// gradient adds scale * d(loss)/d(alpha) for every rate touched by d into out.
func (m riskModel) gradient(d Datum, alphas *rates.TopicRates, scale float64, out *rates.TopicRates) {
	hits := d.Cascade.Before(d.Time)
	infected := make(map[int]bool, len(hits))
	for _, h := range hits {
		infected[h.NodeID] = true
	}

	for i, dst := range hits {
		hazard := 0.0
		for _, src := range hits[:i] {
			if m.shape.Before(src.Time, dst.Time) {
				hazard += alphas.Value(src.NodeID, dst.NodeID) * m.shape.Value(src.Time, dst.Time)
			}
		}
		// Below Tol the log term is the constant -log(Tol).
		floored := hazard < m.cfg.Tol

		for _, src := range hits[:i] {
			if !m.shape.Before(src.Time, dst.Time) {
				continue
			}
			a := alphas.Value(src.NodeID, dst.NodeID)
			g := m.shape.Integral(src.Time, dst.Time)
			if !floored {
				g -= m.shape.Value(src.Time, dst.Time) / hazard
			}
			out.Add(src.NodeID, dst.NodeID, scale*(g+m.penaltyGrad(a)))
		}
	}

	for _, src := range hits {
		for dst, a := range alphas.Out(src.NodeID) {
			if infected[dst] {
				continue
			}
			g := m.shape.Integral(src.Time, d.Time)
			out.Add(src.NodeID, dst, scale*(g+m.penaltyGrad(a)))
		}
	}
}

func (m riskModel) penalty(a float64) float64 {
	switch m.cfg.Regularizer {
	case RegularizerL1:
		return m.cfg.Lambda * math.Abs(a)
	case RegularizerL2:
		return 0.5 * m.cfg.Lambda * a * a
	default:
		return 0
	}
}

func (m riskModel) penaltyGrad(a float64) float64 {
	switch m.cfg.Regularizer {
	case RegularizerL1:
		if a > 0 {
			return m.cfg.Lambda
		}
		if a < 0 {
			return -m.cfg.Lambda
		}
		return 0
	case RegularizerL2:
		return m.cfg.Lambda * a
	default:
		return 0
	}
}
