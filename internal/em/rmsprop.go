package em

import (
	"math"

	"github.com/nvandessel/diffmix/internal/rates"
)

// RMSProp turns accumulated gradients into per-rate steps scaled by the
// inverse root of a running second-moment estimate.
type RMSProp struct {
	decay float64
	eps   float64
	ms    *rates.Store
}

// NewRMSProp creates an RMSProp with the given moment decay and epsilon.
func NewRMSProp(decay, eps float64) *RMSProp {
	return &RMSProp{decay: decay, eps: eps}
}

// Step returns the update for grad:
//
//	ms   = decay*ms + (1-decay)*g^2
//	step = scale * g / (sqrt(ms) + eps)
//
// The returned store carries grad's responsibility mass and counts so it
// can be passed straight to rates.Store.ProjectedUpdate.
func (r *RMSProp) Step(grad *rates.Store, scale float64) *rates.Store {
	if r.ms == nil || r.ms.Topics() != grad.Topics() {
		r.ms = rates.NewStore(grad.Topics(), grad.Bounds())
	}

	step := rates.NewStore(grad.Topics(), grad.Bounds())
	for k := 0; k < grad.Topics(); k++ {
		ms := r.ms.Topic(k)
		out := step.Topic(k)
		grad.Topic(k).Each(func(src, dst int, g float64) {
			m := r.decay*ms.Value(src, dst) + (1-r.decay)*g*g
			ms.Set(src, dst, m)
			out.Set(src, dst, scale*g/(math.Sqrt(m)+r.eps))
		})
		step.AddMass(k, grad.Weight(k), grad.Count(k))
	}
	return step
}

// Reset forgets the second-moment estimates.
func (r *RMSProp) Reset() {
	r.ms = nil
}
