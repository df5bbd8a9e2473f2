// Package mixture implements the mixture-of-topics likelihood over cascades.
// Each topic owns a sparse rate model; a cascade's topic is latent and is
// represented by per-topic responsibilities recomputed every EM round.
package mixture

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/nvandessel/diffmix/internal/cascade"
	"github.com/nvandessel/diffmix/internal/constants"
	"github.com/nvandessel/diffmix/internal/rates"
	"github.com/nvandessel/diffmix/internal/shaping"
)

// Config configures every per-topic rate model of a Function.
type Config struct {
	// Tol floors the instantaneous hazard inside the log term.
	Tol float64

	// InitAlpha seeds rates of edges observed in the cascades.
	InitAlpha float64

	// MinAlpha and MaxAlpha bound every stored and surfaced rate.
	MinAlpha float64
	MaxAlpha float64

	// Regularizer and Lambda select the rate penalty and its weight.
	Regularizer Regularizer
	Lambda      float64

	// Mu scales the adaptive gradient step.
	Mu float64

	// Topics is the number of mixture components K.
	Topics int

	// Shaping is the hazard family shared by all topics.
	Shaping shaping.Func
}

// Function is the mixture likelihood: it evaluates per-topic joint
// likelihoods, keeps the latest responsibilities per cascade and produces
// responsibility-weighted gradients.
type Function struct {
	cfg    Config
	models []riskModel
	params *rates.Store
	grad   *rates.Store
	latent map[int][]float64
}

// NewFunction creates a Function configured with cfg.
func NewFunction(cfg Config) *Function {
	f := &Function{}
	f.Set(cfg)
	return f
}

// Set (re)builds the K per-topic models and reinitializes the live
// parameters and the gradient buffer with the same topic count.
// It panics on a non-positive topic count or a missing shaping function.
func (f *Function) Set(cfg Config) {
	if cfg.Topics <= 0 {
		panic(fmt.Sprintf("mixture: topic count must be positive, got %d", cfg.Topics))
	}
	if cfg.Shaping == nil {
		panic("mixture: shaping function is required")
	}

	bounds := rates.Bounds{Min: cfg.MinAlpha, Max: cfg.MaxAlpha}
	f.cfg = cfg
	f.params = rates.NewStore(cfg.Topics, bounds)
	f.grad = rates.NewStore(cfg.Topics, bounds)
	f.latent = make(map[int][]float64)
	f.models = make([]riskModel, cfg.Topics)
	for k := range f.models {
		f.models[k] = riskModel{cfg: cfg, shape: cfg.Shaping}
	}
}

// Config returns the active configuration.
func (f *Function) Config() Config {
	return f.cfg
}

// Params returns the live parameter store.
func (f *Function) Params() *rates.Store {
	return f.params
}

// StepSize returns the gradient step scale Mu.
func (f *Function) StepSize() float64 {
	return f.cfg.Mu
}

// InitParameters discards the live parameters, draws the initial mixture
// weights and seeds every edge that could explain an observed infection
// with InitAlpha, jittered per topic so the components can separate.
func (f *Function) InitParameters(cascades []*cascade.Cascade, rng *rand.Rand) {
	f.params.Reset()
	f.latent = make(map[int][]float64)
	f.params.InitWeights(rng)
	for _, c := range cascades {
		for i, dst := range c.Hits {
			for _, src := range c.Hits[:i] {
				if src.NodeID == dst.NodeID || !f.cfg.Shaping.Before(src.Time, dst.Time) {
					continue
				}
				for k := 0; k < f.cfg.Topics; k++ {
					t := f.params.Topic(k)
					if _, ok := t.Get(src.NodeID, dst.NodeID); ok {
						continue
					}
					jitter := 1.0 + constants.InitAlphaJitter*rng.Float64()
					t.Set(src.NodeID, dst.NodeID, f.cfg.InitAlpha*jitter)
				}
			}
		}
	}
}

// SeedRandom assigns every listed edge a rate drawn uniformly from
// [MinAlpha, MaxAlpha) in every topic. Used to build synthetic ground truth.
func (f *Function) SeedRandom(edges [][2]int, rng *rand.Rand) {
	f.params.InitWeights(rng)
	span := f.cfg.MaxAlpha - f.cfg.MinAlpha
	for k := 0; k < f.cfg.Topics; k++ {
		t := f.params.Topic(k)
		for _, e := range edges {
			t.Set(e[0], e[1], f.cfg.MinAlpha+span*rng.Float64())
		}
	}
}

// JointLikelihood returns log p(d | topic) + log weight(topic), where the
// first term is the negated risk of d under the topic's rates.
// It panics if topic is outside [0, K).
func (f *Function) JointLikelihood(d Datum, topic int) float64 {
	if topic < 0 || topic >= len(f.models) {
		panic(fmt.Sprintf("mixture: topic %d out of range [0,%d)", topic, len(f.models)))
	}
	logP := -f.models[topic].loss(d, f.params.Topic(topic))
	logPi := math.Log(f.params.Weight(topic))
	return logP + logPi
}

// Expect computes and stores the responsibilities of every topic for d.
func (f *Function) Expect(d Datum) []float64 {
	ll := make([]float64, len(f.models))
	for k := range f.models {
		ll[k] = f.JointLikelihood(d, k)
	}

	resp := make([]float64, len(ll))
	lse := floats.LogSumExp(ll)
	if math.IsInf(lse, 0) || math.IsNaN(lse) {
		for k := range resp {
			resp[k] = 1.0 / float64(len(resp))
		}
	} else {
		for k, v := range ll {
			resp[k] = math.Exp(v - lse)
		}
	}

	f.latent[d.Index] = resp
	return resp
}

// Gradient computes, for every topic, the topic's risk gradient on d scaled
// by d's responsibility, and records that responsibility with a count of
// one. Responsibilities are computed first if Expect has not run for d.
//
// The returned store is an internal buffer that is cleared on every call;
// callers accumulate it into their own store.
func (f *Function) Gradient(d Datum) *rates.Store {
	f.grad.Reset()

	resp, ok := f.latent[d.Index]
	if !ok {
		resp = f.Expect(d)
	}
	for k, m := range f.models {
		m.gradient(d, f.params.Topic(k), resp[k], f.grad.Topic(k))
		f.grad.AddMass(k, resp[k], 1)
	}
	return f.grad
}

// Maximize zeroes the contribution counters of the live parameters so that
// the next projected update starts a fresh running average.
func (f *Function) Maximize() {
	f.params.ResetCounts()
}

// Alpha returns the clamped rate of src->dst under topic k, or 0 if unknown.
func (f *Function) Alpha(src, dst, k int) float64 {
	return f.params.Alpha(src, dst, k)
}

// Weight returns the mixture weight of topic k.
func (f *Function) Weight(k int) float64 {
	return f.params.Weight(k)
}

// Weights returns a copy of the mixture weights.
func (f *Function) Weights() []float64 {
	return f.params.Weights()
}

// Topics returns K.
func (f *Function) Topics() int {
	return f.cfg.Topics
}

// TopicValue scores how strongly topic k explains the edge src->dst: the
// topic's weight times its rate on the edge.
func (f *Function) TopicValue(src, dst, k int) float64 {
	return f.params.Weight(k) * f.params.Alpha(src, dst, k)
}
