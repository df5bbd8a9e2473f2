// Package simulation generates synthetic cascades by event-driven forward
// simulation of an epidemic spreading process over a directed network.
//
// A cascade starts at a seed node at a uniformly drawn time in
// [0, TotalTime) and samples one topic from the mixture weights. Every
// activated node then draws an infection delay towards each out-neighbor
// from the hazard family of that neighbor, using the edge's recorded rate
// history when present and the learned topic rate otherwise. Activations
// stop at min(TotalTime, start+Window).
package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/nvandessel/diffmix/internal/cascade"
	"github.com/nvandessel/diffmix/internal/constants"
	"github.com/nvandessel/diffmix/internal/network"
	"github.com/nvandessel/diffmix/internal/shaping"
)

// ErrNoCascade is returned when MaxAttempts simulations all produced fewer
// than two activations.
var ErrNoCascade = errors.New("no cascade with at least two activations")

// RateSource provides learned per-topic rates and the mixture weights.
// *mixture.Function satisfies it.
type RateSource interface {
	Alpha(src, dst, topic int) float64
	Weights() []float64
}

// Config controls cascade generation.
type Config struct {
	// TotalTime is the observation horizon; seed times are drawn below it.
	TotalTime float64

	// Window bounds how long after its seed a cascade may keep spreading.
	Window float64

	// Delta is the minimum delay of power-law nodes.
	Delta float64

	// MaxAttempts caps regeneration of too-short cascades. 0 retries until
	// the context is done.
	MaxAttempts int
}

// DefaultConfig returns the default simulation settings.
func DefaultConfig() Config {
	return Config{
		TotalTime: constants.DefaultTotalTime,
		Window:    constants.DefaultWindow,
		Delta:     constants.DefaultDelta,
	}
}

// Simulator generates cascades over a network. It reads the network and
// the rate source but never mutates them. Not safe for concurrent use
// because of the shared random stream.
type Simulator struct {
	net    *network.Network
	rates  RateSource
	cfg    Config
	rng    *rand.Rand
	logger *slog.Logger
}

// New creates a simulator over net drawing from rng.
func New(net *network.Network, rates RateSource, cfg Config, rng *rand.Rand) *Simulator {
	return &Simulator{net: net, rates: rates, cfg: cfg, rng: rng}
}

// SetLogger sets the structured logger.
func (s *Simulator) SetLogger(logger *slog.Logger) {
	s.logger = logger
}

// GenCascade simulates a cascade from a uniformly chosen seed node,
// regenerating until it has at least two activations.
func (s *Simulator) GenCascade(ctx context.Context, id int) (*cascade.Cascade, error) {
	if s.net.NodeCount() == 0 {
		return nil, network.ErrEmptyNetwork
	}
	return s.generate(ctx, id, -1)
}

// GenCascadeFrom is GenCascade with a fixed seed node.
func (s *Simulator) GenCascadeFrom(ctx context.Context, id, start int) (*cascade.Cascade, error) {
	if !s.net.IsNode(start) {
		return nil, fmt.Errorf("start node %d is not in the network", start)
	}
	return s.generate(ctx, id, start)
}

func (s *Simulator) generate(ctx context.Context, id, start int) (*cascade.Cascade, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if s.cfg.MaxAttempts > 0 && attempt > s.cfg.MaxAttempts {
			return nil, fmt.Errorf("%w after %d attempts", ErrNoCascade, s.cfg.MaxAttempts)
		}

		seed := start
		if seed < 0 {
			var err error
			if seed, err = s.net.RandomNode(s.rng); err != nil {
				return nil, err
			}
		}

		c := s.simulate(id, seed)
		if c.Len() >= constants.MinCascadeLen {
			c.Sort()
			if s.logger != nil {
				s.logger.Debug("cascade generated", "id", id, "seed", seed, "len", c.Len(), "attempts", attempt)
			}
			return c, nil
		}
	}
}

// simulate runs one forward simulation from seed.
func (s *Simulator) simulate(id, seed int) *cascade.Cascade {
	initTime := s.rng.Float64() * s.cfg.TotalTime
	cutoff := math.Min(s.cfg.TotalTime, initTime+s.cfg.Window)
	topic := s.sampleTopic()

	c := cascade.New(id)
	queue := newPendingQueue()
	queue.add(seed, initTime)
	infectedBy := make(map[int]int)

	for queue.Len() > 0 {
		if queue.peek().time >= cutoff {
			break
		}
		p := queue.next()
		now := p.time
		c.Add(p.node, now)

		for _, dst := range s.net.OutNeighbors(p.node) {
			if c.Has(dst) {
				continue
			}
			alpha := s.rate(p.node, dst, topic, now)
			if alpha < constants.NegligibleRate {
				continue
			}
			// No back-infection of the node's own infector.
			if by, ok := infectedBy[p.node]; ok && by == dst {
				continue
			}

			t1 := math.Min(now+s.delay(dst, alpha), cutoff)
			t2, ok := queue.get(dst)
			switch {
			case !ok:
				queue.add(dst, t1)
				infectedBy[dst] = p.node
			case t2 > t1 && t2 < cutoff:
				queue.update(dst, t1)
				infectedBy[dst] = p.node
			}
		}
	}
	return c
}

// sampleTopic draws a topic from the mixture weights by inverse CDF.
func (s *Simulator) sampleTopic() int {
	w := s.rates.Weights()
	if len(w) == 0 {
		return 0
	}
	p := s.rng.Float64()
	acc := 0.0
	for k, v := range w {
		acc += v
		if p <= acc {
			return k
		}
	}
	return len(w) - 1
}

// rate prefers the latest rate recorded on the edge before now.
func (s *Simulator) rate(src, dst, topic int, now float64) float64 {
	if a, ok := s.net.RateBefore(src, dst, now); ok {
		return a
	}
	return s.rates.Alpha(src, dst, topic)
}

// delay samples an infection delay from dst's hazard family. It panics on
// a negative draw.
func (s *Simulator) delay(dst int, alpha float64) float64 {
	model := shaping.ModelExponential
	if n, ok := s.net.Node(dst); ok {
		model = n.Model
	}

	var sigma float64
	switch model {
	case shaping.ModelPowerLaw:
		d := distuv.Pareto{Xm: 1, Alpha: alpha, Src: s.rng}
		sigma = d.Rand()
		for sigma < s.cfg.Delta {
			sigma = s.cfg.Delta * d.Rand()
		}
	case shaping.ModelRayleigh:
		d := distuv.Weibull{K: 2, Lambda: math.Sqrt(2 / alpha), Src: s.rng}
		sigma = d.Rand()
	default:
		d := distuv.Exponential{Rate: alpha, Src: s.rng}
		sigma = d.Rand()
	}

	if !(sigma >= 0) {
		panic(fmt.Sprintf("simulation: negative infection delay %v (model %s, alpha %v)", sigma, model, alpha))
	}
	return sigma
}
