// Package inference ties the mixture model, the EM optimizer and the
// simulator together over a network and a set of cascades. It infers a
// time-indexed network of transmission rates across a sequence of time
// steps and generates synthetic cascades from learned or ground-truth rates.
package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/nvandessel/diffmix/internal/cascade"
	"github.com/nvandessel/diffmix/internal/constants"
	"github.com/nvandessel/diffmix/internal/em"
	"github.com/nvandessel/diffmix/internal/logging"
	"github.com/nvandessel/diffmix/internal/mixture"
	"github.com/nvandessel/diffmix/internal/network"
	"github.com/nvandessel/diffmix/internal/ranking"
	"github.com/nvandessel/diffmix/internal/simulation"
)

// ErrTooFewSteps is returned by Infer when fewer than two time steps are given.
var ErrTooFewSteps = errors.New("at least two time steps are required")

// Config groups the settings of every stage.
type Config struct {
	Mixture    mixture.Config
	EM         em.Config
	Simulation simulation.Config

	// Aging multiplies an inferred rate that did not change since the
	// previous step.
	Aging float64
}

// Model owns the node network, the observed cascades, the mixture
// parameters and the inferred network. It is not safe for concurrent use.
type Model struct {
	cfg      Config
	net      *network.Network
	cascades []*cascade.Cascade
	fn       *mixture.Function
	opt      *em.Optimizer
	sim      *simulation.Simulator
	inferred *network.Network
	rng      *rand.Rand

	logger    *slog.Logger
	decisions *logging.DecisionLogger
}

// NewModel creates a model over net. net supplies node metadata and, when
// it carries edges, the ground-truth structure used for simulation.
// rng is the single random stream for initialization, batching and simulation.
func NewModel(cfg Config, net *network.Network, rng *rand.Rand) *Model {
	m := &Model{
		cfg:      cfg,
		net:      net,
		fn:       mixture.NewFunction(cfg.Mixture),
		opt:      em.New(cfg.EM, rng),
		inferred: network.New(),
		rng:      rng,
	}
	m.sim = simulation.New(net, m.fn, cfg.Simulation, rng)
	for _, n := range net.Nodes() {
		m.inferred.AddNode(n)
	}
	return m
}

// SetLogger sets the structured logger and decision logger for observability.
func (m *Model) SetLogger(logger *slog.Logger, decisions *logging.DecisionLogger) {
	m.logger = logger
	m.decisions = decisions
	m.opt.SetLogger(logger, decisions)
	m.sim.SetLogger(logger)
}

// Network returns the node (and ground-truth) network.
func (m *Model) Network() *network.Network {
	return m.net
}

// InferredNetwork returns the network built by Infer.
func (m *Model) InferredNetwork() *network.Network {
	return m.inferred
}

// Function returns the mixture likelihood and its live parameters.
func (m *Model) Function() *mixture.Function {
	return m.fn
}

// Cascades returns the observed cascades.
func (m *Model) Cascades() []*cascade.Cascade {
	return m.cascades
}

// AddCascade appends an observed cascade, sorting its hits by time. Nodes
// it mentions that are not in the network are added with default metadata.
func (m *Model) AddCascade(c *cascade.Cascade) {
	c.Sort()
	for _, h := range c.Hits {
		if !m.net.IsNode(h.NodeID) {
			n := network.Node{ID: h.NodeID, Name: fmt.Sprint(h.NodeID)}
			m.net.AddNode(n)
			m.inferred.AddNode(n)
		}
	}
	m.cascades = append(m.cascades, c)
}

// Infer fits the mixture across steps and materializes the inferred network
// at every step after the first. Each completed step is handed to every sink.
func (m *Model) Infer(ctx context.Context, steps []float64, sinks ...Sink) error {
	if len(steps) < 2 {
		return ErrTooFewSteps
	}
	if !sort.Float64sAreSorted(steps) {
		return fmt.Errorf("time steps must be non-decreasing")
	}

	m.fn.InitParameters(m.cascades, m.rng)
	m.opt.Reset()

	nodes := m.net.Nodes()
	for _, s := range sinks {
		if err := s.Begin(ctx, nodes, m.fn.Topics()); err != nil {
			return fmt.Errorf("beginning output: %w", err)
		}
	}

	for t := 1; t < len(steps); t++ {
		at := steps[t]
		sel := m.opt.Select(m.cascades, at)
		if err := m.opt.Optimize(ctx, m.fn, m.cascades, sel, at); err != nil {
			return fmt.Errorf("optimizing step %d: %w", t, err)
		}

		res := m.materialize(t, steps[t-1], at)
		if m.logger != nil {
			m.logger.Info("step inferred",
				"step", t,
				"time", at,
				"cascades", len(sel),
				"edges", len(res.Inferred),
				"weights", res.Weights)
		}

		for _, s := range sinks {
			if err := s.RecordStep(ctx, res); err != nil {
				return fmt.Errorf("recording step %d: %w", t, err)
			}
		}
	}
	return nil
}

// materialize picks each edge's dominant topic, ages rates that did not
// change since prev and persists the result into the inferred network at at.
func (m *Model) materialize(index int, prev, at float64) StepResult {
	mc := m.cfg.Mixture
	weights := m.fn.Weights()
	res := StepResult{
		Index:      index,
		Time:       at,
		Weights:    weights,
		TopicEdges: m.topicEdges(at),
	}

	for _, e := range m.candidates() {
		topic := m.dominantTopic(e.Src, e.Dst, weights)
		if topic < 0 {
			continue
		}
		alpha := m.fn.Alpha(e.Src, e.Dst, topic)

		last, hasLast := m.inferred.RateAt(e.Src, e.Dst, prev)
		if aged := ranking.AgeRate(alpha, last, hasLast, m.cfg.Aging); aged != alpha {
			m.decisions.Log(map[string]any{
				"event": "edge_aged",
				"src":   e.Src,
				"dst":   e.Dst,
				"time":  at,
				"raw":   alpha,
				"alpha": aged,
			})
			alpha = aged
		}
		if alpha <= mc.MinAlpha {
			continue
		}
		alpha = math.Min(alpha, mc.MaxAlpha)

		if m.inferred.HasRate(e.Src, e.Dst, at) {
			continue
		}
		m.inferred.AddRate(e.Src, e.Dst, at, alpha)
		res.Inferred = append(res.Inferred, EdgeRate{Src: e.Src, Dst: e.Dst, Time: at, Alpha: alpha})
	}
	return res
}

// dominantTopic returns the topic with the highest topic value among
// topics whose weight exceeds the floor, or -1 if none qualifies.
func (m *Model) dominantTopic(src, dst int, weights []float64) int {
	best, topic := math.Inf(-1), -1
	for k, w := range weights {
		if w <= constants.TopicWeightFloor {
			continue
		}
		if v := m.fn.TopicValue(src, dst, k); v > best {
			best, topic = v, k
		}
	}
	return topic
}

// topicEdges lists, per topic, every edge whose clamped rate exceeds MinAlpha.
func (m *Model) topicEdges(at float64) [][]EdgeRate {
	params := m.fn.Params()
	out := make([][]EdgeRate, params.Topics())
	for k := range out {
		params.Topic(k).Each(func(src, dst int, _ float64) {
			if src == dst {
				return
			}
			if a := params.Alpha(src, dst, k); a > m.cfg.Mixture.MinAlpha {
				out[k] = append(out[k], EdgeRate{Src: src, Dst: dst, Time: at, Alpha: a})
			}
		})
	}
	return out
}

// candidates returns, in (src, dst) order, every pair with a stored rate in
// any topic. Pairs without one resolve to a zero rate and are never kept.
func (m *Model) candidates() []network.Edge {
	params := m.fn.Params()
	seen := make(map[network.Edge]bool)
	var edges []network.Edge
	for k := 0; k < params.Topics(); k++ {
		params.Topic(k).Each(func(src, dst int, _ float64) {
			e := network.Edge{Src: src, Dst: dst}
			if src == dst || seen[e] {
				return
			}
			seen[e] = true
			edges = append(edges, e)
		})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Src != edges[j].Src {
			return edges[i].Src < edges[j].Src
		}
		return edges[i].Dst < edges[j].Dst
	})
	return edges
}

// SeedGroundTruth assigns every edge of the network random per-topic rates
// in [MinAlpha, MaxAlpha) and random mixture weights, making the model a
// ground-truth generator.
func (m *Model) SeedGroundTruth() {
	edges := m.net.Edges()
	pairs := make([][2]int, len(edges))
	for i, e := range edges {
		pairs[i] = [2]int{e.Src, e.Dst}
	}
	m.fn.SeedRandom(pairs, m.rng)
}

// GroundTruth reports the current per-topic rates of every network edge as
// a step at time 0 and records each edge's dominant-topic rate in its
// history at time 0. Call it after generating cascades: recorded histories
// take precedence over topic rates during simulation.
func (m *Model) GroundTruth(ctx context.Context, sinks ...Sink) error {
	weights := m.fn.Weights()
	res := StepResult{Weights: weights, TopicEdges: make([][]EdgeRate, len(weights))}
	mc := m.cfg.Mixture

	for _, e := range m.net.Edges() {
		best, topic := math.Inf(-1), -1
		for k := range weights {
			if v := m.fn.TopicValue(e.Src, e.Dst, k); v > best {
				best, topic = v, k
			}
			if a := m.fn.Alpha(e.Src, e.Dst, k); a > mc.MinAlpha {
				res.TopicEdges[k] = append(res.TopicEdges[k], EdgeRate{Src: e.Src, Dst: e.Dst, Alpha: math.Min(a, mc.MaxAlpha)})
			}
		}
		alpha := m.fn.Alpha(e.Src, e.Dst, topic)
		m.net.AddRate(e.Src, e.Dst, 0, alpha)
		res.Inferred = append(res.Inferred, EdgeRate{Src: e.Src, Dst: e.Dst, Alpha: alpha})
	}

	nodes := m.net.Nodes()
	for _, s := range sinks {
		if err := s.Begin(ctx, nodes, len(weights)); err != nil {
			return fmt.Errorf("beginning ground truth output: %w", err)
		}
		if err := s.RecordStep(ctx, res); err != nil {
			return fmt.Errorf("recording ground truth: %w", err)
		}
	}
	return nil
}

// GenCascade simulates one cascade over the network from the current rates.
func (m *Model) GenCascade(ctx context.Context, id int) (*cascade.Cascade, error) {
	return m.sim.GenCascade(ctx, id)
}

// GenCascades simulates n cascades and adds them to the observed set.
func (m *Model) GenCascades(ctx context.Context, n int) ([]*cascade.Cascade, error) {
	out := make([]*cascade.Cascade, 0, n)
	for i := 0; i < n; i++ {
		c, err := m.GenCascade(ctx, len(m.cascades))
		if err != nil {
			return out, fmt.Errorf("generating cascade %d: %w", i, err)
		}
		m.AddCascade(c)
		out = append(out, c)
	}
	return out, nil
}
