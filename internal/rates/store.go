package rates

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// Bounds is the admissible range of a surfaced or persisted rate.
type Bounds struct {
	Min float64
	Max float64
}

// Store holds K per-topic rate models, the topic mixture weights and a
// per-topic count of contributing cascades.
//
// The same type serves as the gradient accumulator: there the weights hold
// the summed responsibilities of a round and the counts the number of
// cascades that contributed.
type Store struct {
	topics  []*TopicRates
	weights []float64
	counts  []float64
	bounds  Bounds
}

// NewStore creates a store with k empty topics and zero weights.
// It panics if k is not positive.
func NewStore(k int, bounds Bounds) *Store {
	if k <= 0 {
		panic(fmt.Sprintf("rates: topic count must be positive, got %d", k))
	}
	s := &Store{bounds: bounds}
	s.grow(k)
	return s
}

func (s *Store) grow(k int) {
	for len(s.topics) < k {
		s.topics = append(s.topics, NewTopicRates())
		s.weights = append(s.weights, 0)
		s.counts = append(s.counts, 0)
	}
}

func (s *Store) mustTopic(k int) {
	if k < 0 || k >= len(s.topics) {
		panic(fmt.Sprintf("rates: topic %d out of range [0,%d)", k, len(s.topics)))
	}
}

// Topics returns the number of topics K.
func (s *Store) Topics() int {
	return len(s.topics)
}

// Bounds returns the rate bounds.
func (s *Store) Bounds() Bounds {
	return s.bounds
}

// Topic returns the rate model of topic k. It panics if k is out of range.
func (s *Store) Topic(k int) *TopicRates {
	s.mustTopic(k)
	return s.topics[k]
}

// Weight returns the mixture weight of topic k.
func (s *Store) Weight(k int) float64 {
	s.mustTopic(k)
	return s.weights[k]
}

// Weights returns a copy of all mixture weights.
func (s *Store) Weights() []float64 {
	w := make([]float64, len(s.weights))
	copy(w, s.weights)
	return w
}

// SetWeights replaces the mixture weights. It panics on a length mismatch.
func (s *Store) SetWeights(w []float64) {
	if len(w) != len(s.weights) {
		panic(fmt.Sprintf("rates: got %d weights for %d topics", len(w), len(s.weights)))
	}
	copy(s.weights, w)
}

// Count returns the cumulative number of cascades folded into topic k's weight.
func (s *Store) Count(k int) float64 {
	s.mustTopic(k)
	return s.counts[k]
}

// Alpha returns the rate of src->dst under topic k clamped to the store
// bounds. Absent edges return 0.
func (s *Store) Alpha(src, dst, k int) float64 {
	s.mustTopic(k)
	a, ok := s.topics[k].Get(src, dst)
	if !ok {
		return 0
	}
	return clamp(a, s.bounds.Min, s.bounds.Max)
}

// CopyFrom makes s a deep copy of o (rates, weights, counts and bounds).
func (s *Store) CopyFrom(o *Store) {
	s.topics = s.topics[:0]
	s.weights = s.weights[:0]
	s.counts = s.counts[:0]
	s.bounds = o.bounds
	for k, t := range o.topics {
		c := NewTopicRates()
		c.CopyFrom(t)
		s.topics = append(s.topics, c)
		s.weights = append(s.weights, o.weights[k])
		s.counts = append(s.counts, o.counts[k])
	}
}

// Add accumulates o into s topic by topic: rates, weights and counts are
// summed. Topics missing from s are created.
func (s *Store) Add(o *Store) {
	s.grow(len(o.topics))
	for k, t := range o.topics {
		s.topics[k].AddAll(t)
		s.weights[k] += o.weights[k]
		s.counts[k] += o.counts[k]
	}
}

// Scale multiplies every per-edge rate by f. Weights are not touched.
func (s *Store) Scale(f float64) {
	for _, t := range s.topics {
		t.Scale(f)
	}
}

// AddMass adds responsibility mass and a contribution count to topic k.
func (s *Store) AddMass(k int, mass, count float64) {
	s.mustTopic(k)
	s.weights[k] += mass
	s.counts[k] += count
}

// ResetCounts zeroes the contribution counters, starting a new running average.
func (s *Store) ResetCounts() {
	for k := range s.counts {
		s.counts[k] = 0
	}
}

// Reset zeroes every rate, weight and count, keeping the topic count.
func (s *Store) Reset() {
	for k, t := range s.topics {
		t.Reset()
		s.weights[k] = 0
		s.counts[k] = 0
	}
}

// InitWeights draws each weight uniformly from [1, 2) and normalizes them to sum to 1.
func (s *Store) InitWeights(rng *rand.Rand) {
	for k := range s.weights {
		s.weights[k] = 1.0 + rng.Float64()
	}
	s.NormalizeWeights()
}

// NormalizeWeights rescales the weights to sum to 1. All-zero weights become uniform.
func (s *Store) NormalizeWeights() {
	sum := floats.Sum(s.weights)
	if sum <= 0 {
		for k := range s.weights {
			s.weights[k] = 1.0 / float64(len(s.weights))
		}
		return
	}
	floats.Scale(1/sum, s.weights)
}

// UpdateTopic applies step to topic k's rates (alpha -= step, projected onto
// the bounds) and folds mass into the topic weight as a running average:
//
//	weight = (weight * Count(k) + mass) / count
//
// count is the cumulative number of contributing cascades after this update
// and must never decrease. An unchanged count leaves the weight as is.
//
// UpdateTopic is stateful: the result depends on the count recorded by the
// previous call (reset by ResetCounts).
func (s *Store) UpdateTopic(k int, step *TopicRates, mass, count float64) {
	s.mustTopic(k)
	prev := s.counts[k]
	if count < prev {
		panic(fmt.Sprintf("rates: cumulative count for topic %d decreased from %v to %v", k, prev, count))
	}

	if step != nil {
		s.topics[k].ProjectedUpdate(step, s.bounds.Min, s.bounds.Max)
	}

	if count == prev {
		return
	}
	s.weights[k] = (s.weights[k]*prev + mass) / count
	s.counts[k] = count
}

// ProjectedUpdate folds an accumulated round into s: for every topic the
// step rates are applied and the weight running average advances by the
// step's count.
func (s *Store) ProjectedUpdate(step *Store) {
	for k := range step.topics {
		s.UpdateTopic(k, step.topics[k], step.weights[k], s.counts[k]+step.counts[k])
	}
}
