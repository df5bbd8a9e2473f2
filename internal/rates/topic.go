// Package rates holds the sparse per-edge, per-topic transmission rates of the
// mixture model together with the topic mixture weights.
//
// Rates are stored as two-level maps (source -> destination -> alpha). An
// absent entry means the edge has no influence; every mutating operation
// creates missing entries on first touch.
package rates

import "sort"

// TopicRates is the sparse rate model of a single topic.
type TopicRates struct {
	alphas map[int]map[int]float64
	n      int
}

// NewTopicRates creates an empty rate model.
func NewTopicRates() *TopicRates {
	return &TopicRates{alphas: make(map[int]map[int]float64)}
}

// Len returns the number of stored edges.
func (r *TopicRates) Len() int {
	return r.n
}

// Get returns the stored rate of src->dst.
func (r *TopicRates) Get(src, dst int) (float64, bool) {
	a, ok := r.alphas[src][dst]
	return a, ok
}

// Value returns the stored rate of src->dst, or 0 when absent.
func (r *TopicRates) Value(src, dst int) float64 {
	return r.alphas[src][dst]
}

// Set stores alpha for src->dst.
func (r *TopicRates) Set(src, dst int, alpha float64) {
	dsts, ok := r.alphas[src]
	if !ok {
		dsts = make(map[int]float64)
		r.alphas[src] = dsts
	}
	if _, exists := dsts[dst]; !exists {
		r.n++
	}
	dsts[dst] = alpha
}

// Add adds delta to src->dst, creating the entry at zero if absent.
func (r *TopicRates) Add(src, dst int, delta float64) {
	r.Set(src, dst, r.alphas[src][dst]+delta)
}

// Out returns the outgoing rates of src. The map must not be modified.
func (r *TopicRates) Out(src int) map[int]float64 {
	return r.alphas[src]
}

// Each calls fn for every stored edge in (source, destination) order.
func (r *TopicRates) Each(fn func(src, dst int, alpha float64)) {
	srcs := make([]int, 0, len(r.alphas))
	for src := range r.alphas {
		srcs = append(srcs, src)
	}
	sort.Ints(srcs)
	for _, src := range srcs {
		dsts := make([]int, 0, len(r.alphas[src]))
		for dst := range r.alphas[src] {
			dsts = append(dsts, dst)
		}
		sort.Ints(dsts)
		for _, dst := range dsts {
			fn(src, dst, r.alphas[src][dst])
		}
	}
}

// CopyFrom replaces r's contents with a deep copy of o.
func (r *TopicRates) CopyFrom(o *TopicRates) {
	r.Reset()
	for src, dsts := range o.alphas {
		for dst, a := range dsts {
			r.Set(src, dst, a)
		}
	}
}

// AddAll adds every rate of o into r.
func (r *TopicRates) AddAll(o *TopicRates) {
	for src, dsts := range o.alphas {
		for dst, a := range dsts {
			r.Add(src, dst, a)
		}
	}
}

// Scale multiplies every stored rate by f.
func (r *TopicRates) Scale(f float64) {
	for _, dsts := range r.alphas {
		for dst := range dsts {
			dsts[dst] *= f
		}
	}
}

// ProjectedUpdate subtracts step from the matching rates and projects the
// result onto [minAlpha, maxAlpha]. Edges only present in step are created.
func (r *TopicRates) ProjectedUpdate(step *TopicRates, minAlpha, maxAlpha float64) {
	for src, dsts := range step.alphas {
		for dst, s := range dsts {
			r.Set(src, dst, clamp(r.alphas[src][dst]-s, minAlpha, maxAlpha))
		}
	}
}

// Reset removes every stored rate.
func (r *TopicRates) Reset() {
	r.alphas = make(map[int]map[int]float64)
	r.n = 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
