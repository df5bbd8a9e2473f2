package network

import "sort"

// History is a time-ordered series of rate samples for one edge.
type History struct {
	Times  []float64 `json:"times"`
	Alphas []float64 `json:"alphas"`
}

// Len returns the number of samples.
func (h *History) Len() int {
	return len(h.Times)
}

// Set records alpha at time t, keeping samples sorted by time.
func (h *History) Set(t, alpha float64) {
	i := sort.SearchFloat64s(h.Times, t)
	if i < len(h.Times) && h.Times[i] == t {
		h.Alphas[i] = alpha
		return
	}
	h.Times = append(h.Times, 0)
	h.Alphas = append(h.Alphas, 0)
	copy(h.Times[i+1:], h.Times[i:])
	copy(h.Alphas[i+1:], h.Alphas[i:])
	h.Times[i] = t
	h.Alphas[i] = alpha
}

// At returns the sample recorded at exactly t.
func (h *History) At(t float64) (float64, bool) {
	i := sort.SearchFloat64s(h.Times, t)
	if i < len(h.Times) && h.Times[i] == t {
		return h.Alphas[i], true
	}
	return 0, false
}

// Before returns the latest sample recorded strictly before t.
func (h *History) Before(t float64) (float64, bool) {
	i := sort.SearchFloat64s(h.Times, t)
	if i == 0 {
		return 0, false
	}
	return h.Alphas[i-1], true
}

// Latest returns the most recent sample.
func (h *History) Latest() (float64, float64, bool) {
	if len(h.Times) == 0 {
		return 0, 0, false
	}
	last := len(h.Times) - 1
	return h.Times[last], h.Alphas[last], true
}

// AtOrBefore returns the latest sample recorded at or before t.
func (h *History) AtOrBefore(t float64) (float64, float64, bool) {
	i := sort.Search(len(h.Times), func(i int) bool { return h.Times[i] > t })
	if i == 0 {
		return 0, 0, false
	}
	return h.Times[i-1], h.Alphas[i-1], true
}
