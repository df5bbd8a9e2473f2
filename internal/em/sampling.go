package em

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat/sampleuv"

	"github.com/nvandessel/diffmix/internal/cascade"
)

// Sampling is the cascade selection policy applied at every time step.
type Sampling int

const (
	// SamplingNone selects every cascade with at least two activations
	// before the step.
	SamplingNone Sampling = iota
	// SamplingWindow additionally requires the cascade to have started
	// within the window before the step.
	SamplingWindow
	// SamplingWindowExp filters like SamplingWindow and weights batch draws
	// by exp(-age/window), favoring recent cascades.
	SamplingWindowExp
)

// String returns the config name of the policy.
func (s Sampling) String() string {
	switch s {
	case SamplingWindow:
		return "win"
	case SamplingWindowExp:
		return "win_exp"
	default:
		return "none"
	}
}

// ParseSampling maps a config name to a Sampling policy.
func ParseSampling(s string) (Sampling, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return SamplingNone, nil
	case "win", "window":
		return SamplingWindow, nil
	case "win_exp", "window_exp":
		return SamplingWindowExp, nil
	default:
		return SamplingNone, fmt.Errorf("unknown sampling policy %q (expected none, win or win_exp)", s)
	}
}

// Selection is a cascade chosen for a step, carrying its start time.
type Selection struct {
	Index   int
	MinTime float64
}

// Select returns, in index order, the cascades usable at time at: those
// with more than one activation before at and, for the windowed policies,
// with at - MinTime <= window.
func Select(cascades []*cascade.Cascade, at float64, policy Sampling, window float64) []Selection {
	var out []Selection
	for i, c := range cascades {
		if c.LenBeforeT(at) <= 1 {
			continue
		}
		minTime := c.MinTime()
		if policy != SamplingNone && at-minTime > window {
			continue
		}
		out = append(out, Selection{Index: i, MinTime: minTime})
	}
	return out
}

// batch draws up to size selections without replacement. A non-positive
// size, or one covering every selection, returns sel unchanged. The result
// is ordered by cascade index.
func batch(sel []Selection, size int, policy Sampling, window, at float64, rng *rand.Rand) []Selection {
	if size <= 0 || size >= len(sel) {
		return sel
	}

	picked := make([]int, 0, size)
	if policy == SamplingWindowExp && window > 0 {
		w := make([]float64, len(sel))
		for i, s := range sel {
			w[i] = math.Exp(-(at - s.MinTime) / window)
		}
		ws := sampleuv.NewWeighted(w, rng)
		for len(picked) < size {
			i, ok := ws.Take()
			if !ok {
				break
			}
			picked = append(picked, i)
		}
	} else {
		picked = picked[:size]
		sampleuv.WithoutReplacement(picked, len(sel), rng)
	}

	sort.Ints(picked)
	out := make([]Selection, len(picked))
	for i, p := range picked {
		out[i] = sel[p]
	}
	return out
}
