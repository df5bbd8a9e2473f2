// Package ranking scores nodes and edges of an inferred network: rate
// aging between steps, time decay of stale estimates and influence
// ranking with weighted PageRank.
package ranking

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/nvandessel/diffmix/internal/network"
)

// PageRankConfig holds configuration for PageRank computation.
type PageRankConfig struct {
	// DampingFactor (d) is the probability of following an edge vs. teleporting.
	// Standard value: 0.85.
	DampingFactor float64

	// MaxIterations is the maximum number of power iteration steps. Default: 100.
	MaxIterations int

	// Tolerance is the convergence threshold. Default: 1e-6.
	Tolerance float64

	// DecayRate discounts an edge by the age of its latest estimate.
	DecayRate float64
}

// DefaultPageRankConfig returns the default PageRank configuration.
func DefaultPageRankConfig() PageRankConfig {
	return PageRankConfig{
		DampingFactor: 0.85,
		MaxIterations: 100,
		Tolerance:     1e-6,
		DecayRate:     DefaultDecayRate,
	}
}

// EdgeWeight returns the weight of src->dst as seen at time at: the latest
// rate estimated at or before at, decayed by its age. Edges without any
// history weigh 1; edges whose history starts after at weigh 0.
func EdgeWeight(net *network.Network, src, dst int, at, rho float64) float64 {
	h := net.History(src, dst)
	if h == nil {
		return 0
	}
	if h.Len() == 0 {
		return 1
	}
	t, alpha, ok := h.AtOrBefore(at)
	if !ok {
		return 0
	}
	return EdgeDecay(alpha, at-t, rho)
}

// ComputePageRank calculates influence scores for all nodes of net at time at.
// Returns a map of node ID to score (0.0-1.0, normalized).
//
// Algorithm: weighted power iteration on the reversed graph, so that
// score flows from infected nodes back to the nodes that infect them:
//  1. Initialize all nodes with score = 1/N
//  2. For each iteration:
//     PR(u) = (1-d)/N + d * (sum(PR(v) * w(u,v)/W(v)) + dangling/N)
//     where W(v) is the total weight of v's in-edges
//  3. Converge when max change < Tolerance
//  4. Normalize to [0, 1] range
func ComputePageRank(ctx context.Context, net *network.Network, at float64, config PageRankConfig) (map[int]float64, error) {
	ids := net.NodeIDs()
	n := len(ids)
	scores := make(map[int]float64, n)
	if n == 0 {
		return scores, nil
	}

	index := make(map[int]int, n)
	for i, id := range ids {
		index[id] = i
	}

	// credit[v] lists (u, w) for every edge u->v: v passes score to u.
	type link struct {
		to     int
		weight float64
	}
	credit := make([][]link, n)
	total := make([]float64, n)
	for _, e := range net.Edges() {
		w := EdgeWeight(net, e.Src, e.Dst, at, config.DecayRate)
		if w <= 0 || e.Src == e.Dst {
			continue
		}
		v := index[e.Dst]
		credit[v] = append(credit[v], link{to: index[e.Src], weight: w})
		total[v] += w
	}

	d := config.DampingFactor
	nf := float64(n)
	cur := make([]float64, n)
	for i := range cur {
		cur[i] = 1.0 / nf
	}
	next := make([]float64, n)

	for iter := 0; iter < config.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("computing pagerank: %w", err)
		}

		dangling := 0.0
		for v := range cur {
			if total[v] == 0 {
				dangling += cur[v]
			}
		}

		base := (1.0-d)/nf + d*dangling/nf
		for i := range next {
			next[i] = base
		}
		for v, links := range credit {
			for _, l := range links {
				next[l.to] += d * cur[v] * l.weight / total[v]
			}
		}

		maxDelta := 0.0
		for i := range next {
			maxDelta = math.Max(maxDelta, math.Abs(next[i]-cur[i]))
		}
		cur, next = next, cur

		if maxDelta < config.Tolerance {
			break
		}
	}

	// Normalize to [0, 1] by dividing by max score.
	if maxScore := floats.Max(cur); maxScore > 0 {
		floats.Scale(1/maxScore, cur)
	}
	for i, id := range ids {
		scores[id] = cur[i]
	}
	return scores, nil
}
