// Package visualization renders diffusion networks in various output formats.
package visualization

import (
	"fmt"
	"sort"
	"strings"

	"github.com/nvandessel/diffmix/internal/network"
	"github.com/nvandessel/diffmix/internal/shaping"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// ParseFormat maps a format name to a Format.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDOT, FormatJSON:
		return f, nil
	default:
		return "", fmt.Errorf("unknown graph format %q (want dot or json)", s)
	}
}

// nodeColors maps hazard families to DOT colors.
var nodeColors = map[shaping.Model]string{
	shaping.ModelExponential: "steelblue",
	shaping.ModelPowerLaw:    "tomato",
	shaping.ModelRayleigh:    "mediumseagreen",
}

// Enrichment provides optional per-node data to augment the rendered graph.
type Enrichment struct {
	// PageRank maps node IDs to their influence scores (0.0-1.0).
	PageRank map[int]float64
}

// EdgeView is an edge with the rate in effect at the rendered time.
type EdgeView struct {
	Src   int     `json:"source"`
	Dst   int     `json:"target"`
	Time  float64 `json:"time"`
	Alpha float64 `json:"alpha"`
}

// CollectEdges returns the edges of net that have a rate at or before at,
// in (source, destination) order. Edges without any history are included
// with a zero rate.
func CollectEdges(net *network.Network, at float64) []EdgeView {
	var out []EdgeView
	for _, e := range net.Edges() {
		h := net.History(e.Src, e.Dst)
		if h.Len() == 0 {
			out = append(out, EdgeView{Src: e.Src, Dst: e.Dst})
			continue
		}
		t, alpha, ok := h.AtOrBefore(at)
		if !ok {
			continue
		}
		out = append(out, EdgeView{Src: e.Src, Dst: e.Dst, Time: t, Alpha: alpha})
	}
	return out
}

// RenderDOT produces a Graphviz DOT representation of net as seen at time at.
// Edge pen width grows with the transmission rate.
func RenderDOT(net *network.Network, at float64, enrichment *Enrichment) string {
	var b strings.Builder
	b.WriteString("digraph diffmix {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  node [shape=ellipse, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, node := range net.Nodes() {
		color := nodeColors[node.Model]
		if color == "" {
			color = "lightgray"
		}
		tooltip := "model=" + node.Model.String()
		if enrichment != nil && enrichment.PageRank != nil {
			if pr, ok := enrichment.PageRank[node.ID]; ok {
				tooltip += fmt.Sprintf(" pagerank=%.3f", pr)
			}
		}
		fmt.Fprintf(&b, "  %d [label=%q, fillcolor=%q, tooltip=%q];\n",
			node.ID, truncate(node.Name, 40), color, tooltip)
	}
	b.WriteString("\n")

	for _, e := range CollectEdges(net, at) {
		fmt.Fprintf(&b, "  %d -> %d [label=\"%.4g\", penwidth=%.2f];\n",
			e.Src, e.Dst, e.Alpha, penWidth(e.Alpha))
	}

	b.WriteString("}\n")
	return b.String()
}

// RenderJSON produces a JSON-ready graph with nodes and edges arrays.
func RenderJSON(net *network.Network, at float64, enrichment *Enrichment) map[string]any {
	nodes := net.Nodes()
	jsonNodes := make([]map[string]any, 0, len(nodes))
	for _, node := range nodes {
		entry := map[string]any{
			"id":    node.ID,
			"name":  node.Name,
			"model": node.Model.String(),
		}
		if enrichment != nil && enrichment.PageRank != nil {
			if pr, ok := enrichment.PageRank[node.ID]; ok {
				entry["pagerank"] = pr
			}
		}
		jsonNodes = append(jsonNodes, entry)
	}

	edges := CollectEdges(net, at)
	if edges == nil {
		edges = []EdgeView{}
	}
	return map[string]any{
		"time":       at,
		"nodes":      jsonNodes,
		"edges":      edges,
		"node_count": len(jsonNodes),
		"edge_count": len(edges),
	}
}

// TopInfluencers returns up to n node IDs ordered by descending score, ties
// broken by ascending ID.
func TopInfluencers(scores map[int]float64, n int) []int {
	ids := make([]int, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if scores[ids[i]] != scores[ids[j]] {
			return scores[ids[i]] > scores[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if n >= 0 && n < len(ids) {
		ids = ids[:n]
	}
	return ids
}

func penWidth(alpha float64) float64 {
	w := 1 + 4*alpha
	if w > 5 {
		return 5
	}
	return w
}

// truncate shortens a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
