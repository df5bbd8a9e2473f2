// Package network provides the directed graph used both as ground truth for
// cascade simulation and as the container for inferred transmission rates.
// Each edge carries a time-ordered history of rate estimates.
package network

import (
	"errors"
	"math/rand/v2"
	"sort"
	"strconv"

	"github.com/nvandessel/diffmix/internal/shaping"
)

// ErrEmptyNetwork is returned when an operation needs at least one node.
var ErrEmptyNetwork = errors.New("network has no nodes")

// Node is a vertex with its display name and hazard family.
type Node struct {
	ID    int           `json:"id"`
	Name  string        `json:"name"`
	Model shaping.Model `json:"model"`
}

// Edge identifies a directed (source, destination) pair.
type Edge struct {
	Src int `json:"src"`
	Dst int `json:"dst"`
}

// Network is a directed graph whose edges hold rate histories.
// It is not safe for concurrent mutation.
type Network struct {
	nodes map[int]Node
	out   map[int]map[int]*History
	edges int
}

// New creates an empty network.
func New() *Network {
	return &Network{
		nodes: make(map[int]Node),
		out:   make(map[int]map[int]*History),
	}
}

// AddNode inserts or replaces a node.
func (n *Network) AddNode(node Node) {
	n.nodes[node.ID] = node
}

// ensureNode adds a node with a default name if it does not exist yet.
func (n *Network) ensureNode(id int) {
	if _, ok := n.nodes[id]; !ok {
		n.nodes[id] = Node{ID: id, Name: strconv.Itoa(id)}
	}
}

// Node returns the node with the given ID.
func (n *Network) Node(id int) (Node, bool) {
	node, ok := n.nodes[id]
	return node, ok
}

// IsNode reports whether id is a node of the network.
func (n *Network) IsNode(id int) bool {
	_, ok := n.nodes[id]
	return ok
}

// Nodes returns all nodes ordered by ID.
func (n *Network) Nodes() []Node {
	nodes := make([]Node, 0, len(n.nodes))
	for _, node := range n.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// NodeIDs returns all node IDs in ascending order.
func (n *Network) NodeIDs() []int {
	ids := make([]int, 0, len(n.nodes))
	for id := range n.nodes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// NodeCount returns the number of nodes.
func (n *Network) NodeCount() int {
	return len(n.nodes)
}

// EdgeCount returns the number of directed edges.
func (n *Network) EdgeCount() int {
	return n.edges
}

// AddEdge adds a directed edge with an empty history. Missing endpoints are
// created with their ID as name. Adding an existing edge is a no-op.
func (n *Network) AddEdge(src, dst int) *History {
	n.ensureNode(src)
	n.ensureNode(dst)

	dsts, ok := n.out[src]
	if !ok {
		dsts = make(map[int]*History)
		n.out[src] = dsts
	}
	h, ok := dsts[dst]
	if !ok {
		h = &History{}
		dsts[dst] = h
		n.edges++
	}
	return h
}

// IsEdge reports whether the directed edge src->dst exists.
func (n *Network) IsEdge(src, dst int) bool {
	_, ok := n.out[src][dst]
	return ok
}

// History returns the rate history of src->dst, or nil if the edge is absent.
func (n *Network) History(src, dst int) *History {
	return n.out[src][dst]
}

// OutNeighbors returns the destinations of src's outgoing edges in ascending order.
func (n *Network) OutNeighbors(src int) []int {
	dsts := make([]int, 0, len(n.out[src]))
	for dst := range n.out[src] {
		dsts = append(dsts, dst)
	}
	sort.Ints(dsts)
	return dsts
}

// Edges returns every edge ordered by (source, destination).
func (n *Network) Edges() []Edge {
	edges := make([]Edge, 0, n.edges)
	for _, src := range n.sortedSources() {
		for _, dst := range n.OutNeighbors(src) {
			edges = append(edges, Edge{Src: src, Dst: dst})
		}
	}
	return edges
}

func (n *Network) sortedSources() []int {
	srcs := make([]int, 0, len(n.out))
	for src := range n.out {
		srcs = append(srcs, src)
	}
	sort.Ints(srcs)
	return srcs
}

// AddRate records alpha for src->dst at time t, creating the edge if needed.
// An existing sample at t is overwritten.
func (n *Network) AddRate(src, dst int, t, alpha float64) {
	n.AddEdge(src, dst).Set(t, alpha)
}

// HasRate reports whether src->dst has a sample at exactly t.
func (n *Network) HasRate(src, dst int, t float64) bool {
	h := n.History(src, dst)
	if h == nil {
		return false
	}
	_, ok := h.At(t)
	return ok
}

// RateAt returns the sample of src->dst recorded at exactly t.
func (n *Network) RateAt(src, dst int, t float64) (float64, bool) {
	h := n.History(src, dst)
	if h == nil {
		return 0, false
	}
	return h.At(t)
}

// RateBefore returns the most recent sample of src->dst recorded strictly before t.
func (n *Network) RateBefore(src, dst int, t float64) (float64, bool) {
	h := n.History(src, dst)
	if h == nil {
		return 0, false
	}
	return h.Before(t)
}

// Times returns every distinct sample time across all edges, ascending.
func (n *Network) Times() []float64 {
	seen := make(map[float64]bool)
	var times []float64
	for _, dsts := range n.out {
		for _, h := range dsts {
			for _, t := range h.Times {
				if !seen[t] {
					seen[t] = true
					times = append(times, t)
				}
			}
		}
	}
	sort.Float64s(times)
	return times
}

// RandomNode picks a node uniformly at random.
func (n *Network) RandomNode(rng *rand.Rand) (int, error) {
	if len(n.nodes) == 0 {
		return 0, ErrEmptyNetwork
	}
	ids := n.NodeIDs()
	return ids[rng.IntN(len(ids))], nil
}
