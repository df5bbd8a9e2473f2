// Package cascade defines the observed (or simulated) diffusion event: an
// ordered list of node activations.
package cascade

import (
	"math"
	"sort"
)

// Hit is a single node activation.
type Hit struct {
	NodeID int     `json:"node_id"`
	Time   float64 `json:"time"`
}

// Cascade is a time-ordered list of node activations for one diffusion event.
// Hits are appended incrementally and ordered by Sort once complete.
type Cascade struct {
	ID   int   `json:"id"`
	Hits []Hit `json:"hits"`

	index map[int]int // node ID -> position in Hits
}

// New creates an empty cascade with the given ID.
func New(id int) *Cascade {
	return &Cascade{ID: id, index: make(map[int]int)}
}

// Add appends an activation. A node that already activated keeps its
// earliest time.
func (c *Cascade) Add(nodeID int, t float64) {
	if c.index == nil {
		c.reindex()
	}
	if i, ok := c.index[nodeID]; ok {
		if t < c.Hits[i].Time {
			c.Hits[i].Time = t
		}
		return
	}
	c.index[nodeID] = len(c.Hits)
	c.Hits = append(c.Hits, Hit{NodeID: nodeID, Time: t})
}

// Sort orders the activations by non-decreasing time. Ties keep insertion order.
func (c *Cascade) Sort() {
	sort.SliceStable(c.Hits, func(i, j int) bool {
		return c.Hits[i].Time < c.Hits[j].Time
	})
	c.reindex()
}

func (c *Cascade) reindex() {
	c.index = make(map[int]int, len(c.Hits))
	for i, h := range c.Hits {
		c.index[h.NodeID] = i
	}
}

// Len returns the number of activations.
func (c *Cascade) Len() int {
	return len(c.Hits)
}

// LenBeforeT returns the number of activations strictly before t.
func (c *Cascade) LenBeforeT(t float64) int {
	n := 0
	for _, h := range c.Hits {
		if h.Time < t {
			n++
		}
	}
	return n
}

// MinTime returns the earliest activation time, or +Inf for an empty cascade.
func (c *Cascade) MinTime() float64 {
	minTime := math.Inf(1)
	for _, h := range c.Hits {
		if h.Time < minTime {
			minTime = h.Time
		}
	}
	return minTime
}

// Has reports whether nodeID activated in this cascade.
func (c *Cascade) Has(nodeID int) bool {
	if c.index == nil {
		c.reindex()
	}
	_, ok := c.index[nodeID]
	return ok
}

// Before returns the activations strictly before t, in cascade order.
func (c *Cascade) Before(t float64) []Hit {
	hits := make([]Hit, 0, len(c.Hits))
	for _, h := range c.Hits {
		if h.Time < t {
			hits = append(hits, h)
		}
	}
	return hits
}
