package inference

import (
	"context"

	"github.com/nvandessel/diffmix/internal/network"
)

// EdgeRate is one (source, destination, time, alpha) record.
type EdgeRate struct {
	Src   int     `json:"src"`
	Dst   int     `json:"dst"`
	Time  float64 `json:"time"`
	Alpha float64 `json:"alpha"`
}

// StepResult is everything materialized for one completed time step.
type StepResult struct {
	// Index is the position of the step in the step sequence; 0 is used
	// for ground truth.
	Index int `json:"index"`
	Time  float64 `json:"time"`

	// Weights are the mixture weights after the step's EM rounds.
	Weights []float64 `json:"weights"`

	// TopicEdges holds, per topic, every edge whose clamped rate exceeds
	// the minimum rate.
	TopicEdges [][]EdgeRate `json:"topic_edges"`

	// Inferred holds the rates persisted into the inferred network at
	// this step, after aging.
	Inferred []EdgeRate `json:"inferred"`
}

// Sink receives inference output as it is produced.
type Sink interface {
	// Begin is called once before the first step with the node listing.
	Begin(ctx context.Context, nodes []network.Node, topics int) error

	// RecordStep is called once per completed step, in time order.
	RecordStep(ctx context.Context, res StepResult) error
}
