// Package constants provides named constants used throughout the diffmix codebase.
// This centralizes magic numbers for better maintainability and documentation.
package constants

// Rate bounds and model defaults
const (
	// DefaultInitAlpha is the rate assigned to an edge the first time a
	// cascade shows its source activating before its destination.
	DefaultInitAlpha = 0.01

	// DefaultMinAlpha is the lower clamp for every persisted rate.
	// Inferred edges at or below this value are dropped.
	DefaultMinAlpha = 1e-4

	// DefaultMaxAlpha is the upper clamp for every persisted rate.
	DefaultMaxAlpha = 100.0

	// DefaultTolerance floors the instantaneous hazard inside the log term
	// of the cascade risk so that unexplained infections stay finite.
	DefaultTolerance = 1e-3

	// DefaultMu is the step-size scale applied to RMSProp-normalized gradients.
	DefaultMu = 0.01

	// DefaultDelta is the minimum infection delay of the power-law hazard.
	DefaultDelta = 1.0

	// DefaultTopics is the default number of mixture components.
	DefaultTopics = 1

	// InitAlphaJitter is the relative spread of the per-topic initial rate.
	// Without it every topic starts identical and the mixture never separates.
	InitAlphaJitter = 0.1
)

// Optimizer defaults
const (
	// DefaultRounds is the number of EM rounds run per time step.
	DefaultRounds = 10

	// DefaultRMSPropDecay is the forgetting factor of the running
	// second-moment estimate.
	DefaultRMSPropDecay = 0.9

	// DefaultRMSPropEpsilon keeps the adaptive step away from division by zero.
	DefaultRMSPropEpsilon = 1e-8

	// DefaultSamplingWindow is the window length for windowed cascade sampling.
	DefaultSamplingWindow = 100.0
)

// Inference materialization constants
const (
	// TopicWeightFloor is the mixture weight a topic must exceed to be
	// eligible as the dominant topic of an inferred edge.
	TopicWeightFloor = 0.0001

	// DefaultAging multiplies an inferred rate that was not re-confirmed
	// by the latest step.
	DefaultAging = 1.0
)

// Simulation constants
const (
	// NegligibleRate is the transmission rate below which an edge is
	// ignored by the cascade simulator.
	NegligibleRate = 1e-9

	// DefaultTotalTime is the default observation horizon for synthetic cascades.
	DefaultTotalTime = 10.0

	// DefaultWindow is the default per-cascade activation window.
	DefaultWindow = 10.0

	// MinCascadeLen is the minimum number of activations a cascade needs
	// to be usable for inference.
	MinCascadeLen = 2
)
