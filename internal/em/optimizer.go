// Package em drives the mixture model through expectation-maximization
// rounds at a single time step: cascade selection, responsibility
// computation, gradient accumulation and the adaptive projected update.
package em

import (
	"context"
	"log/slog"
	"math/rand/v2"

	"github.com/nvandessel/diffmix/internal/cascade"
	"github.com/nvandessel/diffmix/internal/constants"
	"github.com/nvandessel/diffmix/internal/logging"
	"github.com/nvandessel/diffmix/internal/mixture"
	"github.com/nvandessel/diffmix/internal/rates"
)

// Objective is the likelihood the optimizer maximizes. *mixture.Function
// satisfies it.
type Objective interface {
	Expect(d mixture.Datum) []float64
	Gradient(d mixture.Datum) *rates.Store
	Maximize()
	Params() *rates.Store
	StepSize() float64
}

// Config controls the EM rounds run at every step.
type Config struct {
	// Rounds is the number of EM rounds per step.
	Rounds int

	// BatchSize caps the cascades used per round. 0 uses all selected.
	BatchSize int

	// Sampling is the cascade selection policy and Window its length.
	Sampling Sampling
	Window   float64

	// RMSPropDecay and RMSPropEpsilon configure the adaptive step.
	RMSPropDecay   float64
	RMSPropEpsilon float64
}

// DefaultConfig returns the default EM settings.
func DefaultConfig() Config {
	return Config{
		Rounds:         constants.DefaultRounds,
		Sampling:       SamplingNone,
		Window:         constants.DefaultSamplingWindow,
		RMSPropDecay:   constants.DefaultRMSPropDecay,
		RMSPropEpsilon: constants.DefaultRMSPropEpsilon,
	}
}

// Optimizer runs EM rounds over selected cascades. It keeps the RMSProp
// moments across steps and is not safe for concurrent use.
type Optimizer struct {
	cfg       Config
	rms       *RMSProp
	rng       *rand.Rand
	logger    *slog.Logger
	decisions *logging.DecisionLogger
}

// New creates an optimizer drawing batches from rng.
func New(cfg Config, rng *rand.Rand) *Optimizer {
	if cfg.Rounds <= 0 {
		cfg.Rounds = 1
	}
	return &Optimizer{
		cfg: cfg,
		rms: NewRMSProp(cfg.RMSPropDecay, cfg.RMSPropEpsilon),
		rng: rng,
	}
}

// SetLogger sets the structured logger and decision logger for observability.
func (o *Optimizer) SetLogger(logger *slog.Logger, decisions *logging.DecisionLogger) {
	o.logger = logger
	o.decisions = decisions
}

// Config returns the optimizer configuration.
func (o *Optimizer) Config() Config {
	return o.cfg
}

// Reset forgets the RMSProp moments. Call it whenever the parameters are
// reinitialized.
func (o *Optimizer) Reset() {
	o.rms.Reset()
}

// Select applies the configured selection policy at time at.
func (o *Optimizer) Select(cascades []*cascade.Cascade, at float64) []Selection {
	return Select(cascades, at, o.cfg.Sampling, o.cfg.Window)
}

// Optimize runs the configured number of rounds at time at over the
// selected cascades. Each round resets the live counters, accumulates
// responsibility-weighted gradients of a batch, applies the RMSProp step
// through the projected update and renormalizes the mixture weights.
//
// An empty selection leaves the parameters untouched. The only error is
// the context's.
func (o *Optimizer) Optimize(ctx context.Context, fn Objective, cascades []*cascade.Cascade, sel []Selection, at float64) error {
	if len(sel) == 0 {
		if o.logger != nil {
			o.logger.Debug("no cascades selected", "time", at)
		}
		return nil
	}

	params := fn.Params()
	acc := rates.NewStore(params.Topics(), params.Bounds())

	for round := 0; round < o.cfg.Rounds; round++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		b := batch(sel, o.cfg.BatchSize, o.cfg.Sampling, o.cfg.Window, at, o.rng)

		fn.Maximize()
		acc.Reset()
		for _, s := range b {
			d := mixture.Datum{Index: s.Index, Cascade: cascades[s.Index], Time: at}
			resp := fn.Expect(d)
			if o.logger != nil {
				o.logger.Log(ctx, logging.LevelTrace, "responsibilities",
					"cascade", s.Index,
					"round", round,
					"resp", resp)
			}
			acc.Add(fn.Gradient(d))
		}

		step := o.rms.Step(acc, fn.StepSize())
		params.ProjectedUpdate(step)
		params.NormalizeWeights()

		if o.logger != nil {
			o.logger.Debug("em round",
				"time", at,
				"round", round,
				"batch", len(b),
				"weights", params.Weights())
		}
	}

	o.decisions.Log(map[string]any{
		"event":    "em_step",
		"time":     at,
		"selected": len(sel),
		"rounds":   o.cfg.Rounds,
		"weights":  params.Weights(),
	})
	return nil
}
