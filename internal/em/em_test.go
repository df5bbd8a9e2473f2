package em

import (
	"context"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/diffmix/internal/cascade"
	"github.com/nvandessel/diffmix/internal/mixture"
	"github.com/nvandessel/diffmix/internal/rates"
	"github.com/nvandessel/diffmix/internal/shaping"
)

func makeCascade(id int, hits ...float64) *cascade.Cascade {
	c := cascade.New(id)
	for i := 0; i+1 < len(hits); i += 2 {
		c.Add(int(hits[i]), hits[i+1])
	}
	c.Sort()
	return c
}

func testCascades() []*cascade.Cascade {
	return []*cascade.Cascade{
		makeCascade(0, 1, 0, 2, 1, 3, 2),       // starts at 0
		makeCascade(1, 1, 5, 2, 5.5),           // starts at 5
		makeCascade(2, 2, 8),                   // single hit
		makeCascade(3, 3, 1, 1, 1.5, 2, 9),     // starts at 1
		makeCascade(4, 1, 9.5, 3, 9.7, 2, 9.9), // starts at 9.5
	}
}

func TestParseSampling(t *testing.T) {
	tests := []struct {
		in      string
		want    Sampling
		wantErr bool
	}{
		{"", SamplingNone, false},
		{"none", SamplingNone, false},
		{"WIN", SamplingWindow, false},
		{"win_exp", SamplingWindowExp, false},
		{"window_exp", SamplingWindowExp, false},
		{"bogus", SamplingNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseSampling(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			if tt.in != "" {
				again, err := ParseSampling(got.String())
				require.NoError(t, err)
				assert.Equal(t, got, again)
			}
		})
	}
}

func TestSelect(t *testing.T) {
	cs := testCascades()

	indices := func(sel []Selection) []int {
		var out []int
		for _, s := range sel {
			out = append(out, s.Index)
		}
		return out
	}

	// At t=10 every cascade but the single-hit one has >1 activation.
	assert.Equal(t, []int{0, 1, 3, 4}, indices(Select(cs, 10, SamplingNone, 0)))

	// At t=1.5 only cascade 0 has two activations strictly before.
	assert.Equal(t, []int{0}, indices(Select(cs, 1.5, SamplingNone, 0)))

	// Window 6 at t=10 keeps cascades starting at or after 4.
	win := Select(cs, 10, SamplingWindow, 6)
	assert.Equal(t, []int{1, 4}, indices(win))
	assert.Equal(t, 5.0, win[0].MinTime)
	assert.Equal(t, []int{1, 4}, indices(Select(cs, 10, SamplingWindowExp, 6)))

	// Boundary is inclusive.
	assert.Equal(t, []int{0, 1, 3, 4}, indices(Select(cs, 10, SamplingWindow, 10)))
}

func TestBatch(t *testing.T) {
	sel := []Selection{{0, 0}, {1, 5}, {3, 1}, {4, 9.5}}
	rng := rand.New(rand.NewPCG(1, 2))

	assert.Equal(t, sel, batch(sel, 0, SamplingNone, 0, 10, rng))
	assert.Equal(t, sel, batch(sel, 10, SamplingNone, 0, 10, rng))

	for _, policy := range []Sampling{SamplingNone, SamplingWindow, SamplingWindowExp} {
		b := batch(sel, 2, policy, 10, 10, rng)
		require.Len(t, b, 2)
		assert.Less(t, b[0].Index, b[1].Index, "ordered and distinct")
		for _, s := range b {
			assert.Contains(t, sel, s)
		}
	}
}

func TestBatch_ExpFavorsRecent(t *testing.T) {
	sel := []Selection{{0, 0}, {1, 99}}
	rng := rand.New(rand.NewPCG(3, 4))

	recent := 0
	for i := 0; i < 200; i++ {
		b := batch(sel, 1, SamplingWindowExp, 5, 100, rng)
		require.Len(t, b, 1)
		if b[0].Index == 1 {
			recent++
		}
	}
	assert.Greater(t, recent, 180)
}

func TestRMSPropStep(t *testing.T) {
	grad := rates.NewStore(1, rates.Bounds{Min: 0, Max: 10})
	grad.Topic(0).Set(1, 2, 2)
	grad.Topic(0).Set(2, 3, -0.5)
	grad.AddMass(0, 0.75, 3)

	r := NewRMSProp(0.9, 1e-8)
	step := r.Step(grad, 0.1)

	// First step: ms = 0.1 g^2, so |step| = 0.1/sqrt(0.1) for any g.
	want := 0.1 / math.Sqrt(0.1)
	assert.InDelta(t, want, step.Topic(0).Value(1, 2), 1e-6)
	assert.InDelta(t, -want, step.Topic(0).Value(2, 3), 1e-6)
	assert.Equal(t, 0.75, step.Weight(0))
	assert.Equal(t, 3.0, step.Count(0))

	// Second identical step: ms = 0.09 g^2 + 0.1 g^2 = 0.19 g^2.
	step = r.Step(grad, 0.1)
	assert.InDelta(t, 0.1/math.Sqrt(0.19), step.Topic(0).Value(1, 2), 1e-6)

	r.Reset()
	step = r.Step(grad, 0.1)
	assert.InDelta(t, want, step.Topic(0).Value(1, 2), 1e-6)
}

func newObjective(k int) *mixture.Function {
	return mixture.NewFunction(mixture.Config{
		Tol:       1e-6,
		InitAlpha: 0.5,
		MinAlpha:  1e-4,
		MaxAlpha:  10,
		Mu:        0.05,
		Topics:    k,
		Shaping:   shaping.Exponential{},
	})
}

func TestOptimize_WeightsStayOnSimplex(t *testing.T) {
	cs := testCascades()
	rng := rand.New(rand.NewPCG(5, 6))

	for _, k := range []int{1, 2, 3, 5} {
		fn := newObjective(k)
		fn.InitParameters(cs, rng)

		cfg := DefaultConfig()
		cfg.Rounds = 4
		cfg.BatchSize = 3
		o := New(cfg, rng)

		for _, at := range []float64{3, 6, 10} {
			require.NoError(t, o.Optimize(context.Background(), fn, cs, o.Select(cs, at), at))

			sum := 0.0
			for _, w := range fn.Weights() {
				assert.GreaterOrEqual(t, w, 0.0)
				sum += w
			}
			assert.InDelta(t, 1.0, sum, 1e-9, "k=%d at=%v", k, at)

			fn.Params().Topic(0).Each(func(_, _ int, a float64) {
				assert.GreaterOrEqual(t, a, 1e-4)
				assert.LessOrEqual(t, a, 10.0)
			})
		}
	}
}

func TestOptimize_ImprovesLikelihood(t *testing.T) {
	cs := []*cascade.Cascade{
		makeCascade(0, 1, 0, 2, 0.2),
		makeCascade(1, 1, 1, 2, 1.1),
		makeCascade(2, 1, 2, 2, 2.3),
	}
	fn := newObjective(1)
	fn.InitParameters(cs, rand.New(rand.NewPCG(7, 7)))

	total := func() float64 {
		s := 0.0
		for i, c := range cs {
			s += fn.JointLikelihood(mixture.Datum{Index: i, Cascade: c, Time: 5}, 0)
		}
		return s
	}

	before := total()
	cfg := DefaultConfig()
	cfg.Rounds = 30
	o := New(cfg, rand.New(rand.NewPCG(8, 8)))
	require.NoError(t, o.Optimize(context.Background(), fn, cs, o.Select(cs, 5), 5))

	assert.Greater(t, total(), before)
	assert.Greater(t, fn.Alpha(1, 2, 0), 0.5, "short delays push the rate up")
}

func TestOptimize_EmptySelectionIsNoOp(t *testing.T) {
	fn := newObjective(2)
	fn.Params().SetWeights([]float64{0.3, 0.7})
	fn.Params().Topic(1).Set(1, 2, 0.4)
	before := fn.Params().Weights()

	o := New(DefaultConfig(), rand.New(rand.NewPCG(1, 1)))
	require.NoError(t, o.Optimize(context.Background(), fn, nil, nil, 1))

	assert.Equal(t, before, fn.Weights())
	assert.Equal(t, 0.4, fn.Params().Topic(1).Value(1, 2))
}

func TestOptimize_ContextCanceled(t *testing.T) {
	cs := testCascades()
	fn := newObjective(1)
	fn.InitParameters(cs, rand.New(rand.NewPCG(1, 1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := New(DefaultConfig(), rand.New(rand.NewPCG(1, 1)))
	err := o.Optimize(ctx, fn, cs, o.Select(cs, 10), 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOptimize_ResetRestartsMoments(t *testing.T) {
	cs := testCascades()
	run := func(o *Optimizer) *mixture.Function {
		fn := newObjective(1)
		fn.InitParameters(cs, rand.New(rand.NewPCG(2, 2)))
		require.NoError(t, o.Optimize(context.Background(), fn, cs, o.Select(cs, 10), 10))
		return fn
	}

	cfg := DefaultConfig()
	cfg.Rounds = 3
	cfg.Sampling = SamplingNone
	cfg.BatchSize = 0
	fresh := run(New(cfg, rand.New(rand.NewPCG(1, 1))))

	o := New(cfg, rand.New(rand.NewPCG(1, 1)))
	run(o)
	o.Reset()
	again := run(o)
	assert.InDelta(t, fresh.Alpha(1, 2, 0), again.Alpha(1, 2, 0), 1e-12)

	stale := run(o)
	assert.NotEqual(t, fresh.Alpha(1, 2, 0), stale.Alpha(1, 2, 0))
}
