package inference

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/diffmix/internal/cascade"
	"github.com/nvandessel/diffmix/internal/em"
	"github.com/nvandessel/diffmix/internal/mixture"
	"github.com/nvandessel/diffmix/internal/network"
	"github.com/nvandessel/diffmix/internal/shaping"
	"github.com/nvandessel/diffmix/internal/simulation"
)

type recordingSink struct {
	begins int
	nodes  []network.Node
	topics int
	steps  []StepResult
}

func (r *recordingSink) Begin(_ context.Context, nodes []network.Node, topics int) error {
	r.begins++
	r.nodes = nodes
	r.topics = topics
	return nil
}

func (r *recordingSink) RecordStep(_ context.Context, res StepResult) error {
	r.steps = append(r.steps, res)
	return nil
}

func testConfig(topics int, aging float64) Config {
	emCfg := em.DefaultConfig()
	emCfg.Rounds = 5
	return Config{
		Mixture: mixture.Config{
			Tol:       1e-6,
			InitAlpha: 0.5,
			MinAlpha:  1e-4,
			MaxAlpha:  10,
			Mu:        0.05,
			Topics:    topics,
			Shaping:   shaping.Exponential{},
		},
		EM:         emCfg,
		Simulation: simulation.Config{TotalTime: 10, Window: 10, Delta: 1},
		Aging:      aging,
	}
}

func chain() *network.Network {
	net := network.New()
	net.AddNode(network.Node{ID: 1, Name: "A"})
	net.AddNode(network.Node{ID: 2, Name: "B"})
	net.AddNode(network.Node{ID: 3, Name: "C"})
	net.AddEdge(1, 2)
	net.AddEdge(2, 3)
	return net
}

func TestMaterialize_Aging(t *testing.T) {
	m := NewModel(testConfig(1, 0.5), chain(), rand.New(rand.NewPCG(1, 1)))
	p := m.Function().Params()
	p.SetWeights([]float64{1})
	p.Topic(0).Set(1, 2, 0.4)
	p.Topic(0).Set(2, 3, 0.00015)

	first := m.materialize(1, 0, 1)
	assert.Len(t, first.Inferred, 2)
	got, ok := m.InferredNetwork().RateAt(1, 2, 1)
	require.True(t, ok)
	assert.Equal(t, 0.4, got)

	// Same raw rate at the next step: aged.
	m.materialize(2, 1, 2)
	got, ok = m.InferredNetwork().RateAt(1, 2, 2)
	require.True(t, ok)
	assert.InDelta(t, 0.2, got, 1e-12)

	// 0.00015 * 0.5 falls to the minimum rate and is dropped.
	assert.False(t, m.InferredNetwork().HasRate(2, 3, 2))

	// Aged value differs from the raw rate, so the third step keeps it raw.
	m.materialize(3, 2, 3)
	got, _ = m.InferredNetwork().RateAt(1, 2, 3)
	assert.Equal(t, 0.4, got)
}

func TestMaterialize_AgingClampsToMax(t *testing.T) {
	m := NewModel(testConfig(1, 3), chain(), rand.New(rand.NewPCG(1, 1)))
	p := m.Function().Params()
	p.SetWeights([]float64{1})
	p.Topic(0).Set(1, 2, 4)

	m.materialize(1, 0, 1)
	m.materialize(2, 1, 2)
	got, ok := m.InferredNetwork().RateAt(1, 2, 2)
	require.True(t, ok)
	assert.Equal(t, 10.0, got)
}

func TestMaterialize_KeepsExistingSample(t *testing.T) {
	m := NewModel(testConfig(1, 1), chain(), rand.New(rand.NewPCG(1, 1)))
	p := m.Function().Params()
	p.SetWeights([]float64{1})
	p.Topic(0).Set(1, 2, 0.4)
	m.InferredNetwork().AddRate(1, 2, 1, 0.9)

	res := m.materialize(1, 0, 1)
	assert.Empty(t, res.Inferred)
	got, _ := m.InferredNetwork().RateAt(1, 2, 1)
	assert.Equal(t, 0.9, got)
}

func TestMaterialize_DominantTopic(t *testing.T) {
	m := NewModel(testConfig(2, 1), chain(), rand.New(rand.NewPCG(1, 1)))
	p := m.Function().Params()
	p.SetWeights([]float64{0.5, 0.5})
	p.Topic(0).Set(1, 2, 0.2)
	p.Topic(1).Set(1, 2, 0.8)
	p.Topic(0).Set(2, 3, 5)
	p.Topic(1).Set(2, 3, 0.00001) // at the floor: not listed for topic 1

	res := m.materialize(1, 0, 1)
	got, _ := m.InferredNetwork().RateAt(1, 2, 1)
	assert.Equal(t, 0.8, got)
	got, _ = m.InferredNetwork().RateAt(2, 3, 1)
	assert.Equal(t, 5.0, got)

	require.Len(t, res.TopicEdges, 2)
	assert.Len(t, res.TopicEdges[0], 2)
	assert.Equal(t, []EdgeRate{{Src: 1, Dst: 2, Time: 1, Alpha: 0.8}}, res.TopicEdges[1])
}

func TestMaterialize_IgnoresNegligibleTopics(t *testing.T) {
	m := NewModel(testConfig(2, 1), chain(), rand.New(rand.NewPCG(1, 1)))
	p := m.Function().Params()
	p.SetWeights([]float64{0.99995, 0.00005})
	p.Topic(0).Set(1, 2, 0.3)
	p.Topic(1).Set(1, 2, 9)

	m.materialize(1, 0, 1)
	got, _ := m.InferredNetwork().RateAt(1, 2, 1)
	assert.Equal(t, 0.3, got)
}

func TestAddCascade_SortsHits(t *testing.T) {
	model := NewModel(testConfig(1, 1), chain(), rand.New(rand.NewPCG(2, 2)))

	c := cascade.New(0)
	c.Add(3, 2.5)
	c.Add(1, 0)
	c.Add(2, 1)
	model.AddCascade(c)

	hits := model.Cascades()[0].Hits
	require.Len(t, hits, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{hits[0].NodeID, hits[1].NodeID, hits[2].NodeID})

	// Every earlier activation is seen as a parent once the hits are ordered.
	fn := model.Function()
	fn.InitParameters(model.Cascades(), rand.New(rand.NewPCG(3, 3)))
	for _, e := range [][2]int{{1, 2}, {1, 3}, {2, 3}} {
		assert.Greater(t, fn.Alpha(e[0], e[1], 0), 0.0, "edge %v", e)
	}
	assert.Zero(t, fn.Alpha(3, 1, 0))
}

func TestInfer_TooFewSteps(t *testing.T) {
	m := NewModel(testConfig(1, 1), chain(), rand.New(rand.NewPCG(1, 1)))
	assert.ErrorIs(t, m.Infer(context.Background(), []float64{1}), ErrTooFewSteps)
	assert.Error(t, m.Infer(context.Background(), []float64{5, 1}))
}

func TestInfer_EndToEnd(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewPCG(11, 12))

	cfg := testConfig(1, 1)
	cfg.Mixture.MinAlpha = 0.5
	cfg.Mixture.MaxAlpha = 1
	truth := NewModel(cfg, chain(), rng)
	truth.SeedGroundTruth()
	cascades, err := truth.GenCascades(ctx, 40)
	require.NoError(t, err)
	require.Len(t, cascades, 40)

	gtSink := &recordingSink{}
	require.NoError(t, truth.GroundTruth(ctx, gtSink))
	require.Len(t, gtSink.steps, 1)
	assert.Len(t, gtSink.steps[0].Inferred, 2)
	assert.True(t, truth.Network().HasRate(1, 2, 0))

	model := NewModel(testConfig(2, 1), chain(), rng)
	for _, c := range cascades {
		model.AddCascade(c)
	}

	sink := &recordingSink{}
	require.NoError(t, model.Infer(ctx, []float64{0, 5, 10}, sink))

	assert.Equal(t, 1, sink.begins)
	assert.Equal(t, 2, sink.topics)
	assert.Len(t, sink.nodes, 3)
	require.Len(t, sink.steps, 2)
	for i, step := range sink.steps {
		assert.Equal(t, i+1, step.Index)
		sum := 0.0
		for _, w := range step.Weights {
			assert.GreaterOrEqual(t, w, 0.0)
			sum += w
		}
		assert.InDelta(t, 1.0, sum, 1e-9)
	}
	assert.Equal(t, 10.0, sink.steps[1].Time)

	assert.True(t, model.InferredNetwork().IsEdge(1, 2))
	assert.True(t, model.InferredNetwork().HasRate(1, 2, 10))
	assert.False(t, model.InferredNetwork().IsEdge(3, 1), "never observed")
	for _, e := range model.InferredNetwork().Edges() {
		h := model.InferredNetwork().History(e.Src, e.Dst)
		for _, a := range h.Alphas {
			assert.Greater(t, a, 1e-4)
			assert.LessOrEqual(t, a, 10.0)
		}
	}
}

func TestGenCascade_FromLearnedRates(t *testing.T) {
	m := NewModel(testConfig(1, 1), chain(), rand.New(rand.NewPCG(2, 3)))
	p := m.Function().Params()
	p.SetWeights([]float64{1})
	p.Topic(0).Set(1, 2, 1)
	p.Topic(0).Set(2, 3, 1)

	c, err := m.GenCascade(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 7, c.ID)
	assert.GreaterOrEqual(t, c.Len(), 2)
}
