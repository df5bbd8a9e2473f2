package simulation

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvandessel/diffmix/internal/cascade"
	"github.com/nvandessel/diffmix/internal/network"
	"github.com/nvandessel/diffmix/internal/shaping"
)

// fixedRates is a RateSource backed by per-topic maps.
type fixedRates struct {
	weights []float64
	alphas  []map[network.Edge]float64
}

func (f fixedRates) Alpha(src, dst, topic int) float64 {
	return f.alphas[topic][network.Edge{Src: src, Dst: dst}]
}

func (f fixedRates) Weights() []float64 {
	return f.weights
}

func singleTopic(alphas map[network.Edge]float64) fixedRates {
	return fixedRates{weights: []float64{1}, alphas: []map[network.Edge]float64{alphas}}
}

func chainNetwork() *network.Network {
	net := network.New()
	for id, name := range map[int]string{1: "A", 2: "B", 3: "C"} {
		net.AddNode(network.Node{ID: id, Name: name})
	}
	net.AddEdge(1, 2)
	net.AddEdge(2, 3)
	return net
}

func assertWellFormed(t *testing.T, c *cascade.Cascade) {
	t.Helper()
	require.GreaterOrEqual(t, c.Len(), 2)
	seen := make(map[int]bool)
	for i, h := range c.Hits {
		assert.False(t, seen[h.NodeID], "node %d activated twice", h.NodeID)
		seen[h.NodeID] = true
		if i > 0 {
			assert.LessOrEqual(t, c.Hits[i-1].Time, h.Time)
		}
	}
}

func TestPendingQueue_DecreaseKey(t *testing.T) {
	q := newPendingQueue()
	q.add(1, 5)
	q.add(2, 3)
	q.add(3, 4)

	got, ok := q.get(1)
	require.True(t, ok)
	assert.Equal(t, 5.0, got)

	q.update(1, 1)
	assert.Equal(t, 1, q.peek().node)

	var order []int
	for q.Len() > 0 {
		order = append(order, q.next().node)
	}
	assert.Equal(t, []int{1, 2, 3}, order)

	_, ok = q.get(1)
	assert.False(t, ok)
}

func TestGenCascadeFrom_Chain(t *testing.T) {
	net := chainNetwork()
	rates := singleTopic(map[network.Edge]float64{{Src: 1, Dst: 2}: 1, {Src: 2, Dst: 3}: 1})
	sim := New(net, rates, Config{TotalTime: 10, Window: 10, Delta: 1}, rand.New(rand.NewPCG(42, 42)))

	full := 0
	for i := 0; i < 50; i++ {
		c, err := sim.GenCascadeFrom(context.Background(), i, 1)
		require.NoError(t, err)
		assertWellFormed(t, c)

		assert.Equal(t, 1, c.Hits[0].NodeID, "seed activates first")
		assert.Equal(t, 2, c.Hits[1].NodeID)
		assert.Less(t, c.Hits[0].Time, c.Hits[1].Time)
		if c.Len() == 3 {
			full++
			assert.Equal(t, 3, c.Hits[2].NodeID)
			assert.Less(t, c.Hits[1].Time, c.Hits[2].Time)
		}
		assert.Less(t, c.Hits[c.Len()-1].Time, 10.0)
	}
	assert.Greater(t, full, 10)
}

func TestGenCascade_Properties(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 9))
	net := network.New()
	alphas := make(map[network.Edge]float64)
	models := []shaping.Model{shaping.ModelExponential, shaping.ModelPowerLaw, shaping.ModelRayleigh}
	for id := 0; id < 20; id++ {
		net.AddNode(network.Node{ID: id, Name: "n", Model: models[id%3]})
	}
	for src := 0; src < 20; src++ {
		for dst := 0; dst < 20; dst++ {
			if src != dst && rng.Float64() < 0.2 {
				net.AddEdge(src, dst)
				alphas[network.Edge{Src: src, Dst: dst}] = 0.2 + rng.Float64()
			}
		}
	}

	sim := New(net, singleTopic(alphas), Config{TotalTime: 20, Window: 10, Delta: 0.5}, rng)
	for i := 0; i < 100; i++ {
		c, err := sim.GenCascade(context.Background(), i)
		require.NoError(t, err)
		assertWellFormed(t, c)
		assert.Equal(t, i, c.ID)
	}
}

func TestGenCascade_PowerLawRespectsMinimumDelay(t *testing.T) {
	net := network.New()
	net.AddNode(network.Node{ID: 1, Name: "a", Model: shaping.ModelPowerLaw})
	net.AddNode(network.Node{ID: 2, Name: "b", Model: shaping.ModelPowerLaw})
	net.AddEdge(1, 2)
	rates := singleTopic(map[network.Edge]float64{{Src: 1, Dst: 2}: 2})
	sim := New(net, rates, Config{TotalTime: 100, Window: 1000, Delta: 1.5}, rand.New(rand.NewPCG(3, 3)))

	for i := 0; i < 30; i++ {
		c, err := sim.GenCascadeFrom(context.Background(), i, 1)
		require.NoError(t, err)
		require.Equal(t, 2, c.Len())
		assert.GreaterOrEqual(t, c.Hits[1].Time-c.Hits[0].Time, 1.5)
	}
}

func TestGenCascade_SamplesTopicFromWeights(t *testing.T) {
	net := chainNetwork()
	rates := fixedRates{
		weights: []float64{0, 1},
		alphas: []map[network.Edge]float64{
			{},
			{{Src: 1, Dst: 2}: 5},
		},
	}
	sim := New(net, rates, Config{TotalTime: 10, Window: 10, MaxAttempts: 1000}, rand.New(rand.NewPCG(5, 5)))

	c, err := sim.GenCascadeFrom(context.Background(), 0, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())
}

func TestGenCascade_HistoryOverridesLearnedRate(t *testing.T) {
	net := chainNetwork()
	net.AddRate(1, 2, -1, 0) // recorded before any seed time: no transmission
	rates := singleTopic(map[network.Edge]float64{{Src: 1, Dst: 2}: 5})
	sim := New(net, rates, Config{TotalTime: 10, Window: 10, MaxAttempts: 20}, rand.New(rand.NewPCG(6, 6)))

	_, err := sim.GenCascadeFrom(context.Background(), 0, 1)
	assert.ErrorIs(t, err, ErrNoCascade)
}

func TestGenCascade_Errors(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))

	empty := New(network.New(), singleTopic(nil), DefaultConfig(), rng)
	_, err := empty.GenCascade(context.Background(), 0)
	assert.ErrorIs(t, err, network.ErrEmptyNetwork)

	sim := New(chainNetwork(), singleTopic(map[network.Edge]float64{{Src: 1, Dst: 2}: 1}), DefaultConfig(), rng)
	_, err = sim.GenCascadeFrom(context.Background(), 0, 99)
	assert.Error(t, err)

	// Node 3 has no out-edges, so it can never produce a cascade.
	cfg := DefaultConfig()
	cfg.MaxAttempts = 5
	sim = New(chainNetwork(), singleTopic(map[network.Edge]float64{}), cfg, rng)
	_, err = sim.GenCascadeFrom(context.Background(), 0, 3)
	assert.ErrorIs(t, err, ErrNoCascade)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sim.GenCascadeFrom(ctx, 0, 3)
	assert.ErrorIs(t, err, context.Canceled)
}
