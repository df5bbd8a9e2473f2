package visualization

import (
	"strings"
	"testing"

	"github.com/nvandessel/diffmix/internal/network"
	"github.com/nvandessel/diffmix/internal/shaping"
)

func testNetwork() *network.Network {
	net := network.New()
	net.AddNode(network.Node{ID: 1, Name: "alpha"})
	net.AddNode(network.Node{ID: 2, Name: "beta", Model: shaping.ModelPowerLaw})
	net.AddNode(network.Node{ID: 3, Name: "gamma", Model: shaping.ModelRayleigh})
	net.AddRate(1, 2, 5, 0.25)
	net.AddRate(1, 2, 10, 0.5)
	net.AddRate(2, 3, 10, 0.75)
	return net
}

func TestRenderDOT(t *testing.T) {
	dot := RenderDOT(testNetwork(), 10, &Enrichment{PageRank: map[int]float64{1: 1.0}})

	if !strings.HasPrefix(dot, "digraph diffmix {") {
		t.Errorf("expected digraph header, got:\n%s", dot)
	}
	for _, want := range []string{
		`1 [label="alpha", fillcolor="steelblue"`,
		`2 [label="beta", fillcolor="tomato"`,
		`3 [label="gamma", fillcolor="mediumseagreen"`,
		`pagerank=1.000`,
		`1 -> 2 [label="0.5"`,
		`2 -> 3 [label="0.75"`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
	if !strings.HasSuffix(dot, "}\n") {
		t.Error("expected closing brace")
	}
}

func TestRenderDOT_EarlierTime(t *testing.T) {
	dot := RenderDOT(testNetwork(), 7, nil)

	if !strings.Contains(dot, `1 -> 2 [label="0.25"`) {
		t.Errorf("expected the rate recorded at time 5:\n%s", dot)
	}
	if strings.Contains(dot, "2 -> 3") {
		t.Errorf("edge without a rate at time 7 should be omitted:\n%s", dot)
	}
}

func TestRenderJSON(t *testing.T) {
	out := RenderJSON(testNetwork(), 10, nil)

	if out["node_count"] != 3 {
		t.Errorf("node_count = %v, want 3", out["node_count"])
	}
	if out["edge_count"] != 2 {
		t.Errorf("edge_count = %v, want 2", out["edge_count"])
	}
	edges := out["edges"].([]EdgeView)
	if edges[0].Alpha != 0.5 || edges[0].Time != 10 {
		t.Errorf("first edge = %+v, want alpha 0.5 at time 10", edges[0])
	}
}

func TestRenderJSON_EmptyNetwork(t *testing.T) {
	out := RenderJSON(network.New(), 0, nil)
	if out["edge_count"] != 0 {
		t.Errorf("edge_count = %v, want 0", out["edge_count"])
	}
	if edges := out["edges"].([]EdgeView); edges == nil {
		t.Error("expected a non-nil edges slice")
	}
}

func TestTopInfluencers(t *testing.T) {
	scores := map[int]float64{1: 0.2, 2: 1.0, 3: 0.2, 4: 0.5}

	got := TopInfluencers(scores, 3)
	want := []int{2, 4, 1}
	if len(got) != len(want) {
		t.Fatalf("TopInfluencers() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("TopInfluencers()[%d] = %d, want %d", i, got[i], want[i])
		}
	}

	if all := TopInfluencers(scores, -1); len(all) != 4 {
		t.Errorf("expected all 4 nodes, got %v", all)
	}
}

func TestParseFormat(t *testing.T) {
	if f, err := ParseFormat("DOT"); err != nil || f != FormatDOT {
		t.Errorf("ParseFormat(DOT) = %v, %v", f, err)
	}
	if _, err := ParseFormat("html"); err == nil {
		t.Error("expected error for html")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 40); got != "short" {
		t.Errorf("truncate(short) = %q", got)
	}
	if got := truncate(strings.Repeat("x", 50), 10); got != "xxxxxxx..." {
		t.Errorf("truncate(long) = %q", got)
	}
}
