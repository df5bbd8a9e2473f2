package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nvandessel/diffmix/internal/cascade"
	"github.com/nvandessel/diffmix/internal/inference"
	"github.com/nvandessel/diffmix/internal/netio"
	"github.com/nvandessel/diffmix/internal/store"
)

func newInferCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Infer a time-varying diffusion network from cascades",
		Long: `Fit the topic mixture to a cascades file over a sequence of time steps.

Writes one edge list per topic (<out>_topic_<k>.txt), the inferred network
with its full rate histories (<out>_network.txt) and, with --db, the whole
run to a SQLite database.

Examples:
  diffmix infer --cascades cascades.txt --out results/run
  diffmix infer --cascades cascades.txt --steps 0,5,10,20 --db runs.db`,
		RunE: runInfer,
	}

	cmd.Flags().String("cascades", "", "Cascades file (required)")
	cmd.Flags().String("out", "inferred", "Output path prefix")
	cmd.Flags().String("steps", "", "Comma-separated time steps (overrides --step-count)")
	cmd.Flags().Int("step-count", 10, "Number of evenly spaced steps after time 0")
	cmd.Flags().Float64("horizon", 0, "Last time step (default: latest activation)")
	cmd.Flags().String("db", "", "SQLite database to record the run in")
	cmd.MarkFlagRequired("cascades")

	return cmd
}

func runInfer(cmd *cobra.Command, args []string) error {
	cascadesPath, _ := cmd.Flags().GetString("cascades")
	out, _ := cmd.Flags().GetString("out")
	stepsFlag, _ := cmd.Flags().GetString("steps")
	stepCount, _ := cmd.Flags().GetInt("step-count")
	horizon, _ := cmd.Flags().GetFloat64("horizon")
	dbPath, _ := cmd.Flags().GetString("db")
	jsonOut, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ic, err := cfg.InferenceConfig()
	if err != nil {
		return err
	}
	hazard, err := cfg.HazardModel()
	if err != nil {
		return err
	}
	logger, decisions := newLoggers(cmd, cfg)
	defer decisions.Close()

	f, err := os.Open(cascadesPath)
	if err != nil {
		return fmt.Errorf("failed to open cascades: %w", err)
	}
	net, cascades, err := netio.LoadCascades(f, hazard)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to load cascades: %w", err)
	}

	steps, err := buildSteps(stepsFlag, stepCount, horizon, cascades)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	model := inference.NewModel(ic, net, newRand(cfg.Simulation.Seed))
	model.SetLogger(logger, decisions)
	for _, c := range cascades {
		model.AddCascade(c)
	}

	topicWriter := netio.NewTopicEdgeWriter(out + "_topic")
	sinks := []inference.Sink{topicWriter}

	var rec *store.RunRecorder
	if dbPath != "" {
		s, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer s.Close()
		rec = s.NewRun(store.KindInfer, cascadesPath)
		sinks = append(sinks, rec)
	}

	if err := model.Infer(ctx, steps, sinks...); err != nil {
		return fmt.Errorf("inference failed: %w", err)
	}

	var runID string
	if rec != nil {
		runID = rec.ID()
	}

	networkPath := out + "_network.txt"
	inferred := model.InferredNetwork()
	if err := writeFile(networkPath, func(w io.Writer) error {
		return netio.SaveNetwork(w, inferred)
	}); err != nil {
		return err
	}

	topicFiles := make([]string, ic.Mixture.Topics)
	for k := range topicFiles {
		topicFiles[k] = topicWriter.Path(k)
	}
	weights := model.Function().Weights()

	if jsonOut {
		result := map[string]any{
			"cascades":    len(cascades),
			"nodes":       inferred.NodeCount(),
			"edges":       inferred.EdgeCount(),
			"steps":       steps,
			"weights":     weights,
			"network":     networkPath,
			"topic_files": topicFiles,
		}
		if runID != "" {
			result["run_id"] = runID
		}
		return encodeJSON(cmd.OutOrStdout(), result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Inferred %d edges over %d nodes from %d cascades (%d steps)\n",
		inferred.EdgeCount(), inferred.NodeCount(), len(cascades), len(steps))
	for k, wk := range weights {
		fmt.Fprintf(w, "  topic %d: weight %.4f -> %s\n", k, wk, topicFiles[k])
	}
	fmt.Fprintf(w, "Network written to %s\n", networkPath)
	if runID != "" {
		fmt.Fprintf(w, "Run recorded as %s\n", runID)
	}
	return nil
}

// buildSteps returns the explicit steps when given, otherwise count+1 evenly
// spaced steps from 0 to horizon. A zero horizon means the latest activation.
func buildSteps(explicit string, count int, horizon float64, cascades []*cascade.Cascade) ([]float64, error) {
	if explicit != "" {
		var steps []float64
		for _, field := range strings.Split(explicit, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
			if err != nil {
				return nil, fmt.Errorf("invalid step %q: %w", field, err)
			}
			steps = append(steps, v)
		}
		sort.Float64s(steps)
		if len(steps) < 2 {
			return nil, inference.ErrTooFewSteps
		}
		return steps, nil
	}

	if count < 1 {
		return nil, fmt.Errorf("step-count must be positive, got %d", count)
	}
	if horizon <= 0 {
		for _, c := range cascades {
			for _, h := range c.Hits {
				if h.Time > horizon {
					horizon = h.Time
				}
			}
		}
	}
	if horizon <= 0 {
		return nil, fmt.Errorf("cannot derive steps: no activation after time 0")
	}

	steps := make([]float64, count+1)
	for i := range steps {
		steps[i] = horizon * float64(i) / float64(count)
	}
	return steps, nil
}
