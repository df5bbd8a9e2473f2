package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/nvandessel/diffmix/internal/inference"
	"github.com/nvandessel/diffmix/internal/netio"
	"github.com/nvandessel/diffmix/internal/store"
)

func newGenerateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate synthetic cascades from a ground-truth network",
		Long: `Assign random per-topic rates to the edges of a network structure and
simulate cascades over it.

Writes the cascades (<out>_cascades.txt), the ground-truth edge list of
each topic (<out>_groundtruth_<k>.txt) and the network with each edge's
dominant-topic rate at time 0 (<out>_groundtruth_network.txt).

Examples:
  diffmix generate --network structure.txt --count 500 --out data/synthetic`,
		RunE: runGenerate,
	}

	cmd.Flags().String("network", "", "Network structure file (required)")
	cmd.Flags().Int("count", 100, "Number of cascades to generate")
	cmd.Flags().String("out", "synthetic", "Output path prefix")
	cmd.Flags().String("db", "", "SQLite database to record the ground truth in")
	cmd.MarkFlagRequired("network")

	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	networkPath, _ := cmd.Flags().GetString("network")
	count, _ := cmd.Flags().GetInt("count")
	out, _ := cmd.Flags().GetString("out")
	dbPath, _ := cmd.Flags().GetString("db")
	jsonOut, _ := cmd.Flags().GetBool("json")

	if count < 1 {
		return fmt.Errorf("count must be positive, got %d", count)
	}

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

	f, err := os.Open(networkPath)
	if err != nil {
		return fmt.Errorf("failed to open network: %w", err)
	}
	net, err := netio.LoadNetwork(f, hazard)
	f.Close()
	if err != nil {
		return fmt.Errorf("failed to load network: %w", err)
	}
	if net.EdgeCount() == 0 {
		return fmt.Errorf("network %s has no edges", networkPath)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	model := inference.NewModel(ic, net, newRand(cfg.Simulation.Seed))
	model.SetLogger(logger, decisions)
	model.SeedGroundTruth()

	cascades, err := model.GenCascades(ctx, count)
	if err != nil {
		return err
	}

	cascadesPath := out + "_cascades.txt"
	if err := writeFile(cascadesPath, func(w io.Writer) error {
		return netio.SaveCascades(w, net, cascades)
	}); err != nil {
		return err
	}

	topicWriter := netio.NewTopicEdgeWriter(out + "_groundtruth")
	sinks := []inference.Sink{topicWriter}
	var rec *store.RunRecorder
	if dbPath != "" {
		s, err := store.Open(dbPath)
		if err != nil {
			return err
		}
		defer s.Close()
		rec = s.NewRun(store.KindGroundTruth, networkPath)
		sinks = append(sinks, rec)
	}

	// Histories recorded here take precedence over topic rates in later
	// simulations, so this runs after generation.
	if err := model.GroundTruth(ctx, sinks...); err != nil {
		return err
	}

	truthPath := out + "_groundtruth_network.txt"
	if err := writeFile(truthPath, func(w io.Writer) error {
		return netio.SaveNetwork(w, net)
	}); err != nil {
		return err
	}

	if jsonOut {
		result := map[string]any{
			"cascades":      len(cascades),
			"cascades_file": cascadesPath,
			"network":       truthPath,
			"weights":       model.Function().Weights(),
		}
		if rec != nil {
			result["run_id"] = rec.ID()
		}
		return encodeJSON(cmd.OutOrStdout(), result)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Generated %d cascades over %d nodes -> %s\n", len(cascades), net.NodeCount(), cascadesPath)
	for k := 0; k < ic.Mixture.Topics; k++ {
		fmt.Fprintf(w, "  topic %d ground truth -> %s\n", k, topicWriter.Path(k))
	}
	fmt.Fprintf(w, "Ground-truth network written to %s\n", truthPath)
	if rec != nil {
		fmt.Fprintf(w, "Run recorded as %s\n", rec.ID())
	}
	return nil
}
