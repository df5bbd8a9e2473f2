package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/diffmix/internal/ranking"
	"github.com/nvandessel/diffmix/internal/visualization"
)

func newGraphCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render an inferred network",
		Long:  `Output an inferred network at one time step in DOT (Graphviz) or JSON format.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			formatName, _ := cmd.Flags().GetString("format")
			withRank, _ := cmd.Flags().GetBool("pagerank")

			format, err := visualization.ParseFormat(formatName)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()

			net, at, err := loadNetworkSource(ctx, cmd)
			if err != nil {
				return err
			}

			var enrichment *visualization.Enrichment
			if withRank {
				scores, err := ranking.ComputePageRank(ctx, net, at, ranking.DefaultPageRankConfig())
				if err != nil {
					return fmt.Errorf("compute PageRank: %w", err)
				}
				enrichment = &visualization.Enrichment{PageRank: scores}
			}

			switch format {
			case visualization.FormatJSON:
				if err := encodeJSON(cmd.OutOrStdout(), visualization.RenderJSON(net, at, enrichment)); err != nil {
					return fmt.Errorf("encode JSON: %w", err)
				}
			default:
				fmt.Fprint(cmd.OutOrStdout(), visualization.RenderDOT(net, at, enrichment))
			}
			return nil
		},
	}

	addNetworkSourceFlags(cmd)
	cmd.Flags().String("format", "dot", "Output format: dot or json")
	cmd.Flags().Bool("pagerank", false, "Annotate nodes with PageRank scores")

	return cmd
}
