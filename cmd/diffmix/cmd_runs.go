package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nvandessel/diffmix/internal/store"
)

func newRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect runs recorded in a SQLite database",
	}
	cmd.PersistentFlags().String("db", "", "SQLite database (required)")
	cmd.MarkPersistentFlagRequired("db")

	cmd.AddCommand(
		newRunsListCmd(),
		newRunsShowCmd(),
		newRunsDeleteCmd(),
	)
	return cmd
}

func openRunStore(cmd *cobra.Command) (*store.SQLiteStore, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	return store.Open(dbPath)
}

func newRunsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List recorded runs, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			s, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			runs, err := s.Runs(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOut {
				if runs == nil {
					runs = []store.Run{}
				}
				return encodeJSON(cmd.OutOrStdout(), runs)
			}

			w := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(w, "No runs recorded.")
				return nil
			}
			for _, r := range runs {
				fmt.Fprintf(w, "%s  %-11s topics=%d  %s  %s\n",
					r.ID, r.Kind, r.Topics, r.CreatedAt.Format("2006-01-02 15:04:05"), r.Source)
			}
			return nil
		},
	}
}

func newRunsShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the mixture weights recorded at every step of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			s, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmd.Context()
			run, err := s.GetRun(ctx, args[0])
			if err != nil {
				return err
			}
			weights, err := s.TopicWeights(ctx, run.ID)
			if err != nil {
				return err
			}
			net, err := s.InferredNetwork(ctx, run.ID)
			if err != nil {
				return err
			}

			if jsonOut {
				return encodeJSON(cmd.OutOrStdout(), map[string]any{
					"run":   run,
					"steps": weights,
					"nodes": net.NodeCount(),
					"edges": net.EdgeCount(),
				})
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Run %s (%s, %d topics)\n", run.ID, run.Kind, run.Topics)
			fmt.Fprintf(w, "  source: %s\n", run.Source)
			fmt.Fprintf(w, "  network: %d nodes, %d edges\n", net.NodeCount(), net.EdgeCount())
			for _, sw := range weights {
				fmt.Fprintf(w, "  step %d (t=%g): %v\n", sw.Step, sw.Time, sw.Weights)
			}
			return nil
		},
	}
}

func newRunsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete a run and everything recorded for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openRunStore(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := s.DeleteRun(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}
