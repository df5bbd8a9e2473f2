package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/nvandessel/diffmix/internal/config"
	"github.com/nvandessel/diffmix/internal/logging"
)

func main() {
	rootCmd := newRootCmd()
	addCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "diffmix",
		Short: "Diffusion network inference with topic mixtures",
		Long: `diffmix infers time-varying transmission rates of a diffusion network
from observed cascades, modeling each cascade as a mixture of topics.

It also generates synthetic cascades from a ground-truth network and
ranks or renders inferred networks.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.diffmix/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: info, debug, or trace (overrides config)")
	rootCmd.PersistentFlags().String("decisions-dir", ".diffmix", "Directory for decisions.jsonl at debug and trace levels")
	return rootCmd
}

func addCommands(rootCmd *cobra.Command) {
	rootCmd.AddCommand(
		newVersionCmd(),
		newInferCmd(),
		newGenerateCmd(),
		newRankCmd(),
		newGraphCmd(),
		newRunsCmd(),
		newConfigCmd(),
	)
}

// loadConfig loads and validates the configuration named by --config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLoggers builds the stderr logger and the decision logger for cfg.
// The decision logger is nil at info level.
func newLoggers(cmd *cobra.Command, cfg *config.Config) (*slog.Logger, *logging.DecisionLogger) {
	var logger *slog.Logger
	if cfg.Logging.JSON {
		logger = logging.NewJSONLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	} else {
		logger = logging.NewLogger(cfg.Logging.Level, cmd.ErrOrStderr())
	}
	dir, _ := cmd.Flags().GetString("decisions-dir")
	return logger, logging.NewDecisionLogger(dir, cfg.Logging.Level)
}

// newRand returns the random stream every stage of a command shares.
func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	notifySignals(ch)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, func() {
		signal.Stop(ch)
		cancel()
	}
}

// writeFile creates path and its parent directory and hands the file to fn.
func writeFile(path string, fn func(io.Writer) error) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
