// Package main implements the tracelog CLI for inspecting configuration,
// comparing documents and trying the record pipeline.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fyrsmithlabs/tracelog/internal/config"
)

// version information
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "tracelog",
		Short: "Structured call logging and change auditing",
		Long: `tracelog records instrumented method calls as structured log records,
with sensitive-data masking and change tracking between object snapshots.

The CLI exposes the rendering and diff engines for ad-hoc use, runs a
demo workload through a configured pipeline, serves the admin API and
shows a live dashboard of its call statistics.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVarP(&g.configPath, "config", "c", "",
		"config file (.yaml, .yml or .toml); defaults to $"+config.PathEnvVar)

	root.AddCommand(
		newDiffCmd(),
		newRenderCmd(g),
		newConfigCmd(g),
		newDemoCmd(g),
		newServeCmd(g),
		newMonitorCmd(g),
	)
	return root
}

// loadConfig reads --config when set, otherwise the environment.
func (g *globalFlags) loadConfig() (*config.Config, error) {
	if g.configPath != "" {
		return config.LoadWithFile(g.configPath)
	}
	return config.Load()
}

// readInput reads a file, or stdin when path is "-".
func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return nil, fmt.Errorf("failed to read from stdin: %w", err)
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s: %w", path, err)
	}
	return data, nil
}
