package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/tracelog/pkg/diff"
)

type diffFlags struct {
	depth    int
	asJSON   bool
	exitCode bool
}

// errChanges makes diff --exit-code fail without printing an error.
var errChanges = fmt.Errorf("documents differ")

func newDiffCmd() *cobra.Command {
	f := &diffFlags{}
	cmd := &cobra.Command{
		Use:   "diff <before> <after>",
		Short: "Compare two JSON or YAML documents",
		Long: `Compare two JSON or YAML documents with the change-tracking engine and
print one line per changed path.

Examples:
  # Compare two snapshots
  tracelog diff order-v1.json order-v2.json

  # Compare deeper than the default depth and print JSON
  tracelog diff --depth 6 --json before.yaml after.yaml

  # Read the "before" document from stdin
  cat before.json | tracelog diff - after.json`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiff(cmd, f, args[0], args[1])
		},
	}
	cmd.Flags().IntVarP(&f.depth, "depth", "d", diff.DefaultMaxDepth, "maximum comparison depth")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print changes as a JSON array")
	cmd.Flags().BoolVar(&f.exitCode, "exit-code", false, "exit with status 1 when documents differ")
	return cmd
}

func runDiff(cmd *cobra.Command, f *diffFlags, beforePath, afterPath string) error {
	before, err := decodeDocument(cmd, beforePath)
	if err != nil {
		return err
	}
	after, err := decodeDocument(cmd, afterPath)
	if err != nil {
		return err
	}

	changes := diff.Compare(before, after, diff.WithMaxDepth(f.depth))

	out := cmd.OutOrStdout()
	if f.asJSON {
		if changes == nil {
			changes = []diff.ChangeRecord{}
		}
		data, err := json.MarshalIndent(changes, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode changes: %w", err)
		}
		fmt.Fprintln(out, string(data))
	} else if len(changes) == 0 {
		fmt.Fprintln(out, "no changes")
	} else {
		for _, c := range changes {
			fmt.Fprintln(out, c.String())
		}
	}

	if f.exitCode && len(changes) > 0 {
		cmd.SilenceErrors = true
		return errChanges
	}
	return nil
}

// decodeDocument parses JSON or YAML into generic maps and slices.
func decodeDocument(cmd *cobra.Command, path string) (any, error) {
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return doc, nil
}
