package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/atomic-state/atomicstate/yaml"
)

// validateCmd represents the validate command.
var validateCmd = &cobra.Command{
	Use:   "validate <file.yaml>...",
	Short: "Validate store definitions",
	Long: `Validate store definitions without building a store.

Checks YAML structure, name uniqueness, builder kinds, and builder
configurations against their schemas, including expression and script
compilation.`,
	Example: `  # Validate a definition
  atomicstate validate store.yaml

  # Validate several definitions at once
  atomicstate validate configs/app.yaml configs/session.yaml`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(cmd.OutOrStdout(), args)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// runValidate validates every file concurrently and reports per file.
func runValidate(w io.Writer, files []string) error {
	loader := yaml.NewLoader()

	results := make([]error, len(files))
	var g errgroup.Group
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			path, err := expandPath(file)
			if err != nil {
				results[i] = err
				return nil
			}
			results[i] = loader.ValidateFile(path)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for i, file := range files {
		if err := results[i]; err != nil {
			failed++
			fmt.Fprintf(w, "%s %s: %v\n", mark(false), file, err)
			continue
		}
		fmt.Fprintf(w, "%s %s\n", mark(true), file)
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d definitions failed validation", failed, len(files))
	}
	return nil
}
