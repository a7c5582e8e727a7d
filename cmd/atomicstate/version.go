package main

import (
	"encoding/json"
	"fmt"

	goyaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

// versionCmd represents the version command.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long:  `Display version information about the AtomicState CLI.`,
	Example: `  # Show version
  atomicstate version

  # Show version in JSON format
  atomicstate version --output json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		w := cmd.OutOrStdout()
		versionInfo := map[string]string{
			"version":   version,
			"commit":    commit,
			"buildDate": buildDate,
			"goVersion": goVersion,
		}

		switch output {
		case jsonFormat:
			data, err := json.MarshalIndent(versionInfo, "", "  ")
			if err != nil {
				return fmt.Errorf("marshal version info: %w", err)
			}
			fmt.Fprintln(w, string(data))

		case yamlFormat:
			data, err := goyaml.Marshal(versionInfo)
			if err != nil {
				return fmt.Errorf("marshal version info: %w", err)
			}
			fmt.Fprint(w, string(data))

		default: // text
			fmt.Fprintf(w, "atomicstate version %s\n", version)
			if version != "dev" {
				fmt.Fprintf(w, "  commit:     %s\n", commit)
				fmt.Fprintf(w, "  built:      %s\n", buildDate)
				fmt.Fprintf(w, "  go version: %s\n", goVersion)
			}
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
