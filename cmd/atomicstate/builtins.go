package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	goyaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/atomic-state/atomicstate/builtin"
)

// builtinsCmd represents the builtins command.
var builtinsCmd = &cobra.Command{
	Use:   "builtins",
	Short: "List built-in builder kinds",
	Long: `List the built-in builder kinds available to YAML store definitions.

Builders produce filters, effects, and actions from declarative
configuration. Each kind carries a JSON Schema describing its config.`,
	Example: `  # List all builders
  atomicstate builtins

  # List builders as JSON
  atomicstate builtins --output json

  # Show details for one kind
  atomicstate builtins info filter expr`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuiltinsList(cmd.OutOrStdout())
	},
}

// builtinsInfoCmd represents the builtins info command.
var builtinsInfoCmd = &cobra.Command{
	Use:   "info <category> <kind>",
	Short: "Show builder details",
	Long: `Display detailed information about a builder kind.

Shows the description, configuration schema, and usage examples.`,
	Example: `  # Show the expr filter builder
  atomicstate builtins info filter expr

  # Show the validate effect builder
  atomicstate builtins info effect validate`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBuiltinsInfo(cmd.OutOrStdout(), args[0], args[1])
	},
}

func init() {
	rootCmd.AddCommand(builtinsCmd)
	builtinsCmd.AddCommand(builtinsInfoCmd)
}

// runBuiltinsList lists every registered builder kind.
func runBuiltinsList(w io.Writer) error {
	metas := builderMetadata()

	switch output {
	case jsonFormat, yamlFormat:
		return render(w, metas)
	default:
		return builtinsTable(w, metas)
	}
}

// runBuiltinsInfo shows detailed information about one builder kind.
func runBuiltinsInfo(w io.Writer, category, kind string) error {
	b, ok := builtin.Default().Get(category, kind)
	if !ok {
		return fmt.Errorf("builder '%s/%s' not found", category, kind)
	}
	meta := b.Metadata()

	fmt.Fprintf(w, "Kind: %s\n", meta.Kind)
	fmt.Fprintf(w, "Category: %s\n", meta.Category)
	fmt.Fprintf(w, "Description: %s\n", meta.Description)
	if meta.Since != "" {
		fmt.Fprintf(w, "Since: %s\n", meta.Since)
	}
	fmt.Fprintln(w)

	if len(meta.ConfigSchema) > 0 {
		fmt.Fprintln(w, "Configuration:")
		schemaJSON, _ := json.MarshalIndent(meta.ConfigSchema, "  ", "  ")
		fmt.Fprintf(w, "  %s\n", schemaJSON)
		fmt.Fprintln(w)
	}

	if len(meta.Examples) > 0 {
		fmt.Fprintln(w, "Examples:")
		for i, example := range meta.Examples {
			fmt.Fprintf(w, "  %d. %s\n", i+1, example.Name)
			if example.Description != "" {
				fmt.Fprintf(w, "     %s\n", example.Description)
			}
			if len(example.Config) > 0 {
				configYAML, _ := goyaml.Marshal(example.Config)
				fmt.Fprintln(w, "     Config:")
				for _, line := range strings.Split(string(configYAML), "\n") {
					if line != "" {
						fmt.Fprintf(w, "       %s\n", line)
					}
				}
			}
		}
	}

	return nil
}

// builderMetadata collects metadata for every registered builder.
func builderMetadata() []builtin.Metadata {
	builders := builtin.Default().All()
	metas := make([]builtin.Metadata, len(builders))
	for i, b := range builders {
		metas[i] = b.Metadata()
	}
	return metas
}

// builtinsTable writes builders grouped by category.
func builtinsTable(w io.Writer, metas []builtin.Metadata) error {
	byCategory := make(map[string][]builtin.Metadata)
	for _, m := range metas {
		byCategory[m.Category] = append(byCategory[m.Category], m)
	}

	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	for _, cat := range categories {
		fmt.Fprintf(w, "\n%s:\n", strings.ToUpper(cat[:1])+cat[1:])
		fmt.Fprintln(w, strings.Repeat("-", len(cat)+1))

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, m := range byCategory[cat] {
			_, _ = fmt.Fprintf(tw, "  %s\t%s\n", m.Kind, m.Description)
		}
		_ = tw.Flush()
	}

	fmt.Fprintf(w, "\nTotal: %d builder kinds\n", len(metas))
	fmt.Fprintln(w, "\nUse 'atomicstate builtins info <category> <kind>' for details.")
	return nil
}
