package main

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	goyaml "github.com/goccy/go-yaml"
	"github.com/spf13/cobra"

	"github.com/atomic-state/atomicstate/builtin"
)

// docsCmd represents the docs command.
var docsCmd = &cobra.Command{
	Use:   "docs",
	Short: "Generate builder documentation",
	Long: `Generate reference documentation for the built-in builder kinds.

The documentation includes descriptions, configuration schemas, and
examples for each kind. Markdown by default; use --output json for a
machine-readable document.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGenerateDocs(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(docsCmd)
}

// runGenerateDocs generates documentation from builder metadata.
func runGenerateDocs(w io.Writer) error {
	metas := builderMetadata()

	if output == jsonFormat {
		return generateJSONDocs(w, metas)
	}
	return generateMarkdownDocs(w, metas)
}

// generateMarkdownDocs generates Markdown documentation.
func generateMarkdownDocs(w io.Writer, metas []builtin.Metadata) error {
	var sb strings.Builder

	sb.WriteString("# AtomicState Builder Reference\n\n")
	sb.WriteString("This document is a reference for the built-in builder kinds available to YAML store definitions.\n\n")
	sb.WriteString("## Table of Contents\n\n")

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
		sb.WriteString(fmt.Sprintf("- [%s Builders](#%s-builders)\n", strings.ToUpper(cat[:1])+cat[1:], cat))
		for _, m := range byCategory[cat] {
			sb.WriteString(fmt.Sprintf("  - [%s](#%s-%s)\n", m.Kind, cat, m.Kind))
		}
	}

	sb.WriteString("\n---\n\n")

	for _, cat := range categories {
		sb.WriteString(fmt.Sprintf("## %s Builders\n\n", strings.ToUpper(cat[:1])+cat[1:]))

		for _, m := range byCategory[cat] {
			sb.WriteString(fmt.Sprintf("### %s %s\n\n", cat, m.Kind))
			sb.WriteString(fmt.Sprintf("%s\n\n", m.Description))

			if m.Since != "" {
				sb.WriteString(fmt.Sprintf("**Since:** %s\n\n", m.Since))
			}

			if len(m.ConfigSchema) > 0 {
				sb.WriteString("#### Configuration\n\n")
				sb.WriteString("```json\n")
				schemaJSON, _ := json.MarshalIndent(m.ConfigSchema, "", "  ")
				sb.WriteString(string(schemaJSON))
				sb.WriteString("\n```\n\n")
				writeSchemaProperties(&sb, m.ConfigSchema)
			}

			if len(m.Examples) > 0 {
				sb.WriteString("#### Examples\n\n")
				for i, example := range m.Examples {
					sb.WriteString(fmt.Sprintf("**Example %d: %s**\n\n", i+1, example.Name))
					if example.Description != "" {
						sb.WriteString(fmt.Sprintf("%s\n\n", example.Description))
					}

					sb.WriteString("```yaml\n")
					sb.WriteString(fmt.Sprintf("kind: %s\n", m.Kind))
					if len(example.Config) > 0 {
						sb.WriteString("config:\n")
						configYAML, _ := goyaml.Marshal(example.Config)
						for _, line := range strings.Split(string(configYAML), "\n") {
							if line != "" {
								sb.WriteString("  " + line + "\n")
							}
						}
					}
					sb.WriteString("```\n\n")
				}
			}

			sb.WriteString("---\n\n")
		}
	}

	_, err := fmt.Fprint(w, sb.String())
	return err
}

// writeSchemaProperties renders a schema's properties as a bullet list.
func writeSchemaProperties(sb *strings.Builder, schema map[string]any) {
	props, ok := schema["properties"].(map[string]any)
	if !ok || len(props) == 0 {
		return
	}

	required := map[string]bool{}
	switch reqs := schema["required"].(type) {
	case []string:
		for _, r := range reqs {
			required[r] = true
		}
	case []any:
		for _, r := range reqs {
			if s, ok := r.(string); ok {
				required[s] = true
			}
		}
	}

	sb.WriteString("**Properties:**\n\n")

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}

		desc, _ := prop["description"].(string)
		sb.WriteString(fmt.Sprintf("- **%s**", name))
		if required[name] {
			sb.WriteString(" *(required)*")
		}
		sb.WriteString(fmt.Sprintf(": %s\n", desc))

		if t, ok := prop["type"].(string); ok {
			sb.WriteString(fmt.Sprintf("  - Type: `%s`\n", t))
		}
		if def, ok := prop["default"]; ok {
			sb.WriteString(fmt.Sprintf("  - Default: `%v`\n", def))
		}
		var values []string
		switch enum := prop["enum"].(type) {
		case []string:
			for _, v := range enum {
				values = append(values, fmt.Sprintf("`%s`", v))
			}
		case []any:
			for _, v := range enum {
				values = append(values, fmt.Sprintf("`%v`", v))
			}
		}
		if len(values) > 0 {
			sb.WriteString(fmt.Sprintf("  - Allowed values: %s\n", strings.Join(values, ", ")))
		}
	}
	sb.WriteString("\n")
}

// generateJSONDocs generates JSON documentation.
func generateJSONDocs(w io.Writer, metas []builtin.Metadata) error {
	doc := map[string]any{
		"title":       "AtomicState Builder Reference",
		"description": "Reference for the built-in builder kinds available to YAML store definitions",
		"builders":    metas,
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	_, err = fmt.Fprintln(w, string(data))
	return err
}
