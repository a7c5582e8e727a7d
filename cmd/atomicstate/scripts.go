package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/atomic-state/atomicstate/script"
)

var scriptsDir string

// scriptsCmd represents the scripts command.
var scriptsCmd = &cobra.Command{
	Use:   "scripts",
	Short: "Manage Lua scripts",
	Long: `Discover, validate, and inspect Lua scripts.

Scripts are discovered from ~/.atomicstate/scripts/ by default and can be
used as actions, effects, and filters in store definitions. Metadata
comments at the top of each script describe its name and category.`,
	Example: `  # List all discovered scripts
  atomicstate scripts

  # Discover scripts from another directory
  atomicstate scripts --dir ./scripts

  # Validate a script
  atomicstate scripts validate my-script.lua

  # Get script information
  atomicstate scripts info double-counter`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScriptsList(cmd.OutOrStdout(), scriptsDir, verbose)
	},
}

// scriptsValidateCmd represents the scripts validate command.
var scriptsValidateCmd = &cobra.Command{
	Use:   "validate <script-path>",
	Short: "Validate a Lua script",
	Long: `Validate a Lua script's syntax and structure without executing it.

Checks for syntax errors and verifies that the entry function for the
script's category is present.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScriptsValidate(cmd.OutOrStdout(), args[0], verbose)
	},
}

// scriptsInfoCmd represents the scripts info command.
var scriptsInfoCmd = &cobra.Command{
	Use:   "info <script-name>",
	Short: "Show script details",
	Long: `Display detailed information about a discovered script.

Shows the script's metadata, file path, size, and validation status.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runScriptsInfo(cmd.OutOrStdout(), scriptsDir, args[0], verbose)
	},
}

func init() {
	rootCmd.AddCommand(scriptsCmd)
	scriptsCmd.AddCommand(scriptsValidateCmd)
	scriptsCmd.AddCommand(scriptsInfoCmd)

	scriptsCmd.PersistentFlags().StringVar(&scriptsDir, "dir", "", "Scripts directory (default ~/.atomicstate/scripts)")
}

// runScriptsList lists all discovered scripts.
func runScriptsList(w io.Writer, dir string, verbose bool) error {
	manager := script.NewManager(dir, verbose)

	if err := manager.Discover(); err != nil {
		return fmt.Errorf("discover scripts: %w", err)
	}

	scripts := manager.ListScripts()
	if len(scripts) == 0 {
		fmt.Fprintln(w, "No scripts found.")
		fmt.Fprintln(w, "\nCreate a script with metadata like:")
		fmt.Fprintln(w, "-- @name: add")
		fmt.Fprintln(w, "-- @category: action")
		fmt.Fprintln(w, "-- @description: adds the payload to the state")
		fmt.Fprintln(w, "-- @version: 1.0.0")
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "function reduce(state, payload)")
		fmt.Fprintln(w, "    return state + payload")
		fmt.Fprintln(w, "end")
		return nil
	}

	// Group by category
	byCategory := make(map[string][]*script.Script)
	for _, s := range scripts {
		byCategory[s.Category] = append(byCategory[s.Category], s)
	}

	categories := make([]string, 0, len(byCategory))
	for cat := range byCategory {
		categories = append(categories, cat)
	}
	sort.Strings(categories)

	fmt.Fprintf(w, "\nDiscovered %d scripts:\n\n", len(scripts))

	for _, cat := range categories {
		fmt.Fprintf(w, "%s:\n", cat)
		fmt.Fprintln(w, strings.Repeat("-", len(cat)+1))

		catScripts := byCategory[cat]
		sort.Slice(catScripts, func(i, j int) bool {
			return catScripts[i].Name < catScripts[j].Name
		})

		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, s := range catScripts {
			desc := s.Description
			if desc == "" {
				desc = "(no description)"
			}
			if s.Version != "" {
				_, _ = fmt.Fprintf(tw, "  %s\t%s\t(v%s)\n", s.Name, desc, s.Version)
			} else {
				_, _ = fmt.Fprintf(tw, "  %s\t%s\n", s.Name, desc)
			}
		}
		_ = tw.Flush()
		fmt.Fprintln(w)
	}

	return nil
}

// runScriptsValidate validates a Lua script file.
func runScriptsValidate(w io.Writer, scriptPath string, verbose bool) error {
	absPath, err := filepath.Abs(scriptPath)
	if err != nil {
		return fmt.Errorf("invalid path: %w", err)
	}

	if _, err := os.Stat(absPath); err != nil {
		return fmt.Errorf("script not found: %w", err)
	}

	manager := script.NewManager("", verbose)

	fmt.Fprintf(w, "Validating %s...\n", scriptPath)

	if err := manager.ValidateScript(absPath); err != nil {
		fmt.Fprintf(w, "%s validation failed: %v\n", mark(false), err)
		return err
	}

	fmt.Fprintf(w, "%s script is valid\n", mark(true))

	// Also show metadata when present.
	s, err := manager.LoadScript(absPath)
	if err == nil && s.Name != "" {
		fmt.Fprintln(w, "\nMetadata:")
		fmt.Fprintf(w, "  Name: %s\n", s.Name)
		if s.Category != "" {
			fmt.Fprintf(w, "  Category: %s\n", s.Category)
		}
		if s.Description != "" {
			fmt.Fprintf(w, "  Description: %s\n", s.Description)
		}
		if s.Version != "" {
			fmt.Fprintf(w, "  Version: %s\n", s.Version)
		}
	}

	return nil
}

// runScriptsInfo shows information about a discovered script.
func runScriptsInfo(w io.Writer, dir, scriptName string, verbose bool) error {
	manager := script.NewManager(dir, verbose)

	if err := manager.Discover(); err != nil {
		return fmt.Errorf("discover scripts: %w", err)
	}

	s, found := manager.GetScript(scriptName)
	if !found {
		return fmt.Errorf("script '%s' not found", scriptName)
	}

	fmt.Fprintf(w, "Script: %s\n", s.Name)
	fmt.Fprintf(w, "Path: %s\n", s.Path)
	fmt.Fprintf(w, "Category: %s\n", s.Category)
	if s.Description != "" {
		fmt.Fprintf(w, "Description: %s\n", s.Description)
	}
	if s.Version != "" {
		fmt.Fprintf(w, "Version: %s\n", s.Version)
	}

	if info, err := os.Stat(s.Path); err == nil {
		fmt.Fprintf(w, "Size: %s\n", formatSize(info.Size()))
		fmt.Fprintf(w, "Modified: %s\n", info.ModTime().Format("2006-01-02 15:04:05"))
	}

	fmt.Fprintf(w, "\nValidation: ")
	if err := manager.Validate(s); err != nil {
		fmt.Fprintf(w, "%s %v\n", mark(false), err)
	} else {
		fmt.Fprintf(w, "%s valid\n", mark(true))
	}

	return nil
}
