package script

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Shopify/go-lua"

	"github.com/atomic-state/atomicstate"
)

// Manager handles script discovery and management.
type Manager struct {
	scriptsDir string
	scripts    map[string]*Script
	verbose    bool
}

// Script is a discovered Lua script. Metadata comes from comment headers
// at the top of the file:
//
//	-- @name: double
//	-- @category: filter
//	-- @description: doubles the count atom
//	-- @version: 1.0.0
//
// Category selects the entry function the script must define: "action"
// scripts define reduce(state, payload), "effect" scripts define
// effect(prev, next), and "filter" scripts define compute(). Scripts
// without a category header default to "action".
type Script struct {
	Name        string
	Path        string
	Category    string
	Description string
	Version     string
	Content     string
}

// entryFor maps a script category to its required entry function.
func entryFor(category string) (string, bool) {
	switch category {
	case "action":
		return actionEntry, true
	case "effect":
		return effectEntry, true
	case "filter":
		return filterEntry, true
	}
	return "", false
}

// Action compiles the script as an action. The script must define
// reduce(state, payload).
func (s *Script) Action() atomicstate.ActionFunc[any] { return Action(s.Content) }

// Effect compiles the script as a write effect. The script must define
// effect(prev, next).
func (s *Script) Effect() atomicstate.EffectFunc[any] { return Effect(s.Content) }

// Filter compiles the script as a filter computation. The script must
// define compute().
func (s *Script) Filter() atomicstate.ComputeFunc[any] { return Filter(s.Content) }

// NewManager creates a new script manager.
func NewManager(scriptsDir string, verbose bool) *Manager {
	if scriptsDir == "" {
		home, _ := os.UserHomeDir()
		scriptsDir = filepath.Join(home, ".atomicstate", "scripts")
	}
	return &Manager{
		scriptsDir: scriptsDir,
		scripts:    make(map[string]*Script),
		verbose:    verbose,
	}
}

// Discover finds all Lua scripts in the scripts directory.
func (m *Manager) Discover() error {
	if err := os.MkdirAll(m.scriptsDir, 0o750); err != nil {
		return fmt.Errorf("failed to create scripts directory: %w", err)
	}

	return filepath.WalkDir(m.scriptsDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".lua") {
			return nil
		}

		script, err := m.LoadScript(path)
		if err != nil {
			if m.verbose {
				fmt.Printf("Warning: failed to load script %s: %v\n", path, err)
			}
			return nil // Continue discovering other scripts
		}

		m.scripts[script.Name] = script
		if m.verbose {
			fmt.Printf("Discovered script: %s (%s)\n", script.Name, script.Path)
		}
		return nil
	})
}

// LoadScript loads a Lua script and parses its metadata headers.
func (m *Manager) LoadScript(path string) (*Script, error) {
	content, err := os.ReadFile(path) //nolint:gosec // Path is user-provided and validated
	if err != nil {
		return nil, err
	}

	script := &Script{
		Path:    path,
		Content: string(content),
	}

	// Metadata comments run until the first non-comment line.
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "--") {
			break
		}

		switch {
		case strings.HasPrefix(line, "-- @name:"):
			script.Name = strings.TrimSpace(strings.TrimPrefix(line, "-- @name:"))
		case strings.HasPrefix(line, "-- @category:"):
			script.Category = strings.TrimSpace(strings.TrimPrefix(line, "-- @category:"))
		case strings.HasPrefix(line, "-- @description:"):
			script.Description = strings.TrimSpace(strings.TrimPrefix(line, "-- @description:"))
		case strings.HasPrefix(line, "-- @version:"):
			script.Version = strings.TrimSpace(strings.TrimPrefix(line, "-- @version:"))
		}
	}

	if script.Name == "" {
		base := filepath.Base(path)
		script.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if script.Category == "" {
		script.Category = "action"
	}

	return script, nil
}

// GetScript returns a discovered script by name.
func (m *Manager) GetScript(name string) (*Script, bool) {
	script, ok := m.scripts[name]
	return script, ok
}

// ListScripts returns all discovered scripts sorted by name.
func (m *Manager) ListScripts() []*Script {
	scripts := make([]*Script, 0, len(m.scripts))
	for _, script := range m.scripts {
		scripts = append(scripts, script)
	}
	sort.Slice(scripts, func(i, j int) bool { return scripts[i].Name < scripts[j].Name })
	return scripts
}

// Check reports whether source parses and defines the entry function a
// script of the given category requires, without invoking it.
func Check(source, category string) error {
	entry, ok := entryFor(category)
	if !ok {
		return fmt.Errorf("unknown category '%s'", category)
	}

	l := lua.NewState()
	// Note: go-lua doesn't have a Close method
	setupSandbox(l)

	if err := lua.LoadString(l, source); err != nil {
		return fmt.Errorf("script validation failed: %w", err)
	}
	l.Pop(1) // Pop the loaded chunk

	// Run the top level to define functions, then look for the entry.
	if err := lua.DoString(l, source); err != nil {
		return fmt.Errorf("script execution failed: %w", err)
	}

	l.Global(entry)
	if l.TypeOf(-1) != lua.TypeFunction {
		l.Pop(1)
		return fmt.Errorf("required function '%s' not found", entry)
	}
	l.Pop(1)

	return nil
}

// Validate checks that the script parses and defines the entry function
// its category requires, without invoking it.
func (m *Manager) Validate(script *Script) error {
	return Check(script.Content, script.Category)
}

// ValidateScript loads the script at path and validates it.
func (m *Manager) ValidateScript(path string) error {
	script, err := m.LoadScript(path)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	return m.Validate(script)
}
