// Package yaml loads store definitions from YAML documents. A definition
// declares atoms, filters, and nested scopes; the Loader turns one into a
// live store, building filter computations, effects, and actions through
// the builtin registry.
package yaml

import (
	"fmt"
)

// Document is the top-level shape of a definition file: a single store.
type Document struct {
	Store StoreDefinition `yaml:"store"`
}

// StoreDefinition represents a complete store defined in YAML.
type StoreDefinition struct {
	Name        string             `yaml:"name"`
	Description string             `yaml:"description,omitempty"`
	Version     string             `yaml:"version,omitempty"`
	Atoms       []AtomDefinition   `yaml:"atoms,omitempty"`
	Filters     []FilterDefinition `yaml:"filters,omitempty"`
	Scopes      []ScopeDefinition  `yaml:"scopes,omitempty"`
}

// ScopeDefinition represents a nested scope. Scopes may nest further.
type ScopeDefinition struct {
	Name    string             `yaml:"name"`
	Atoms   []AtomDefinition   `yaml:"atoms,omitempty"`
	Filters []FilterDefinition `yaml:"filters,omitempty"`
	Scopes  []ScopeDefinition  `yaml:"scopes,omitempty"`
}

// AtomDefinition represents an atom in YAML format.
type AtomDefinition struct {
	Name       string             `yaml:"name"`
	Default    any                `yaml:"default,omitempty"`
	Persistent bool               `yaml:"persistent,omitempty"`
	Actions    []ActionDefinition `yaml:"actions,omitempty"`
	Effects    []EffectDefinition `yaml:"effects,omitempty"`
}

// ActionDefinition represents a named reducer attached to an atom.
type ActionDefinition struct {
	Name   string         `yaml:"name"`
	Kind   string         `yaml:"kind"`
	Config map[string]any `yaml:"config,omitempty"`
}

// EffectDefinition represents a write effect attached to an atom.
type EffectDefinition struct {
	Kind   string         `yaml:"kind"`
	Config map[string]any `yaml:"config,omitempty"`
}

// FilterDefinition represents a derived value in YAML format.
type FilterDefinition struct {
	Name   string         `yaml:"name"`
	Kind   string         `yaml:"kind"`
	Config map[string]any `yaml:"config,omitempty"`
	Async  bool           `yaml:"async,omitempty"`
	// Default is the value async filters expose until their first
	// computation lands. Ignored for synchronous filters.
	Default any `yaml:"default,omitempty"`
}

// Validate checks if the store definition is structurally valid. Kind and
// config checks belong to the Loader, which knows the registry.
func (sd *StoreDefinition) Validate() error {
	if sd.Name == "" {
		return fmt.Errorf("store name is required")
	}
	return validateEntries(sd.Atoms, sd.Filters, sd.Scopes)
}

// validateEntries checks one scope level. Atoms and filters share a
// namespace within a scope, so their names must be mutually unique.
func validateEntries(atoms []AtomDefinition, filters []FilterDefinition, scopes []ScopeDefinition) error {
	names := make(map[string]bool)
	for i := range atoms {
		a := &atoms[i]
		if err := a.Validate(); err != nil {
			return err
		}
		if names[a.Name] {
			return fmt.Errorf("duplicate entry name %s", a.Name)
		}
		names[a.Name] = true
	}
	for i := range filters {
		f := &filters[i]
		if err := f.Validate(); err != nil {
			return err
		}
		if names[f.Name] {
			return fmt.Errorf("duplicate entry name %s", f.Name)
		}
		names[f.Name] = true
	}

	children := make(map[string]bool)
	for i := range scopes {
		s := &scopes[i]
		if s.Name == "" {
			return fmt.Errorf("scope name is required")
		}
		if children[s.Name] {
			return fmt.Errorf("duplicate scope name %s", s.Name)
		}
		children[s.Name] = true
		if err := validateEntries(s.Atoms, s.Filters, s.Scopes); err != nil {
			return fmt.Errorf("scope %s: %w", s.Name, err)
		}
	}
	return nil
}

// Validate checks if the atom definition is valid.
func (ad *AtomDefinition) Validate() error {
	if ad.Name == "" {
		return fmt.Errorf("atom name is required")
	}
	for _, action := range ad.Actions {
		if action.Name == "" {
			return fmt.Errorf("atom %s: action name is required", ad.Name)
		}
		if action.Kind == "" {
			return fmt.Errorf("atom %s: action %s: kind is required", ad.Name, action.Name)
		}
	}
	for _, effect := range ad.Effects {
		if effect.Kind == "" {
			return fmt.Errorf("atom %s: effect kind is required", ad.Name)
		}
	}
	return nil
}

// Validate checks if the filter definition is valid.
func (fd *FilterDefinition) Validate() error {
	if fd.Name == "" {
		return fmt.Errorf("filter name is required")
	}
	if fd.Kind == "" {
		return fmt.Errorf("filter %s: kind is required", fd.Name)
	}
	return nil
}
