// Package builtin provides the declarative builder kinds behind YAML
// store definitions: expression and script filters, write effects, and
// reducer actions, each described by metadata with a JSON Schema for its
// configuration.
package builtin

import (
	"fmt"
	"sort"

	"github.com/atomic-state/atomicstate"
)

// Builder is implemented by every registered kind. The category-specific
// interfaces below produce the actual callbacks.
type Builder interface {
	Metadata() Metadata
}

// FilterBuilder builds filter compute functions from a configuration.
type FilterBuilder interface {
	Builder
	BuildFilter(config map[string]any) (atomicstate.ComputeFunc[any], error)
}

// EffectBuilder builds write effects from a configuration.
type EffectBuilder interface {
	Builder
	BuildEffect(config map[string]any) (atomicstate.EffectFunc[any], error)
}

// ActionBuilder builds reducer actions from a configuration.
type ActionBuilder interface {
	Builder
	BuildAction(config map[string]any) (atomicstate.ActionFunc[any], error)
}

// Registry manages builders, keyed by category and kind.
type Registry struct {
	builders map[string]map[string]Builder
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]map[string]Builder)}
}

// Default returns a registry with every standard builder registered.
func Default() *Registry {
	r := NewRegistry()

	// Filters
	r.Register(&ExprFilterBuilder{})
	r.Register(&CELFilterBuilder{})
	r.Register(&LuaFilterBuilder{})
	r.Register(&JSONPathFilterBuilder{})
	r.Register(&TemplateFilterBuilder{})

	// Effects
	r.Register(&ValidateEffectBuilder{})
	r.Register(&LogEffectBuilder{})
	r.Register(&ReadonlyEffectBuilder{})
	r.Register(&LuaEffectBuilder{})

	// Actions
	r.Register(&LuaActionBuilder{})

	return r
}

// Register adds a builder under its metadata category and kind.
func (r *Registry) Register(b Builder) {
	meta := b.Metadata()
	if r.builders[meta.Category] == nil {
		r.builders[meta.Category] = make(map[string]Builder)
	}
	r.builders[meta.Category][meta.Kind] = b
}

// Get returns the builder registered for category and kind.
func (r *Registry) Get(category, kind string) (Builder, bool) {
	b, ok := r.builders[category][kind]
	return b, ok
}

// All returns every registered builder sorted by category, then kind.
func (r *Registry) All() []Builder {
	var out []Builder
	for _, kinds := range r.builders {
		for _, b := range kinds {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		mi, mj := out[i].Metadata(), out[j].Metadata()
		if mi.Category != mj.Category {
			return mi.Category < mj.Category
		}
		return mi.Kind < mj.Kind
	})
	return out
}

// Filter validates config against the kind's schema and builds the
// compute function.
func (r *Registry) Filter(kind, name string, config map[string]any) (atomicstate.ComputeFunc[any], error) {
	b, ok := r.Get(CategoryFilter, kind)
	if !ok {
		return nil, fmt.Errorf("unknown filter kind '%s'", kind)
	}
	fb, ok := b.(FilterBuilder)
	if !ok {
		return nil, fmt.Errorf("kind '%s' cannot build filters", kind)
	}
	if err := r.validate(b, config); err != nil {
		return nil, fmt.Errorf("config validation failed for filter '%s': %w", name, err)
	}
	return fb.BuildFilter(config)
}

// Effect validates config against the kind's schema and builds the
// effect.
func (r *Registry) Effect(kind, name string, config map[string]any) (atomicstate.EffectFunc[any], error) {
	b, ok := r.Get(CategoryEffect, kind)
	if !ok {
		return nil, fmt.Errorf("unknown effect kind '%s'", kind)
	}
	eb, ok := b.(EffectBuilder)
	if !ok {
		return nil, fmt.Errorf("kind '%s' cannot build effects", kind)
	}
	if err := r.validate(b, config); err != nil {
		return nil, fmt.Errorf("config validation failed for effect on '%s': %w", name, err)
	}
	return eb.BuildEffect(config)
}

// Action validates config against the kind's schema and builds the
// reducer.
func (r *Registry) Action(kind, name string, config map[string]any) (atomicstate.ActionFunc[any], error) {
	b, ok := r.Get(CategoryAction, kind)
	if !ok {
		return nil, fmt.Errorf("unknown action kind '%s'", kind)
	}
	ab, ok := b.(ActionBuilder)
	if !ok {
		return nil, fmt.Errorf("kind '%s' cannot build actions", kind)
	}
	if err := r.validate(b, config); err != nil {
		return nil, fmt.Errorf("config validation failed for action '%s': %w", name, err)
	}
	return ab.BuildAction(config)
}

func (r *Registry) validate(b Builder, config map[string]any) error {
	meta := b.Metadata()
	return ValidateConfig(&meta, config)
}
