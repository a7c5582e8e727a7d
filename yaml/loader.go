package yaml

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/atomic-state/atomicstate"
	"github.com/atomic-state/atomicstate/builtin"
)

// Loader builds live stores from store definitions.
type Loader struct {
	parser   *Parser
	registry *builtin.Registry
	adapter  atomicstate.PersistenceAdapter
	options  []atomicstate.Option
}

// NewLoader creates a loader backed by the default builtin registry.
func NewLoader() *Loader {
	return &Loader{
		parser:   NewParser(),
		registry: builtin.Default(),
	}
}

// WithRegistry sets a custom builder registry.
func (l *Loader) WithRegistry(r *builtin.Registry) *Loader {
	l.registry = r
	return l
}

// WithAdapter sets the persistence adapter handed to loaded stores.
// Definitions marking atoms persistent fail to load without one.
func (l *Loader) WithAdapter(a atomicstate.PersistenceAdapter) *Loader {
	l.adapter = a
	return l
}

// WithStoreOptions appends store options applied to every loaded store.
func (l *Loader) WithStoreOptions(opts ...atomicstate.Option) *Loader {
	l.options = append(l.options, opts...)
	return l
}

// LoadFile loads a store from a YAML file.
func (l *Loader) LoadFile(ctx context.Context, filename string) (*atomicstate.Store, error) {
	def, err := l.parser.ParseFile(filename)
	if err != nil {
		return nil, fmt.Errorf("parse file: %w", err)
	}
	return l.LoadDefinition(ctx, def)
}

// LoadString loads a store from a YAML string.
func (l *Loader) LoadString(ctx context.Context, yamlStr string) (*atomicstate.Store, error) {
	def, err := l.parser.ParseString(yamlStr)
	if err != nil {
		return nil, fmt.Errorf("parse string: %w", err)
	}
	return l.LoadDefinition(ctx, def)
}

// LoadDefinition creates a store from a parsed definition. Atoms register
// before filters at each level so filter expressions can read them, then
// child scopes build recursively. On any error the partially built store
// is closed and the error returned.
func (l *Loader) LoadDefinition(ctx context.Context, def *StoreDefinition) (*atomicstate.Store, error) {
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("invalid store definition: %w", err)
	}

	opts := make([]atomicstate.Option, 0, len(l.options)+2)
	opts = append(opts, l.options...)
	if def.Name != "" {
		opts = append(opts, atomicstate.WithName(def.Name))
	}
	if l.adapter != nil {
		opts = append(opts, atomicstate.WithPersistence(l.adapter))
	}

	store := atomicstate.NewStore(opts...)
	if err := l.populate(ctx, store.Root(), def.Atoms, def.Filters, def.Scopes); err != nil {
		_ = store.Close(ctx)
		return nil, err
	}
	return store, nil
}

// Validate checks a definition without building a store: structure first,
// then every kind, config schema, and expression through the registry.
func (l *Loader) Validate(def *StoreDefinition) error {
	if err := def.Validate(); err != nil {
		return fmt.Errorf("invalid store definition: %w", err)
	}
	return l.check(def.Atoms, def.Filters, def.Scopes)
}

// ValidateFile parses and validates a definition file.
func (l *Loader) ValidateFile(filename string) error {
	def, err := l.parser.ParseFile(filename)
	if err != nil {
		return fmt.Errorf("parse file: %w", err)
	}
	return l.Validate(def)
}

func (l *Loader) populate(ctx context.Context, sc *atomicstate.Scope, atoms []AtomDefinition, filters []FilterDefinition, scopes []ScopeDefinition) error {
	for i := range atoms {
		if err := l.registerAtom(ctx, sc, &atoms[i]); err != nil {
			return err
		}
	}
	for i := range filters {
		if err := l.registerFilter(sc, &filters[i]); err != nil {
			return err
		}
	}
	for i := range scopes {
		child, err := sc.NewScope(scopes[i].Name)
		if err != nil {
			return fmt.Errorf("create scope %s: %w", scopes[i].Name, err)
		}
		if err := l.populate(ctx, child, scopes[i].Atoms, scopes[i].Filters, scopes[i].Scopes); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loader) registerAtom(ctx context.Context, sc *atomicstate.Scope, def *AtomDefinition) error {
	value, err := normalizeValue(def.Default)
	if err != nil {
		return fmt.Errorf("atom %s: invalid default: %w", def.Name, err)
	}

	atom := atomicstate.NewAtom[any](def.Name, value)
	for _, a := range def.Actions {
		fn, err := l.registry.Action(a.Kind, a.Name, a.Config)
		if err != nil {
			return fmt.Errorf("atom %s: %w", def.Name, err)
		}
		atom.WithAction(a.Name, fn)
	}
	for _, e := range def.Effects {
		fn, err := l.registry.Effect(e.Kind, def.Name, e.Config)
		if err != nil {
			return fmt.Errorf("atom %s: %w", def.Name, err)
		}
		atom.WithEffect(fn)
	}
	if def.Persistent {
		atom.Persistent()
	}

	if err := atomicstate.RegisterAtom(ctx, sc, atom); err != nil {
		return fmt.Errorf("register atom %s: %w", def.Name, err)
	}
	return nil
}

func (l *Loader) registerFilter(sc *atomicstate.Scope, def *FilterDefinition) error {
	compute, err := l.registry.Filter(def.Kind, def.Name, def.Config)
	if err != nil {
		return err
	}

	var f *atomicstate.Filter[any]
	if def.Async {
		value, err := normalizeValue(def.Default)
		if err != nil {
			return fmt.Errorf("filter %s: invalid default: %w", def.Name, err)
		}
		f = atomicstate.NewAsyncFilter(def.Name, value, compute)
	} else {
		f = atomicstate.NewFilter(def.Name, compute)
	}

	if err := atomicstate.RegisterFilter(sc, f); err != nil {
		return fmt.Errorf("register filter %s: %w", def.Name, err)
	}
	return nil
}

// check mirrors populate but only builds callbacks, never a store.
// Building catches unknown kinds, config schema violations, and
// expression or script compile errors.
func (l *Loader) check(atoms []AtomDefinition, filters []FilterDefinition, scopes []ScopeDefinition) error {
	for i := range atoms {
		def := &atoms[i]
		for _, a := range def.Actions {
			if _, err := l.registry.Action(a.Kind, a.Name, a.Config); err != nil {
				return fmt.Errorf("atom %s: %w", def.Name, err)
			}
		}
		for _, e := range def.Effects {
			if _, err := l.registry.Effect(e.Kind, def.Name, e.Config); err != nil {
				return fmt.Errorf("atom %s: %w", def.Name, err)
			}
		}
	}
	for i := range filters {
		if _, err := l.registry.Filter(filters[i].Kind, filters[i].Name, filters[i].Config); err != nil {
			return err
		}
	}
	for i := range scopes {
		if err := l.check(scopes[i].Atoms, scopes[i].Filters, scopes[i].Scopes); err != nil {
			return fmt.Errorf("scope %s: %w", scopes[i].Name, err)
		}
	}
	return nil
}

// normalizeValue passes defaults through a JSON round trip so YAML
// scalars land in the same shapes persisted values decode to: float64
// for numbers, map[string]any for mappings, []any for sequences.
func normalizeValue(v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
