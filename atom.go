package atomicstate

import (
	"context"
	"encoding/json"
	"fmt"
)

// ActionContext carries what a reducer needs: the current state, the
// caller's payload, and the scope the dispatch resolved through for
// reading sibling cells.
type ActionContext[T any] struct {
	ctx     context.Context
	scope   *Scope
	state   T
	payload any
}

// Context returns the dispatching caller's context.
func (ac *ActionContext[T]) Context() context.Context { return ac.ctx }

// Scope returns the scope the dispatch was issued against.
func (ac *ActionContext[T]) Scope() *Scope { return ac.scope }

// State returns the atom's committed value at dispatch time.
func (ac *ActionContext[T]) State() T { return ac.state }

// Payload returns the caller-supplied argument.
func (ac *ActionContext[T]) Payload() any { return ac.payload }

// ActionFunc is a named reducer: it returns the candidate next state. An
// error aborts the write with no commit.
type ActionFunc[T any] func(ac *ActionContext[T]) (T, error)

// Atom is the definition of a named mutable cell: a default value,
// optional reducer actions, an ordered effect chain, and an optional
// persistence binding. A definition is built once with the fluent
// With/Persistent methods and may then be registered into any number of
// scopes; each registration holds independent state.
//
// Definitions must not be modified after the first registration.
type Atom[T any] struct {
	name    string
	def     T
	defFn   func(ctx context.Context) (T, error)
	actions map[string]ActionFunc[T]
	effects []EffectFunc[T]
	persist bool
	adapter PersistenceAdapter
}

// NewAtom creates an atom definition with a default value.
func NewAtom[T any](name string, def T) *Atom[T] {
	return &Atom[T]{name: name, def: def}
}

// Name returns the atom's registered name.
func (a *Atom[T]) Name() string { return a.name }

// WithDefaultFunc replaces the default value with a function evaluated
// once per registration. Useful when the default is expensive to build or
// must not be shared across scopes.
func (a *Atom[T]) WithDefaultFunc(fn func(ctx context.Context) (T, error)) *Atom[T] {
	a.defFn = fn
	return a
}

// WithAction adds a named reducer. Dispatching a name that was never added
// is a silent no-op.
func (a *Atom[T]) WithAction(name string, fn ActionFunc[T]) *Atom[T] {
	if a.actions == nil {
		a.actions = make(map[string]ActionFunc[T])
	}
	a.actions[name] = fn
	return a
}

// WithEffect appends an effect to the chain. Effects run in the order they
// were added on every write.
func (a *Atom[T]) WithEffect(fn EffectFunc[T]) *Atom[T] {
	a.effects = append(a.effects, fn)
	return a
}

// Persistent marks the atom for persistence through the store's default
// adapter. Registration fails if the store has none.
func (a *Atom[T]) Persistent() *Atom[T] {
	a.persist = true
	return a
}

// PersistentWith marks the atom for persistence through a specific
// adapter, overriding the store default.
func (a *Atom[T]) PersistentWith(adapter PersistenceAdapter) *Atom[T] {
	a.persist = true
	a.adapter = adapter
	return a
}

// RegisterAtom registers the definition into a scope. The initial value is
// the persisted copy when the atom is persistent and the adapter has one,
// otherwise the default. Hydration runs no effects and produces no
// notifications. Registering a name already present in the scope returns
// ErrConflict. The context bounds hydration and the default function.
func RegisterAtom[T any](ctx context.Context, sc *Scope, a *Atom[T]) error {
	if a.name == "" {
		return fmt.Errorf("atom name must not be empty")
	}
	s := sc.store
	if s.closed.Load() {
		return ErrClosed
	}

	adapter := a.adapter
	if a.persist && adapter == nil {
		adapter = s.opts.adapter
	}
	if a.persist && adapter == nil {
		return fmt.Errorf("atom %q: persistent but no adapter configured", a.name)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sc.mu.RLock()
	_, dup := sc.entries[a.name]
	sc.mu.RUnlock()
	if dup {
		return fmt.Errorf("atom %q in scope %q: %w", a.name, sc.path, ErrConflict)
	}

	e := &entry{
		seq:        s.nextSeq(),
		name:       a.name,
		kind:       kindAtom,
		scope:      sc,
		dependents: make(map[*entry]struct{}),
		subs:       newSubscriberList(),
		atom: &atomState{
			defaultFn:  wrapDefault(a.def, a.defFn),
			actions:    wrapActions(a.name, a.actions),
			effects:    wrapEffects(a.effects),
			normalize:  func(v any) (any, error) { return coerceTo[T](v) },
			decode:     decodeJSON[T],
			adapter:    adapter,
			persistKey: sc.path + "/" + a.name,
		},
	}

	value, err := e.atom.defaultFn(ctx)
	if err != nil {
		return fmt.Errorf("atom %q: default: %w", a.name, err)
	}
	if adapter != nil {
		if v, ok := s.hydrate(ctx, e); ok {
			value = v
		}
	}
	e.value = value

	if err := sc.addEntry(e); err != nil {
		return err
	}
	s.logger().Debug(ctx, "atom registered", "atom", a.name, "scope", sc.path,
		"persistent", adapter != nil)
	return nil
}

// Get returns the committed value, resolved through sc.
func (a *Atom[T]) Get(ctx context.Context, sc *Scope) (T, error) {
	var zero T
	e, err := sc.resolve(a.name)
	if err != nil {
		return zero, err
	}
	return assertValue[T](a.name, e.snapshotValue())
}

// Set writes v through the full write path: effects, commit, persistence,
// notifications, filter propagation.
func (a *Atom[T]) Set(ctx context.Context, sc *Scope, v T) error {
	e, err := sc.writableEntry(a.name)
	if err != nil {
		return err
	}
	return sc.store.write(ctx, e, "set", func(any) (any, error) { return v, nil })
}

// Update applies fn to the committed value and writes the result. The read
// and write are atomic with respect to other writers.
func (a *Atom[T]) Update(ctx context.Context, sc *Scope, fn func(T) T) error {
	e, err := sc.writableEntry(a.name)
	if err != nil {
		return err
	}
	return sc.store.write(ctx, e, "update", func(prev any) (any, error) {
		cur, err := assertValue[T](a.name, prev)
		if err != nil {
			return nil, err
		}
		return fn(cur), nil
	})
}

// Dispatch invokes a named reducer with payload. Unknown names are a
// silent no-op.
func (a *Atom[T]) Dispatch(ctx context.Context, sc *Scope, action string, payload any) error {
	return sc.Dispatch(ctx, a.name, action, payload)
}

// Reset writes the default value and removes the persisted copy.
func (a *Atom[T]) Reset(ctx context.Context, sc *Scope) error {
	return sc.Reset(ctx, a.name)
}

// Subscribe registers fn for typed change notifications.
func (a *Atom[T]) Subscribe(sc *Scope, fn func(T)) (UnsubscribeFunc, error) {
	return sc.Subscribe(a.name, func(v any) {
		if t, ok := v.(T); ok {
			fn(t)
		}
	})
}

// Watch returns a typed channel of change notifications. See Scope.Watch
// for delivery semantics.
func (a *Atom[T]) Watch(ctx context.Context, sc *Scope) (<-chan T, UnsubscribeFunc, error) {
	w := newWatcher[T](sc.store.logger(), a.name)
	unsub, err := sc.Subscribe(a.name, func(v any) {
		if t, ok := v.(T); ok {
			w.send(ctx, t)
		}
	})
	if err != nil {
		return nil, nil, err
	}
	stop := w.stopFunc(ctx, unsub)
	return w.ch, stop, nil
}

func wrapDefault[T any](def T, defFn func(ctx context.Context) (T, error)) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		if defFn != nil {
			v, err := defFn(ctx)
			if err != nil {
				return nil, err
			}
			return v, nil
		}
		return def, nil
	}
}

func wrapActions[T any](atomName string, actions map[string]ActionFunc[T]) map[string]actionRunner {
	if len(actions) == 0 {
		return nil
	}
	out := make(map[string]actionRunner, len(actions))
	for name, fn := range actions {
		fn := fn
		out[name] = func(ctx context.Context, sc *Scope, state, payload any) (any, error) {
			cur, err := assertValue[T](atomName, state)
			if err != nil {
				return nil, err
			}
			return fn(&ActionContext[T]{ctx: ctx, scope: sc, state: cur, payload: payload})
		}
	}
	return out
}

func wrapEffects[T any](effects []EffectFunc[T]) []effectRunner {
	out := make([]effectRunner, len(effects))
	for i, fn := range effects {
		fn := fn
		out[i] = func(p *effectPass) error {
			return fn(&EffectContext[T]{pass: p})
		}
	}
	return out
}

func decodeJSON[T any](data []byte) (any, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func assertValue[T any](name string, v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var zero T
	return zero, fmt.Errorf("type mismatch for %q: expected %T, got %T", name, zero, v)
}

// coerceTo bridges the dynamic any-valued API onto typed atoms: a direct
// assertion first, then a JSON round trip for values coming from YAML
// definitions, Lua scripts, or the CLI.
func coerceTo[T any](v any) (T, error) {
	if t, ok := v.(T); ok {
		return t, nil
	}
	var zero T
	if v == nil {
		return zero, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return zero, fmt.Errorf("cannot coerce %T: %w", v, err)
	}
	var t T
	if err := json.Unmarshal(data, &t); err != nil {
		return zero, fmt.Errorf("cannot coerce %T to %T: %w", v, zero, err)
	}
	return t, nil
}
