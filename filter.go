package atomicstate

import (
	"context"
	"fmt"
)

// FilterContext is handed to a filter's compute function. Every Get (and
// the typed Read helpers) records a dependency; the set captured by the
// most recent completed computation is exactly what triggers the next
// recomputation.
type FilterContext struct {
	ctx   context.Context
	scope *Scope
	deps  map[*entry]struct{}
	wave  *wave
}

// Context returns the computation's context. For asynchronous filters it
// is cancelled when a newer computation is issued for the same filter or
// the scope is torn down.
func (fc *FilterContext) Context() context.Context { return fc.ctx }

// Get reads the named entry, resolved through the filter's scope, and
// records it as a dependency. Reading the cell currently being computed
// returns ErrCycle.
func (fc *FilterContext) Get(name string) (any, error) {
	e, err := fc.scope.resolve(name)
	if err != nil {
		// A filter's own entry is not resolvable during its initial
		// computation; reading it is still a cycle, not a missing entry.
		if fc.wave != nil {
			for c := range fc.wave.computing {
				if c.name == name {
					return nil, fmt.Errorf("%s %q: %w", c.kind, name, ErrCycle)
				}
			}
		}
		return nil, err
	}
	if fc.wave != nil {
		if _, computing := fc.wave.computing[e]; computing {
			return nil, fmt.Errorf("%s %q: %w", e.kind, name, ErrCycle)
		}
	}
	fc.deps[e] = struct{}{}
	return e.snapshotValue(), nil
}

// Read reads an atom's value through the filter context with its static
// type, recording the dependency.
func Read[U any](fc *FilterContext, a *Atom[U]) (U, error) {
	var zero U
	v, err := fc.Get(a.Name())
	if err != nil {
		return zero, err
	}
	return assertValue[U](a.Name(), v)
}

// ReadFilter reads another filter's value through the filter context,
// recording the dependency.
func ReadFilter[U any](fc *FilterContext, f *Filter[U]) (U, error) {
	var zero U
	v, err := fc.Get(f.Name())
	if err != nil {
		return zero, err
	}
	return assertValue[U](f.Name(), v)
}

// ComputeFunc derives a filter's value from other cells.
type ComputeFunc[T any] func(fc *FilterContext) (T, error)

// Filter is the definition of a named derived read-only cell. Synchronous
// filters compute eagerly at registration and inside the propagation wave
// of each change to a dependency. Asynchronous filters compute on their
// own goroutine; a computation superseded by a newer one is discarded, so
// the applied value always reflects the newest issuance regardless of
// completion order.
type Filter[T any] struct {
	name       string
	compute    ComputeFunc[T]
	async      bool
	def        T
	hasDefault bool
}

// NewFilter creates a synchronous filter definition.
func NewFilter[T any](name string, compute ComputeFunc[T]) *Filter[T] {
	return &Filter[T]{name: name, compute: compute}
}

// NewAsyncFilter creates an asynchronous filter definition. The default
// value is served until the first computation applies.
func NewAsyncFilter[T any](name string, def T, compute ComputeFunc[T]) *Filter[T] {
	return &Filter[T]{name: name, compute: compute, async: true, def: def, hasDefault: true}
}

// Name returns the filter's registered name.
func (f *Filter[T]) Name() string { return f.name }

// RegisterFilter registers the definition into a scope. A synchronous
// filter computes immediately; the error, if any, fails registration. An
// asynchronous filter starts its first computation in the background and
// serves its default value until that computation applies.
func RegisterFilter[T any](sc *Scope, f *Filter[T]) error {
	if f.name == "" {
		return fmt.Errorf("filter name must not be empty")
	}
	if f.compute == nil {
		return fmt.Errorf("filter %q: compute function required", f.name)
	}
	s := sc.store
	if s.closed.Load() {
		return ErrClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	sc.mu.RLock()
	_, dup := sc.entries[f.name]
	sc.mu.RUnlock()
	if dup {
		return fmt.Errorf("filter %q in scope %q: %w", f.name, sc.path, ErrConflict)
	}

	e := &entry{
		seq:        s.nextSeq(),
		name:       f.name,
		kind:       kindFilter,
		scope:      sc,
		dependents: make(map[*entry]struct{}),
		subs:       newSubscriberList(),
		filter: &filterState{
			compute: wrapCompute(f.name, f.compute),
			async:   f.async,
			deps:    make(map[*entry]struct{}),
		},
	}

	if f.async {
		e.value = f.def
		if err := sc.addEntry(e); err != nil {
			return err
		}
		s.issueAsync(e)
		s.logger().Debug(s.baseCtx, "async filter registered", "filter", f.name, "scope", sc.path)
		return nil
	}

	fc := &FilterContext{
		ctx:   s.baseCtx,
		scope: sc,
		deps:  make(map[*entry]struct{}),
		wave:  &wave{computing: map[*entry]struct{}{e: {}}},
	}
	v, err := e.filter.compute(fc)
	if err != nil {
		return fmt.Errorf("filter %q: initial computation: %w", f.name, err)
	}
	e.value = v
	if err := sc.addEntry(e); err != nil {
		return err
	}
	s.installDeps(e, fc.deps)
	s.logger().Debug(s.baseCtx, "filter registered", "filter", f.name, "scope", sc.path,
		"deps", len(fc.deps))
	return nil
}

// Get returns the committed value, resolved through sc. For asynchronous
// filters this is the default until the first computation applies.
func (f *Filter[T]) Get(ctx context.Context, sc *Scope) (T, error) {
	var zero T
	e, err := sc.resolve(f.name)
	if err != nil {
		return zero, err
	}
	return assertValue[T](f.name, e.snapshotValue())
}

// Subscribe registers fn for typed change notifications.
func (f *Filter[T]) Subscribe(sc *Scope, fn func(T)) (UnsubscribeFunc, error) {
	return sc.Subscribe(f.name, func(v any) {
		if t, ok := v.(T); ok {
			fn(t)
		}
	})
}

// Watch returns a typed channel of change notifications. See Scope.Watch
// for delivery semantics.
func (f *Filter[T]) Watch(ctx context.Context, sc *Scope) (<-chan T, UnsubscribeFunc, error) {
	w := newWatcher[T](sc.store.logger(), f.name)
	unsub, err := sc.Subscribe(f.name, func(v any) {
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

func wrapCompute[T any](name string, compute ComputeFunc[T]) computeRunner {
	return func(fc *FilterContext) (any, error) {
		v, err := compute(fc)
		if err != nil {
			return nil, fmt.Errorf("filter %q: %w", name, err)
		}
		return v, nil
	}
}
