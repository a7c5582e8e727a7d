package atomicstate

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

type entryKind int

const (
	kindAtom entryKind = iota
	kindFilter
)

func (k entryKind) String() string {
	if k == kindAtom {
		return "atom"
	}
	return "filter"
}

// entry is the per-scope state of a registered atom or filter. The value
// and version are guarded by mu for readers; writers additionally hold the
// store write lock.
type entry struct {
	seq   uint64
	name  string
	kind  entryKind
	scope *Scope

	mu      sync.RWMutex
	value   any
	version uint64

	atom   *atomState
	filter *filterState

	// dependents holds the filters whose last computation read this
	// entry. Maintained under the store write lock.
	dependents map[*entry]struct{}

	subs *subscriberList
}

type atomState struct {
	defaultFn  func(ctx context.Context) (any, error)
	actions    map[string]actionRunner
	effects    []effectRunner
	cleanups   []func()
	passCancel context.CancelFunc
	adapter    PersistenceAdapter
	persistKey string
	normalize  func(any) (any, error)
	decode     func([]byte) (any, error)
}

type filterState struct {
	compute computeRunner
	async   bool
	deps    map[*entry]struct{}
	issued  uint64
	cancel  context.CancelFunc
}

type (
	actionRunner  func(ctx context.Context, sc *Scope, state, payload any) (any, error)
	effectRunner  func(p *effectPass) error
	computeRunner func(fc *FilterContext) (any, error)
)

func (e *entry) snapshotValue() any {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.value
}

func (e *entry) currentVersion() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.version
}

// teardown runs under the store write lock during scope close.
func (e *entry) teardown() {
	if e.atom != nil {
		if e.atom.passCancel != nil {
			e.atom.passCancel()
		}
		for _, c := range e.atom.cleanups {
			c()
		}
		e.atom.cleanups = nil
	}
	if e.filter != nil {
		if e.filter.cancel != nil {
			e.filter.cancel()
		}
		for d := range e.filter.deps {
			delete(d.dependents, e)
		}
		e.filter.deps = nil
	}
	e.subs.clear()
}

// Scope is an isolated namespace of atoms and filters. Scopes nest; name
// resolution walks from a scope toward the root, so an inner registration
// shadows an outer one of the same name while sibling scopes stay
// independent.
type Scope struct {
	store  *Store
	parent *Scope
	name   string
	path   string

	mu       sync.RWMutex
	entries  map[string]*entry
	children map[string]*Scope
	closed   bool
}

func newScope(store *Store, parent *Scope, name string) *Scope {
	path := name
	if parent != nil {
		path = parent.path + "/" + name
	}
	return &Scope{
		store:    store,
		parent:   parent,
		name:     name,
		path:     path,
		entries:  make(map[string]*entry),
		children: make(map[string]*Scope),
	}
}

// Name returns the scope's own name.
func (sc *Scope) Name() string { return sc.name }

// Path returns the slash-joined names from the root to this scope. It
// prefixes persistence keys for atoms registered here.
func (sc *Scope) Path() string { return sc.path }

// Store returns the store this scope belongs to.
func (sc *Scope) Store() *Store { return sc.store }

// NewScope creates a nested child scope. Child names are unique among
// siblings.
func (sc *Scope) NewScope(name string) (*Scope, error) {
	if name == "" {
		return nil, fmt.Errorf("scope name must not be empty")
	}
	if sc.store.closed.Load() {
		return nil, ErrClosed
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return nil, fmt.Errorf("scope %q: %w", sc.path, ErrClosed)
	}
	if _, ok := sc.children[name]; ok {
		return nil, fmt.Errorf("scope %q in %q: %w", name, sc.path, ErrConflict)
	}

	child := newScope(sc.store, sc, name)
	sc.children[name] = child
	return child, nil
}

// Child returns the direct child scope with the given name, if one exists.
func (sc *Scope) Child(name string) (*Scope, bool) {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	c, ok := sc.children[name]
	return c, ok
}

// Close tears down this scope and every scope nested under it: retained
// effect cleanups run, in-flight asynchronous computations are cancelled,
// and subscriptions are dropped. The root scope cannot be closed directly;
// close the store instead.
func (sc *Scope) Close(ctx context.Context) error {
	if sc.parent == nil {
		return fmt.Errorf("root scope cannot be closed; use Store.Close")
	}
	if sc.store.closed.Load() {
		return ErrClosed
	}

	sc.store.writeMu.Lock()
	defer sc.store.writeMu.Unlock()

	sc.teardownLocked()
	sc.parent.mu.Lock()
	delete(sc.parent.children, sc.name)
	sc.parent.mu.Unlock()

	sc.store.logger().Debug(ctx, "scope closed", "scope", sc.path)
	return nil
}

// teardownLocked requires the store write lock.
func (sc *Scope) teardownLocked() {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return
	}
	sc.closed = true
	children := make([]*Scope, 0, len(sc.children))
	for _, c := range sc.children {
		children = append(children, c)
	}
	sort.Slice(children, func(i, j int) bool { return children[i].name < children[j].name })
	entries := sc.entriesBySeqLocked()
	sc.mu.Unlock()

	for _, c := range children {
		c.teardownLocked()
	}
	for _, e := range entries {
		e.teardown()
	}

	sc.mu.Lock()
	sc.entries = make(map[string]*entry)
	sc.children = make(map[string]*Scope)
	sc.mu.Unlock()
}

func (sc *Scope) entriesBySeqLocked() []*entry {
	entries := make([]*entry, 0, len(sc.entries))
	for _, e := range sc.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	return entries
}

func (sc *Scope) isClosed() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.closed
}

// resolve walks from sc toward the root and returns the nearest entry
// registered under name.
func (sc *Scope) resolve(name string) (*entry, error) {
	for cur := sc; cur != nil; cur = cur.parent {
		cur.mu.RLock()
		e, ok := cur.entries[name]
		cur.mu.RUnlock()
		if ok {
			return e, nil
		}
	}
	return nil, fmt.Errorf("entry %q in scope %q: %w", name, sc.path, ErrNotFound)
}

// addEntry installs a new entry. Callers hold the store write lock.
func (sc *Scope) addEntry(e *entry) error {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.closed {
		return fmt.Errorf("scope %q: %w", sc.path, ErrClosed)
	}
	if prev, ok := sc.entries[e.name]; ok {
		return fmt.Errorf("%s %q in scope %q (already a %s): %w",
			e.kind, e.name, sc.path, prev.kind, ErrConflict)
	}
	sc.entries[e.name] = e
	return nil
}

// Get returns the committed value of the named entry.
func (sc *Scope) Get(ctx context.Context, name string) (any, error) {
	e, err := sc.resolve(name)
	if err != nil {
		return nil, err
	}
	return e.snapshotValue(), nil
}

// Version returns the committed version of the named entry, resolved
// through the scope chain. Versions start at zero on registration and
// increment on every commit, including filter recomputations; a vetoed
// or failed write leaves the version unchanged.
func (sc *Scope) Version(name string) (uint64, error) {
	e, err := sc.resolve(name)
	if err != nil {
		return 0, err
	}
	return e.currentVersion(), nil
}

// Set writes value to the named atom. The value is coerced to the atom's
// type; a filter name returns ErrReadOnly.
func (sc *Scope) Set(ctx context.Context, name string, value any) error {
	e, err := sc.writableEntry(name)
	if err != nil {
		return err
	}
	return sc.store.write(ctx, e, "set", func(any) (any, error) {
		return e.atom.normalize(value)
	})
}

// Update applies fn to the current committed value and writes the result.
func (sc *Scope) Update(ctx context.Context, name string, fn func(any) any) error {
	e, err := sc.writableEntry(name)
	if err != nil {
		return err
	}
	return sc.store.write(ctx, e, "update", func(prev any) (any, error) {
		return e.atom.normalize(fn(prev))
	})
}

// Dispatch invokes the named action on an atom. An action name the atom
// does not define is a no-op by convention.
func (sc *Scope) Dispatch(ctx context.Context, name, action string, payload any) error {
	e, err := sc.writableEntry(name)
	if err != nil {
		return err
	}
	runner, ok := e.atom.actions[action]
	if !ok {
		sc.store.logger().Debug(ctx, "unknown action ignored",
			"entry", name, "scope", sc.path, "action", action)
		return nil
	}
	return sc.store.write(ctx, e, "action:"+action, func(prev any) (any, error) {
		next, err := runner(ctx, sc, prev, payload)
		if err != nil {
			return nil, fmt.Errorf("action %q on %q: %w", action, name, err)
		}
		return next, nil
	})
}

// Reset writes the atom's default value and removes its persisted copy.
func (sc *Scope) Reset(ctx context.Context, name string) error {
	e, err := sc.writableEntry(name)
	if err != nil {
		return err
	}
	return sc.store.writeReset(ctx, e)
}

func (sc *Scope) writableEntry(name string) (*entry, error) {
	e, err := sc.resolve(name)
	if err != nil {
		return nil, err
	}
	if e.kind != kindAtom {
		return nil, fmt.Errorf("filter %q: %w", name, ErrReadOnly)
	}
	return e, nil
}
