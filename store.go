package atomicstate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/oklog/ulid/v2"
)

// Store is the registry for atoms and filters. It owns a tree of scopes
// rooted at Root, a background queue that mirrors persistent atoms to
// their adapters, and the write lock that serializes commits.
//
// All methods are safe for concurrent use. Methods that operate on entries
// delegate to the root scope; use NewScope to create nested scopes.
type Store struct {
	id    string
	opts  storeOptions
	root  *Scope
	queue *persistQueue

	// writeMu serializes the write path: candidate, effects, commit, and
	// filter propagation. Reads take per-entry locks only.
	writeMu sync.Mutex

	baseCtx    context.Context
	baseCancel context.CancelFunc

	seq    atomic.Uint64
	closed atomic.Bool
}

type storeOptions struct {
	name           string
	logger         Logger
	tracer         Tracer
	adapter        PersistenceAdapter
	persistRetries int
}

// Option configures a Store.
type Option func(*storeOptions)

// WithName sets the root scope name. It prefixes persistence keys and
// appears in logs. The default is "root".
func WithName(name string) Option {
	return func(o *storeOptions) {
		o.name = name
	}
}

// WithLogger sets the logger for store internals.
func WithLogger(l Logger) Option {
	return func(o *storeOptions) {
		o.logger = l
	}
}

// WithTracer sets the tracer for write and snapshot operations.
func WithTracer(t Tracer) Option {
	return func(o *storeOptions) {
		o.tracer = t
	}
}

// WithPersistence sets the default adapter for persistent atoms. Atoms
// registered with PersistentWith override it per atom.
func WithPersistence(adapter PersistenceAdapter) Option {
	return func(o *storeOptions) {
		o.adapter = adapter
	}
}

// WithPersistRetries sets how many times a failed mirror write is retried
// before it is dropped and logged. The default is 3.
func WithPersistRetries(n int) Option {
	return func(o *storeOptions) {
		o.persistRetries = n
	}
}

// NewStore creates a store with an empty root scope.
func NewStore(opts ...Option) *Store {
	o := storeOptions{
		name:           "root",
		logger:         noopLogger{},
		persistRetries: 3,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{
		id:   ulid.Make().String(),
		opts: o,
	}
	s.baseCtx, s.baseCancel = context.WithCancel(context.Background())
	s.root = newScope(s, nil, o.name)
	s.queue = newPersistQueue(o.logger, o.persistRetries)
	return s
}

// ID returns the store's unique instance id.
func (s *Store) ID() string { return s.id }

// Name returns the root scope name.
func (s *Store) Name() string { return s.opts.name }

// Root returns the root scope.
func (s *Store) Root() *Scope { return s.root }

// NewScope creates a child of the root scope.
func (s *Store) NewScope(name string) (*Scope, error) { return s.root.NewScope(name) }

// Scope resolves a slash-separated path of scope names below the root.
// An empty path returns the root scope itself.
func (s *Store) Scope(path string) (*Scope, error) {
	sc := s.root
	if path == "" {
		return sc, nil
	}
	for _, name := range strings.Split(path, "/") {
		child, ok := sc.Child(name)
		if !ok {
			return nil, fmt.Errorf("scope %q in %q: %w", name, sc.Path(), ErrNotFound)
		}
		sc = child
	}
	return sc, nil
}

// Get reads an entry registered on the root scope chain.
func (s *Store) Get(ctx context.Context, name string) (any, error) { return s.root.Get(ctx, name) }

// Set writes an atom registered on the root scope chain.
func (s *Store) Set(ctx context.Context, name string, value any) error {
	return s.root.Set(ctx, name, value)
}

// Update applies fn to the current value of an atom on the root scope chain.
func (s *Store) Update(ctx context.Context, name string, fn func(any) any) error {
	return s.root.Update(ctx, name, fn)
}

// Dispatch invokes a named action on an atom on the root scope chain.
func (s *Store) Dispatch(ctx context.Context, name, action string, payload any) error {
	return s.root.Dispatch(ctx, name, action, payload)
}

// Reset restores an atom on the root scope chain to its default value.
func (s *Store) Reset(ctx context.Context, name string) error { return s.root.Reset(ctx, name) }

// Subscribe registers fn for change notifications of the named entry.
func (s *Store) Subscribe(name string, fn func(any)) (UnsubscribeFunc, error) {
	return s.root.Subscribe(name, fn)
}

// Watch returns a channel of change notifications for the named entry.
func (s *Store) Watch(ctx context.Context, name string) (<-chan any, UnsubscribeFunc, error) {
	return s.root.Watch(ctx, name)
}

// Batch starts a batched write against the root scope.
func (s *Store) Batch() *Batch { return s.root.Batch() }

// Snapshot captures the committed values of every scope in the store.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) { return s.root.Snapshot(ctx) }

// Close tears down every scope, cancels in-flight asynchronous
// computations, and flushes pending mirror writes. The context bounds the
// flush. Close is idempotent; operations after Close return ErrClosed.
func (s *Store) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}

	s.writeMu.Lock()
	s.root.teardownLocked()
	s.writeMu.Unlock()

	s.baseCancel()
	err := s.queue.Close(ctx)
	s.opts.logger.Debug(ctx, "store closed", "store", s.opts.name, "id", s.id)
	return err
}

func (s *Store) nextSeq() uint64 { return s.seq.Add(1) }

func (s *Store) logger() Logger { return s.opts.logger }
