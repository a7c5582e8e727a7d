package atomicstate

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/atomic-state/atomicstate/internal/retry"
)

// PersistenceAdapter is the external key-value contract used to hydrate a
// persistent atom's initial value and mirror subsequent commits. Values
// are JSON documents produced by the library; the adapter's own storage
// encoding is opaque. GetItem returns found=false for missing keys.
//
// Implementations must be safe for concurrent use. Mirror writes happen
// on a background goroutine with no ordering guarantee relative to reads.
type PersistenceAdapter interface {
	GetItem(ctx context.Context, key string) (value []byte, found bool, err error)
	SetItem(ctx context.Context, key string, value []byte) error
	RemoveItem(ctx context.Context, key string) error
}

// persistOpTimeout bounds a single adapter call made by the queue worker.
const persistOpTimeout = 5 * time.Second

// hydrate reads the persisted copy for e. Failures are logged and leave
// the atom on its default; a missing or broken adapter never blocks
// registration.
func (s *Store) hydrate(ctx context.Context, e *entry) (any, bool) {
	as := e.atom
	data, found, err := as.adapter.GetItem(ctx, as.persistKey)
	if err != nil {
		s.logger().Error(ctx, "hydration failed, using default",
			"key", as.persistKey, "error", err)
		return nil, false
	}
	if !found {
		return nil, false
	}
	v, err := as.decode(data)
	if err != nil {
		s.logger().Error(ctx, "persisted value undecodable, using default",
			"key", as.persistKey, "error", err)
		return nil, false
	}
	s.logger().Debug(ctx, "atom hydrated", "key", as.persistKey)
	return v, true
}

// enqueuePersist queues a mirror write or removal for e's committed value.
// Marshal failures are logged and dropped; the in-memory commit stands.
func (s *Store) enqueuePersist(ctx context.Context, e *entry, value any, remove bool) {
	op := persistOp{adapter: e.atom.adapter, key: e.atom.persistKey, remove: remove}
	if !remove {
		data, err := json.Marshal(value)
		if err != nil {
			s.logger().Error(ctx, "cannot marshal value for persistence",
				"key", op.key, "error", err)
			return
		}
		op.value = data
	}
	s.queue.enqueue(op)
}

type persistOp struct {
	adapter PersistenceAdapter
	key     string
	value   []byte
	remove  bool
}

// persistQueue coalesces mirror writes per key, so only the latest value
// for an atom reaches the adapter, and drains them on one background
// goroutine. Fire-and-forget: errors are retried a bounded number of
// times, then logged and dropped.
type persistQueue struct {
	logger Logger
	policy retry.Policy

	mu    sync.Mutex
	dirty map[string]persistOp
	order []string

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func newPersistQueue(logger Logger, retries int) *persistQueue {
	q := &persistQueue{
		logger: logger,
		policy: retry.Policy{
			MaxAttempts:  retries,
			InitialDelay: 50 * time.Millisecond,
			MaxDelay:     time.Second,
			Multiplier:   2.0,
		},
		dirty: make(map[string]persistOp),
		wake:  make(chan struct{}, 1),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *persistQueue) enqueue(op persistOp) {
	q.mu.Lock()
	if _, queued := q.dirty[op.key]; !queued {
		q.order = append(q.order, op.key)
	}
	q.dirty[op.key] = op
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *persistQueue) run() {
	defer close(q.done)
	for {
		select {
		case <-q.stop:
			q.drain(context.Background())
			return
		case <-q.wake:
			q.drain(context.Background())
		}
	}
}

// drain takes the current dirty set and writes it out, one goroutine per
// adapter, keys in first-dirtied order within each adapter.
func (q *persistQueue) drain(ctx context.Context) {
	q.mu.Lock()
	if len(q.order) == 0 {
		q.mu.Unlock()
		return
	}
	ops := make([]persistOp, 0, len(q.order))
	for _, key := range q.order {
		ops = append(ops, q.dirty[key])
	}
	q.dirty = make(map[string]persistOp)
	q.order = nil
	q.mu.Unlock()

	byAdapter := make(map[PersistenceAdapter][]persistOp)
	var adapters []PersistenceAdapter
	for _, op := range ops {
		if _, ok := byAdapter[op.adapter]; !ok {
			adapters = append(adapters, op.adapter)
		}
		byAdapter[op.adapter] = append(byAdapter[op.adapter], op)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, adapter := range adapters {
		batch := byAdapter[adapter]
		g.Go(func() error {
			for _, op := range batch {
				q.apply(gctx, op)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (q *persistQueue) apply(ctx context.Context, op persistOp) {
	opCtx, cancel := context.WithTimeout(ctx, persistOpTimeout)
	defer cancel()

	err := q.policy.Do(opCtx, func() error {
		if op.remove {
			return op.adapter.RemoveItem(opCtx, op.key)
		}
		return op.adapter.SetItem(opCtx, op.key, op.value)
	})
	if err != nil {
		q.logger.Error(ctx, "mirror write dropped after retries",
			"key", op.key, "remove", op.remove, "error", err)
	}
}

// Close drains outstanding writes and stops the worker. The context
// bounds the wait for the worker to finish.
func (q *persistQueue) Close(ctx context.Context) error {
	q.stopOnce.Do(func() { close(q.stop) })
	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
