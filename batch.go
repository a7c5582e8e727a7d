package atomicstate

import (
	"context"
	"fmt"
)

type batchWrite struct {
	entry     *entry
	label     string
	remove    bool
	candidate func(prev any) (any, error)
}

// Batch collects writes against one scope and commits them in a single
// propagation wave: every write runs its own effect chain and commit in
// order, then each affected filter recomputes exactly once, seeing all
// committed values. Notifications fire once per write plus once per
// recomputed filter.
//
// A Batch is single-use; Commit must be called exactly once.
type Batch struct {
	scope *Scope
	ops   []batchOp
}

type batchOp struct {
	name      string
	label     string
	remove    bool
	action    string
	payload   any
	candidate func(e *entry, sc *Scope, ctx context.Context) func(prev any) (any, error)
}

// Batch starts a batched write against this scope.
func (sc *Scope) Batch() *Batch {
	return &Batch{scope: sc}
}

// Set queues a write of value to the named atom.
func (b *Batch) Set(name string, value any) *Batch {
	b.ops = append(b.ops, batchOp{
		name:  name,
		label: "set",
		candidate: func(e *entry, _ *Scope, _ context.Context) func(prev any) (any, error) {
			return func(any) (any, error) { return e.atom.normalize(value) }
		},
	})
	return b
}

// Update queues a read-modify-write of the named atom.
func (b *Batch) Update(name string, fn func(any) any) *Batch {
	b.ops = append(b.ops, batchOp{
		name:  name,
		label: "update",
		candidate: func(e *entry, _ *Scope, _ context.Context) func(prev any) (any, error) {
			return func(prev any) (any, error) { return e.atom.normalize(fn(prev)) }
		},
	})
	return b
}

// Dispatch queues a named action. Unknown action names are skipped, the
// usual no-op convention.
func (b *Batch) Dispatch(name, action string, payload any) *Batch {
	b.ops = append(b.ops, batchOp{
		name:    name,
		label:   "action:" + action,
		action:  action,
		payload: payload,
	})
	return b
}

// Reset queues a reset to the atom's default; the persisted copy is
// removed on commit.
func (b *Batch) Reset(name string) *Batch {
	b.ops = append(b.ops, batchOp{
		name:   name,
		label:  "reset",
		remove: true,
		candidate: func(e *entry, _ *Scope, ctx context.Context) func(prev any) (any, error) {
			return func(any) (any, error) { return e.atom.defaultFn(ctx) }
		},
	})
	return b
}

// Commit resolves every queued name and applies the batch. Resolution
// errors (ErrNotFound, ErrReadOnly) abort before anything is written; a
// write error aborts the remaining writes while commits made before it
// still propagate and notify.
func (b *Batch) Commit(ctx context.Context) error {
	writes := make([]batchWrite, 0, len(b.ops))
	for _, op := range b.ops {
		e, err := b.scope.writableEntry(op.name)
		if err != nil {
			return fmt.Errorf("batch: %w", err)
		}
		if op.action != "" {
			runner, ok := e.atom.actions[op.action]
			if !ok {
				b.scope.store.logger().Debug(ctx, "unknown action ignored",
					"entry", op.name, "scope", b.scope.path, "action", op.action)
				continue
			}
			op := op
			writes = append(writes, batchWrite{
				entry: e,
				label: op.label,
				candidate: func(prev any) (any, error) {
					next, err := runner(ctx, b.scope, prev, op.payload)
					if err != nil {
						return nil, fmt.Errorf("action %q on %q: %w", op.action, op.name, err)
					}
					return next, nil
				},
			})
			continue
		}
		writes = append(writes, batchWrite{
			entry:     e,
			label:     op.label,
			remove:    op.remove,
			candidate: op.candidate(e, b.scope, ctx),
		})
	}
	if len(writes) == 0 {
		return nil
	}
	return b.scope.store.writeBatch(ctx, writes)
}

// BatchSet queues a typed write on a batch.
func BatchSet[T any](b *Batch, a *Atom[T], v T) *Batch {
	b.ops = append(b.ops, batchOp{
		name:  a.Name(),
		label: "set",
		candidate: func(*entry, *Scope, context.Context) func(prev any) (any, error) {
			return func(any) (any, error) { return v, nil }
		},
	})
	return b
}
