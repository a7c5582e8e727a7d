package atomicstate

import "context"

// effectPass is the shared state of one run of an atom's effect chain.
type effectPass struct {
	ctx      context.Context
	scope    *Scope
	name     string
	prev     any
	next     any
	rejected bool
	cleanups []func()
}

// EffectContext is handed to each effect in the chain. Prev is the
// committed value before the write, Next the pending candidate, already
// reflecting overrides from earlier effects in the chain.
type EffectContext[T any] struct {
	pass *effectPass
}

// Context returns the pass context. It is cancelled when a newer write
// pass begins for the same atom or the scope is torn down; asynchronous
// side work started by the effect should watch it.
func (ec *EffectContext[T]) Context() context.Context { return ec.pass.ctx }

// Scope returns the scope the atom is registered in, for sibling reads.
func (ec *EffectContext[T]) Scope() *Scope { return ec.pass.scope }

// Name returns the atom's name.
func (ec *EffectContext[T]) Name() string { return ec.pass.name }

// Prev returns the committed value before this write.
func (ec *EffectContext[T]) Prev() T {
	v, _ := ec.pass.prev.(T)
	return v
}

// Next returns the pending candidate value.
func (ec *EffectContext[T]) Next() T {
	v, _ := ec.pass.next.(T)
	return v
}

// Override replaces the pending candidate. Effects later in the chain and
// the commit see the replacement.
func (ec *EffectContext[T]) Override(v T) {
	ec.pass.next = v
}

// Reject vetoes the write. The chain stops, nothing is committed, and no
// notification fires; the caller sees a nil error. Cleanups registered by
// effects that already ran are retained.
func (ec *EffectContext[T]) Reject() {
	ec.pass.rejected = true
}

// OnCleanup registers fn to run before the next effect pass for this atom
// or on scope teardown, whichever comes first.
func (ec *EffectContext[T]) OnCleanup(fn func()) {
	ec.pass.cleanups = append(ec.pass.cleanups, fn)
}

// EffectFunc runs on every write of an atom, in registration order. A
// non-nil error aborts the write and is returned to the caller.
type EffectFunc[T any] func(ec *EffectContext[T]) error
