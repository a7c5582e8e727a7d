// Package middleware provides persistence adapter decorators for
// cross-cutting concerns like logging, timing, retries, and metrics.
package middleware

import (
	"context"

	"github.com/atomic-state/atomicstate"
)

// Middleware modifies persistence adapter behavior.
type Middleware func(atomicstate.PersistenceAdapter) atomicstate.PersistenceAdapter

// middlewareAdapter wraps an adapter to modify its behavior. Unset
// operations delegate to the inner adapter.
type middlewareAdapter struct {
	inner  atomicstate.PersistenceAdapter
	get    func(ctx context.Context, key string) ([]byte, bool, error)
	set    func(ctx context.Context, key string, value []byte) error
	remove func(ctx context.Context, key string) error
}

func (m *middlewareAdapter) GetItem(ctx context.Context, key string) ([]byte, bool, error) {
	if m.get != nil {
		return m.get(ctx, key)
	}
	return m.inner.GetItem(ctx, key)
}

func (m *middlewareAdapter) SetItem(ctx context.Context, key string, value []byte) error {
	if m.set != nil {
		return m.set(ctx, key, value)
	}
	return m.inner.SetItem(ctx, key, value)
}

func (m *middlewareAdapter) RemoveItem(ctx context.Context, key string) error {
	if m.remove != nil {
		return m.remove(ctx, key)
	}
	return m.inner.RemoveItem(ctx, key)
}

// Chain combines multiple middlewares into a single middleware.
// Middlewares are applied in reverse order (like function composition).
func Chain(middlewares ...Middleware) Middleware {
	return func(adapter atomicstate.PersistenceAdapter) atomicstate.PersistenceAdapter {
		for i := len(middlewares) - 1; i >= 0; i-- {
			adapter = middlewares[i](adapter)
		}
		return adapter
	}
}

// Apply applies middleware to an adapter.
func Apply(adapter atomicstate.PersistenceAdapter, middlewares ...Middleware) atomicstate.PersistenceAdapter {
	for _, mw := range middlewares {
		adapter = mw(adapter)
	}
	return adapter
}
