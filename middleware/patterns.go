package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/atomic-state/atomicstate"
)

// Retry adds retry logic with linear backoff to every adapter call.
func Retry(maxAttempts int, backoff time.Duration) Middleware {
	run := func(ctx context.Context, op func() error) error {
		var lastErr error
		for attempt := 0; attempt < maxAttempts; attempt++ {
			if attempt > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(backoff * time.Duration(attempt)):
				}
			}
			err := op()
			if err == nil {
				return nil
			}
			lastErr = err
		}
		return fmt.Errorf("failed after %d attempts: %w", maxAttempts, lastErr)
	}

	return func(adapter atomicstate.PersistenceAdapter) atomicstate.PersistenceAdapter {
		return &middlewareAdapter{
			inner: adapter,
			get: func(ctx context.Context, key string) ([]byte, bool, error) {
				var value []byte
				var found bool
				err := run(ctx, func() error {
					var err error
					value, found, err = adapter.GetItem(ctx, key)
					return err
				})
				return value, found, err
			},
			set: func(ctx context.Context, key string, value []byte) error {
				return run(ctx, func() error { return adapter.SetItem(ctx, key, value) })
			},
			remove: func(ctx context.Context, key string) error {
				return run(ctx, func() error { return adapter.RemoveItem(ctx, key) })
			},
		}
	}
}

// Timeout bounds every adapter call. A call that ignores cancellation
// keeps running on its own goroutine; its result is discarded.
func Timeout(duration time.Duration) Middleware {
	return func(adapter atomicstate.PersistenceAdapter) atomicstate.PersistenceAdapter {
		return &middlewareAdapter{
			inner: adapter,
			get: func(ctx context.Context, key string) ([]byte, bool, error) {
				tctx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				type result struct {
					value []byte
					found bool
					err   error
				}
				done := make(chan result, 1)
				go func() {
					v, f, err := adapter.GetItem(tctx, key)
					done <- result{v, f, err}
				}()

				select {
				case r := <-done:
					return r.value, r.found, r.err
				case <-tctx.Done():
					return nil, false, fmt.Errorf("adapter get timed out after %v", duration)
				}
			},
			set: func(ctx context.Context, key string, value []byte) error {
				tctx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				done := make(chan error, 1)
				go func() { done <- adapter.SetItem(tctx, key, value) }()

				select {
				case err := <-done:
					return err
				case <-tctx.Done():
					return fmt.Errorf("adapter set timed out after %v", duration)
				}
			},
			remove: func(ctx context.Context, key string) error {
				tctx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				done := make(chan error, 1)
				go func() { done <- adapter.RemoveItem(tctx, key) }()

				select {
				case err := <-done:
					return err
				case <-tctx.Done():
					return fmt.Errorf("adapter remove timed out after %v", duration)
				}
			},
		}
	}
}

// Transform rewrites values on their way to and from the adapter: encode
// runs before SetItem, decode after GetItem. Either may be nil. Use it
// for compression or encryption layers.
func Transform(encode, decode func([]byte) ([]byte, error)) Middleware {
	return func(adapter atomicstate.PersistenceAdapter) atomicstate.PersistenceAdapter {
		wrapper := &middlewareAdapter{inner: adapter}

		if encode != nil {
			wrapper.set = func(ctx context.Context, key string, value []byte) error {
				encoded, err := encode(value)
				if err != nil {
					return fmt.Errorf("encode value: %w", err)
				}
				return adapter.SetItem(ctx, key, encoded)
			}
		}

		if decode != nil {
			wrapper.get = func(ctx context.Context, key string) ([]byte, bool, error) {
				value, found, err := adapter.GetItem(ctx, key)
				if err != nil || !found {
					return value, found, err
				}
				decoded, err := decode(value)
				if err != nil {
					return nil, false, fmt.Errorf("decode value: %w", err)
				}
				return decoded, true, nil
			}
		}

		return wrapper
	}
}

// ErrorHandler adds custom error handling. The handler may map an error
// to another or swallow it by returning nil; a read whose error is
// swallowed reports the key as missing.
func ErrorHandler(handler func(error) error) Middleware {
	return func(adapter atomicstate.PersistenceAdapter) atomicstate.PersistenceAdapter {
		return &middlewareAdapter{
			inner: adapter,
			get: func(ctx context.Context, key string) ([]byte, bool, error) {
				value, found, err := adapter.GetItem(ctx, key)
				if err != nil {
					if handled := handler(err); handled != nil {
						return nil, false, handled
					}
					return nil, false, nil
				}
				return value, found, nil
			},
			set: func(ctx context.Context, key string, value []byte) error {
				if err := adapter.SetItem(ctx, key, value); err != nil {
					return handler(err)
				}
				return nil
			},
			remove: func(ctx context.Context, key string) error {
				if err := adapter.RemoveItem(ctx, key); err != nil {
					return handler(err)
				}
				return nil
			},
		}
	}
}
