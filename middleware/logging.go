package middleware

import (
	"context"
	"time"

	"github.com/atomic-state/atomicstate"
)

// Logging adds structured logging to every adapter call: Debug on
// success with the call duration, Error on failure.
func Logging(logger atomicstate.Logger) Middleware {
	return func(adapter atomicstate.PersistenceAdapter) atomicstate.PersistenceAdapter {
		return &middlewareAdapter{
			inner: adapter,
			get: func(ctx context.Context, key string) ([]byte, bool, error) {
				start := time.Now()
				value, found, err := adapter.GetItem(ctx, key)
				if err != nil {
					logger.Error(ctx, "adapter get failed",
						"key", key,
						"duration", time.Since(start),
						"error", err)
				} else {
					logger.Debug(ctx, "adapter get completed",
						"key", key,
						"found", found,
						"duration", time.Since(start))
				}
				return value, found, err
			},
			set: func(ctx context.Context, key string, value []byte) error {
				start := time.Now()
				err := adapter.SetItem(ctx, key, value)
				if err != nil {
					logger.Error(ctx, "adapter set failed",
						"key", key,
						"duration", time.Since(start),
						"error", err)
				} else {
					logger.Debug(ctx, "adapter set completed",
						"key", key,
						"bytes", len(value),
						"duration", time.Since(start))
				}
				return err
			},
			remove: func(ctx context.Context, key string) error {
				start := time.Now()
				err := adapter.RemoveItem(ctx, key)
				if err != nil {
					logger.Error(ctx, "adapter remove failed",
						"key", key,
						"duration", time.Since(start),
						"error", err)
				} else {
					logger.Debug(ctx, "adapter remove completed",
						"key", key,
						"duration", time.Since(start))
				}
				return err
			},
		}
	}
}
