package middleware

import (
	"context"

	"github.com/atomic-state/atomicstate"
)

// MetricsCollector collects adapter call metrics.
type MetricsCollector interface {
	RecordOpStart(op, key string)
	RecordOpEnd(op, key string, err error)
}

// Metrics adds metrics collection to every adapter call.
func Metrics(collector MetricsCollector) Middleware {
	return func(adapter atomicstate.PersistenceAdapter) atomicstate.PersistenceAdapter {
		return &middlewareAdapter{
			inner: adapter,
			get: func(ctx context.Context, key string) ([]byte, bool, error) {
				collector.RecordOpStart("get", key)
				value, found, err := adapter.GetItem(ctx, key)
				collector.RecordOpEnd("get", key, err)
				return value, found, err
			},
			set: func(ctx context.Context, key string, value []byte) error {
				collector.RecordOpStart("set", key)
				err := adapter.SetItem(ctx, key, value)
				collector.RecordOpEnd("set", key, err)
				return err
			},
			remove: func(ctx context.Context, key string) error {
				collector.RecordOpStart("remove", key)
				err := adapter.RemoveItem(ctx, key)
				collector.RecordOpEnd("remove", key, err)
				return err
			},
		}
	}
}
