package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/atomic-state/atomicstate"
)

// OpStats aggregates call timings for one adapter operation.
type OpStats struct {
	Count  int64
	Errors int64
	Last   time.Duration
	Total  time.Duration
}

// Avg returns the mean call duration.
func (s OpStats) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// TimingStats holds per-operation aggregates maintained by the Timing
// middleware. Safe for concurrent use.
type TimingStats struct {
	mu  sync.Mutex
	ops map[string]OpStats
}

// Op returns a snapshot of the named operation's aggregates. Operations
// are "get", "set", and "remove".
func (t *TimingStats) Op(name string) OpStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ops[name]
}

func (t *TimingStats) record(op string, d time.Duration, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.ops[op]
	s.Count++
	s.Last = d
	s.Total += d
	if err != nil {
		s.Errors++
	}
	t.ops[op] = s
}

// Timing returns a middleware that measures every adapter call, and the
// stats it maintains.
func Timing() (Middleware, *TimingStats) {
	stats := &TimingStats{ops: make(map[string]OpStats)}
	mw := func(adapter atomicstate.PersistenceAdapter) atomicstate.PersistenceAdapter {
		return &middlewareAdapter{
			inner: adapter,
			get: func(ctx context.Context, key string) ([]byte, bool, error) {
				start := time.Now()
				value, found, err := adapter.GetItem(ctx, key)
				stats.record("get", time.Since(start), err)
				return value, found, err
			},
			set: func(ctx context.Context, key string, value []byte) error {
				start := time.Now()
				err := adapter.SetItem(ctx, key, value)
				stats.record("set", time.Since(start), err)
				return err
			},
			remove: func(ctx context.Context, key string) error {
				start := time.Now()
				err := adapter.RemoveItem(ctx, key)
				stats.record("remove", time.Since(start), err)
				return err
			},
		}
	}
	return mw, stats
}
