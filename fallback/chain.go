package fallback

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/atomic-state/atomicstate"
)

// Chain is a persistence adapter backed by an ordered list of adapters.
// Reads consult the links according to the chain's read strategy, writes
// go to the first link that accepts them, and removals fan out to every
// link so a later fallback read cannot resurrect deleted state.
type Chain struct {
	name string

	mu       sync.RWMutex
	links    []Link
	strategy ReadStrategy

	metrics *Metrics
}

// Link is one adapter in a chain.
type Link struct {
	Name    string
	Adapter atomicstate.PersistenceAdapter

	// Condition gates the link per call; nil means always eligible.
	Condition func(ctx context.Context, key string) bool
}

// ReadStrategy decides how a chain consults its links on reads.
type ReadStrategy interface {
	Read(ctx context.Context, c *Chain, key string) ([]byte, bool, error)
}

// NewChain creates a fallback chain using the sequential read strategy.
func NewChain(name string) *Chain {
	return &Chain{
		name:     name,
		strategy: &SequentialRead{},
		metrics: &Metrics{
			linkCalls:     make(map[string]int64),
			linkSuccesses: make(map[string]int64),
			linkFailures:  make(map[string]int64),
			linkLatency:   make(map[string]time.Duration),
		},
	}
}

// AddLink appends a link to the chain.
func (c *Chain) AddLink(link Link) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.links = append(c.links, link)
	return c
}

// WithStrategy sets the chain's read strategy.
func (c *Chain) WithStrategy(strategy ReadStrategy) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.strategy = strategy
	return c
}

// Name returns the chain's name.
func (c *Chain) Name() string {
	return c.name
}

func (c *Chain) snapshot() ([]Link, ReadStrategy) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.links, c.strategy
}

// callLink runs op against one link and records its outcome.
func (c *Chain) callLink(name string, op func() error) error {
	start := time.Now()
	err := op()
	c.metrics.record(name, time.Since(start), err)
	return err
}

// GetItem reads key using the chain's read strategy.
func (c *Chain) GetItem(ctx context.Context, key string) ([]byte, bool, error) {
	c.metrics.op()
	_, strategy := c.snapshot()
	return strategy.Read(ctx, c, key)
}

// SetItem writes key to the first eligible link that accepts it.
func (c *Chain) SetItem(ctx context.Context, key string, value []byte) error {
	c.metrics.op()
	links, _ := c.snapshot()

	attempted := 0
	var lastErr error
	for _, link := range links {
		if link.Condition != nil && !link.Condition(ctx, key) {
			continue
		}
		attempted++
		err := c.callLink(link.Name, func() error {
			return link.Adapter.SetItem(ctx, key, value)
		})
		if err == nil {
			return nil
		}
		lastErr = err
	}

	if attempted == 0 {
		return fmt.Errorf("chain %s: no eligible links for key %s", c.name, key)
	}
	return fmt.Errorf("chain %s: all %d links failed, last error: %w", c.name, attempted, lastErr)
}

// RemoveItem removes key from every eligible link.
func (c *Chain) RemoveItem(ctx context.Context, key string) error {
	c.metrics.op()
	links, _ := c.snapshot()

	var errs []error
	for _, link := range links {
		if link.Condition != nil && !link.Condition(ctx, key) {
			continue
		}
		err := c.callLink(link.Name, func() error {
			return link.Adapter.RemoveItem(ctx, key)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", link.Name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("chain %s: %w", c.name, errors.Join(errs...))
	}
	return nil
}

// GetMetrics returns a snapshot of the chain's call statistics.
func (c *Chain) GetMetrics() MetricsSnapshot {
	return c.metrics.snapshot()
}

// SequentialRead consults links in order. A read error falls through to
// the next link, and so does a clean miss, so a freshly provisioned
// primary falls back to whichever adapter still holds older state. A
// miss after an earlier error reports that error rather than claiming
// the key is absent.
type SequentialRead struct{}

// Read implements ReadStrategy.
func (s *SequentialRead) Read(ctx context.Context, c *Chain, key string) ([]byte, bool, error) {
	links, _ := c.snapshot()

	var lastErr error
	for _, link := range links {
		if link.Condition != nil && !link.Condition(ctx, key) {
			continue
		}
		var value []byte
		var found bool
		err := c.callLink(link.Name, func() error {
			var err error
			value, found, err = link.Adapter.GetItem(ctx, key)
			return err
		})
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", link.Name, err)
			continue
		}
		if found {
			return value, true, nil
		}
	}

	if lastErr != nil {
		return nil, false, fmt.Errorf("chain %s: %w", c.name, lastErr)
	}
	return nil, false, nil
}

// ParallelRead races all eligible links and returns the first hit. Use
// it when the links are replicas of the same data; against adapters
// holding different generations of state the winner is arbitrary.
type ParallelRead struct {
	timeout time.Duration
}

// NewParallelRead creates a racing read strategy. A zero timeout leaves
// the caller's deadline in charge.
func NewParallelRead(timeout time.Duration) *ParallelRead {
	return &ParallelRead{timeout: timeout}
}

// Read implements ReadStrategy.
func (p *ParallelRead) Read(ctx context.Context, c *Chain, key string) ([]byte, bool, error) {
	links, _ := c.snapshot()

	eligible := make([]Link, 0, len(links))
	for _, link := range links {
		if link.Condition != nil && !link.Condition(ctx, key) {
			continue
		}
		eligible = append(eligible, link)
	}
	if len(eligible) == 0 {
		return nil, false, nil
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	type result struct {
		link  string
		value []byte
		found bool
		err   error
	}

	// Buffered so stragglers can finish after the winner returns.
	results := make(chan result, len(eligible))
	for _, link := range eligible {
		go func(l Link) {
			var r result
			r.link = l.Name
			r.err = c.callLink(l.Name, func() error {
				var err error
				r.value, r.found, err = l.Adapter.GetItem(ctx, key)
				return err
			})
			results <- r
		}(link)
	}

	var lastErr error
	for i := 0; i < len(eligible); i++ {
		select {
		case r := <-results:
			if r.err != nil {
				lastErr = fmt.Errorf("%s: %w", r.link, r.err)
				continue
			}
			if r.found {
				return r.value, true, nil
			}
		case <-ctx.Done():
			return nil, false, fmt.Errorf("chain %s: parallel read: %w", c.name, ctx.Err())
		}
	}

	if lastErr != nil {
		return nil, false, fmt.Errorf("chain %s: %w", c.name, lastErr)
	}
	return nil, false, nil
}

// Metrics tracks chain call statistics.
type Metrics struct {
	mu            sync.RWMutex
	totalOps      int64
	linkCalls     map[string]int64
	linkSuccesses map[string]int64
	linkFailures  map[string]int64
	linkLatency   map[string]time.Duration
}

func (m *Metrics) op() {
	m.mu.Lock()
	m.totalOps++
	m.mu.Unlock()
}

func (m *Metrics) record(link string, d time.Duration, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.linkCalls[link]++
	m.linkLatency[link] += d
	if err != nil {
		m.linkFailures[link]++
		return
	}
	m.linkSuccesses[link]++
}

func (m *Metrics) snapshot() MetricsSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := MetricsSnapshot{
		TotalOps:  m.totalOps,
		LinkStats: make(map[string]LinkStats, len(m.linkCalls)),
	}
	for name, calls := range m.linkCalls {
		stats := LinkStats{
			Calls:     calls,
			Successes: m.linkSuccesses[name],
			Failures:  m.linkFailures[name],
		}
		if calls > 0 {
			stats.AvgLatency = m.linkLatency[name] / time.Duration(calls)
		}
		snap.LinkStats[name] = stats
	}
	return snap
}

// MetricsSnapshot is a point-in-time view of chain statistics.
type MetricsSnapshot struct {
	TotalOps  int64
	LinkStats map[string]LinkStats
}

// LinkStats contains statistics for a single link.
type LinkStats struct {
	Calls      int64
	Successes  int64
	Failures   int64
	AvgLatency time.Duration
}

var _ atomicstate.PersistenceAdapter = (*Chain)(nil)
