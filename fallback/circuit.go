// Package fallback provides resilience layers for persistence adapters:
// a circuit breaker guarding a single adapter and an ordered fallback
// chain across several.
package fallback

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/atomic-state/atomicstate"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// StateClosed allows calls to pass through.
	StateClosed CircuitState = iota
	// StateOpen blocks all calls.
	StateOpen
	// StateHalfOpen allows limited calls to test recovery.
	StateHalfOpen
)

// String returns the string representation of the circuit state.
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreaker implements the circuit breaker pattern. After
// maxFailures consecutive failures the circuit opens and calls fail
// fast; once resetTimeout passes, a limited number of test calls probe
// recovery, and any failure among them reopens the circuit.
type CircuitBreaker struct {
	name string

	maxFailures      int
	resetTimeout     time.Duration
	halfOpenRequests int

	mu                sync.RWMutex
	state             CircuitState
	failures          int
	lastFailureTime   time.Time
	halfOpenSuccesses int
	halfOpenFailures  int

	totalRequests  int64
	totalSuccesses int64
	totalFailures  int64
	circuitOpens   int64
	lastOpenTime   time.Time

	// pendingNotes holds state change callbacks queued under the lock
	// and invoked after it is released, on the calling goroutine.
	pendingNotes  []func()
	onStateChange func(from, to CircuitState)
}

// CircuitOption configures a circuit breaker.
type CircuitOption func(*CircuitBreaker)

// WithMaxFailures sets the failure threshold.
func WithMaxFailures(n int) CircuitOption {
	return func(cb *CircuitBreaker) {
		cb.maxFailures = n
	}
}

// WithResetTimeout sets the timeout before attempting recovery.
func WithResetTimeout(d time.Duration) CircuitOption {
	return func(cb *CircuitBreaker) {
		cb.resetTimeout = d
	}
}

// WithHalfOpenRequests sets the number of test calls in half-open state.
func WithHalfOpenRequests(n int) CircuitOption {
	return func(cb *CircuitBreaker) {
		cb.halfOpenRequests = n
	}
}

// WithStateChangeCallback sets a callback for state transitions.
func WithStateChangeCallback(fn func(from, to CircuitState)) CircuitOption {
	return func(cb *CircuitBreaker) {
		cb.onStateChange = fn
	}
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(name string, opts ...CircuitOption) *CircuitBreaker {
	cb := &CircuitBreaker{
		name:             name,
		maxFailures:      5,
		resetTimeout:     30 * time.Second,
		halfOpenRequests: 3,
		state:            StateClosed,
	}

	for _, opt := range opts {
		opt(cb)
	}

	return cb
}

// Execute runs op through the circuit breaker.
func (cb *CircuitBreaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := cb.canExecute(); err != nil {
		return err
	}

	err := op(ctx)
	cb.recordResult(err == nil)
	return err
}

// canExecute checks if the circuit allows a call.
func (cb *CircuitBreaker) canExecute() error {
	cb.mu.Lock()
	cb.totalRequests++

	var err error
	switch cb.state {
	case StateClosed:
		// calls pass through

	case StateOpen:
		if time.Since(cb.lastFailureTime) > cb.resetTimeout {
			cb.transitionTo(StateHalfOpen)
		} else {
			err = fmt.Errorf("circuit breaker %s is open", cb.name)
		}

	case StateHalfOpen:
		if cb.halfOpenSuccesses+cb.halfOpenFailures >= cb.halfOpenRequests {
			if cb.halfOpenFailures > 0 {
				cb.transitionTo(StateOpen)
				err = fmt.Errorf("circuit breaker %s is open", cb.name)
			} else {
				cb.transitionTo(StateClosed)
			}
		}
	}

	notes := cb.pendingNotes
	cb.pendingNotes = nil
	cb.mu.Unlock()

	for _, note := range notes {
		note()
	}
	return err
}

// recordResult updates the circuit state based on a call's outcome.
func (cb *CircuitBreaker) recordResult(success bool) {
	cb.mu.Lock()
	if success {
		cb.totalSuccesses++
		cb.onSuccess()
	} else {
		cb.totalFailures++
		cb.onFailure()
	}

	notes := cb.pendingNotes
	cb.pendingNotes = nil
	cb.mu.Unlock()

	for _, note := range notes {
		note()
	}
}

// onSuccess requires the lock.
func (cb *CircuitBreaker) onSuccess() {
	switch cb.state {
	case StateClosed:
		cb.failures = 0

	case StateHalfOpen:
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.halfOpenRequests {
			cb.transitionTo(StateClosed)
		}
	}
}

// onFailure requires the lock.
func (cb *CircuitBreaker) onFailure() {
	cb.lastFailureTime = time.Now()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.maxFailures {
			cb.transitionTo(StateOpen)
		}

	case StateHalfOpen:
		// Any failure in half-open immediately reopens the circuit.
		cb.halfOpenFailures++
		cb.transitionTo(StateOpen)
	}
}

// transitionTo changes the circuit state. Requires the lock; the state
// change callback is queued and runs after the lock is released.
func (cb *CircuitBreaker) transitionTo(newState CircuitState) {
	if cb.state == newState {
		return
	}

	oldState := cb.state
	cb.state = newState

	switch newState {
	case StateClosed:
		cb.failures = 0
		cb.halfOpenSuccesses = 0
		cb.halfOpenFailures = 0

	case StateOpen:
		cb.circuitOpens++
		cb.lastOpenTime = time.Now()
		cb.lastFailureTime = time.Now()

	case StateHalfOpen:
		cb.halfOpenSuccesses = 0
		cb.halfOpenFailures = 0
	}

	if cb.onStateChange != nil {
		fn := cb.onStateChange
		cb.pendingNotes = append(cb.pendingNotes, func() { fn(oldState, newState) })
	}
}

// GetState returns the current circuit state.
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.state
}

// GetMetrics returns circuit breaker statistics.
func (cb *CircuitBreaker) GetMetrics() CircuitMetrics {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return CircuitMetrics{
		Name:            cb.name,
		State:           cb.state.String(),
		TotalRequests:   cb.totalRequests,
		TotalSuccesses:  cb.totalSuccesses,
		TotalFailures:   cb.totalFailures,
		CircuitOpens:    cb.circuitOpens,
		LastOpenTime:    cb.lastOpenTime,
		CurrentFailures: cb.failures,
	}
}

// CircuitMetrics contains circuit breaker statistics.
type CircuitMetrics struct {
	Name            string
	State           string
	TotalRequests   int64
	TotalSuccesses  int64
	TotalFailures   int64
	CircuitOpens    int64
	LastOpenTime    time.Time
	CurrentFailures int
}

// guarded is an adapter whose every call runs through a breaker.
type guarded struct {
	inner   atomicstate.PersistenceAdapter
	breaker *CircuitBreaker
}

// Guard wraps an adapter so every call runs through the circuit breaker.
// While the circuit is open, calls fail fast with the breaker's error.
func Guard(adapter atomicstate.PersistenceAdapter, cb *CircuitBreaker) atomicstate.PersistenceAdapter {
	return &guarded{inner: adapter, breaker: cb}
}

func (g *guarded) GetItem(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	var found bool
	err := g.breaker.Execute(ctx, func(ctx context.Context) error {
		var err error
		value, found, err = g.inner.GetItem(ctx, key)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return value, found, nil
}

func (g *guarded) SetItem(ctx context.Context, key string, value []byte) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.inner.SetItem(ctx, key, value)
	})
}

func (g *guarded) RemoveItem(ctx context.Context, key string) error {
	return g.breaker.Execute(ctx, func(ctx context.Context) error {
		return g.inner.RemoveItem(ctx, key)
	})
}

// CircuitBreakerGroup manages multiple circuit breakers by name.
type CircuitBreakerGroup struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
}

// NewCircuitBreakerGroup creates a new circuit breaker group.
func NewCircuitBreakerGroup() *CircuitBreakerGroup {
	return &CircuitBreakerGroup{
		breakers: make(map[string]*CircuitBreaker),
	}
}

// Get returns a circuit breaker by name, creating it if necessary.
func (g *CircuitBreakerGroup) Get(name string, opts ...CircuitOption) *CircuitBreaker {
	g.mu.RLock()
	cb, exists := g.breakers[name]
	g.mu.RUnlock()

	if exists {
		return cb
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if cb, exists := g.breakers[name]; exists {
		return cb
	}

	cb = NewCircuitBreaker(name, opts...)
	g.breakers[name] = cb
	return cb
}

// GetAllMetrics returns metrics for every breaker, sorted by name.
func (g *CircuitBreakerGroup) GetAllMetrics() []CircuitMetrics {
	g.mu.RLock()
	defer g.mu.RUnlock()

	metrics := make([]CircuitMetrics, 0, len(g.breakers))
	for _, cb := range g.breakers {
		metrics = append(metrics, cb.GetMetrics())
	}
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })
	return metrics
}

// Reset closes every breaker in the group and clears failure counts.
func (g *CircuitBreakerGroup) Reset() {
	g.mu.RLock()
	breakers := make([]*CircuitBreaker, 0, len(g.breakers))
	for _, cb := range g.breakers {
		breakers = append(breakers, cb)
	}
	g.mu.RUnlock()

	for _, cb := range breakers {
		cb.mu.Lock()
		cb.state = StateClosed
		cb.failures = 0
		cb.mu.Unlock()
	}
}
