// Package testutil provides testing doubles for atomicstate.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// AdapterCall records one persistence adapter method call.
type AdapterCall struct {
	Method string
	Key    string
	Value  []byte
}

// AdapterBehavior injects failures and latency into a MockAdapter.
type AdapterBehavior struct {
	FailGet     bool
	FailSet     bool
	FailRemove  bool
	GetDelay    time.Duration
	SetDelay    time.Duration
	RemoveDelay time.Duration
}

// MockAdapter is an in-memory persistence adapter that records every call
// and can be told to fail or slow down. Mirror writes happen on a
// background goroutine, so assertions about them should go through
// WaitFor.
type MockAdapter struct {
	mu       sync.Mutex
	data     map[string][]byte
	calls    []AdapterCall
	errors   map[string]error
	behavior AdapterBehavior
}

// NewMockAdapter creates an empty mock adapter.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		data:   make(map[string][]byte),
		errors: make(map[string]error),
	}
}

// Seed stores the JSON encoding of v under key, bypassing call recording.
// Use it to stage state for hydration tests.
func (m *MockAdapter) Seed(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	return nil
}

// GetItem returns the stored value for key.
func (m *MockAdapter) GetItem(ctx context.Context, key string) ([]byte, bool, error) {
	m.record("GetItem", key, nil)
	if d := m.currentBehavior().GetDelay; d > 0 {
		time.Sleep(d)
	}
	if m.currentBehavior().FailGet {
		return nil, false, fmt.Errorf("mock get error")
	}
	if err := m.keyError(key); err != nil {
		return nil, false, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// SetItem stores value under key.
func (m *MockAdapter) SetItem(ctx context.Context, key string, value []byte) error {
	m.record("SetItem", key, value)
	if d := m.currentBehavior().SetDelay; d > 0 {
		time.Sleep(d)
	}
	if m.currentBehavior().FailSet {
		return fmt.Errorf("mock set error")
	}
	if err := m.keyError(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	return nil
}

// RemoveItem deletes key.
func (m *MockAdapter) RemoveItem(ctx context.Context, key string) error {
	m.record("RemoveItem", key, nil)
	if d := m.currentBehavior().RemoveDelay; d > 0 {
		time.Sleep(d)
	}
	if m.currentBehavior().FailRemove {
		return fmt.Errorf("mock remove error")
	}
	if err := m.keyError(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Calls returns all recorded calls in order.
func (m *MockAdapter) Calls() []AdapterCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]AdapterCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// CallCount returns how many times method was called.
func (m *MockAdapter) CallCount(method string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// Stored returns a copy of the current key-value contents.
func (m *MockAdapter) Stored() map[string][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(m.data))
	for k, v := range m.data {
		c := make([]byte, len(v))
		copy(c, v)
		out[k] = c
	}
	return out
}

// WaitFor polls until pred accepts the stored contents or the timeout
// elapses. It exists because mirror writes are asynchronous.
func (m *MockAdapter) WaitFor(pred func(map[string][]byte) bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if pred(m.Stored()) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// SetBehavior replaces the failure/latency behavior.
func (m *MockAdapter) SetBehavior(b AdapterBehavior) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.behavior = b
}

// SetError makes every call touching key fail with err.
func (m *MockAdapter) SetError(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[key] = err
}

// Reset clears data, calls, errors, and behavior.
func (m *MockAdapter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string][]byte)
	m.calls = nil
	m.errors = make(map[string]error)
	m.behavior = AdapterBehavior{}
}

func (m *MockAdapter) record(method, key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var v []byte
	if value != nil {
		v = make([]byte, len(value))
		copy(v, value)
	}
	m.calls = append(m.calls, AdapterCall{Method: method, Key: key, Value: v})
}

func (m *MockAdapter) currentBehavior() AdapterBehavior {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.behavior
}

func (m *MockAdapter) keyError(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errors[key]
}

// LogEntry is one recorded log call.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// MockLogger records log calls for assertions.
type MockLogger struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewMockLogger creates an empty mock logger.
func NewMockLogger() *MockLogger {
	return &MockLogger{}
}

// Debug records a debug entry.
func (l *MockLogger) Debug(ctx context.Context, msg string, keysAndValues ...any) {
	l.log("debug", msg, keysAndValues...)
}

// Info records an info entry.
func (l *MockLogger) Info(ctx context.Context, msg string, keysAndValues ...any) {
	l.log("info", msg, keysAndValues...)
}

// Error records an error entry.
func (l *MockLogger) Error(ctx context.Context, msg string, keysAndValues ...any) {
	l.log("error", msg, keysAndValues...)
}

func (l *MockLogger) log(level, msg string, keysAndValues ...any) {
	fields := make(map[string]any)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields[key] = keysAndValues[i+1]
		}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Message: msg, Fields: fields})
}

// Entries returns all recorded entries.
func (l *MockLogger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Has reports whether an entry with the level and message was recorded.
func (l *MockLogger) Has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.Level == level && e.Message == msg {
			return true
		}
	}
	return false
}

// WaitHas polls for an entry with the level and message. Useful for logs
// emitted by background goroutines.
func (l *MockLogger) WaitHas(level, msg string, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if l.Has(level, msg) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// SpanInfo records one tracer span.
type SpanInfo struct {
	Name     string
	Start    time.Time
	End      time.Time
	Finished bool
}

// MockTracer records spans for assertions.
type MockTracer struct {
	mu    sync.Mutex
	spans []SpanInfo
}

// NewMockTracer creates an empty mock tracer.
func NewMockTracer() *MockTracer {
	return &MockTracer{}
}

// StartSpan records a span and returns its finish func.
func (t *MockTracer) StartSpan(ctx context.Context, name string) (context.Context, func()) {
	t.mu.Lock()
	idx := len(t.spans)
	t.spans = append(t.spans, SpanInfo{Name: name, Start: time.Now()})
	t.mu.Unlock()

	return ctx, func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.spans[idx].End = time.Now()
		t.spans[idx].Finished = true
	}
}

// Spans returns all recorded spans.
func (t *MockTracer) Spans() []SpanInfo {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SpanInfo, len(t.spans))
	copy(out, t.spans)
	return out
}
