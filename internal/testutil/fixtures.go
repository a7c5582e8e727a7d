package testutil

import (
	"fmt"
	"time"

	"github.com/atomic-state/atomicstate"
)

// Fixtures provides common test fixtures.
type Fixtures struct{}

// NewFixtures creates a new fixtures helper.
func NewFixtures() *Fixtures {
	return &Fixtures{}
}

// CounterAtom creates an int atom with increment, decrement, and add
// actions.
func (f *Fixtures) CounterAtom(name string) *atomicstate.Atom[int] {
	return atomicstate.NewAtom(name, 0).
		WithAction("increment", func(ac *atomicstate.ActionContext[int]) (int, error) {
			return ac.State() + 1, nil
		}).
		WithAction("decrement", func(ac *atomicstate.ActionContext[int]) (int, error) {
			return ac.State() - 1, nil
		}).
		WithAction("add", func(ac *atomicstate.ActionContext[int]) (int, error) {
			n, ok := ac.Payload().(int)
			if !ok {
				return 0, fmt.Errorf("add: expected int payload, got %T", ac.Payload())
			}
			return ac.State() + n, nil
		})
}

// RecordingSubscriber returns a subscriber func appending every value to
// the returned slice pointer. Not safe for concurrent notification
// sources; fine for single-store tests where notifications are ordered.
func (f *Fixtures) RecordingSubscriber() (*[]any, func(any)) {
	var seen []any
	return &seen, func(v any) {
		seen = append(seen, v)
	}
}

// User represents a test user.
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Age   int    `json:"age"`
}

// SampleUsers returns sample user data.
func (f *Fixtures) SampleUsers() []User {
	return []User{
		{ID: "1", Name: "Alice", Email: "alice@example.com", Age: 30},
		{ID: "2", Name: "Bob", Email: "bob@example.com", Age: 25},
		{ID: "3", Name: "Charlie", Email: "charlie@example.com", Age: 35},
	}
}

// Message represents a test message.
type Message struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Author  string `json:"author"`
}

// SampleMessages returns sample message data.
func (f *Fixtures) SampleMessages() []Message {
	return []Message{
		{ID: "m1", Content: "Hello world", Author: "Alice"},
		{ID: "m2", Content: "How are you?", Author: "Bob"},
		{ID: "m3", Content: "Great, thanks!", Author: "Alice"},
	}
}

// TestData represents generic nested test data.
type TestData struct {
	String string         `json:"string"`
	Int    int            `json:"int"`
	Float  float64        `json:"float"`
	Bool   bool           `json:"bool"`
	List   []string       `json:"list"`
	Map    map[string]any `json:"map"`
}

// SampleTestData returns sample nested data.
func (f *Fixtures) SampleTestData() TestData {
	return TestData{
		String: "test",
		Int:    42,
		Float:  3.14,
		Bool:   true,
		List:   []string{"a", "b", "c"},
		Map: map[string]any{
			"key1": "value1",
			"key2": 123,
			"key3": true,
		},
	}
}

// SampleDefinitionYAML is a small store definition used by loader and
// CLI tests.
const SampleDefinitionYAML = `store:
  name: app
  atoms:
    - name: counter
      default: 0
    - name: theme
      default: light
      persistent: true
  filters:
    - name: label
      kind: expr
      config:
        expression: '"count is " + string(atom("counter"))'
  scopes:
    - name: session
      atoms:
        - name: user
          default: ""
`

// InvalidDefinitionYAML is a definition that must fail validation: the
// filter references a kind that does not exist.
const InvalidDefinitionYAML = `store:
  name: app
  atoms:
    - name: counter
      default: 0
  filters:
    - name: broken
      kind: no-such-kind
      config: {}
`

// Eventually polls fn until it returns true or the timeout elapses.
func Eventually(fn func() bool, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if fn() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(5 * time.Millisecond)
	}
}
