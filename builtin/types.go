package builtin

// Builder categories. A kind name is unique within its category, so
// "lua" names a filter, an effect, and an action without collision.
const (
	CategoryFilter = "filter"
	CategoryEffect = "effect"
	CategoryAction = "action"
)

// Metadata describes a builder kind.
type Metadata struct {
	Kind         string         `json:"kind"`
	Category     string         `json:"category"`
	Description  string         `json:"description"`
	ConfigSchema map[string]any `json:"configSchema"`
	Examples     []Example      `json:"examples,omitempty"`
	Since        string         `json:"since,omitempty"`
}

// Example shows how to configure a builder.
type Example struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Config      map[string]any `json:"config"`
}
