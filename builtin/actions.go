package builtin

import (
	"fmt"

	"github.com/atomic-state/atomicstate"
	"github.com/atomic-state/atomicstate/script"
)

// LuaActionBuilder builds reducer actions from Lua scripts defining
// reduce(state, payload).
type LuaActionBuilder struct{}

// Metadata returns the builder metadata.
func (b *LuaActionBuilder) Metadata() Metadata {
	return Metadata{
		Kind:        "lua",
		Category:    CategoryAction,
		Description: "Runs a Lua reducer; the returned value becomes the new state",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source": map[string]any{
					"type":        "string",
					"description": "Lua source defining reduce(state, payload)",
				},
			},
			"required": []string{"source"},
		},
		Examples: []Example{
			{
				Name:        "Add",
				Description: "Add the payload to the current state",
				Config: map[string]any{
					"source": "function reduce(state, payload)\n  return state + payload\nend",
				},
			},
		},
		Since: "1.0.0",
	}
}

// BuildAction checks the script and returns the reducer.
func (b *LuaActionBuilder) BuildAction(config map[string]any) (atomicstate.ActionFunc[any], error) {
	source, _ := config["source"].(string)
	if source == "" {
		return nil, fmt.Errorf("source is required")
	}
	if err := script.Check(source, "action"); err != nil {
		return nil, err
	}
	return script.Action(source), nil
}
