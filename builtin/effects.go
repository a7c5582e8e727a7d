package builtin

import (
	"fmt"
	"log/slog"

	"github.com/xeipuuv/gojsonschema"

	"github.com/atomic-state/atomicstate"
	"github.com/atomic-state/atomicstate/script"
)

// ValidateEffectBuilder builds effects that check every candidate value
// against a JSON Schema.
type ValidateEffectBuilder struct{}

// Metadata returns the builder metadata.
func (b *ValidateEffectBuilder) Metadata() Metadata {
	return Metadata{
		Kind:        "validate",
		Category:    CategoryEffect,
		Description: "Validates candidate values against JSON Schema",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"schema": map[string]any{
					"type":        "object",
					"description": "JSON Schema the candidate value must satisfy",
				},
				"mode": map[string]any{
					"type":        "string",
					"enum":        []string{"error", "reject"},
					"default":     "error",
					"description": "Fail the write with an error or drop it silently",
				},
			},
			"required": []string{"schema"},
		},
		Examples: []Example{
			{
				Name:        "Bounded score",
				Description: "Only accept scores between 0 and 100",
				Config: map[string]any{
					"schema": map[string]any{
						"type":    "number",
						"minimum": 0,
						"maximum": 100,
					},
				},
			},
			{
				Name:        "Silent drop",
				Description: "Discard non-string writes without an error",
				Config: map[string]any{
					"schema": map[string]any{"type": "string"},
					"mode":   "reject",
				},
			},
		},
		Since: "1.0.0",
	}
}

// BuildEffect returns the validating effect.
func (b *ValidateEffectBuilder) BuildEffect(config map[string]any) (atomicstate.EffectFunc[any], error) {
	schema, ok := config["schema"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("schema is required")
	}
	mode, _ := config["mode"].(string)
	if mode == "" {
		mode = "error"
	}
	schemaLoader := gojsonschema.NewGoLoader(schema)

	return func(ec *atomicstate.EffectContext[any]) error {
		result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(ec.Next()))
		if err != nil {
			return fmt.Errorf("validation error: %w", err)
		}
		if result.Valid() {
			return nil
		}
		if mode == "reject" {
			ec.Reject()
			return nil
		}

		var errMsg string
		for i, verr := range result.Errors() {
			if i > 0 {
				errMsg += "; "
			}
			errMsg += verr.String()
		}
		return fmt.Errorf("atom %q: validation failed: %s", ec.Name(), errMsg)
	}, nil
}

// LogEffectBuilder builds effects that log every write.
type LogEffectBuilder struct {
	// Logger overrides slog.Default, mainly for tests.
	Logger *slog.Logger
}

// Metadata returns the builder metadata.
func (b *LogEffectBuilder) Metadata() Metadata {
	return Metadata{
		Kind:        "log",
		Category:    CategoryEffect,
		Description: "Logs every write with the previous and candidate values",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"level": map[string]any{
					"type":        "string",
					"enum":        []string{"debug", "info"},
					"default":     "info",
					"description": "Log level for write records",
				},
			},
		},
		Examples: []Example{
			{
				Name:        "Debug writes",
				Description: "Log writes at debug level",
				Config:      map[string]any{"level": "debug"},
			},
		},
		Since: "1.0.0",
	}
}

// BuildEffect returns the logging effect.
func (b *LogEffectBuilder) BuildEffect(config map[string]any) (atomicstate.EffectFunc[any], error) {
	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return func(ec *atomicstate.EffectContext[any]) error {
		args := []any{"atom", ec.Name(), "prev", ec.Prev(), "next", ec.Next()}
		if level == "debug" {
			logger.DebugContext(ec.Context(), "write", args...)
		} else {
			logger.InfoContext(ec.Context(), "write", args...)
		}
		return nil
	}, nil
}

// ReadonlyEffectBuilder builds effects that veto every write after
// registration, freezing the atom at its hydrated or default value.
type ReadonlyEffectBuilder struct{}

// Metadata returns the builder metadata.
func (b *ReadonlyEffectBuilder) Metadata() Metadata {
	return Metadata{
		Kind:        "readonly",
		Category:    CategoryEffect,
		Description: "Rejects every write, freezing the atom at its initial value",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"mode": map[string]any{
					"type":        "string",
					"enum":        []string{"error", "reject"},
					"default":     "error",
					"description": "Fail the write with an error or drop it silently",
				},
			},
		},
		Examples: []Example{
			{
				Name:        "Frozen config",
				Description: "Writes fail with an error",
				Config:      map[string]any{},
			},
		},
		Since: "1.0.0",
	}
}

// BuildEffect returns the read-only effect.
func (b *ReadonlyEffectBuilder) BuildEffect(config map[string]any) (atomicstate.EffectFunc[any], error) {
	mode, _ := config["mode"].(string)
	if mode == "" {
		mode = "error"
	}

	return func(ec *atomicstate.EffectContext[any]) error {
		if mode == "reject" {
			ec.Reject()
			return nil
		}
		return fmt.Errorf("atom %q: %w", ec.Name(), atomicstate.ErrReadOnly)
	}, nil
}

// LuaEffectBuilder builds effects from Lua scripts defining
// effect(prev, next).
type LuaEffectBuilder struct{}

// Metadata returns the builder metadata.
func (b *LuaEffectBuilder) Metadata() Metadata {
	return Metadata{
		Kind:        "lua",
		Category:    CategoryEffect,
		Description: "Runs a Lua script on every write; return overrides, reject() drops",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source": map[string]any{
					"type":        "string",
					"description": "Lua source defining effect(prev, next)",
				},
			},
			"required": []string{"source"},
		},
		Examples: []Example{
			{
				Name:        "Clamp",
				Description: "Override candidates above a bound",
				Config: map[string]any{
					"source": "function effect(prev, next)\n  if next > 10 then return 10 end\nend",
				},
			},
		},
		Since: "1.0.0",
	}
}

// BuildEffect checks the script and returns the effect.
func (b *LuaEffectBuilder) BuildEffect(config map[string]any) (atomicstate.EffectFunc[any], error) {
	source, _ := config["source"].(string)
	if source == "" {
		return nil, fmt.Errorf("source is required")
	}
	if err := script.Check(source, "effect"); err != nil {
		return nil, err
	}
	return script.Effect(source), nil
}
