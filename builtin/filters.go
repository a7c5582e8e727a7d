package builtin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"text/template"

	"github.com/ohler55/ojg/jp"

	"github.com/atomic-state/atomicstate"
	"github.com/atomic-state/atomicstate/eval"
	"github.com/atomic-state/atomicstate/script"
)

// ExprFilterBuilder builds filters backed by expr-lang expressions.
type ExprFilterBuilder struct{}

// Metadata returns the builder metadata.
func (b *ExprFilterBuilder) Metadata() Metadata {
	return Metadata{
		Kind:        "expr",
		Category:    CategoryFilter,
		Description: "Derives a value from an expr-lang expression; atom(name) reads record dependencies",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "expr-lang expression to evaluate",
				},
				"vars": map[string]any{
					"type":        "object",
					"description": "Extra variables visible to the expression",
				},
			},
			"required": []string{"expression"},
		},
		Examples: []Example{
			{
				Name:        "Count label",
				Description: "Build a label from the counter atom",
				Config: map[string]any{
					"expression": `"count is " + string(atom("counter"))`,
				},
			},
			{
				Name:        "Threshold check",
				Description: "Compare an atom against a configured variable",
				Config: map[string]any{
					"expression": `atom("total") > limit`,
					"vars":       map[string]any{"limit": 100},
				},
			},
		},
		Since: "1.0.0",
	}
}

// BuildFilter compiles the expression once and returns the compute
// function.
func (b *ExprFilterBuilder) BuildFilter(config map[string]any) (atomicstate.ComputeFunc[any], error) {
	expression, _ := config["expression"].(string)
	if expression == "" {
		return nil, fmt.Errorf("expression is required")
	}
	vars, _ := config["vars"].(map[string]any)

	program, err := eval.NewExprEvaluator().Compile(expression)
	if err != nil {
		return nil, err
	}

	return func(fc *atomicstate.FilterContext) (any, error) {
		return program.Evaluate(eval.Context{Atom: fc.Get, Vars: vars})
	}, nil
}

// CELFilterBuilder builds filters backed by CEL expressions.
type CELFilterBuilder struct{}

// Metadata returns the builder metadata.
func (b *CELFilterBuilder) Metadata() Metadata {
	return Metadata{
		Kind:        "cel",
		Category:    CategoryFilter,
		Description: "Derives a value from a CEL expression; atom(name) reads record dependencies",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"expression": map[string]any{
					"type":        "string",
					"description": "CEL expression to evaluate",
				},
				"vars": map[string]any{
					"type":        "object",
					"description": "Extra variables exposed under vars.<name>",
				},
			},
			"required": []string{"expression"},
		},
		Examples: []Example{
			{
				Name:        "Null guard",
				Description: "Fall back when an atom has no value",
				Config: map[string]any{
					"expression": `atom("user") == null ? "anonymous" : atom("user")`,
				},
			},
		},
		Since: "1.0.0",
	}
}

// BuildFilter compiles the expression once and returns the compute
// function.
func (b *CELFilterBuilder) BuildFilter(config map[string]any) (atomicstate.ComputeFunc[any], error) {
	expression, _ := config["expression"].(string)
	if expression == "" {
		return nil, fmt.Errorf("expression is required")
	}
	vars, _ := config["vars"].(map[string]any)

	evaluator, err := eval.NewCELEvaluator()
	if err != nil {
		return nil, err
	}
	program, err := evaluator.Compile(expression)
	if err != nil {
		return nil, err
	}

	return func(fc *atomicstate.FilterContext) (any, error) {
		return program.Evaluate(eval.Context{Atom: fc.Get, Vars: vars})
	}, nil
}

// LuaFilterBuilder builds filters backed by Lua compute scripts.
type LuaFilterBuilder struct{}

// Metadata returns the builder metadata.
func (b *LuaFilterBuilder) Metadata() Metadata {
	return Metadata{
		Kind:        "lua",
		Category:    CategoryFilter,
		Description: "Derives a value from a Lua script defining compute()",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"source": map[string]any{
					"type":        "string",
					"description": "Lua source defining compute()",
				},
			},
			"required": []string{"source"},
		},
		Examples: []Example{
			{
				Name:        "Double",
				Description: "Double the count atom",
				Config: map[string]any{
					"source": "function compute()\n  return atom(\"count\") * 2\nend",
				},
			},
		},
		Since: "1.0.0",
	}
}

// BuildFilter checks the script and returns the compute function.
func (b *LuaFilterBuilder) BuildFilter(config map[string]any) (atomicstate.ComputeFunc[any], error) {
	source, _ := config["source"].(string)
	if source == "" {
		return nil, fmt.Errorf("source is required")
	}
	if err := script.Check(source, "filter"); err != nil {
		return nil, err
	}
	return script.Filter(source), nil
}

// JSONPathFilterBuilder builds filters that extract from an atom with a
// JSONPath expression.
type JSONPathFilterBuilder struct{}

// Metadata returns the builder metadata.
func (b *JSONPathFilterBuilder) Metadata() Metadata {
	return Metadata{
		Kind:        "jsonpath",
		Category:    CategoryFilter,
		Description: "Extracts data from an atom using a JSONPath expression",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"atom": map[string]any{
					"type":        "string",
					"description": "Atom to read",
				},
				"path": map[string]any{
					"type":        "string",
					"description": "JSONPath expression to extract data",
				},
				"multiple": map[string]any{
					"type":        "boolean",
					"default":     false,
					"description": "Return all matches as array (true) or first match only (false)",
				},
				"default": map[string]any{
					"description": "Value to derive when the path has no matches",
				},
				"unwrap": map[string]any{
					"type":        "boolean",
					"default":     true,
					"description": "Unwrap single-element arrays",
				},
			},
			"required": []string{"atom", "path"},
		},
		Examples: []Example{
			{
				Name:        "Extract user name",
				Description: "Get the name field from the user atom",
				Config: map[string]any{
					"atom": "user",
					"path": "$.name",
				},
			},
			{
				Name:        "Extract all prices",
				Description: "Get every price from the cart atom",
				Config: map[string]any{
					"atom":     "cart",
					"path":     "$.items[*].price",
					"multiple": true,
				},
			},
		},
		Since: "1.0.0",
	}
}

// BuildFilter parses the path once and returns the compute function.
func (b *JSONPathFilterBuilder) BuildFilter(config map[string]any) (atomicstate.ComputeFunc[any], error) {
	atomName, _ := config["atom"].(string)
	if atomName == "" {
		return nil, fmt.Errorf("atom is required")
	}
	pathStr, _ := config["path"].(string)
	if pathStr == "" {
		return nil, fmt.Errorf("path is required")
	}
	expr, err := jp.ParseString(pathStr)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath expression: %w", err)
	}

	multiple, _ := config["multiple"].(bool)
	defaultValue := config["default"]
	unwrap := true
	if u, ok := config["unwrap"].(bool); ok {
		unwrap = u
	}

	return func(fc *atomicstate.FilterContext) (any, error) {
		source, err := fc.Get(atomName)
		if err != nil {
			return nil, err
		}
		results := expr.Get(source)

		if len(results) == 0 {
			if defaultValue != nil {
				return defaultValue, nil
			}
			if multiple {
				return []any{}, nil
			}
			return nil, nil
		}

		if multiple {
			return results, nil
		}

		result := results[0]
		if unwrap {
			if arr, ok := result.([]any); ok && len(arr) == 1 {
				result = arr[0]
			}
		}
		return result, nil
	}, nil
}

// TemplateFilterBuilder builds filters that render Go templates over a
// set of atoms.
type TemplateFilterBuilder struct{}

// Metadata returns the builder metadata.
func (b *TemplateFilterBuilder) Metadata() Metadata {
	return Metadata{
		Kind:        "template",
		Category:    CategoryFilter,
		Description: "Renders a Go template with the listed atoms as data",
		ConfigSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"template": map[string]any{
					"type":        "string",
					"description": "Go template string to render",
				},
				"atoms": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Atoms read into the template data map, keyed by name",
				},
				"output_format": map[string]any{
					"type":        "string",
					"enum":        []string{"string", "json"},
					"default":     "string",
					"description": "Output format for the rendered template",
				},
			},
			"required": []string{"template"},
		},
		Examples: []Example{
			{
				Name:        "Greeting",
				Description: "Render a greeting from the user atom",
				Config: map[string]any{
					"template": "Hello, {{.user}}!",
					"atoms":    []any{"user"},
				},
			},
			{
				Name:        "JSON output",
				Description: "Render a JSON document and parse it",
				Config: map[string]any{
					"template":      `{"count": {{.count}}}`,
					"atoms":         []any{"count"},
					"output_format": "json",
				},
			},
		},
		Since: "1.0.0",
	}
}

// BuildFilter parses the template once and returns the compute function.
func (b *TemplateFilterBuilder) BuildFilter(config map[string]any) (atomicstate.ComputeFunc[any], error) {
	templateStr, _ := config["template"].(string)
	if templateStr == "" {
		return nil, fmt.Errorf("template is required")
	}
	tmpl, err := template.New("filter").Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("invalid template: %w", err)
	}

	outputFormat, _ := config["output_format"].(string)
	if outputFormat == "" {
		outputFormat = "string"
	}

	var atoms []string
	if list, ok := config["atoms"].([]any); ok {
		for _, item := range list {
			if name, ok := item.(string); ok {
				atoms = append(atoms, name)
			}
		}
	}

	return func(fc *atomicstate.FilterContext) (any, error) {
		data := make(map[string]any, len(atoms))
		for _, name := range atoms {
			v, err := fc.Get(name)
			if err != nil {
				return nil, err
			}
			data[name] = v
		}

		var buf bytes.Buffer
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("template execution failed: %w", err)
		}

		if outputFormat == "json" {
			var out any
			if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
				return nil, fmt.Errorf("failed to parse JSON output: %w", err)
			}
			return out, nil
		}
		return buf.String(), nil
	}, nil
}
