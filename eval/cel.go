package eval

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

// CELOption configures a CEL evaluator.
type CELOption func(*CELEvaluator)

// CELWithProgramCache wires a program cache into the evaluator.
func CELWithProgramCache(cache ProgramCache) CELOption {
	return func(e *CELEvaluator) {
		e.cache = cache
	}
}

// CELEvaluator executes expressions with github.com/google/cel-go behind
// the same contract as the expr engine. CEL requires declarations, so
// the environment declares now, vars, and the atom(name) function up
// front; context vars are reachable as vars.name only.
type CELEvaluator struct {
	cache ProgramCache
	env   *cel.Env

	// The environment binds atom() once, to a closure reading hook, so
	// one evaluation at a time owns the slot.
	mu   sync.Mutex
	hook func(string) (any, error)
}

// NewCELEvaluator constructs a CEL-backed evaluator.
func NewCELEvaluator(opts ...CELOption) (*CELEvaluator, error) {
	e := &CELEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}

	env, err := cel.NewEnv(
		cel.Variable("now", cel.TimestampType),
		cel.Variable("vars", cel.MapType(cel.StringType, cel.DynType)),
		cel.Function("atom",
			cel.Overload("atom_string",
				[]*cel.Type{cel.StringType},
				cel.DynType,
				cel.UnaryBinding(e.readAtom),
			),
		),
	)
	if err != nil {
		return nil, wrapEvaluatorError("cel", err)
	}
	e.env = env
	return e, nil
}

// Evaluate compiles and runs expression against ctx.
func (e *CELEvaluator) Evaluate(ctx Context, expression string) (any, error) {
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, program, expression)
}

// Compile returns a program that can run against many contexts.
func (e *CELEvaluator) Compile(expression string) (Program, error) {
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &celProgram{
		evaluator:  e,
		program:    program,
		expression: expression,
	}, nil
}

func (e *CELEvaluator) loadOrCompile(expression string) (cel.Program, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("cel", errors.New("expression must not be empty"))
	}
	key := "cel:" + expression
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(cel.Program); ok {
				return program, nil
			}
		}
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapEvaluationError("cel", expression, issues.Err())
	}
	program, err := e.env.Program(ast)
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, err)
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}

// run owns the hook slot for the duration of one evaluation. Cached
// programs stay valid across evaluations because the binding reads the
// slot at call time.
func (e *CELEvaluator) run(ctx Context, program cel.Program, expression string) (any, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.hook = ctx.readAtom
	defer func() { e.hook = nil }()

	out, _, err := program.Eval(map[string]any{
		"now":  ctx.timestamp(),
		"vars": ctx.vars(),
	})
	if err != nil {
		return nil, wrapEvaluationError("cel", expression, err)
	}
	return out.Value(), nil
}

func (e *CELEvaluator) readAtom(val ref.Val) ref.Val {
	name, ok := val.Value().(string)
	if !ok {
		return types.NewErr("atom name must be a string, got %v", val.Type())
	}
	hook := e.hook
	if hook == nil {
		return types.NewErr("no atom reader configured")
	}
	value, err := hook(name)
	if err != nil {
		return types.WrapErr(fmt.Errorf("atom %q: %w", name, err))
	}
	if value == nil {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(value)
}

type celProgram struct {
	evaluator  *CELEvaluator
	program    cel.Program
	expression string
}

func (p *celProgram) Evaluate(ctx Context) (any, error) {
	return p.evaluator.run(ctx, p.program, p.expression)
}
