package eval

import (
	"errors"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

// ExprOption configures an expr evaluator.
type ExprOption func(*ExprEvaluator)

// ExprWithProgramCache wires a program cache into the evaluator.
func ExprWithProgramCache(cache ProgramCache) ExprOption {
	return func(e *ExprEvaluator) {
		e.cache = cache
	}
}

// ExprEvaluator executes expressions with github.com/expr-lang/expr.
// Programs compile with undefined variables allowed, so expressions can
// reference context vars without declarations.
type ExprEvaluator struct {
	cache ProgramCache
}

// NewExprEvaluator constructs an expr-backed evaluator.
func NewExprEvaluator(opts ...ExprOption) *ExprEvaluator {
	e := &ExprEvaluator{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Evaluate compiles and runs expression against ctx.
func (e *ExprEvaluator) Evaluate(ctx Context, expression string) (any, error) {
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return e.run(ctx, program, expression)
}

// Compile returns a program that can run against many contexts.
func (e *ExprEvaluator) Compile(expression string) (Program, error) {
	program, err := e.loadOrCompile(expression)
	if err != nil {
		return nil, err
	}
	return &exprProgram{
		evaluator:  e,
		program:    program,
		expression: expression,
	}, nil
}

func (e *ExprEvaluator) loadOrCompile(expression string) (*exprvm.Program, error) {
	if expression == "" {
		return nil, wrapEvaluatorError("expr", errors.New("expression must not be empty"))
	}
	key := "expr:" + expression
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*exprvm.Program); ok {
				return program, nil
			}
		}
	}

	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
	)
	if err != nil {
		return nil, wrapEvaluationError("expr", expression, err)
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return program, nil
}

func (e *ExprEvaluator) run(ctx Context, program *exprvm.Program, expression string) (any, error) {
	result, err := exprlang.Run(program, e.environment(ctx))
	if err != nil {
		return nil, wrapEvaluationError("expr", expression, err)
	}
	return result, nil
}

// environment builds the runtime env. Context vars go in first so the
// built-in names cannot be shadowed.
func (e *ExprEvaluator) environment(ctx Context) map[string]any {
	env := make(map[string]any, len(ctx.Vars)+3)
	for key, value := range ctx.Vars {
		env[key] = value
	}
	env["vars"] = ctx.vars()
	env["now"] = ctx.timestamp()
	env["atom"] = func(name string) (any, error) {
		return ctx.readAtom(name)
	}
	return env
}

type exprProgram struct {
	evaluator  *ExprEvaluator
	program    *exprvm.Program
	expression string
}

func (p *exprProgram) Evaluate(ctx Context) (any, error) {
	return p.evaluator.run(ctx, p.program, p.expression)
}
