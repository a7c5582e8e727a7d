// Package eval executes state expressions against a store. Two engines
// implement the same Evaluator contract: expr (github.com/expr-lang/expr)
// and CEL (github.com/google/cel-go). Expressions read state through an
// atom(name) function; the caller supplies the read hook, which is how
// expression filters have their dependencies recorded.
package eval

import (
	"errors"
	"time"

	"github.com/atomic-state/atomicstate/internal/memory"
)

// Context carries the inputs for one evaluation.
type Context struct {
	// Atom reads a named atom or filter value. Every read made through
	// it during the evaluation is visible to the caller.
	Atom func(name string) (any, error)

	// Vars are extra variables exposed to the expression. The expr
	// engine exposes them both directly and under "vars"; CEL exposes
	// them under "vars" only, since CEL variables must be declared.
	Vars map[string]any

	// Now pins the evaluation timestamp. Nil means time.Now.
	Now *time.Time
}

func (ctx Context) timestamp() time.Time {
	if ctx.Now != nil {
		return *ctx.Now
	}
	return time.Now()
}

func (ctx Context) vars() map[string]any {
	if ctx.Vars == nil {
		return map[string]any{}
	}
	return ctx.Vars
}

func (ctx Context) readAtom(name string) (any, error) {
	if ctx.Atom == nil {
		return nil, errors.New("no atom reader configured")
	}
	return ctx.Atom(name)
}

// Evaluator executes expressions against a context.
type Evaluator interface {
	Evaluate(ctx Context, expression string) (any, error)
	Compile(expression string) (Program, error)
}

// Program is a reusable compiled expression.
type Program interface {
	Evaluate(ctx Context) (any, error)
}

// ProgramCache stores compiled programs keyed by engine and source text.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// NewProgramCache returns a fixed-size LRU program cache shareable
// between engines.
func NewProgramCache(size int) ProgramCache {
	return memory.NewLRU(size)
}
