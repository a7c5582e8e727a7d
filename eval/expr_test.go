package eval

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-state/atomicstate/internal/memory"
)

func TestExprEvaluatesAtoms(t *testing.T) {
	e := NewExprEvaluator()
	ctx := Context{Atom: mapReader(map[string]any{"a": 1, "b": 2}, nil)}

	got, err := e.Evaluate(ctx, `atom("a") + atom("b")`)
	require.NoError(t, err)
	assert.Equal(t, 3, got)
}

func TestExprRecordsReads(t *testing.T) {
	e := NewExprEvaluator()
	var reads []string
	ctx := Context{Atom: mapReader(map[string]any{"a": 1, "b": 2}, &reads)}

	_, err := e.Evaluate(ctx, `atom("a") + atom("b")`)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, reads)
}

func TestExprVars(t *testing.T) {
	e := NewExprEvaluator()
	ctx := Context{Vars: map[string]any{"threshold": 10}}

	got, err := e.Evaluate(ctx, `threshold * 2`)
	require.NoError(t, err)
	assert.Equal(t, 20, got)

	// The same vars are reachable through the vars map, matching the CEL
	// engine's spelling.
	got, err = e.Evaluate(ctx, `vars.threshold * 2`)
	require.NoError(t, err)
	assert.Equal(t, 20, got)
}

func TestExprPinnedNow(t *testing.T) {
	e := NewExprEvaluator()
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	ctx := Context{Now: &fixed}

	got, err := e.Evaluate(ctx, `now`)
	require.NoError(t, err)
	assert.Equal(t, fixed, got)
}

func TestExprAtomErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	e := NewExprEvaluator()
	ctx := Context{Atom: func(string) (any, error) { return nil, boom }}

	_, err := e.Evaluate(ctx, `atom("a")`)
	require.Error(t, err)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "expr", evalErr.Engine)
	assert.Contains(t, err.Error(), "boom")
}

func TestExprNoReaderConfigured(t *testing.T) {
	e := NewExprEvaluator()

	_, err := e.Evaluate(Context{}, `atom("a")`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no atom reader configured")
}

func TestExprSyntaxErrorWrapped(t *testing.T) {
	e := NewExprEvaluator()

	_, err := e.Evaluate(Context{}, `1 +`)
	require.Error(t, err)

	var evalErr *EvaluationError
	require.ErrorAs(t, err, &evalErr)
	assert.Equal(t, "expr", evalErr.Engine)
	assert.Equal(t, "1 +", evalErr.Expr)
}

func TestExprEmptyExpression(t *testing.T) {
	e := NewExprEvaluator()

	_, err := e.Evaluate(Context{}, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not be empty")
}

func TestExprCompiledProgramReuse(t *testing.T) {
	e := NewExprEvaluator()
	program, err := e.Compile(`atom("n") * 10`)
	require.NoError(t, err)

	got, err := program.Evaluate(Context{Atom: mapReader(map[string]any{"n": 1}, nil)})
	require.NoError(t, err)
	assert.Equal(t, 10, got)

	got, err = program.Evaluate(Context{Atom: mapReader(map[string]any{"n": 7}, nil)})
	require.NoError(t, err)
	assert.Equal(t, 70, got)
}

func TestExprProgramCacheHits(t *testing.T) {
	cache := memory.NewLRU(8)
	e := NewExprEvaluator(ExprWithProgramCache(cache))
	ctx := Context{Atom: mapReader(map[string]any{"n": 3}, nil)}

	_, err := e.Evaluate(ctx, `atom("n") + 1`)
	require.NoError(t, err)
	_, err = e.Evaluate(ctx, `atom("n") + 1`)
	require.NoError(t, err)

	stats := cache.Stats()
	assert.Equal(t, int64(1), stats.Sets, "same expression should compile once")
	assert.Equal(t, int64(1), stats.Hits)

	_, err = e.Evaluate(ctx, `atom("n") + 2`)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cache.Stats().Sets)
}
