package script

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atomic-state/atomicstate"
)

func newTestStore(t *testing.T) *atomicstate.Store {
	t.Helper()
	st := atomicstate.NewStore()
	t.Cleanup(func() { _ = st.Close(context.Background()) })
	return st
}

func TestActionScript(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	counter := atomicstate.NewAtom[any]("count", 1.0).
		WithAction("add", Action(`
			function reduce(state, payload)
				return state + payload
			end
		`))
	require.NoError(t, atomicstate.RegisterAtom(ctx, st.Root(), counter))

	require.NoError(t, counter.Dispatch(ctx, st.Root(), "add", 2.0))

	got, err := counter.Get(ctx, st.Root())
	require.NoError(t, err)
	assert.Equal(t, 3.0, got)
}

func TestActionScriptReadsSiblings(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	bonus := atomicstate.NewAtom[any]("bonus", 10.0)
	require.NoError(t, atomicstate.RegisterAtom(ctx, st.Root(), bonus))

	score := atomicstate.NewAtom[any]("score", 0.0).
		WithAction("claim", Action(`
			function reduce(state, payload)
				return state + atom("bonus")
			end
		`))
	require.NoError(t, atomicstate.RegisterAtom(ctx, st.Root(), score))

	require.NoError(t, score.Dispatch(ctx, st.Root(), "claim", nil))

	got, err := score.Get(ctx, st.Root())
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)
}

func TestActionScriptTables(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	cart := atomicstate.NewAtom[any]("cart", map[string]any{"items": []any{}}).
		WithAction("add", Action(`
			function reduce(state, payload)
				local items = state.items
				items[#items + 1] = payload
				return { items = items }
			end
		`))
	require.NoError(t, atomicstate.RegisterAtom(ctx, st.Root(), cart))

	require.NoError(t, cart.Dispatch(ctx, st.Root(), "add", "apple"))
	require.NoError(t, cart.Dispatch(ctx, st.Root(), "add", "pear"))

	got, err := cart.Get(ctx, st.Root())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"items": []any{"apple", "pear"}}, got)
}

func TestActionScriptError(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	counter := atomicstate.NewAtom[any]("count", 1.0).
		WithAction("boom", Action(`
			function reduce(state, payload)
				error("bad payload")
			end
		`))
	require.NoError(t, atomicstate.RegisterAtom(ctx, st.Root(), counter))

	err := counter.Dispatch(ctx, st.Root(), "boom", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad payload")

	got, err := counter.Get(ctx, st.Root())
	require.NoError(t, err)
	assert.Equal(t, 1.0, got, "failed action must not commit")
}

func TestActionScriptMissingEntry(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	counter := atomicstate.NewAtom[any]("count", 1.0).
		WithAction("add", Action(`local x = 1`))
	require.NoError(t, atomicstate.RegisterAtom(ctx, st.Root(), counter))

	err := counter.Dispatch(ctx, st.Root(), "add", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required function 'reduce' not found")
}

func TestEffectScriptOverride(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	level := atomicstate.NewAtom[any]("level", 0.0).
		WithEffect(Effect(`
			function effect(prev, next)
				if next > 10 then
					return 10
				end
			end
		`))
	require.NoError(t, atomicstate.RegisterAtom(ctx, st.Root(), level))

	require.NoError(t, level.Set(ctx, st.Root(), 50.0))
	got, err := level.Get(ctx, st.Root())
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)

	require.NoError(t, level.Set(ctx, st.Root(), 7.0))
	got, err = level.Get(ctx, st.Root())
	require.NoError(t, err)
	assert.Equal(t, 7.0, got)
}

func TestEffectScriptReject(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	level := atomicstate.NewAtom[any]("level", 5.0).
		WithEffect(Effect(`
			function effect(prev, next)
				if next < 0 then
					reject()
				end
			end
		`))
	require.NoError(t, atomicstate.RegisterAtom(ctx, st.Root(), level))

	require.NoError(t, level.Set(ctx, st.Root(), -1.0))
	got, err := level.Get(ctx, st.Root())
	require.NoError(t, err)
	assert.Equal(t, 5.0, got, "rejected write must keep the previous value")
}

func TestEffectScriptError(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	level := atomicstate.NewAtom[any]("level", 5.0).
		WithEffect(Effect(`
			function effect(prev, next)
				error("forbidden")
			end
		`))
	require.NoError(t, atomicstate.RegisterAtom(ctx, st.Root(), level))

	err := level.Set(ctx, st.Root(), 9.0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "forbidden")
}

func TestFilterScript(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	count := atomicstate.NewAtom[any]("count", 2.0)
	require.NoError(t, atomicstate.RegisterAtom(ctx, st.Root(), count))

	double := atomicstate.NewFilter[any]("double", Filter(`
		function compute()
			return atom("count") * 2
		end
	`))
	require.NoError(t, atomicstate.RegisterFilter(st.Root(), double))

	got, err := double.Get(ctx, st.Root())
	require.NoError(t, err)
	assert.Equal(t, 4.0, got)

	// A read through atom() records the dependency, so the filter
	// recomputes when count changes.
	require.NoError(t, count.Set(ctx, st.Root(), 5.0))
	got, err = double.Get(ctx, st.Root())
	require.NoError(t, err)
	assert.Equal(t, 10.0, got)
}

func TestFilterScriptHelpers(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)

	raw := atomicstate.NewAtom[any]("raw", "  a,b ,c ")
	require.NoError(t, atomicstate.RegisterAtom(ctx, st.Root(), raw))

	parts := atomicstate.NewFilter[any]("parts", Filter(`
		function compute()
			local out = {}
			for i, part in ipairs(str_split(atom("raw"), ",")) do
				out[i] = str_trim(part)
			end
			return out
		end
	`))
	require.NoError(t, atomicstate.RegisterFilter(st.Root(), parts))

	got, err := parts.Get(ctx, st.Root())
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b", "c"}, got)
}

func TestFilterScriptUnknownAtom(t *testing.T) {
	st := newTestStore(t)

	missing := atomicstate.NewFilter[any]("broken", Filter(`
		function compute()
			return atom("nope")
		end
	`))
	err := atomicstate.RegisterFilter(st.Root(), missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}
