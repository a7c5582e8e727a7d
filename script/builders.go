package script

import (
	"fmt"

	"github.com/Shopify/go-lua"

	"github.com/atomic-state/atomicstate"
)

// Entry function names looked up in each script kind.
const (
	actionEntry = "reduce"
	effectEntry = "effect"
	filterEntry = "compute"
)

// Action wraps a Lua source that defines reduce(state, payload) into an
// action. The returned value becomes the new state. Scripts can read other
// atoms in the same scope through atom(name).
//
//	function reduce(state, payload)
//	  return state + payload
//	end
func Action(source string) atomicstate.ActionFunc[any] {
	return func(ac *atomicstate.ActionContext[any]) (any, error) {
		l := newState(func(name string) (any, error) {
			return ac.Scope().Get(ac.Context(), name)
		})
		result, err := run(l, source, actionEntry, ac.State(), ac.Payload())
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

// Effect wraps a Lua source that defines effect(prev, next) into a write
// effect. Returning a value overrides the write, calling reject() drops
// it, and error(...) aborts it.
//
//	function effect(prev, next)
//	  if next < 0 then reject() end
//	end
func Effect(source string) atomicstate.EffectFunc[any] {
	return func(ec *atomicstate.EffectContext[any]) error {
		rejected := false
		l := newState(func(name string) (any, error) {
			return ec.Scope().Get(ec.Context(), name)
		})
		l.Register("reject", func(l *lua.State) int {
			rejected = true
			return 0
		})

		result, err := run(l, source, effectEntry, ec.Prev(), ec.Next())
		if err != nil {
			return err
		}
		if rejected {
			ec.Reject()
			return nil
		}
		if result != nil {
			ec.Override(result)
		}
		return nil
	}
}

// Filter wraps a Lua source that defines compute() into a filter
// computation. Reads through atom(name) register as dependencies, so the
// filter re-runs when those atoms change.
//
//	function compute()
//	  return atom("count") * 2
//	end
func Filter(source string) atomicstate.ComputeFunc[any] {
	return func(fc *atomicstate.FilterContext) (any, error) {
		l := newState(fc.Get)
		result, err := run(l, source, filterEntry)
		if err != nil {
			return nil, err
		}
		return result, nil
	}
}

// newState builds a sandboxed state with atom(name) bound to the given
// reader. A fresh state per invocation keeps scripts free of shared
// globals between runs.
func newState(read func(string) (any, error)) *lua.State {
	l := lua.NewState()
	setupSandbox(l)
	l.Register("atom", func(l *lua.State) int {
		name := lua.CheckString(l, 1)
		value, err := read(name)
		if err != nil {
			lua.Errorf(l, "atom '%s': %s", name, err.Error())
			panic("unreachable")
		}
		pushValue(l, value)
		return 1
	})
	return l
}

// run loads the source, resolves the entry function, and calls it with
// the given arguments, returning the first result.
func run(l *lua.State, source, entry string, args ...any) (any, error) {
	if err := lua.DoString(l, source); err != nil {
		return nil, fmt.Errorf("failed to load script: %w", err)
	}

	l.Global(entry)
	if l.TypeOf(-1) != lua.TypeFunction {
		l.Pop(1)
		return nil, fmt.Errorf("required function '%s' not found", entry)
	}

	for _, arg := range args {
		pushValue(l, arg)
	}
	if err := l.ProtectedCall(len(args), 1, 0); err != nil {
		return nil, fmt.Errorf("script execution failed: %w", err)
	}

	result := pullValue(l, -1)
	l.Pop(1)
	return result, nil
}
