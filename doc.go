/*
Package atomicstate provides a scoped reactive state store built from
atoms (named mutable cells), filters (named derived cells), actions
(reducer-style mutators), and effects (side-effect hooks that can veto or
replace a write).

Key features:
  - Typed atom and filter handles over a dynamic, name-addressed core
  - Nested provider scopes with shadowing
  - Ordered effect chains with veto, override, and cleanup
  - Dependency-tracked filter recomputation, sync or async
  - Pluggable persistence with hydrate-on-register and mirrored writes
  - Deterministic point-in-time snapshots with JSONPath queries

Basic usage:

	store := atomicstate.NewStore()
	defer store.Close(context.Background())

	count := atomicstate.NewAtom("count", 0).
		WithAction("add", func(ac *atomicstate.ActionContext[int]) (int, error) {
			n, _ := ac.Payload().(int)
			return ac.State() + n, nil
		})
	if err := atomicstate.RegisterAtom(ctx, store.Root(), count); err != nil {
		return err
	}

	_ = count.Set(ctx, store.Root(), 41)
	_ = count.Dispatch(ctx, store.Root(), "add", 1)
	v, _ := count.Get(ctx, store.Root()) // 42

Derived state:

	double := atomicstate.NewFilter("double", func(fc *atomicstate.FilterContext) (int, error) {
		n, err := atomicstate.Read(fc, count)
		return n * 2, err
	})
	_ = atomicstate.RegisterFilter(store.Root(), double)

	unsub, _ := double.Subscribe(store.Root(), func(v int) {
		fmt.Println("double is now", v)
	})
	defer unsub()

Effects:

	limited := atomicstate.NewAtom("limited", 0).
		WithEffect(func(ec *atomicstate.EffectContext[int]) error {
			if ec.Next() < 0 {
				ec.Reject() // write is silently discarded
			}
			return nil
		})

Scopes shadow by name, so two providers hold independent state:

	left, _ := store.NewScope("left")
	right, _ := store.NewScope("right")
	_ = atomicstate.RegisterAtom(ctx, left, count)
	_ = atomicstate.RegisterAtom(ctx, right, count)
	_ = count.Set(ctx, left, 1) // right still sees the root value

Persistence:

	store := atomicstate.NewStore(
		atomicstate.WithPersistence(storage.NewMemory()),
	)
	theme := atomicstate.NewAtom("theme", "dark").Persistent()
	// hydrates from the adapter at registration, mirrors every commit

Snapshots:

	snap, _ := store.Snapshot(ctx)
	data, _ := json.Marshal(snap) // canonical bytes, sorted keys
	hits, _ := snap.Query("$.atoms.count")
*/
package atomicstate
