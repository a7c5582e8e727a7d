package atomicstate_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/atomic-state/atomicstate"
)

// Benchmark a plain write with no effects or filters attached.
func BenchmarkSet(b *testing.B) {
	ctx := context.Background()
	store := atomicstate.NewStore()
	defer store.Close(ctx)
	counter := atomicstate.NewAtom("counter", 0)
	if err := atomicstate.RegisterAtom(ctx, store.Root(), counter); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = counter.Set(ctx, store.Root(), i)
	}
}

// Benchmark a typed read.
func BenchmarkGet(b *testing.B) {
	ctx := context.Background()
	store := atomicstate.NewStore()
	defer store.Close(ctx)
	counter := atomicstate.NewAtom("counter", 42)
	if err := atomicstate.RegisterAtom(ctx, store.Root(), counter); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = counter.Get(ctx, store.Root())
	}
}

// Benchmark a dispatch through a reducer.
func BenchmarkDispatch(b *testing.B) {
	ctx := context.Background()
	store := atomicstate.NewStore()
	defer store.Close(ctx)
	counter := atomicstate.NewAtom("counter", 0).
		WithAction("increment", func(ac *atomicstate.ActionContext[int]) (int, error) {
			return ac.State() + 1, nil
		})
	if err := atomicstate.RegisterAtom(ctx, store.Root(), counter); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = counter.Dispatch(ctx, store.Root(), "increment", nil)
	}
}

// Benchmark a write that wakes a three-filter chain.
func BenchmarkFilterPropagation(b *testing.B) {
	ctx := context.Background()
	store := atomicstate.NewStore()
	defer store.Close(ctx)
	base := atomicstate.NewAtom("base", 0)
	if err := atomicstate.RegisterAtom(ctx, store.Root(), base); err != nil {
		b.Fatal(err)
	}

	prev := "base"
	for i := 0; i < 3; i++ {
		name := fmt.Sprintf("level%d", i)
		dep := prev
		if err := atomicstate.RegisterFilter(store.Root(), atomicstate.NewFilter(name,
			func(fc *atomicstate.FilterContext) (int, error) {
				v, err := fc.Get(dep)
				if err != nil {
					return 0, err
				}
				return v.(int) + 1, nil
			})); err != nil {
			b.Fatal(err)
		}
		prev = name
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = base.Set(ctx, store.Root(), i)
	}
}

// Benchmark a two-write batch against a shared filter.
func BenchmarkBatchCommit(b *testing.B) {
	ctx := context.Background()
	store := atomicstate.NewStore()
	defer store.Close(ctx)
	x := atomicstate.NewAtom("x", 0)
	y := atomicstate.NewAtom("y", 0)
	if err := atomicstate.RegisterAtom(ctx, store.Root(), x); err != nil {
		b.Fatal(err)
	}
	if err := atomicstate.RegisterAtom(ctx, store.Root(), y); err != nil {
		b.Fatal(err)
	}
	if err := atomicstate.RegisterFilter(store.Root(), atomicstate.NewFilter("sum",
		func(fc *atomicstate.FilterContext) (int, error) {
			vx, err := atomicstate.Read(fc, x)
			if err != nil {
				return 0, err
			}
			vy, err := atomicstate.Read(fc, y)
			if err != nil {
				return 0, err
			}
			return vx + vy, nil
		})); err != nil {
		b.Fatal(err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = store.Batch().Set("x", i).Set("y", i+1).Commit(ctx)
	}
}

// Benchmark snapshot capture over a modest tree.
func BenchmarkSnapshot(b *testing.B) {
	ctx := context.Background()
	store := atomicstate.NewStore()
	defer store.Close(ctx)
	for i := 0; i < 20; i++ {
		a := atomicstate.NewAtom(fmt.Sprintf("atom%d", i), i)
		if err := atomicstate.RegisterAtom(ctx, store.Root(), a); err != nil {
			b.Fatal(err)
		}
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = store.Snapshot(ctx)
	}
}
