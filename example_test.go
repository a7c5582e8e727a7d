package atomicstate_test

import (
	"context"
	"fmt"
	"log"

	"github.com/atomic-state/atomicstate"
)

// ExampleAtom demonstrates registering an atom and writing through it.
func ExampleAtom() {
	ctx := context.Background()
	store := atomicstate.NewStore()
	defer store.Close(ctx)

	counter := atomicstate.NewAtom("counter", 0)
	if err := atomicstate.RegisterAtom(ctx, store.Root(), counter); err != nil {
		log.Fatal(err)
	}

	if err := counter.Set(ctx, store.Root(), 41); err != nil {
		log.Fatal(err)
	}
	if err := counter.Update(ctx, store.Root(), func(v int) int { return v + 1 }); err != nil {
		log.Fatal(err)
	}

	v, _ := counter.Get(ctx, store.Root())
	fmt.Println(v)
	// Output: 42
}

// ExampleNewFilter demonstrates derived state that tracks its inputs.
func ExampleNewFilter() {
	ctx := context.Background()
	store := atomicstate.NewStore()
	defer store.Close(ctx)

	price := atomicstate.NewAtom("price", 100.0)
	quantity := atomicstate.NewAtom("quantity", 2)
	if err := atomicstate.RegisterAtom(ctx, store.Root(), price); err != nil {
		log.Fatal(err)
	}
	if err := atomicstate.RegisterAtom(ctx, store.Root(), quantity); err != nil {
		log.Fatal(err)
	}

	total := atomicstate.NewFilter("total", func(fc *atomicstate.FilterContext) (float64, error) {
		p, err := atomicstate.Read(fc, price)
		if err != nil {
			return 0, err
		}
		q, err := atomicstate.Read(fc, quantity)
		if err != nil {
			return 0, err
		}
		return p * float64(q), nil
	})
	if err := atomicstate.RegisterFilter(store.Root(), total); err != nil {
		log.Fatal(err)
	}

	if err := quantity.Set(ctx, store.Root(), 3); err != nil {
		log.Fatal(err)
	}
	v, _ := total.Get(ctx, store.Root())
	fmt.Println(v)
	// Output: 300
}

// ExampleAtom_WithAction demonstrates named reducers with payloads.
func ExampleAtom_WithAction() {
	ctx := context.Background()
	store := atomicstate.NewStore()
	defer store.Close(ctx)

	cart := atomicstate.NewAtom("cart", []string(nil)).
		WithAction("add", func(ac *atomicstate.ActionContext[[]string]) ([]string, error) {
			item, ok := ac.Payload().(string)
			if !ok {
				return nil, fmt.Errorf("expected string payload, got %T", ac.Payload())
			}
			return append(ac.State(), item), nil
		})
	if err := atomicstate.RegisterAtom(ctx, store.Root(), cart); err != nil {
		log.Fatal(err)
	}

	_ = cart.Dispatch(ctx, store.Root(), "add", "apples")
	_ = cart.Dispatch(ctx, store.Root(), "add", "pears")

	items, _ := cart.Get(ctx, store.Root())
	fmt.Println(items)
	// Output: [apples pears]
}

// ExampleAtom_WithEffect demonstrates validating and vetoing writes.
func ExampleAtom_WithEffect() {
	ctx := context.Background()
	store := atomicstate.NewStore()
	defer store.Close(ctx)

	volume := atomicstate.NewAtom("volume", 5).
		WithEffect(func(ec *atomicstate.EffectContext[int]) error {
			if ec.Next() < 0 || ec.Next() > 10 {
				ec.Reject()
			}
			return nil
		})
	if err := atomicstate.RegisterAtom(ctx, store.Root(), volume); err != nil {
		log.Fatal(err)
	}

	_ = volume.Set(ctx, store.Root(), 8)  // accepted
	_ = volume.Set(ctx, store.Root(), 99) // vetoed, silently

	v, _ := volume.Get(ctx, store.Root())
	fmt.Println(v)
	// Output: 8
}

// ExampleScope demonstrates nested scopes and shadowing.
func ExampleScope() {
	ctx := context.Background()
	store := atomicstate.NewStore()
	defer store.Close(ctx)

	theme := atomicstate.NewAtom("theme", "light")
	if err := atomicstate.RegisterAtom(ctx, store.Root(), theme); err != nil {
		log.Fatal(err)
	}

	session, err := store.NewScope("session")
	if err != nil {
		log.Fatal(err)
	}
	if err := atomicstate.RegisterAtom(ctx, session, atomicstate.NewAtom("theme", "dark")); err != nil {
		log.Fatal(err)
	}

	inner, _ := session.Get(ctx, "theme")
	outer, _ := store.Get(ctx, "theme")
	fmt.Println(inner, outer)
	// Output: dark light
}

// ExampleBatch demonstrates committing several writes in one wave.
func ExampleBatch() {
	ctx := context.Background()
	store := atomicstate.NewStore()
	defer store.Close(ctx)

	first := atomicstate.NewAtom("first", "")
	last := atomicstate.NewAtom("last", "")
	if err := atomicstate.RegisterAtom(ctx, store.Root(), first); err != nil {
		log.Fatal(err)
	}
	if err := atomicstate.RegisterAtom(ctx, store.Root(), last); err != nil {
		log.Fatal(err)
	}

	full := atomicstate.NewFilter("full", func(fc *atomicstate.FilterContext) (string, error) {
		f, err := atomicstate.Read(fc, first)
		if err != nil {
			return "", err
		}
		l, err := atomicstate.Read(fc, last)
		if err != nil {
			return "", err
		}
		return f + " " + l, nil
	})
	if err := atomicstate.RegisterFilter(store.Root(), full); err != nil {
		log.Fatal(err)
	}

	recomputes := 0
	unsub, _ := full.Subscribe(store.Root(), func(string) { recomputes++ })
	defer unsub()

	err := store.Batch().
		Set("first", "Ada").
		Set("last", "Lovelace").
		Commit(ctx)
	if err != nil {
		log.Fatal(err)
	}

	name, _ := full.Get(ctx, store.Root())
	fmt.Println(name, recomputes)
	// Output: Ada Lovelace 1
}

// ExampleScope_Snapshot demonstrates capturing state as canonical JSON.
func ExampleScope_Snapshot() {
	ctx := context.Background()
	store := atomicstate.NewStore()
	defer store.Close(ctx)

	if err := atomicstate.RegisterAtom(ctx, store.Root(), atomicstate.NewAtom("counter", 7)); err != nil {
		log.Fatal(err)
	}

	snap, err := store.Snapshot(ctx)
	if err != nil {
		log.Fatal(err)
	}
	data, _ := snap.MarshalJSON()
	fmt.Println(string(data))
	// Output: {"atoms":{"counter":7},"filters":{}}
}
