package atomicstate_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/atomic-state/atomicstate"
	"github.com/atomic-state/atomicstate/internal/testutil"
)

func TestPersistentAtomMirrorsWrites(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewMockAdapter()
	store := newTestStore(t)
	counter := atomicstate.NewAtom("counter", 0).PersistentWith(adapter)
	mustRegisterAtom(t, store.Root(), counter)

	if err := counter.Set(ctx, store.Root(), 5); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ok := adapter.WaitFor(func(data map[string][]byte) bool {
		return bytes.Equal(data["root/counter"], []byte("5"))
	}, 2*time.Second)
	if !ok {
		t.Errorf("stored = %v, want root/counter=5", adapter.Stored())
	}
}

func TestStoreDefaultAdapterAndKeyPrefix(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewMockAdapter()
	store := newTestStore(t,
		atomicstate.WithName("app"),
		atomicstate.WithPersistence(adapter))

	session, err := store.NewScope("session")
	if err != nil {
		t.Fatalf("NewScope() error = %v", err)
	}
	theme := atomicstate.NewAtom("theme", "light").Persistent()
	mustRegisterAtom(t, session, theme)

	if err := theme.Set(ctx, session, "dark"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ok := adapter.WaitFor(func(data map[string][]byte) bool {
		return bytes.Equal(data["app/session/theme"], []byte(`"dark"`))
	}, 2*time.Second)
	if !ok {
		t.Errorf("stored = %v, want app/session/theme", adapter.Stored())
	}
}

func TestPersistentWithoutAdapterFailsRegistration(t *testing.T) {
	store := newTestStore(t)
	err := atomicstate.RegisterAtom(context.Background(), store.Root(),
		atomicstate.NewAtom("counter", 0).Persistent())
	if err == nil {
		t.Error("RegisterAtom() succeeded without an adapter")
	}
}

func TestHydrateOnRegister(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewMockAdapter()
	if err := adapter.Seed("root/counter", 42); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	store := newTestStore(t, atomicstate.WithPersistence(adapter))

	effects := 0
	counter := atomicstate.NewAtom("counter", 0).
		Persistent().
		WithEffect(func(ec *atomicstate.EffectContext[int]) error {
			effects++
			return nil
		})
	mustRegisterAtom(t, store.Root(), counter)

	if v, err := counter.Get(ctx, store.Root()); err != nil || v != 42 {
		t.Errorf("Get() = %v, %v, want 42, nil", v, err)
	}
	// Hydration is not a write: no effects run.
	if effects != 0 {
		t.Errorf("effects = %v, want 0 during hydration", effects)
	}
}

func TestHydrateFailureFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewMockAdapter()
	adapter.SetBehavior(testutil.AdapterBehavior{FailGet: true})
	logger := testutil.NewMockLogger()
	store := newTestStore(t,
		atomicstate.WithLogger(logger),
		atomicstate.WithPersistence(adapter))

	counter := atomicstate.NewAtom("counter", 7).Persistent()
	mustRegisterAtom(t, store.Root(), counter)

	if v, _ := counter.Get(ctx, store.Root()); v != 7 {
		t.Errorf("Get() = %v, want default 7", v)
	}
	if !logger.Has("error", "hydration failed, using default") {
		t.Error("hydration failure not logged")
	}
}

func TestHydrateUndecodableFallsBackToDefault(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewMockAdapter()
	if err := adapter.Seed("root/counter", "not-a-number"); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}
	logger := testutil.NewMockLogger()
	store := newTestStore(t,
		atomicstate.WithLogger(logger),
		atomicstate.WithPersistence(adapter))

	counter := atomicstate.NewAtom("counter", 7).Persistent()
	mustRegisterAtom(t, store.Root(), counter)

	if v, _ := counter.Get(ctx, store.Root()); v != 7 {
		t.Errorf("Get() = %v, want default 7", v)
	}
	if !logger.Has("error", "persisted value undecodable, using default") {
		t.Error("decode failure not logged")
	}
}

func TestResetRemovesPersistedCopy(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewMockAdapter()
	store := newTestStore(t, atomicstate.WithPersistence(adapter))
	counter := atomicstate.NewAtom("counter", 0).Persistent()
	mustRegisterAtom(t, store.Root(), counter)

	if err := counter.Set(ctx, store.Root(), 9); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	ok := adapter.WaitFor(func(data map[string][]byte) bool {
		_, present := data["root/counter"]
		return present
	}, 2*time.Second)
	if !ok {
		t.Fatal("mirror write never arrived")
	}

	if err := counter.Reset(ctx, store.Root()); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	ok = adapter.WaitFor(func(data map[string][]byte) bool {
		_, present := data["root/counter"]
		return !present
	}, 2*time.Second)
	if !ok {
		t.Errorf("stored = %v, want root/counter removed", adapter.Stored())
	}
	if adapter.CallCount("RemoveItem") == 0 {
		t.Error("RemoveItem never called")
	}
}

func TestMirrorWritesCoalesce(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewMockAdapter()
	adapter.SetBehavior(testutil.AdapterBehavior{SetDelay: 50 * time.Millisecond})
	store := newTestStore(t)
	counter := atomicstate.NewAtom("counter", 0).PersistentWith(adapter)
	mustRegisterAtom(t, store.Root(), counter)

	for i := 1; i <= 10; i++ {
		if err := counter.Set(ctx, store.Root(), i); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	ok := adapter.WaitFor(func(data map[string][]byte) bool {
		return bytes.Equal(data["root/counter"], []byte("10"))
	}, 2*time.Second)
	if !ok {
		t.Fatalf("stored = %v, want root/counter=10", adapter.Stored())
	}
	// The writes land in at most two adapter calls: one that may already
	// be in flight, plus one carrying the coalesced latest value.
	if n := adapter.CallCount("SetItem"); n > 2 {
		t.Errorf("SetItem calls = %v, want at most 2", n)
	}
}

func TestMirrorFailureLoggedNotPropagated(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewMockAdapter()
	adapter.SetBehavior(testutil.AdapterBehavior{FailSet: true})
	logger := testutil.NewMockLogger()
	store := newTestStore(t,
		atomicstate.WithLogger(logger),
		atomicstate.WithPersistRetries(1))
	counter := atomicstate.NewAtom("counter", 0).PersistentWith(adapter)
	mustRegisterAtom(t, store.Root(), counter)

	// The commit succeeds regardless of the mirror.
	if err := counter.Set(ctx, store.Root(), 5); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if v, _ := counter.Get(ctx, store.Root()); v != 5 {
		t.Errorf("Get() = %v, want 5", v)
	}

	if !logger.WaitHas("error", "mirror write dropped after retries", 3*time.Second) {
		t.Error("dropped mirror write not logged")
	}
}

func TestCloseFlushesPendingMirrors(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewMockAdapter()
	store := atomicstate.NewStore(atomicstate.WithPersistence(adapter))

	names := []string{"a", "b", "c"}
	for _, n := range names {
		mustRegisterAtom(t, store.Root(), atomicstate.NewAtom(n, 0).Persistent())
	}
	for i, n := range names {
		if err := store.Set(ctx, n, i+1); err != nil {
			t.Fatalf("Set() error = %v", err)
		}
	}

	if err := store.Close(ctx); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	stored := adapter.Stored()
	for i, n := range names {
		want := []byte{byte('1' + i)}
		if !bytes.Equal(stored["root/"+n], want) {
			t.Errorf("stored[%q] = %s, want %s", "root/"+n, stored["root/"+n], want)
		}
	}
}

func TestPerAtomAdapterOverridesStoreDefault(t *testing.T) {
	ctx := context.Background()
	defaultAdapter := testutil.NewMockAdapter()
	ownAdapter := testutil.NewMockAdapter()
	store := newTestStore(t, atomicstate.WithPersistence(defaultAdapter))

	counter := atomicstate.NewAtom("counter", 0).PersistentWith(ownAdapter)
	plain := atomicstate.NewAtom("plain", 0)
	mustRegisterAtom(t, store.Root(), counter)
	mustRegisterAtom(t, store.Root(), plain)

	if err := counter.Set(ctx, store.Root(), 1); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := plain.Set(ctx, store.Root(), 2); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	ok := ownAdapter.WaitFor(func(data map[string][]byte) bool {
		_, present := data["root/counter"]
		return present
	}, 2*time.Second)
	if !ok {
		t.Fatal("own adapter never received the write")
	}
	if n := defaultAdapter.CallCount("SetItem"); n != 0 {
		t.Errorf("default adapter SetItem calls = %v, want 0", n)
	}
	// Non-persistent atoms never touch any adapter.
	if _, present := ownAdapter.Stored()["root/plain"]; present {
		t.Error("non-persistent atom was mirrored")
	}
}

func TestVetoedWriteNotMirrored(t *testing.T) {
	ctx := context.Background()
	adapter := testutil.NewMockAdapter()
	store := newTestStore(t)
	counter := atomicstate.NewAtom("counter", 0).
		PersistentWith(adapter).
		WithEffect(func(ec *atomicstate.EffectContext[int]) error {
			if ec.Next() < 0 {
				ec.Reject()
			}
			return nil
		})
	mustRegisterAtom(t, store.Root(), counter)

	if err := counter.Set(ctx, store.Root(), -1); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	time.Sleep(50 * time.Millisecond)
	if n := adapter.CallCount("SetItem"); n != 0 {
		t.Errorf("SetItem calls = %v, want 0 after veto", n)
	}
}
