package atomicstate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/atomic-state/atomicstate"
)

func TestBatchRecomputesFilterOnce(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	width := atomicstate.NewAtom("width", 2)
	height := atomicstate.NewAtom("height", 3)
	mustRegisterAtom(t, store.Root(), width)
	mustRegisterAtom(t, store.Root(), height)

	computes := 0
	area := atomicstate.NewFilter("area", func(fc *atomicstate.FilterContext) (int, error) {
		computes++
		w, err := atomicstate.Read(fc, width)
		if err != nil {
			return 0, err
		}
		h, err := atomicstate.Read(fc, height)
		if err != nil {
			return 0, err
		}
		return w * h, nil
	})
	mustRegisterFilter(t, store.Root(), area)

	var areaSeen []int
	unsub, err := area.Subscribe(store.Root(), func(v int) { areaSeen = append(areaSeen, v) })
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer unsub()

	err = store.Batch().
		Set("width", 10).
		Set("height", 20).
		Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if v, _ := area.Get(ctx, store.Root()); v != 200 {
		t.Errorf("area = %v, want 200", v)
	}
	// One recomputation for the whole batch, seeing both new values; no
	// intermediate 20*3 or 2*20 observable anywhere.
	if computes != 2 {
		t.Errorf("computes = %v, want 2 (registration + batch)", computes)
	}
	if len(areaSeen) != 1 || areaSeen[0] != 200 {
		t.Errorf("area notifications = %v, want [200]", areaSeen)
	}
}

func TestBatchNotificationOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mustRegisterAtom(t, store.Root(), atomicstate.NewAtom("a", 0))
	mustRegisterAtom(t, store.Root(), atomicstate.NewAtom("b", 0))

	var order []string
	for _, name := range []string{"a", "b"} {
		name := name
		unsub, err := store.Subscribe(name, func(any) { order = append(order, name) })
		if err != nil {
			t.Fatalf("Subscribe() error = %v", err)
		}
		defer unsub()
	}

	// Write order within the batch is preserved in delivery.
	err := store.Batch().Set("b", 1).Set("a", 2).Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if len(order) != 2 || order[0] != "b" || order[1] != "a" {
		t.Errorf("order = %v, want [b a]", order)
	}
}

func TestBatchMixedOperations(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	counter := atomicstate.NewAtom("counter", 1).
		WithAction("add", func(ac *atomicstate.ActionContext[int]) (int, error) {
			return ac.State() + ac.Payload().(int), nil
		})
	mustRegisterAtom(t, store.Root(), counter)
	mustRegisterAtom(t, store.Root(), atomicstate.NewAtom("name", "anon"))
	mustRegisterAtom(t, store.Root(), atomicstate.NewAtom("temp", 99))

	if err := store.Set(ctx, "temp", 500); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	err := store.Batch().
		Set("name", "alice").
		Dispatch("counter", "add", 10).
		Update("counter", func(v any) any { return v.(int) * 2 }).
		Reset("temp").
		Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if v, _ := store.Get(ctx, "name"); v != "alice" {
		t.Errorf("name = %v, want alice", v)
	}
	// Dispatch then update: (1+10)*2.
	if v, _ := store.Get(ctx, "counter"); v != 22 {
		t.Errorf("counter = %v, want 22", v)
	}
	if v, _ := store.Get(ctx, "temp"); v != 99 {
		t.Errorf("temp = %v, want 99 (reset to default)", v)
	}
}

func TestBatchTypedSet(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	counter := atomicstate.NewAtom("counter", 0)
	mustRegisterAtom(t, store.Root(), counter)

	b := store.Batch()
	atomicstate.BatchSet(b, counter, 33)
	if err := b.Commit(ctx); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if v, _ := counter.Get(ctx, store.Root()); v != 33 {
		t.Errorf("counter = %v, want 33", v)
	}
}

func TestBatchResolutionErrorAbortsAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mustRegisterAtom(t, store.Root(), atomicstate.NewAtom("a", 0))
	mustRegisterFilter(t, store.Root(), atomicstate.NewFilter("f",
		func(fc *atomicstate.FilterContext) (int, error) { return 0, nil }))

	tests := []struct {
		name    string
		batch   *atomicstate.Batch
		wantErr error
	}{
		{
			name:    "unknown name",
			batch:   store.Batch().Set("a", 1).Set("ghost", 2),
			wantErr: atomicstate.ErrNotFound,
		},
		{
			name:    "filter target",
			batch:   store.Batch().Set("a", 1).Set("f", 2),
			wantErr: atomicstate.ErrReadOnly,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.batch.Commit(ctx); !errors.Is(err, tt.wantErr) {
				t.Errorf("Commit() error = %v, want %v", err, tt.wantErr)
			}
			// Resolution happens before any write.
			if v, _ := store.Get(ctx, "a"); v != 0 {
				t.Errorf("a = %v, want 0 (nothing written)", v)
			}
		})
	}
}

func TestBatchWriteErrorKeepsEarlierCommits(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mustRegisterAtom(t, store.Root(), atomicstate.NewAtom("a", 0))

	errBlocked := errors.New("blocked")
	guarded := atomicstate.NewAtom("b", 0).
		WithEffect(func(ec *atomicstate.EffectContext[int]) error {
			return errBlocked
		})
	mustRegisterAtom(t, store.Root(), guarded)
	mustRegisterAtom(t, store.Root(), atomicstate.NewAtom("c", 0))

	err := store.Batch().
		Set("a", 1).
		Set("b", 2).
		Set("c", 3).
		Commit(ctx)
	if !errors.Is(err, errBlocked) {
		t.Fatalf("Commit() error = %v, want wrapped blocked", err)
	}

	// Writes before the failure committed; the failing one and everything
	// after it did not.
	if v, _ := store.Get(ctx, "a"); v != 1 {
		t.Errorf("a = %v, want 1", v)
	}
	if v, _ := store.Get(ctx, "b"); v != 0 {
		t.Errorf("b = %v, want 0", v)
	}
	if v, _ := store.Get(ctx, "c"); v != 0 {
		t.Errorf("c = %v, want 0", v)
	}
}

func TestBatchUnknownActionSkipped(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	mustRegisterAtom(t, store.Root(), atomicstate.NewAtom("counter", 0))

	err := store.Batch().
		Dispatch("counter", "no-such-action", nil).
		Set("counter", 5).
		Commit(ctx)
	if err != nil {
		t.Fatalf("Commit() error = %v", err)
	}
	if v, _ := store.Get(ctx, "counter"); v != 5 {
		t.Errorf("counter = %v, want 5", v)
	}
}

func TestEmptyBatch(t *testing.T) {
	store := newTestStore(t)
	if err := store.Batch().Commit(context.Background()); err != nil {
		t.Errorf("Commit() error = %v, want nil", err)
	}
}
