package atomicstate

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ohler55/ojg"
	"github.com/ohler55/ojg/alt"
	"github.com/ohler55/ojg/jp"
	"github.com/ohler55/ojg/oj"
	"github.com/oklog/ulid/v2"
)

// Snapshot is a point-in-time, read-only serialization of a scope
// subtree's committed values. Capturing one never triggers
// recomputation; asynchronous computations still in flight are invisible.
//
// The canonical JSON form nests scopes as
//
//	{"atoms": {name: value}, "filters": {name: value}, "scopes": {...}}
//
// with all object keys sorted, so equal states produce equal bytes. The
// snapshot id and timestamp are metadata for logs and CLI output and are
// not part of the canonical bytes.
type Snapshot struct {
	id        string
	takenAt   time.Time
	scopePath string
	tree      map[string]any
}

// Snapshot captures the committed values of this scope and every scope
// nested under it. It takes the store write lock briefly and must not be
// called from an effect or a filter computation.
func (sc *Scope) Snapshot(ctx context.Context) (*Snapshot, error) {
	s := sc.store
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if s.opts.tracer != nil {
		var finish func()
		ctx, finish = s.opts.tracer.StartSpan(ctx, "atomicstate.snapshot")
		defer finish()
	}

	s.writeMu.Lock()
	if sc.isClosed() {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("scope %q: %w", sc.path, ErrClosed)
	}
	tree := sc.snapshotTree()
	s.writeMu.Unlock()

	snap := &Snapshot{
		id:        ulid.Make().String(),
		takenAt:   time.Now(),
		scopePath: sc.path,
		tree:      tree,
	}
	s.logger().Debug(ctx, "snapshot taken", "scope", sc.path, "snapshot", snap.id)
	return snap, nil
}

// snapshotTree runs under the store write lock. Values are decomposed
// into plain maps, slices, and scalars so the snapshot is detached from
// live store state.
func (sc *Scope) snapshotTree() map[string]any {
	sc.mu.RLock()
	entries := make([]*entry, 0, len(sc.entries))
	for _, e := range sc.entries {
		entries = append(entries, e)
	}
	children := make([]*Scope, 0, len(sc.children))
	for _, c := range sc.children {
		children = append(children, c)
	}
	sc.mu.RUnlock()
	sort.Slice(children, func(i, j int) bool { return children[i].name < children[j].name })

	atoms := make(map[string]any)
	filters := make(map[string]any)
	for _, e := range entries {
		v := alt.Decompose(e.snapshotValue())
		if e.kind == kindAtom {
			atoms[e.name] = v
		} else {
			filters[e.name] = v
		}
	}

	node := map[string]any{"atoms": atoms, "filters": filters}
	if len(children) > 0 {
		scopes := make(map[string]any, len(children))
		for _, c := range children {
			scopes[c.name] = c.snapshotTree()
		}
		node["scopes"] = scopes
	}
	return node
}

// ID returns the snapshot's ULID.
func (s *Snapshot) ID() string { return s.id }

// TakenAt returns the capture time.
func (s *Snapshot) TakenAt() time.Time { return s.takenAt }

// ScopePath returns the path of the scope the snapshot was taken from.
func (s *Snapshot) ScopePath() string { return s.scopePath }

// Value returns the snapshot tree. The tree is detached from the store;
// callers may keep it but should treat it as read-only.
func (s *Snapshot) Value() map[string]any { return s.tree }

// MarshalJSON returns the canonical bytes: sorted keys, no indentation.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	return oj.Marshal(s.tree, &ojg.Options{Sort: true})
}

// String returns an indented, sorted rendering for logs and CLI output.
func (s *Snapshot) String() string {
	return oj.JSON(s.tree, &ojg.Options{Sort: true, Indent: 2})
}

// Query evaluates a JSONPath expression against the snapshot tree.
func (s *Snapshot) Query(path string) ([]any, error) {
	expr, err := jp.ParseString(path)
	if err != nil {
		return nil, fmt.Errorf("invalid JSONPath %q: %w", path, err)
	}
	return expr.Get(s.tree), nil
}
