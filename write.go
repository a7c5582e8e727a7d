package atomicstate

import (
	"context"
	"fmt"
	"reflect"
	"sort"
)

// wave tracks one propagation pass: which entries committed a changed
// value, which filter is currently computing (cycle detection), and the
// notifications to deliver once the write lock is released. Lock order is
// writeMu, then scope.mu, then entry.mu; subscriber callbacks run with no
// locks held.
type wave struct {
	computing     map[*entry]struct{}
	changed       map[*entry]struct{}
	changedOrder  []*entry
	notifications []notification
}

type notification struct {
	subs  []*subscriber
	value any
}

func newWave() *wave {
	return &wave{
		computing: make(map[*entry]struct{}),
		changed:   make(map[*entry]struct{}),
	}
}

func (w *wave) markChanged(e *entry) {
	if _, ok := w.changed[e]; !ok {
		w.changed[e] = struct{}{}
		w.changedOrder = append(w.changedOrder, e)
	}
}

func (w *wave) notify(e *entry, value any) {
	w.notifications = append(w.notifications, notification{subs: e.subs.snapshot(), value: value})
}

// write runs the full write path for one atom: candidate, effect chain,
// commit, persistence, then one propagation wave.
func (s *Store) write(ctx context.Context, e *entry, label string, candidate func(prev any) (any, error)) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.opts.tracer != nil {
		var finish func()
		ctx, finish = s.opts.tracer.StartSpan(ctx, "atomicstate.write")
		defer finish()
	}

	s.writeMu.Lock()
	w := newWave()
	err := s.applyWrite(ctx, w, e, label, false, candidate)
	if err == nil {
		s.propagate(ctx, w)
	}
	s.writeMu.Unlock()

	s.deliver(w.notifications)
	return err
}

// writeReset is the write path with the default as candidate; on commit
// the persisted copy is removed instead of mirrored.
func (s *Store) writeReset(ctx context.Context, e *entry) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.opts.tracer != nil {
		var finish func()
		ctx, finish = s.opts.tracer.StartSpan(ctx, "atomicstate.reset")
		defer finish()
	}

	s.writeMu.Lock()
	w := newWave()
	err := s.applyWrite(ctx, w, e, "reset", true, func(any) (any, error) {
		return e.atom.defaultFn(ctx)
	})
	if err == nil {
		s.propagate(ctx, w)
	}
	s.writeMu.Unlock()

	s.deliver(w.notifications)
	return err
}

// writeBatch commits every write, then runs a single propagation wave in
// which each affected filter recomputes at most once. An error aborts the
// remaining writes; commits made before it still propagate.
func (s *Store) writeBatch(ctx context.Context, writes []batchWrite) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if s.opts.tracer != nil {
		var finish func()
		ctx, finish = s.opts.tracer.StartSpan(ctx, "atomicstate.batch")
		defer finish()
	}

	s.writeMu.Lock()
	w := newWave()
	var firstErr error
	for _, bw := range writes {
		if err := s.applyWrite(ctx, w, bw.entry, bw.label, bw.remove, bw.candidate); err != nil {
			firstErr = fmt.Errorf("batch write %q: %w", bw.entry.name, err)
			break
		}
	}
	s.propagate(ctx, w)
	s.writeMu.Unlock()

	s.deliver(w.notifications)
	return firstErr
}

// applyWrite runs candidate and effects for one atom and commits the
// result into the wave. Requires the write lock. A veto returns nil with
// nothing recorded.
func (s *Store) applyWrite(ctx context.Context, w *wave, e *entry, label string, remove bool, candidate func(prev any) (any, error)) error {
	if e.scope.isClosed() {
		return fmt.Errorf("scope %q: %w", e.scope.path, ErrClosed)
	}
	as := e.atom
	prev := e.snapshotValue()

	next, err := candidate(prev)
	if err != nil {
		return err
	}

	// Cleanups retained from the previous pass run before this one, and
	// the previous pass's context is cancelled.
	for _, c := range as.cleanups {
		c()
	}
	as.cleanups = nil
	if as.passCancel != nil {
		as.passCancel()
	}
	passCtx, cancel := context.WithCancel(s.baseCtx)
	as.passCancel = cancel

	pass := &effectPass{ctx: passCtx, scope: e.scope, name: e.name, prev: prev, next: next}
	for _, eff := range as.effects {
		if err := eff(pass); err != nil {
			as.cleanups = pass.cleanups
			return fmt.Errorf("effect for %q: %w", e.name, err)
		}
		if pass.rejected {
			as.cleanups = pass.cleanups
			s.logger().Debug(ctx, "write vetoed", "atom", e.name, "scope", e.scope.path, "op", label)
			return nil
		}
	}
	as.cleanups = pass.cleanups

	final := pass.next
	e.mu.Lock()
	e.value = final
	e.version++
	version := e.version
	e.mu.Unlock()

	if !reflect.DeepEqual(prev, final) {
		w.markChanged(e)
	}
	w.notify(e, final)

	if as.adapter != nil {
		s.enqueuePersist(ctx, e, final, remove)
	}
	s.logger().Debug(ctx, "write committed", "atom", e.name, "scope", e.scope.path,
		"op", label, "version", version)
	return nil
}

// propagate recomputes the filters affected by the wave's changed entries.
// Filters run in dependency order where the graph allows it, falling back
// to registration order for ties and cycles; each filter runs at most once
// per wave. Dependency sets are rebuilt by each recomputation, so edges
// discovered mid-wave take effect from the next change onward.
func (s *Store) propagate(ctx context.Context, w *wave) {
	if len(w.changedOrder) == 0 {
		return
	}

	// Affected set: transitive dependents through current edges.
	seen := make(map[*entry]bool)
	var affected []*entry
	queue := make([]*entry, 0, len(w.changedOrder))
	for _, e := range w.changedOrder {
		queue = append(queue, sortedDependents(e)...)
	}
	for i := 0; i < len(queue); i++ {
		f := queue[i]
		if seen[f] {
			continue
		}
		seen[f] = true
		affected = append(affected, f)
		queue = append(queue, sortedDependents(f)...)
	}
	if len(affected) == 0 {
		return
	}

	indeg := make(map[*entry]int, len(affected))
	for _, f := range affected {
		for d := range f.filter.deps {
			if seen[d] {
				indeg[f]++
			}
		}
	}

	processed := make(map[*entry]bool, len(affected))
	for {
		var pick *entry
		for _, f := range affected {
			if processed[f] || indeg[f] > 0 {
				continue
			}
			if pick == nil || f.seq < pick.seq {
				pick = f
			}
		}
		if pick == nil {
			break
		}
		processed[pick] = true
		s.recomputeInWave(ctx, w, pick)
		for d := range pick.dependents {
			if seen[d] && !processed[d] {
				indeg[d]--
			}
		}
	}

	// Anything left is part of a dependency cycle; run it in registration
	// order, once.
	var leftover []*entry
	for _, f := range affected {
		if !processed[f] {
			leftover = append(leftover, f)
		}
	}
	sortBySeq(leftover)
	for _, f := range leftover {
		processed[f] = true
		s.recomputeInWave(ctx, w, f)
	}
}

// recomputeInWave recomputes one filter if a value it read during its last
// computation changed in this wave. Requires the write lock.
func (s *Store) recomputeInWave(ctx context.Context, w *wave, f *entry) {
	fs := f.filter
	hit := false
	for d := range fs.deps {
		if _, ok := w.changed[d]; ok {
			hit = true
			break
		}
	}
	if !hit || f.scope.isClosed() {
		return
	}

	if fs.async {
		s.issueAsync(f)
		return
	}

	fc := &FilterContext{ctx: ctx, scope: f.scope, deps: make(map[*entry]struct{}), wave: w}
	w.computing[f] = struct{}{}
	v, err := fs.compute(fc)
	delete(w.computing, f)
	if err != nil {
		// Keep the previous value and the previous dependency set so a
		// later change can still retrigger the computation.
		s.logger().Error(ctx, "filter recomputation failed, keeping previous value",
			"filter", f.name, "scope", f.scope.path, "error", err)
		return
	}
	s.installDeps(f, fc.deps)

	prev := f.snapshotValue()
	if reflect.DeepEqual(prev, v) {
		return
	}
	f.mu.Lock()
	f.value = v
	f.version++
	f.mu.Unlock()
	w.markChanged(f)
	w.notify(f, v)
}

// installDeps replaces f's dependency edges with the freshly captured set.
// Requires the write lock.
func (s *Store) installDeps(f *entry, deps map[*entry]struct{}) {
	for d := range f.filter.deps {
		if _, still := deps[d]; !still {
			delete(d.dependents, f)
		}
	}
	for d := range deps {
		d.dependents[f] = struct{}{}
	}
	f.filter.deps = deps
}

// issueAsync starts a new computation for an asynchronous filter,
// superseding and cancelling any in-flight one. Requires the write lock.
func (s *Store) issueAsync(f *entry) {
	fs := f.filter
	if fs.cancel != nil {
		fs.cancel()
	}
	cctx, cancel := context.WithCancel(s.baseCtx)
	fs.cancel = cancel
	fs.issued++
	id := fs.issued
	fc := &FilterContext{
		ctx:   cctx,
		scope: f.scope,
		deps:  make(map[*entry]struct{}),
		// Private wave so a self-read inside the computation reports
		// ErrCycle instead of installing a self-edge.
		wave: &wave{computing: map[*entry]struct{}{f: {}}},
	}
	go s.runAsync(cctx, f, id, fc)
}

func (s *Store) runAsync(ctx context.Context, f *entry, id uint64, fc *FilterContext) {
	v, err := f.filter.compute(fc)
	s.applyAsync(ctx, f, id, v, err, fc.deps)
}

// applyAsync applies a completed asynchronous computation unless a newer
// one has been issued for the same filter; superseded results are
// discarded regardless of completion order.
func (s *Store) applyAsync(ctx context.Context, f *entry, id uint64, v any, err error, deps map[*entry]struct{}) {
	if s.closed.Load() {
		return
	}
	s.writeMu.Lock()
	if s.closed.Load() || f.scope.isClosed() {
		s.writeMu.Unlock()
		return
	}
	fs := f.filter
	if id != fs.issued {
		s.writeMu.Unlock()
		s.logger().Debug(ctx, "async filter result superseded", "filter", f.name, "id", id)
		return
	}
	if err != nil {
		s.writeMu.Unlock()
		if ctx.Err() != nil {
			return
		}
		s.logger().Error(ctx, "async filter computation failed, keeping previous value",
			"filter", f.name, "scope", f.scope.path, "error", err)
		return
	}

	s.installDeps(f, deps)
	prev := f.snapshotValue()
	if reflect.DeepEqual(prev, v) {
		s.writeMu.Unlock()
		return
	}
	f.mu.Lock()
	f.value = v
	f.version++
	f.mu.Unlock()

	w := newWave()
	w.markChanged(f)
	w.notify(f, v)
	s.propagate(ctx, w)
	s.writeMu.Unlock()

	s.deliver(w.notifications)
}

// deliver fires subscriber callbacks outside the write lock, in wave
// order: commits first, then recomputed filters in processing order.
func (s *Store) deliver(ns []notification) {
	for _, n := range ns {
		for _, sub := range n.subs {
			sub.fn(n.value)
		}
	}
}

func sortedDependents(e *entry) []*entry {
	out := make([]*entry, 0, len(e.dependents))
	for d := range e.dependents {
		out = append(out, d)
	}
	sortBySeq(out)
	return out
}

func sortBySeq(entries []*entry) {
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
}
