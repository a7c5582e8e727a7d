package atomicstate

import (
	"context"
	"sync"
)

// watchBufferSize is the channel capacity used by Watch. When a watcher
// falls behind, notifications are dropped rather than blocking the store.
const watchBufferSize = 16

// UnsubscribeFunc removes a subscription. Safe to call more than once.
type UnsubscribeFunc func()

type subscriber struct {
	id uint64
	fn func(any)
}

// subscriberList keeps subscribers in registration order, which is the
// order notifications are delivered in.
type subscriberList struct {
	mu   sync.Mutex
	next uint64
	subs []*subscriber
}

func newSubscriberList() *subscriberList {
	return &subscriberList{}
}

func (l *subscriberList) add(fn func(any)) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next++
	l.subs = append(l.subs, &subscriber{id: l.next, fn: fn})
	return l.next
}

func (l *subscriberList) remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, s := range l.subs {
		if s.id == id {
			l.subs = append(l.subs[:i], l.subs[i+1:]...)
			return
		}
	}
}

// snapshot returns the current subscribers in delivery order.
func (l *subscriberList) snapshot() []*subscriber {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*subscriber, len(l.subs))
	copy(out, l.subs)
	return out
}

func (l *subscriberList) clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subs = nil
}

// Subscribe registers fn for change notifications of the named entry.
// Notifications are delivered after commit, outside the store write lock,
// in subscriber registration order. The callback may itself write.
func (sc *Scope) Subscribe(name string, fn func(any)) (UnsubscribeFunc, error) {
	e, err := sc.resolve(name)
	if err != nil {
		return nil, err
	}
	id := e.subs.add(fn)
	var once sync.Once
	return func() {
		once.Do(func() { e.subs.remove(id) })
	}, nil
}

// Watch returns a buffered channel that receives the entry's committed
// value after each change. The channel closes when the returned
// UnsubscribeFunc is called or ctx is cancelled. A slow receiver loses
// intermediate values; the channel never blocks the store.
func (sc *Scope) Watch(ctx context.Context, name string) (<-chan any, UnsubscribeFunc, error) {
	w := newWatcher[any](sc.store.logger(), name)
	unsub, err := sc.Subscribe(name, func(v any) { w.send(ctx, v) })
	if err != nil {
		return nil, nil, err
	}
	stop := w.stopFunc(ctx, unsub)
	return w.ch, stop, nil
}

// watcher bridges subscription callbacks onto a channel. Sends are
// non-blocking; close is coordinated with in-flight sends through mu.
type watcher[T any] struct {
	logger Logger
	name   string
	ch     chan T
	mu     sync.Mutex
	closed bool
	halt   chan struct{}
}

func newWatcher[T any](logger Logger, name string) *watcher[T] {
	return &watcher[T]{
		logger: logger,
		name:   name,
		ch:     make(chan T, watchBufferSize),
		halt:   make(chan struct{}),
	}
}

func (w *watcher[T]) send(ctx context.Context, v T) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	select {
	case w.ch <- v:
	default:
		w.logger.Debug(ctx, "watch channel full, dropping notification", "entry", w.name)
	}
}

func (w *watcher[T]) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.closed {
		w.closed = true
		close(w.ch)
	}
}

// stopFunc returns the UnsubscribeFunc for this watcher and starts the
// goroutine that honors ctx cancellation.
func (w *watcher[T]) stopFunc(ctx context.Context, unsub UnsubscribeFunc) UnsubscribeFunc {
	var once sync.Once
	stop := func() {
		once.Do(func() {
			unsub()
			w.close()
			close(w.halt)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-w.halt:
		}
	}()
	return stop
}
