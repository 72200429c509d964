// Package feed serializes deliveries of one live subscription.
package feed

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/leesangbok1/vkc-sub001/pkg/logger"
)

// Feed hands queued values to a handler one at a time, in push order, on its own goroutine.
// Once closed, no further handler invocation starts, including values already queued.
type Feed[T any] struct {
	handler  func(T)
	coalesce bool
	onClose  func()
	logger   *logger.Logger

	mu      sync.Mutex
	pending []T

	wake   chan struct{}
	done   chan struct{}
	closed atomic.Bool
	once   sync.Once
}

// Options tune a Feed
type Options struct {
	// Coalesce keeps only the most recent pending value
	Coalesce bool

	// OnClose runs once when the feed is closed
	OnClose func()

	Logger *logger.Logger
}

// New starts a feed delivering to handler
func New[T any](handler func(T), opts Options) *Feed[T] {
	log := opts.Logger
	if log == nil {
		log = logger.NewNop()
	}

	f := &Feed[T]{
		handler:  handler,
		coalesce: opts.Coalesce,
		onClose:  opts.OnClose,
		logger:   log,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	go f.run()
	return f
}

// Push queues a value for delivery. It never blocks on the handler.
func (f *Feed[T]) Push(v T) {
	if f.closed.Load() {
		return
	}

	f.mu.Lock()
	if f.coalesce {
		f.pending = append(f.pending[:0], v)
	} else {
		f.pending = append(f.pending, v)
	}
	f.mu.Unlock()

	select {
	case f.wake <- struct{}{}:
	default:
	}
}

// Unsubscribe closes the feed. Safe to call more than once and from inside the handler.
func (f *Feed[T]) Unsubscribe() {
	f.once.Do(func() {
		f.closed.Store(true)
		close(f.done)

		f.mu.Lock()
		f.pending = nil
		f.mu.Unlock()

		if f.onClose != nil {
			f.onClose()
		}
	})
}

// Closed reports whether Unsubscribe has been called
func (f *Feed[T]) Closed() bool {
	return f.closed.Load()
}

// Done is closed when the feed is unsubscribed
func (f *Feed[T]) Done() <-chan struct{} {
	return f.done
}

func (f *Feed[T]) run() {
	for {
		select {
		case <-f.done:
			return
		case <-f.wake:
		}

		for {
			v, ok := f.next()
			if !ok {
				break
			}
			if f.closed.Load() {
				return
			}
			f.deliver(v)
		}
	}
}

func (f *Feed[T]) next() (T, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var zero T
	if len(f.pending) == 0 {
		return zero, false
	}
	v := f.pending[0]
	f.pending[0] = zero
	f.pending = f.pending[1:]
	return v, true
}

func (f *Feed[T]) deliver(v T) {
	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("Subscription handler panicked", logger.String("panic", fmt.Sprint(r)))
		}
	}()
	f.handler(v)
}
