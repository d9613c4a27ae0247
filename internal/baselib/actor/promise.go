package actor

import (
	"context"
	"sync"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// futurePromise is the single concrete implementation backing both the
// Future and Promise interfaces: a promise is just a future with a
// Complete method attached, and the two are the same underlying value
// to avoid a second allocation per Ask call.
type futurePromise[T any] struct {
	mu        sync.Mutex
	done      chan struct{}
	completed bool
	result    fn.Result[T]
}

// NewPromise creates a new, uncompleted Promise.
func NewPromise[T any]() Promise[T] {
	return &futurePromise[T]{done: make(chan struct{})}
}

// Future implements Promise.
func (p *futurePromise[T]) Future() Future[T] {
	return p
}

// Complete implements Promise. Only the first call wins; subsequent
// calls return false and have no effect.
func (p *futurePromise[T]) Complete(result fn.Result[T]) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.completed {
		return false
	}

	p.completed = true
	p.result = result
	close(p.done)

	return true
}

// Await implements Future.
func (p *futurePromise[T]) Await(ctx context.Context) fn.Result[T] {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.result

	case <-ctx.Done():
		return fn.Err[T](ctx.Err())
	}
}

// ThenApply implements Future.
func (p *futurePromise[T]) ThenApply(
	ctx context.Context, transform func(T) T,
) Future[T] {

	next := NewPromise[T]()

	go func() {
		result := p.Await(ctx)

		result.WhenOk(func(v T) {
			next.Complete(fn.Ok(transform(v)))
		})
		result.WhenErr(func(err error) {
			next.Complete(fn.Err[T](err))
		})
	}()

	return next.Future()
}

// OnComplete implements Future.
func (p *futurePromise[T]) OnComplete(ctx context.Context, callback func(fn.Result[T])) {
	go func() {
		callback(p.Await(ctx))
	}()
}
