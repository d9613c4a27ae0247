package actor

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrNoActorsAvailable indicates a router's service key had no actors
// registered when a message needed to be routed.
var ErrNoActorsAvailable = errors.New("no actors available for service")

// FunctionBehavior adapts a plain function into an ActorBehavior,
// letting call sites that don't need a struct-based behavior avoid the
// boilerplate of declaring one.
type FunctionBehavior[M Message, R any] struct {
	fn func(context.Context, M) fn.Result[R]
}

// NewFunctionBehavior wraps fn as an ActorBehavior.
func NewFunctionBehavior[M Message, R any](
	fn func(context.Context, M) fn.Result[R],
) *FunctionBehavior[M, R] {
	return &FunctionBehavior[M, R]{fn: fn}
}

// Receive implements ActorBehavior.
func (b *FunctionBehavior[M, R]) Receive(ctx context.Context, msg M) fn.Result[R] {
	return b.fn(ctx, msg)
}

// RoutingStrategy picks one actor from a set of candidates registered
// under the same service key. Implementations need not be safe for
// concurrent use unless shared across routers.
type RoutingStrategy[M Message, R any] interface {
	Select(actors []ActorRef[M, R]) (ActorRef[M, R], error)
}

// roundRobinStrategy cycles through candidates in registration order.
type roundRobinStrategy[M Message, R any] struct {
	counter atomic.Uint64
}

// NewRoundRobinStrategy returns the default load-balancing strategy.
func NewRoundRobinStrategy[M Message, R any]() RoutingStrategy[M, R] {
	return &roundRobinStrategy[M, R]{}
}

// Select implements RoutingStrategy.
func (s *roundRobinStrategy[M, R]) Select(
	actors []ActorRef[M, R],
) (ActorRef[M, R], error) {

	if len(actors) == 0 {
		return nil, ErrNoActorsAvailable
	}

	n := s.counter.Add(1) - 1
	return actors[int(n%uint64(len(actors)))], nil
}

// router is a virtual ActorRef that load-balances across every actor
// registered under a service key at the moment each message is sent, so
// it tolerates actors joining or leaving the receptionist over time.
type router[M Message, R any] struct {
	receptionist *Receptionist
	key          ServiceKey[M, R]
	strategy     RoutingStrategy[M, R]
	dlo          ActorRef[Message, any]
}

// NewRouter builds a router over every actor currently (and in the
// future) registered under key.
func NewRouter[M Message, R any](
	receptionist *Receptionist, key ServiceKey[M, R],
	strategy RoutingStrategy[M, R], dlo ActorRef[Message, any],
) ActorRef[M, R] {

	return &router[M, R]{
		receptionist: receptionist,
		key:          key,
		strategy:     strategy,
		dlo:          dlo,
	}
}

// ID implements BaseActorRef.
func (r *router[M, R]) ID() string {
	return fmt.Sprintf("router[%s]", r.key.name)
}

func (r *router[M, R]) pick() (ActorRef[M, R], error) {
	candidates := FindInReceptionist(r.receptionist, r.key)
	return r.strategy.Select(candidates)
}

// Tell implements TellOnlyRef.
func (r *router[M, R]) Tell(ctx context.Context, msg M) {
	target, err := r.pick()
	if err != nil {
		if r.dlo != nil {
			r.dlo.Tell(ctx, msg)
		}
		return
	}
	target.Tell(ctx, msg)
}

// Ask implements ActorRef.
func (r *router[M, R]) Ask(ctx context.Context, msg M) Future[R] {
	target, err := r.pick()
	if err != nil {
		promise := NewPromise[R]()
		promise.Complete(fn.Err[R](err))
		return promise.Future()
	}
	return target.Ask(ctx, msg)
}
