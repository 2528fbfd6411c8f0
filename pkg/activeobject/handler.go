package activeobject

import "context"

// Handler is implemented by an active object's owner type once per payload
// type T it accepts. Send[T] is constrained on Handler[O,T]; an owner type
// with no Handle(ctx, T) method makes the call site fail to compile: there
// is no runtime type table, the dispatch thunk is bound to the exact
// owner/payload pair at the Send call site.
//
// Handle receives *Ctx[O], not a bare context.Context, so a handler can
// call TimerStart, TimerStop, or Callback on itself (ctx satisfies
// handle[O] directly) without a second lookup back to its own Base.
type Handler[O any, T any] interface {
	Handle(ctx *Ctx[O], v T)
}

// Lifecycle is satisfied automatically by any type that anonymously embeds
// Base[O] — embedding promotes Core(), so subclasses never implement this
// by hand. It is the seam Create, Run, Send, TimerStart, TimerStop, and
// Callback use to reach the worker's mailbox and timer set.
type Lifecycle[O any] interface {
	Core() *Base[O]
}

// Starter is an optional hook. A subclass that wants onStart behavior
// implements OnStart; the worker checks for it with a type assertion, so
// its absence is not a compile error, unlike handlers, which are
// mandatory for any type sent to them.
type Starter interface {
	OnStart(ctx context.Context)
}

// Stopper is OnStart's counterpart, invoked once as the worker loop exits.
type Stopper interface {
	OnStop(ctx context.Context)
}

// HandlerOwner combines the two constraints every package-level entry
// point (Send, TimerStart, TimerStop, Callback) needs: O must be a proper
// active object (embeds Base[O]) and must declare a handler for T.
type HandlerOwner[O any, T any] interface {
	Lifecycle[O]
	Handler[O, T]
}

// handle is the internal seam shared by Ref[O] (any thread) and Ctx[O]
// (worker thread only). onWorker lets TimerStart/TimerStop mutate the
// timer set directly when it is already safe to do so, and fall back to
// routing through the mailbox otherwise, without needing to detect the
// calling goroutine.
type handle[O any] interface {
	core() *Base[O]
	onWorker() bool
}
