// Package activeobject implements the Active Object concurrency
// substrate: a per-instance mailbox and delivery loop, type-directed
// dispatch to owner-defined handlers, a worker-owned timer set, and
// cross-instance callback tokens with dangling-target safety.
//
// A subclass embeds Base[O] (with O itself as the type parameter — see
// Pinger in NewBase's documentation) and implements Handle(ctx, T) for every
// payload type it accepts. Create or Run starts the worker; Send,
// TimerStart, TimerStop, and Callback are free functions (Go methods
// cannot introduce new type parameters) constrained so a missing handler
// is a compile error, not a runtime lookup failure.
package activeobject

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"
	"weak"

	"github.com/google/uuid"

	"github.com/fluxorio/activeobject/pkg/core/failfast"
)

// State is the active object's run-state.
type State int32

const (
	StateConstructed State = iota
	StateStarted
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateConstructed:
		return "Constructed"
	case StateStarted:
		return "Started"
	case StateStopping:
		return "Stopping"
	case StateStopped:
		return "Stopped"
	default:
		return "Unknown"
	}
}

// Stats is a point-in-time snapshot of one instance's mailbox/timer
// activity, used for tests and for the Prometheus wiring in
// pkg/observability.
type Stats struct {
	ID          string
	State       State
	QueuedApprox int64
	Dispatched  uint64
	Rejected    uint64
	TimersArmed int
}

// Base is embedded (anonymously, parameterized on the embedding type
// itself) by every active object. It owns the mailbox, the timer set, and
// the lifecycle state; it never owns a strong reference to its own owner,
// only a weak one, obtained transiently per dispatch.
type Base[O any] struct {
	id      string
	mailbox *mailbox[O]
	timers  *timerSet[O]
	self    weak.Pointer[O]
	state   atomic.Int32
	logger  Logger
	cleanup runtime.Cleanup
}

// NewBase constructs the embeddable core for an active object type O. A
// subclass assigns the result to its embedded field inside its own
// constructor, before ever calling Create or Run on it:
//
//	type Pinger struct {
//	    activeobject.Base[Pinger]
//	}
//
//	func NewPinger() *Pinger {
//	    p := &Pinger{}
//	    p.Base = activeobject.NewBase[Pinger]()
//	    return p
//	}
func NewBase[O any]() Base[O] {
	return Base[O]{
		id:      uuid.NewString(),
		mailbox: newMailbox[O](),
		timers:  newTimerSet[O](),
		logger:  NewDefaultLogger(),
	}
}

// Core implements Lifecycle[O] by returning the receiver itself; embedding
// Base[O] promotes this method onto O for free.
func (b *Base[O]) Core() *Base[O] { return b }

// ID returns the active object's stable identity.
func (b *Base[O]) ID() string { return b.id }

// State returns the current lifecycle state.
func (b *Base[O]) State() State { return State(b.state.Load()) }

// WithLogger replaces the default logger. Call it before Create/Run.
func (b *Base[O]) WithLogger(l Logger) { b.logger = l }

// Stats returns a snapshot suitable for metrics export or assertions in
// tests that must not race the worker goroutine.
func (b *Base[O]) Stats() Stats {
	return Stats{
		ID:           b.id,
		State:        b.State(),
		QueuedApprox: b.mailbox.queued.Load(),
		Dispatched:   b.mailbox.dispatched.Load(),
		Rejected:     b.mailbox.rejected.Load(),
		TimersArmed:  b.timers.len(),
	}
}

// Ref is the external, shared-ownership handle to an active object: any
// number of Refs may exist, from any goroutine, and each keeps O
// reachable for as long as it is held. Dropping the last Ref lets the
// garbage collector reclaim O, which — through the weak self-handle the
// worker holds and the cleanup registered in Create/Run — is what
// triggers the worker's own shutdown, in place of manual reference
// counting.
type Ref[O Lifecycle[O]] struct {
	ptr *O
}

func (r Ref[O]) core() *Base[O] { return r.ptr.Core() }
func (r Ref[O]) onWorker() bool { return false }

// Unwrap returns the underlying owner pointer, e.g. to call
// non-active-object methods on it directly. Doing so from outside the
// worker goroutine is the caller's responsibility to make safe (same as
// calling a method directly on any other concurrent object).
func (r Ref[O]) Unwrap() *O { return r.ptr }

// ID returns the target's stable identity.
func (r Ref[O]) ID() string { return r.core().ID() }

// State returns the target's current lifecycle state.
func (r Ref[O]) State() State { return r.core().State() }

// Stats returns a snapshot of the target's mailbox/timer activity.
func (r Ref[O]) Stats() Stats { return r.core().Stats() }

// Stop requests graceful termination: a control envelope that flips the
// state to Stopping is enqueued, and takes effect at the next dispatch
// boundary. Stop is idempotent and may be called from any goroutine,
// including the worker's own handler.
func (r Ref[O]) Stop() error { return r.core().requestStop() }

// Ctx is the worker-thread handle passed to every Handle call; OnStart and
// OnStop receive only its context.Context, not the Ctx itself. Unlike Ref,
// operations through Ctx that only make sense on the worker thread
// (TimerStart/TimerStop) mutate the timer set directly instead of
// round-tripping through the mailbox.
//
// Ctx carries its *Base[O] directly rather than deriving it from ptr via
// O.Core(), so Ctx itself stays unconstrained (O any): the worker already
// holds b at every call site that builds a Ctx, and leaving Ctx
// unconstrained is what lets envelope/mailbox/timerSet — which all carry
// a Ctx-shaped invoke closure — stay unconstrained too, instead of
// forcing the Lifecycle[O] constraint transitively onto Base[O] itself
// (which would conflict with Lifecycle[O]'s own definition of Base[O]).
type Ctx[O any] struct {
	ctx  context.Context
	ptr  *O
	base *Base[O]
}

func (c *Ctx[O]) core() *Base[O] { return c.base }
func (c *Ctx[O]) onWorker() bool { return true }

// Context returns the context.Context associated with this dispatch.
func (c *Ctx[O]) Context() context.Context { return c.ctx }

// requestStop is the state-machine transition behind Ref.Stop (a handler
// reaches it through Self(ctx).Stop()). CompareAndSwap makes repeated/concurrent calls idempotent:
// only the caller that wins the race from Started to Stopping actually
// enqueues the control envelope.
func (b *Base[O]) requestStop() error {
	if !b.state.CompareAndSwap(int32(StateStarted), int32(StateStopping)) {
		return nil
	}
	return b.mailbox.enqueue(&envelope[O]{ctrl: ctrlStop})
}

// Create spawns a dedicated worker goroutine for a new instance of O and
// returns a shared Ref to it. ctor must return a fully constructed *O
// with its embedded Base[O] already assigned via NewBase[O]().
func Create[O Lifecycle[O]](ctor func() *O) (Ref[O], error) {
	o := ctor()
	failfast.NotNil(o, "active object constructor result")
	b := o.Core()
	failfast.NotNil(b.mailbox, "Base[O] (did the constructor assign NewBase[O]()?)")
	if !start(b, o) {
		return Ref[O]{}, ErrAlreadyStarted
	}
	go runWorker(b, b.self)
	return Ref[O]{ptr: o}, nil
}

// Run is Create's counterpart for top-level instances: it reuses the
// calling goroutine as the worker and blocks until the instance reaches
// Stopped, returning a process-style exit code (always 0: the core has
// no failure path of its own, since Go goroutines do not fail to start
// the way host OS threads can — see ErrSpawnFailed).
func Run[O Lifecycle[O]](ctor func() *O) (int, error) {
	o := ctor()
	failfast.NotNil(o, "active object constructor result")
	b := o.Core()
	failfast.NotNil(b.mailbox, "Base[O] (did the constructor assign NewBase[O]()?)")
	if !start(b, o) {
		return 0, ErrAlreadyStarted
	}
	runWorker(b, b.self)
	return 0, nil
}

// start performs the Constructed→Started transition shared by Create and
// Run: publish the weak self-handle and register the GC cleanup that
// fires once the owner becomes unreachable. It reports false (and leaves
// the instance untouched) if the instance has already left Constructed,
// which is how Create/Run reject a second Create/Run on the same Base.
func start[O any](b *Base[O], o *O) bool {
	if !b.state.CompareAndSwap(int32(StateConstructed), int32(StateStarted)) {
		return false
	}
	b.self = weak.Make(o)
	mb := b.mailbox // captured by value into the cleanup closure below,
	// a pointer to a separate allocation from o — holding it does not
	// keep o reachable, so the cleanup still fires once o is otherwise
	// unreferenced.
	b.cleanup = runtime.AddCleanup(o, func(mb *mailbox[O]) { mb.close() }, mb)
	return true
}

// runWorker is the delivery loop: drain the mailbox in arrival order,
// consult the timer set for the nearest deadline between messages, and
// dispatch everything on this one goroutine. A message observed in the
// same wakeup as a due timer is dispatched first.
func runWorker[O any](b *Base[O], self weak.Pointer[O]) {
	gctx := context.Background()
	if o := self.Value(); o != nil {
		callOnStart(b, &Ctx[O]{ctx: gctx, ptr: o, base: b})
	}

	for {
		var deadline time.Time
		if d, ok := b.timers.nextDeadline(); ok {
			deadline = d
		}

		env, status := b.mailbox.dequeueWait(deadline)
		switch status {
		case waitStopped:
			goto shutdown

		case waitTimedOut:
			for _, rec := range b.timers.popDue(time.Now()) {
				if o := self.Value(); o != nil {
					dispatchTimer(b, o, rec, &Ctx[O]{ctx: gctx, ptr: o, base: b})
				}
				b.timers.rearm(rec)
			}

		case waitOK:
			switch env.ctrl {
			case ctrlStop:
				b.state.Store(int32(StateStopping))
				b.mailbox.close()
				goto shutdown
			case ctrlTimerOp:
				env.timerOp(b.timers)
			default:
				if o := self.Value(); o != nil {
					dispatchMessage(b, o, env, &Ctx[O]{ctx: gctx, ptr: o, base: b})
				}
			}
		}
	}

shutdown:
	if o := self.Value(); o != nil {
		callOnStop(b, &Ctx[O]{ctx: gctx, ptr: o, base: b})
	}
	b.state.Store(int32(StateStopped))
}

// dispatchMessage and dispatchTimer both run a user-supplied thunk behind
// recoverAndStop: a panicking handler runs OnStop and then re-panics,
// terminating the worker goroutine. The core never swallows a handler
// panic, because it cannot know whether retrying is safe.
func dispatchMessage[O any](b *Base[O], o *O, env *envelope[O], c *Ctx[O]) {
	defer recoverAndStop(b, o)
	env.invoke(o, c)
	b.mailbox.dispatched.Add(1)
}

func dispatchTimer[O any](b *Base[O], o *O, rec *timerRecord[O], c *Ctx[O]) {
	defer recoverAndStop(b, o)
	rec.invoke(o, c)
	b.mailbox.dispatched.Add(1)
}

func recoverAndStop[O any](b *Base[O], o *O) {
	if r := recover(); r != nil {
		b.logger.WithFields(map[string]interface{}{"instance": b.id}).Errorf("handler panic, stopping: %v", r)
		callOnStop(b, &Ctx[O]{ctx: context.Background(), ptr: o, base: b})
		b.state.Store(int32(StateStopped))
		panic(r)
	}
}

func callOnStart[O any](b *Base[O], c *Ctx[O]) {
	if s, ok := any(c.ptr).(Starter); ok {
		s.OnStart(c.ctx)
	}
}

func callOnStop[O any](b *Base[O], c *Ctx[O]) {
	if s, ok := any(c.ptr).(Stopper); ok {
		s.OnStop(c.ctx)
	}
}

// Self returns a Ref to the instance a Ctx was built for, for handlers
// that want to pass their own handle to a peer. A free function, like
// Send/TimerStart/TimerStop/Callback, rather than a method on Ctx[O]:
// Ctx[O] itself stays unconstrained (O any), and only this function's own
// type parameter carries the Lifecycle[O] bound Ref[O] needs.
func Self[O Lifecycle[O]](c *Ctx[O]) Ref[O] { return Ref[O]{ptr: c.ptr} }

// Send enqueues v for dispatch to owner O's Handle(ctx, T) method. O must
// implement Handler[O, T] — if it does not, this call fails to compile,
// with no runtime type table involved. h is either a Ref[O] (any
// goroutine) or a *Ctx[O] (from inside a handler, to message a peer or
// self).
func Send[T any, O HandlerOwner[O, T]](h handle[O], v T) error {
	env := &envelope[O]{invoke: func(o *O, c *Ctx[O]) { o.Handle(c, v) }}
	return h.core().mailbox.enqueue(env)
}

// TimerStart starts (or replaces) a timer keyed by (type(v), v). Called
// from the worker thread (via a *Ctx[O]), it mutates the timer set
// directly; called from any other goroutine (via a Ref[O]), it is
// packaged as a control envelope and applied when the worker next
// dequeues, preserving the timer set's single-writer invariant without a
// lock.
func TimerStart[T comparable, O HandlerOwner[O, T]](h handle[O], v T, period time.Duration, cycle Cycle) error {
	key := timerKeyOf(v)
	invoke := func(o *O, c *Ctx[O]) { o.Handle(c, v) }
	op := func(ts *timerSet[O]) { ts.start(key, period, cycle, invoke) }
	if h.onWorker() {
		op(h.core().timers)
		return nil
	}
	return h.core().mailbox.enqueue(&envelope[O]{ctrl: ctrlTimerOp, timerOp: op})
}

// TimerStop removes the timer keyed by (type(v), v). A stop for an
// unknown key is a silent no-op.
func TimerStop[T comparable, O HandlerOwner[O, T]](h handle[O], v T) error {
	key := timerKeyOf(v)
	op := func(ts *timerSet[O]) { ts.stop(key) }
	if h.onWorker() {
		op(h.core().timers)
		return nil
	}
	return h.core().mailbox.enqueue(&envelope[O]{ctrl: ctrlTimerOp, timerOp: op})
}

// Callback produces a Token[T] bound to this instance's Handle(ctx, T)
// method, with the owner type O fully erased from the token's signature.
// It may only be created from the worker thread, since that is the only
// place a *Ctx[O] exists.
func Callback[T any, O HandlerOwner[O, T]](c *Ctx[O]) Token[T] {
	mb := c.core().mailbox
	return Token[T]{invoke: func(v T) {
		env := &envelope[O]{invoke: func(o *O, c *Ctx[O]) { o.Handle(c, v) }}
		_ = mb.enqueue(env) // ErrMailboxClosed on a dead/stopped target is the intended no-op.
	}}
}
