package activeobject

import "sync/atomic"

// ctrlKind distinguishes an ordinary dispatch envelope from the internal
// control envelopes Stop/TimerStart/TimerStop use to move a mutation onto
// the worker thread without exposing a lock.
type ctrlKind int32

const (
	ctrlNone ctrlKind = iota
	ctrlStop
	ctrlTimerOp
)

// envelope is the mailbox node and the unit of dispatch in one. Holding
// both the linked-list pointer and the payload closure avoids a second
// allocation per message.
//
// invoke is an unbound dispatch thunk: func(o *O, c *Ctx[O]){ o.Handle(c, v) }.
// It closes over the payload v but never over a strong *O, which is what
// lets the worker hold only a weak self-reference between dispatches
// (see base.go). c is built fresh by the worker for each dispatch, from
// the same strong pointer it just obtained from the weak self-handle.
type envelope[O any] struct {
	next    atomic.Pointer[envelope[O]]
	ctrl    ctrlKind
	invoke  func(o *O, c *Ctx[O])
	timerOp func(ts *timerSet[O])
}
