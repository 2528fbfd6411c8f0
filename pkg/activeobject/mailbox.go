package activeobject

import (
	"sync/atomic"
	"time"
)

// waitStatus is the result of dequeueWait.
type waitStatus int

const (
	waitOK waitStatus = iota
	waitTimedOut
	waitStopped
)

// mailbox is an unbounded, intrusive, lock-free multi-producer
// single-consumer queue of envelopes, the classic Dmitry Vyukov MPSC
// queue (see https://www.1024cores.net, "Non-intrusive MPSC node-based
// queue" — adapted here to be intrusive, since envelope already carries
// its own next pointer). Producers never block; the single consumer owns
// head and needs no synchronization to advance it.
//
// Capacity is intentionally not tracked precisely: an exact length would
// require cross-core synchronization the algorithm is specifically
// designed to avoid (the same call the retrieved lock-free-queue package
// in this corpus makes). queued is an approximate, atomically-maintained
// counter good enough for metrics and tests, not for flow control.
type mailbox[O any] struct {
	head   *envelope[O] // owned exclusively by the consumer
	tail   atomic.Pointer[envelope[O]]
	stub   envelope[O] // sentinel; never carries a real message
	closed atomic.Bool
	signal chan struct{} // capacity 1: coalesced consumer wake-up

	queued     atomic.Int64
	dispatched atomic.Uint64
	rejected   atomic.Uint64
}

func newMailbox[O any]() *mailbox[O] {
	m := &mailbox[O]{signal: make(chan struct{}, 1)}
	m.head = &m.stub
	m.tail.Store(&m.stub)
	return m
}

// enqueue publishes n so the consumer will observe it after everything
// already linked. Safe from any number of producer goroutines
// concurrently; never blocks.
func (m *mailbox[O]) enqueue(n *envelope[O]) error {
	if m.closed.Load() {
		m.rejected.Add(1)
		return ErrMailboxClosed
	}
	m.link(n)
	m.queued.Add(1)
	m.wake()
	return nil
}

// link performs the actual MPSC publication: swap the tail pointer, then
// connect the previous tail to n. Between the swap and the store, the
// queue is in the well-known "inconsistent" state tryDequeue must
// tolerate: the new tail is visible, but the old tail's next pointer does
// not point to it yet.
func (m *mailbox[O]) link(n *envelope[O]) {
	n.next.Store(nil)
	prev := m.tail.Swap(n)
	prev.next.Store(n)
}

// wake coalesces any number of pending signals into a single wake-up;
// the consumer only ever needs to know "something changed", not how many
// times.
func (m *mailbox[O]) wake() {
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

// close stops accepting new envelopes. Already-linked envelopes remain
// deliverable: tryDequeue still walks them, and dequeueWait keeps
// returning waitOK until the list is drained, only then reporting
// waitStopped. Idempotent.
func (m *mailbox[O]) close() {
	if m.closed.CompareAndSwap(false, true) {
		m.wake()
	}
}

// tryDequeue is the consumer-only, non-blocking half of the algorithm.
func (m *mailbox[O]) tryDequeue() (*envelope[O], bool) {
	first := m.head
	next := first.next.Load()

	if first == &m.stub {
		if next == nil {
			return nil, false // empty
		}
		m.head = next
		first = next
		next = first.next.Load()
	}

	if next != nil {
		m.head = next
		m.queued.Add(-1)
		return first, true
	}

	if first != m.tail.Load() {
		// A producer has swapped the tail but has not yet linked first
		// to it. The node will appear within nanoseconds; report empty
		// for now rather than spin — the caller (dequeueWait) will be
		// woken again once the link completes, because enqueue always
		// calls wake() after link().
		return nil, false
	}

	// first is the only node and is also the tail: push the stub to
	// force a synchronization point, mirroring the reference algorithm.
	m.link(&m.stub)
	next = first.next.Load()
	if next != nil {
		m.head = next
		m.queued.Add(-1)
		return first, true
	}
	return nil, false
}

// dequeueWait is the owner-thread blocking half: it returns the next
// envelope, or waitTimedOut once deadline elapses with nothing arriving,
// or waitStopped once the mailbox is closed and fully drained. A zero
// deadline means wait indefinitely.
func (m *mailbox[O]) dequeueWait(deadline time.Time) (*envelope[O], waitStatus) {
	for {
		if env, ok := m.tryDequeue(); ok {
			return env, waitOK
		}
		if m.closed.Load() {
			if env, ok := m.tryDequeue(); ok {
				return env, waitOK
			}
			return nil, waitStopped
		}

		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return nil, waitTimedOut
			}
			timer := time.NewTimer(remaining)
			select {
			case <-m.signal:
				timer.Stop()
				continue
			case <-timer.C:
				return nil, waitTimedOut
			}
		}

		<-m.signal
	}
}
