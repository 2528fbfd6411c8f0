package activeobject

import (
	"container/heap"
	"reflect"
	"time"
)

// Cycle selects whether a timer fires once or re-arms itself.
type Cycle int

const (
	// OneShot timers remove themselves from the timer set before their
	// handler runs.
	OneShot Cycle = iota
	// Periodic timers re-arm at previousDeadline+period, not now+period,
	// so long-run average period holds even under scheduling jitter.
	Periodic
)

// timerKey is the external identity of a timer: the static type of its
// payload plus the payload value itself, compared with ==. Go's generics
// erase T by the time TimerStart reaches the timer set, so the set itself
// is keyed on an any-boxed comparable value rather than on T directly.
type timerKey struct {
	typ reflect.Type
	val any
}

func timerKeyOf[T comparable](v T) timerKey {
	return timerKey{typ: reflect.TypeOf(v), val: v}
}

// timerRecord is one entry in the timer set's min-heap.
type timerRecord[O any] struct {
	key      timerKey
	deadline time.Time
	period   time.Duration
	cycle    Cycle
	seq      uint64 // insertion order, for stable tie-breaking at equal deadlines
	index    int    // maintained by container/heap
	invoke   func(o *O, c *Ctx[O])
}

// timerHeap is a min-heap ordered by (deadline, seq) so that timers due
// at the same instant fire in the order they were started.
type timerHeap[O any] []*timerRecord[O]

func (h timerHeap[O]) Len() int { return len(h) }
func (h timerHeap[O]) Less(i, j int) bool {
	if h[i].deadline.Equal(h[j].deadline) {
		return h[i].seq < h[j].seq
	}
	return h[i].deadline.Before(h[j].deadline)
}
func (h timerHeap[O]) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap[O]) Push(x any) {
	r := x.(*timerRecord[O])
	r.index = len(*h)
	*h = append(*h, r)
}
func (h *timerHeap[O]) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	r.index = -1
	*h = old[:n-1]
	return r
}

// timerSet is the worker-owned min-heap of pending timers. Every method
// here runs only on the worker goroutine: external TimerStart/TimerStop
// calls are routed through the mailbox as control envelopes precisely so
// this type never needs its own locking.
type timerSet[O any] struct {
	heap    timerHeap[O]
	byKey   map[timerKey]*timerRecord[O]
	nextSeq uint64
}

func newTimerSet[O any]() *timerSet[O] {
	return &timerSet[O]{byKey: make(map[timerKey]*timerRecord[O])}
}

// start begins (or replaces) the timer keyed by (type(v), v): starting a
// timer with a key that already has one pending replaces it with the new
// period/cycle rather than arming a second, duplicate timer. The old
// record is removed from the heap before the new one is inserted.
func (ts *timerSet[O]) start(key timerKey, period time.Duration, cycle Cycle, invoke func(o *O, c *Ctx[O])) {
	ts.remove(key)
	ts.nextSeq++
	rec := &timerRecord[O]{
		key:      key,
		deadline: time.Now().Add(period),
		period:   period,
		cycle:    cycle,
		seq:      ts.nextSeq,
		invoke:   invoke,
	}
	ts.byKey[key] = rec
	heap.Push(&ts.heap, rec)
}

// stop removes the timer with the given key. Stopping an unknown key is
// a silent no-op.
func (ts *timerSet[O]) stop(key timerKey) {
	ts.remove(key)
}

func (ts *timerSet[O]) remove(key timerKey) {
	rec, ok := ts.byKey[key]
	if !ok {
		return
	}
	delete(ts.byKey, key)
	if rec.index >= 0 && rec.index < len(ts.heap) && ts.heap[rec.index] == rec {
		heap.Remove(&ts.heap, rec.index)
	}
}

// nextDeadline reports the nearest fire instant, if any pending timer
// exists.
func (ts *timerSet[O]) nextDeadline() (time.Time, bool) {
	if len(ts.heap) == 0 {
		return time.Time{}, false
	}
	return ts.heap[0].deadline, true
}

// popDue removes and returns every timer whose deadline has elapsed as of
// now, in non-decreasing deadline order (ties broken by insertion order).
// One-shot timers are removed from byKey here, before their handler runs;
// periodic timers are left in byKey and must be re-armed with rearm once
// their handler returns.
func (ts *timerSet[O]) popDue(now time.Time) []*timerRecord[O] {
	var due []*timerRecord[O]
	for len(ts.heap) > 0 && !ts.heap[0].deadline.After(now) {
		rec := heap.Pop(&ts.heap).(*timerRecord[O])
		due = append(due, rec)
		if rec.cycle == OneShot {
			delete(ts.byKey, rec.key)
		}
	}
	return due
}

// rearm re-inserts a periodic timer for its next occurrence, anchored at
// the previous deadline rather than at the current time, which keeps
// long-run periodicity drift-free under scheduling jitter. It is a no-op
// for one-shot timers and for any timer that was stopped or replaced
// while its handler was running (byKey no longer holds it, or holds a
// different record for the same key).
func (ts *timerSet[O]) rearm(rec *timerRecord[O]) {
	if rec.cycle != Periodic {
		return
	}
	if ts.byKey[rec.key] != rec {
		return
	}
	rec.deadline = rec.deadline.Add(rec.period)
	heap.Push(&ts.heap, rec)
}

// len reports the number of currently-armed timers, for Stats.
func (ts *timerSet[O]) len() int { return len(ts.heap) }
