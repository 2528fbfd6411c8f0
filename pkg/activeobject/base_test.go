package activeobject

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// counter is the minimal active object used across these tests: it
// implements Handler[counter,int] (add v to the running total) and records
// OnStart/OnStop so lifecycle hooks can be asserted.
type counter struct {
	Base[counter]

	mu      sync.Mutex
	total   int
	starts  atomic.Int32
	stops   atomic.Int32
	lastCtx atomic.Bool
}

func newCounter() *counter {
	c := &counter{}
	c.Base = NewBase[counter]()
	c.WithLogger(noopLogger{})
	return c
}

func (c *counter) Handle(ctx *Ctx[counter], v int) {
	c.mu.Lock()
	c.total += v
	c.mu.Unlock()
	c.lastCtx.Store(ctx != nil)
}

func (c *counter) OnStart(ctx context.Context) { c.starts.Add(1) }
func (c *counter) OnStop(ctx context.Context)  { c.stops.Add(1) }

func (c *counter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func waitForState[O Lifecycle[O]](t *testing.T, r Ref[O], want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if r.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %v, last seen %v", want, r.State())
}

func TestCreateRunsOnStartAndDispatchesInOrder(t *testing.T) {
	ref, err := Create(newCounter)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	for i := 1; i <= 5; i++ {
		if err := Send[int](ref, i); err != nil {
			t.Fatalf("Send %d: %v", i, err)
		}
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && ref.Unwrap().Total() != 15 {
		time.Sleep(time.Millisecond)
	}
	if got := ref.Unwrap().Total(); got != 15 {
		t.Fatalf("want total 15, got %d", got)
	}
	if ref.Unwrap().starts.Load() != 1 {
		t.Fatalf("want OnStart called once, got %d", ref.Unwrap().starts.Load())
	}

	if err := ref.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	waitForState(t, ref, StateStopped)
	if ref.Unwrap().stops.Load() != 1 {
		t.Fatalf("want OnStop called once, got %d", ref.Unwrap().stops.Load())
	}
}

func TestStopIsIdempotent(t *testing.T) {
	ref, _ := Create(newCounter)
	if err := ref.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := ref.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	waitForState(t, ref, StateStopped)
}

func TestSendAfterStopReturnsClosedError(t *testing.T) {
	ref, _ := Create(newCounter)
	_ = ref.Stop()
	waitForState(t, ref, StateStopped)

	if err := Send[int](ref, 1); err != ErrMailboxClosed {
		t.Fatalf("want ErrMailboxClosed, got %v", err)
	}
}

func TestTimerStartFromOutsideWorkerFires(t *testing.T) {
	ref, _ := Create(newCounter)
	if err := TimerStart(ref, 1, 5*time.Millisecond, OneShot); err != nil {
		t.Fatalf("TimerStart: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && ref.Unwrap().Total() != 1 {
		time.Sleep(time.Millisecond)
	}
	if got := ref.Unwrap().Total(); got != 1 {
		t.Fatalf("want the timer's payload dispatched once, got total %d", got)
	}
	_ = ref.Stop()
}

func TestTimerStopRemovesPendingTimer(t *testing.T) {
	ref, _ := Create(newCounter)
	if err := TimerStart(ref, 1, 50*time.Millisecond, OneShot); err != nil {
		t.Fatalf("TimerStart: %v", err)
	}
	if err := TimerStop(ref, 1); err != nil {
		t.Fatalf("TimerStop: %v", err)
	}
	time.Sleep(80 * time.Millisecond)
	if got := ref.Unwrap().Total(); got != 0 {
		t.Fatalf("want stopped timer to never fire, got total %d", got)
	}
	_ = ref.Stop()
}

// TestDroppingLastRefReclaimsOwnerAndClosesMailbox exercises the central
// lifetime decision of this package: once the last strong reference to an
// active object's owner is gone, the garbage collector reclaiming it (not
// an explicit Stop) is what closes the mailbox, via the cleanup registered
// in start().
func TestDroppingLastRefReclaimsOwnerAndClosesMailbox(t *testing.T) {
	ref, _ := Create(newCounter)
	b := ref.core()
	weakSelf := b.self
	ref = Ref[counter]{}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && weakSelf.Value() != nil {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	if weakSelf.Value() != nil {
		t.Fatalf("owner was not collected after its last Ref was dropped")
	}

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && !b.mailbox.closed.Load() {
		time.Sleep(time.Millisecond)
	}
	if !b.mailbox.closed.Load() {
		t.Fatalf("mailbox was not closed by the GC cleanup")
	}
}
