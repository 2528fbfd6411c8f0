package activeobject

import (
	"testing"
	"time"
)

func TestTokenZeroValueInvokeIsNoop(t *testing.T) {
	var tok Token[int]
	if !tok.IsZero() {
		t.Fatalf("zero-value Token should report IsZero")
	}
	tok.Invoke(42) // must not panic
}

func TestTokenInvokeOnClosedMailboxIsSilentNoop(t *testing.T) {
	mb := newMailbox[probe]()
	tok := Token[int]{invoke: func(v int) {
		_ = mb.enqueue(&envelope[probe]{invoke: func(o *probe, c *Ctx[probe]) { o.val = v }})
	}}
	mb.close()

	tok.Invoke(7) // target gone: must not panic or report an error
	if tok.IsZero() {
		t.Fatalf("bound token should not report IsZero")
	}
}

func TestTokenInvokeDeliversToLiveTarget(t *testing.T) {
	mb := newMailbox[probe]()
	p := newProbe()
	c := probeCtx(p)
	tok := Token[int]{invoke: func(v int) {
		_ = mb.enqueue(&envelope[probe]{invoke: func(o *probe, c *Ctx[probe]) { o.val = v }})
	}}
	tok.Invoke(99)

	env, status := mb.dequeueWait(time.Now().Add(time.Second))
	if status != waitOK {
		t.Fatalf("want waitOK, got %v", status)
	}
	env.invoke(p, c)
	if p.val != 99 {
		t.Fatalf("want 99, got %d", p.val)
	}
}
