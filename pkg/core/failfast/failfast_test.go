package failfast

import (
	"errors"
	"testing"
)

// These tests exercise failfast the way pkg/activeobject's Create and Run
// actually call it: guarding a constructor's result and its embedded
// Base[O] field before a worker goroutine is spawned.

type fakeOwner struct {
	mailbox *int // stands in for Base[O].mailbox
}

func TestErr(t *testing.T) {
	t.Run("no error", func(t *testing.T) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Expected no panic, got: %v", r)
			}
		}()
		Err(nil)
	})

	t.Run("mailbox closed error panics", func(t *testing.T) {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("Expected panic, got none")
			}
			err, ok := r.(error)
			if !ok {
				t.Fatalf("Expected error type, got: %T", r)
			}
			if err.Error() == "" {
				t.Error("Expected error message")
			}
		}()
		Err(errors.New("activeobject: mailbox is closed"))
	})
}

func TestIf(t *testing.T) {
	t.Run("state is Constructed", func(t *testing.T) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Expected no panic, got: %v", r)
			}
		}()
		If(true, "instance already started")
	})

	t.Run("state already started", func(t *testing.T) {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("Expected panic, got none")
			}
			err, ok := r.(error)
			if !ok {
				t.Fatalf("Expected error type, got: %T", r)
			}
			if err.Error() == "" {
				t.Error("Expected error message")
			}
		}()
		If(false, "instance already started")
	})

	t.Run("formatted message", func(t *testing.T) {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("Expected panic, got none")
			}
			err, ok := r.(error)
			if !ok {
				t.Fatalf("Expected error type, got: %T", r)
			}
			expected := "fail-fast: timers armed: 42"
			if err.Error() != expected {
				t.Errorf("Expected %q, got %q", expected, err.Error())
			}
		}()
		If(false, "timers armed: %d", 42)
	})
}

func TestNotNil(t *testing.T) {
	t.Run("constructor result not nil", func(t *testing.T) {
		defer func() {
			if r := recover(); r != nil {
				t.Errorf("Expected no panic, got: %v", r)
			}
		}()
		owner := &fakeOwner{}
		NotNil(owner, "active object constructor result")
	})

	t.Run("constructor result nil", func(t *testing.T) {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("Expected panic, got none")
			}
			err, ok := r.(error)
			if !ok {
				t.Fatalf("Expected error type, got: %T", r)
			}
			expected := "fail-fast: active object constructor result is nil"
			if err.Error() != expected {
				t.Errorf("Expected %q, got %q", expected, err.Error())
			}
		}()
		var owner *fakeOwner
		NotNil(owner, "active object constructor result")
	})

	t.Run("unassigned Base[O] mailbox field", func(t *testing.T) {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("Expected panic, got none")
			}
		}()
		owner := &fakeOwner{} // mailbox left nil, as if NewBase[O]() was never assigned
		NotNil(owner.mailbox, "Base[O] (did the constructor assign NewBase[O]()?)")
	})

	t.Run("nil interface", func(t *testing.T) {
		defer func() {
			r := recover()
			if r == nil {
				t.Fatal("Expected panic, got none")
			}
		}()
		var val interface{}
		NotNil(val, "val")
	})
}
