package activeobject

import "errors"

var (
	// ErrMailboxClosed is returned by Send when the target's mailbox has
	// already been closed by Stop or by destruction of the last Ref.
	ErrMailboxClosed = errors.New("activeobject: mailbox is closed")

	// ErrAlreadyStarted is returned by Create or Run when the constructor
	// hands back an *O whose embedded Base[O] has already left
	// Constructed — i.e. the same instance was already passed to a prior
	// Create or Run call.
	ErrAlreadyStarted = errors.New("activeobject: already started")

	// ErrSpawnFailed wraps a failure to start the worker goroutine for
	// Create. Go cannot fail to spawn a goroutine the way a host OS can
	// fail thread creation, so this is reserved for future host-level
	// constraints (e.g. a caller-supplied goroutine budget) rather than
	// ever being returned by the default Create path.
	ErrSpawnFailed = errors.New("activeobject: failed to start worker")
)
