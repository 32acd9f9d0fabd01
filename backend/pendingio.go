package backend

import "time"

// PendingIO is one outstanding backend request, attached to whatever owns
// the client reply (the ioqueue package, across the package boundary via
// OnComplete). It appears in exactly one Backend FIFO queue from Submit
// until Complete, matching §3's lifecycle invariant.
type PendingIO struct {
	// Request is the wire bytes to send: the request line plus, for
	// mutations, the value payload. Borrowed from the routing computation's
	// Request per §3 ownership rules — callers must keep it alive until
	// OnComplete fires.
	Request []byte

	// OnComplete is invoked exactly once, either with a successful Response
	// or with a non-nil error (timeout, desync, connect failure). It must
	// not block — the backend's single read-loop goroutine calls it inline.
	OnComplete func(*Response, error)

	submittedAt time.Time
	flushed     bool
}
