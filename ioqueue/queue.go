// Package ioqueue implements the per-client-reply outstanding-IO tracker
// described in §4.5: "count == len(list)", and when count reaches zero the
// owning client connection is redispatched to write its reply.
package ioqueue

import (
	"sync"

	"github.com/mcproxy/mcproxy/backend"
)

// CompleteFunc is invoked once a submitted IO's backend response is ready
// (or it fails). Returning a non-nil *backend.PendingIO-compatible request
// via a second Submit call inside CompleteFunc represents the "resumption
// yields again" branch of §4.2/§4.5 — the Queue's own count bookkeeping
// makes that safe to do before returning.
type CompleteFunc func(resp *backend.Response, err error)

// Queue is one client reply's outstanding-IO tracker: "count == len(list)"
// per §3, and when count reaches zero the owning client connection is
// redispatched to write its reply.
type Queue struct {
	mu        sync.Mutex
	count     int
	onDrained func()
	drained   bool
}

// New builds a Queue for one client reply. onDrained fires once each time
// the outstanding count returns to zero after having been nonzero; a
// Submit after a drain re-arms it for the next round.
func New(onDrained func()) *Queue {
	return &Queue{onDrained: onDrained}
}

// Submit attaches req to backend b's FIFO, tracking it against this
// Queue's outstanding count. complete is called exactly once with the
// backend's response or a failure.
//
// Ground truth: §4.5 Submit — "if the target Backend is can_write, attempt
// an immediate flush; then append to FIFO" is backend.Backend.Submit's
// job; this layer only owns the count/redispatch contract.
func (q *Queue) Submit(b *backend.Backend, req []byte, complete CompleteFunc) error {
	q.mu.Lock()
	q.count++
	q.drained = false
	q.mu.Unlock()

	pio := &backend.PendingIO{
		Request: req,
		OnComplete: func(resp *backend.Response, err error) {
			complete(resp, err)
			q.release()
		},
	}

	if err := b.Submit(pio); err != nil {
		return err
	}
	return nil
}

func (q *Queue) release() {
	q.mu.Lock()
	q.count--
	fire := q.count == 0 && !q.drained
	if fire {
		q.drained = true
	}
	q.mu.Unlock()

	if fire && q.onDrained != nil {
		q.onDrained()
	}
}

// Count returns the current number of outstanding IOs.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
