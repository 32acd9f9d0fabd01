package ioqueue

import (
	"testing"

	"github.com/mcproxy/mcproxy/backend"
	"github.com/stretchr/testify/require"
)

func TestQueueDrainsAtZero(t *testing.T) {
	drained := 0
	q := New(func() { drained++ })

	var pending []*backend.PendingIO
	fakeSubmit := func(req []byte, complete func(*backend.Response, error)) {
		q_internal_submit(t, q, req, complete, &pending)
	}

	fakeSubmit([]byte("get a\r\n"), func(r *backend.Response, err error) {})
	fakeSubmit([]byte("get b\r\n"), func(r *backend.Response, err error) {})

	require.Equal(t, 2, q.Count())
	require.Equal(t, 0, drained)

	pending[0].OnComplete(&backend.Response{}, nil)
	require.Equal(t, 1, q.Count())
	require.Equal(t, 0, drained)

	pending[1].OnComplete(&backend.Response{}, nil)
	require.Equal(t, 0, q.Count())
	require.Equal(t, 1, drained)
}

func TestQueueDrainsOncePerRound(t *testing.T) {
	drained := 0
	q := New(func() { drained++ })

	var pending []*backend.PendingIO
	fakeSubmit := func(req []byte, complete func(*backend.Response, error)) {
		q_internal_submit(t, q, req, complete, &pending)
	}

	fakeSubmit([]byte("get a\r\n"), func(r *backend.Response, err error) {})
	pending[0].OnComplete(&backend.Response{}, nil)
	require.Equal(t, 1, drained)

	// A second round of IO on the same Queue (a yield-again resumption)
	// must be able to drain a second time.
	fakeSubmit([]byte("get a2\r\n"), func(r *backend.Response, err error) {})
	pending[1].OnComplete(&backend.Response{}, nil)
	require.Equal(t, 2, drained)
}

// q_internal_submit builds a PendingIO the same way Queue.Submit does,
// without requiring a live backend.Backend connection, and records it so
// the test can trigger OnComplete directly.
func q_internal_submit(t *testing.T, q *Queue, req []byte, complete func(*backend.Response, error), pending *[]*backend.PendingIO) {
	t.Helper()
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
	*pending = append(*pending, pio)
}
