package backend

import (
	"bufio"
	"testing"
	"time"

	"github.com/mcproxy/mcproxy/internal/bufferpool"
	"github.com/mcproxy/mcproxy/internal/testutils"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func newTestBackend(t *testing.T, wire string) (*Backend, *testutils.ConnectionMock) {
	t.Helper()
	mock := testutils.NewConnectionMock(wire)
	b := &Backend{
		queue:   newFifo(),
		bufs:    bufferpool.New(64),
		logger:  logrus.NewEntry(logrus.New()),
		timeout: time.Second,
		conn:    mock,
		reader:  bufio.NewReader(mock),
	}
	b.canWrite = true
	return b, mock
}

func TestDriveOnceGetHit(t *testing.T) {
	b, _ := newTestBackend(t, "VALUE foo 0 3\r\nbar\r\nEND\r\n")

	var got *Response
	var gotErr error
	b.queue.push(&PendingIO{
		Request: []byte("get foo\r\n"),
		OnComplete: func(r *Response, err error) {
			got, gotErr = r, err
		},
	})

	require.NoError(t, b.driveOnce(b.queue.peek()))
	require.NoError(t, gotErr)
	require.Equal(t, KindGet, got.Kind)
	require.Equal(t, "VALUE foo 0 3\r\nbar\r\nEND\r\n", string(got.Buffer))
}

func TestDriveOnceGetMiss(t *testing.T) {
	b, _ := newTestBackend(t, "END\r\n")

	var got *Response
	b.queue.push(&PendingIO{
		Request:    []byte("get nope\r\n"),
		OnComplete: func(r *Response, err error) { got = r },
	})

	require.NoError(t, b.driveOnce(b.queue.peek()))
	require.Equal(t, KindEnd, got.Kind)
	require.Equal(t, "END\r\n", string(got.Buffer))
}

func TestDriveOncePipelinedGets(t *testing.T) {
	b, _ := newTestBackend(t, "VALUE a 0 1\r\nx\r\nEND\r\nVALUE b 0 1\r\ny\r\nEND\r\n")

	var results []string
	complete := func(r *Response, err error) {
		results = append(results, string(r.Buffer))
	}
	b.queue.push(&PendingIO{Request: []byte("get a\r\n"), OnComplete: complete})
	b.queue.push(&PendingIO{Request: []byte("get b\r\n"), OnComplete: complete})

	require.NoError(t, b.driveOnce(b.queue.peek()))
	require.NoError(t, b.driveOnce(b.queue.peek()))

	require.Equal(t, []string{
		"VALUE a 0 1\r\nx\r\nEND\r\n",
		"VALUE b 0 1\r\ny\r\nEND\r\n",
	}, results)
}

func TestDriveOnceGenericReply(t *testing.T) {
	b, _ := newTestBackend(t, "STORED\r\n")

	var got *Response
	b.queue.push(&PendingIO{
		Request:    []byte("set k 0 0 3\r\nabc\r\n"),
		OnComplete: func(r *Response, err error) { got = r },
	})

	require.NoError(t, b.driveOnce(b.queue.peek()))
	require.Equal(t, KindGeneric, got.Kind)
	require.Equal(t, "STORED\r\n", string(got.Buffer))
}

func TestDriveOnceMetaValue(t *testing.T) {
	b, _ := newTestBackend(t, "VA 3\r\nbar\r\n")

	var got *Response
	b.queue.push(&PendingIO{
		Request:    []byte("mg foo v\r\n"),
		OnComplete: func(r *Response, err error) { got = r },
	})

	require.NoError(t, b.driveOnce(b.queue.peek()))
	require.Equal(t, KindMeta, got.Kind)
	require.Equal(t, "VA 3\r\nbar\r\n", string(got.Buffer))
}

func TestDriveOnceDesyncAfterValue(t *testing.T) {
	b, _ := newTestBackend(t, "VALUE foo 0 3\r\nbarXXXNOTEND\r\n")

	var gotErr error
	done := make(chan struct{})
	b.queue.push(&PendingIO{
		Request: []byte("get foo\r\n"),
		OnComplete: func(r *Response, err error) {
			gotErr = err
			close(done)
		},
	})

	err := b.driveOnce(b.queue.peek())
	require.Error(t, err)
	<-done
	require.Error(t, gotErr)
}

// TestFifoWaitNonEmptyBlocksThenWakes guards against readLoop busy-spinning
// while a backend is idle: waitNonEmpty must actually block until push
// signals it, not return immediately on an empty queue.
func TestFifoWaitNonEmptyBlocksThenWakes(t *testing.T) {
	q := newFifo()

	got := make(chan *PendingIO, 1)
	go func() { got <- q.waitNonEmpty() }()

	select {
	case <-got:
		t.Fatal("waitNonEmpty returned before any item was pushed")
	case <-time.After(50 * time.Millisecond):
	}

	pio := &PendingIO{Request: []byte("get foo\r\n")}
	q.push(pio)

	select {
	case p := <-got:
		require.Same(t, pio, p)
	case <-time.After(time.Second):
		t.Fatal("waitNonEmpty did not wake up after push")
	}
}

// TestFifoWaitNonEmptyUnblocksOnClose guards the shutdown path: a read
// loop blocked in waitNonEmpty on an idle backend must be released by
// Backend.Close (via fifo.close), returning nil rather than hanging.
func TestFifoWaitNonEmptyUnblocksOnClose(t *testing.T) {
	q := newFifo()

	done := make(chan *PendingIO, 1)
	go func() { done <- q.waitNonEmpty() }()

	time.Sleep(20 * time.Millisecond)
	q.close()

	select {
	case p := <-done:
		require.Nil(t, p)
	case <-time.After(time.Second):
		t.Fatal("waitNonEmpty did not unblock on close")
	}
}
