package backend

import "sync"

// fifo is the per-backend in-flight queue. Submit (from any number of
// client-serving goroutines) and the backend's single read-loop goroutine
// both touch it, so it carries its own mutex — the one exception to "no
// locking inside a worker" that §5's EXPANSION section calls out, in the
// same spirit as the teacher's write-buffer mutex. The mutex also backs a
// sync.Cond so the read loop can block while the queue is empty instead
// of busy-polling it.
type fifo struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []*PendingIO
	closed bool
}

func newFifo() *fifo {
	q := &fifo{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *fifo) push(p *PendingIO) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
	q.cond.Signal()
}

// waitNonEmpty blocks until an item is at the head of the queue, returning
// it without removing it. It returns nil only once the queue has been
// closed (backend shutdown) with nothing left pending.
func (q *fifo) waitNonEmpty() *PendingIO {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// close wakes any goroutine blocked in waitNonEmpty so the read loop can
// observe shutdown instead of blocking forever on an empty queue.
func (q *fifo) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *fifo) peek() *PendingIO {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

func (q *fifo) pop() *PendingIO {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p
}

// drain empties the queue and returns everything that was in flight, for
// the caller to fail with a timeout/desync/connect-error status.
func (q *fifo) drain() []*PendingIO {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

func (q *fifo) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
