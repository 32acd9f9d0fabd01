// Package bufferpool recycles byte slices used to stage backend response
// bodies, avoiding an allocation on every request/response cycle.
package bufferpool

import "sync"

type Pool struct {
	pool        sync.Pool
	initialSize int
}

func New(initialSize int) *Pool {
	p := &Pool{initialSize: initialSize}
	p.pool.New = func() any {
		buf := make([]byte, 0, initialSize)
		return &buf
	}
	return p
}

// Get returns a buffer with at least the requested capacity, truncated to
// zero length. Buffers above initialSize are re-pooled as-is; the caller
// should not hold on to very large buffers across many requests.
func (p *Pool) Get(size int) []byte {
	bufp := p.pool.Get().(*[]byte)
	buf := *bufp
	if cap(buf) < size {
		buf = make([]byte, 0, size)
	}
	return buf[:0]
}

func (p *Pool) Put(buf []byte) {
	if cap(buf) == 0 {
		return
	}
	buf = buf[:0]
	p.pool.Put(&buf)
}
