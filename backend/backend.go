// Package backend drives one persistent connection to a memcached server:
// the outbound FIFO of in-flight requests and the response-reading state
// machine described in §4.3.
//
// Grounded on the teacher's pool.go (the bufio-wrapped Connection type,
// reused here for the backend socket), circuit_breaker.go and
// server_pool.go (the gobreaker-wrapped connect/execute pattern, adapted
// from "acquire a pooled connection" to "the one persistent connection
// this Backend owns"), and internal/coarsetime and internal/bufferpool for
// the ambient timing/allocation concerns.
package backend

import (
	"bufio"
	"context"
	"net"
	"sync"
	"time"

	"github.com/mcproxy/mcproxy/internal/bufferpool"
	"github.com/mcproxy/mcproxy/internal/coarsetime"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker/v2"
)

// DefaultTimeout is the per-drive-cycle response timeout (§4.3, §5).
const DefaultTimeout = 5 * time.Second

// Dialer matches net.Dialer's relevant method, injected for tests.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Config controls one Backend's connection and retry behavior.
type Config struct {
	Addr    string
	Weight  int
	Dialer  Dialer
	Timeout time.Duration
	Logger  *logrus.Entry
	Bufs    *bufferpool.Pool

	// Breaker settings mirror the teacher's NewGobreakerConfig defaults.
	BreakerMaxRequests uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
}

// Backend is one persistent connection to a memcached server: a write side
// guarded by a mutex (the one intentional lock inside a worker, per §5's
// EXPANSION) and a read side driven by a single dedicated goroutine that
// owns the reader state machine exclusively.
type Backend struct {
	addr    string
	weight  int
	dialer  Dialer
	timeout time.Duration
	logger  *logrus.Entry
	bufs    *bufferpool.Pool
	breaker *gobreaker.CircuitBreaker[struct{}]

	writeMu    sync.Mutex
	conn       net.Conn
	reader     *bufio.Reader
	connecting bool
	canWrite   bool

	queue *fifo

	closeCh chan struct{}
	closed  sync.Once
}

func New(cfg Config) *Backend {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Bufs == nil {
		cfg.Bufs = bufferpool.New(256)
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.Dialer == nil {
		cfg.Dialer = &net.Dialer{}
	}

	maxReq := cfg.BreakerMaxRequests
	if maxReq == 0 {
		maxReq = 3
	}
	interval := cfg.BreakerInterval
	if interval == 0 {
		interval = time.Minute
	}
	bt := cfg.BreakerTimeout
	if bt == 0 {
		bt = 30 * time.Second
	}

	b := &Backend{
		addr:    cfg.Addr,
		weight:  cfg.Weight,
		dialer:  cfg.Dialer,
		timeout: cfg.Timeout,
		logger:  cfg.Logger.WithField("backend", cfg.Addr),
		bufs:    cfg.Bufs,
		queue:   newFifo(),
		closeCh: make(chan struct{}),
	}

	b.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        cfg.Addr,
		MaxRequests: maxReq,
		Interval:    interval,
		Timeout:     bt,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && ratio >= 0.6
		},
	})

	return b
}

func (b *Backend) Addr() string   { return b.addr }
func (b *Backend) Weight() int    { return b.weight }
func (b *Backend) QueueDepth() int { return b.queue.len() }

func (b *Backend) BreakerState() gobreaker.State {
	return b.breaker.State()
}

// Start launches the background connect + read loop. It returns
// immediately; connection failures are handled internally via retry, per
// §7's "schedule retry... detail left to implementer".
func (b *Backend) Start(ctx context.Context) {
	go b.run(ctx)
}

func (b *Backend) Close() {
	b.closed.Do(func() { close(b.closeCh) })
	b.queue.close()
	b.writeMu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.writeMu.Unlock()
}

func (b *Backend) run(ctx context.Context) {
	backoff := 100 * time.Millisecond
	const maxBackoff = 5 * time.Second

	for {
		select {
		case <-b.closeCh:
			return
		default:
		}

		if err := b.connect(ctx); err != nil {
			b.logger.WithError(err).Error("backend connect failed")
			b.failAll(StatusConnectError)
			select {
			case <-time.After(backoff):
			case <-b.closeCh:
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		backoff = 100 * time.Millisecond

		b.readLoop()

		select {
		case <-b.closeCh:
			return
		default:
		}
	}
}

// connect performs a single connection attempt wrapped by the circuit
// breaker, matching the teacher's ServerPool.Execute pattern but applied to
// the connect step rather than a per-request pooled acquire.
func (b *Backend) connect(ctx context.Context) error {
	b.writeMu.Lock()
	b.connecting = true
	b.canWrite = false
	b.writeMu.Unlock()

	_, err := b.breaker.Execute(func() (struct{}, error) {
		conn, dialErr := b.dialer.DialContext(ctx, "tcp", b.addr)
		if dialErr != nil {
			return struct{}{}, dialErr
		}
		b.writeMu.Lock()
		b.conn = conn
		b.reader = bufio.NewReader(conn)
		b.connecting = false
		b.canWrite = true
		b.writeMu.Unlock()
		return struct{}{}, nil
	})
	return err
}

// Submit writes the request line (and optional value) and enqueues p on
// the FIFO, preserving wire order == queue order per §4.5.
func (b *Backend) Submit(p *PendingIO) error {
	b.writeMu.Lock()
	if !b.canWrite || b.conn == nil {
		b.writeMu.Unlock()
		err := errf("backend not connected")
		p.OnComplete(nil, err)
		return err
	}
	conn := b.conn
	_, err := conn.Write(p.Request)
	if err != nil {
		b.writeMu.Unlock()
		p.OnComplete(nil, err)
		return err
	}
	p.flushed = true
	p.submittedAt = coarsetime.Now()
	b.queue.push(p)
	b.writeMu.Unlock()
	return nil
}

func (b *Backend) failAll(status Status) {
	for _, p := range b.queue.drain() {
		p.OnComplete(&Response{Status: status}, errf(status.string()))
	}
}

func (s Status) string() string {
	switch s {
	case StatusTimeout:
		return "backend timeout"
	case StatusDesync:
		return "backend desync"
	case StatusConnectError:
		return "backend connect error"
	default:
		return "backend error"
	}
}
