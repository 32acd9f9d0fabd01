package worker

import (
	"context"
	"fmt"
	"net"
	"os"
	"sync"

	"github.com/mcproxy/mcproxy/backend"
	"github.com/mcproxy/mcproxy/client"
	"github.com/mcproxy/mcproxy/ioqueue"
	"github.com/mcproxy/mcproxy/routing"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Worker is one shared-nothing worker: its own routing.Runtime, its own
// set of backend connections, its own listener. Per §9's "model as a
// per-worker Worker context passed explicitly" design note — nothing here
// is a package-level global, so N workers can run side by side in one
// process with zero shared state beyond what a caller explicitly wires.
type Worker struct {
	id      int
	cfg     *Config
	logger  *logrus.Entry
	metrics *Metrics

	mu       sync.RWMutex
	backends map[string]*backend.Backend

	rt *routing.Runtime
	ln net.Listener
}

// New constructs a Worker and its routing.Runtime, but does not yet bind
// a listener or start any backend connections; call Start for that.
func New(id int, cfg *Config, reg prometheus.Registerer) (*Worker, error) {
	logger := NewLogger(id, cfg.LogLevel)

	w := &Worker{
		id:       id,
		cfg:      cfg,
		logger:   logger,
		metrics:  NewMetrics(reg),
		backends: make(map[string]*backend.Backend),
	}

	w.rt = routing.New(w.newBackend, w.dispatch, logger)

	script, err := os.ReadFile(cfg.RoutingScript)
	if err != nil {
		return nil, fmt.Errorf("worker: reading routing script: %w", err)
	}
	if err := w.rt.Configure(string(script)); err != nil {
		return nil, fmt.Errorf("worker: configuring routing runtime: %w", err)
	}

	return w, nil
}

// newBackend is routing.Runtime's backend factory: it's called lazily the
// first time a routing script names a given address via mcp.server, and
// memoized so repeated mentions of the same address share one connection
// (§3's "one Backend per (ip, port, protocol)").
func (w *Worker) newBackend(addr string, weight int) *backend.Backend {
	w.mu.Lock()
	defer w.mu.Unlock()

	if b, ok := w.backends[addr]; ok {
		return b
	}
	b := backend.New(backend.Config{
		Addr:    addr,
		Weight:  weight,
		Timeout: w.cfg.BackendTimeout,
		Logger:  w.logger,
	})
	w.backends[addr] = b
	return b
}

// dispatch implements routing.Dispatcher by submitting wireReq to addr's
// backend through a single-shot ioqueue.Queue and blocking the calling
// goroutine until the response (or ctx) resolves. This is the one place
// the routing and backend/ioqueue layers meet.
func (w *Worker) dispatch(ctx context.Context, addr string, wireReq []byte) (*backend.Response, error) {
	w.mu.RLock()
	b, ok := w.backends[addr]
	w.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("worker: dispatch to unknown backend %q", addr)
	}

	type result struct {
		resp *backend.Response
		err  error
	}
	done := make(chan result, 1)

	q := ioqueue.New(nil)
	if err := q.Submit(b, wireReq, func(resp *backend.Response, err error) {
		done <- result{resp, err}
	}); err != nil {
		w.metrics.ConnectErrors.WithLabelValues(addr).Inc()
		return nil, err
	}

	select {
	case r := <-done:
		if r.err != nil {
			w.recordFailure(addr, r.resp)
		} else {
			w.metrics.DispatchSeconds.WithLabelValues(addr).Observe(r.resp.Latency.Seconds())
		}
		return r.resp, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (w *Worker) recordFailure(addr string, resp *backend.Response) {
	if resp == nil {
		w.metrics.ConnectErrors.WithLabelValues(addr).Inc()
		return
	}
	switch resp.Status {
	case backend.StatusTimeout:
		w.metrics.Timeouts.WithLabelValues(addr).Inc()
	case backend.StatusDesync:
		w.metrics.Desyncs.WithLabelValues(addr).Inc()
	default:
		w.metrics.ConnectErrors.WithLabelValues(addr).Inc()
	}
}

// Start connects every declared backend and begins accepting client
// connections, spawning one goroutine per connection (§4.6) until ctx is
// canceled or Close is called.
func (w *Worker) Start(ctx context.Context) error {
	for _, b := range w.rt.Backends() {
		b.Start(ctx)
	}

	ln, err := net.Listen("tcp", w.cfg.Listen)
	if err != nil {
		return fmt.Errorf("worker: listen %s: %w", w.cfg.Listen, err)
	}
	w.ln = ln
	w.logger.WithField("addr", ln.Addr().String()).Info("worker listening")

	go w.acceptLoop(ctx)
	return nil
}

func (w *Worker) acceptLoop(ctx context.Context) {
	for {
		conn, err := w.ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				w.logger.WithError(err).Warn("accept failed")
				return
			}
		}
		go client.New(conn, w.rt, w.logger).Serve(ctx)
	}
}

// Close stops accepting connections and closes every backend connection.
func (w *Worker) Close() error {
	var err error
	if w.ln != nil {
		err = w.ln.Close()
	}
	w.mu.RLock()
	defer w.mu.RUnlock()
	for _, b := range w.backends {
		b.Close()
	}
	return err
}
