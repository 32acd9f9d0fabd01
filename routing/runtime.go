// Package routing hosts the per-worker scriptable routing layer: a single
// embedded JavaScript interpreter (github.com/dop251/goja, the Go-ecosystem
// analogue of the original's embedded Lua state — grounded in the broader
// retrieved corpus, e.g. ethereum-go-ethereum and rclone, which both import
// it) plus the goroutine/channel bridge that gives script-visible backend
// calls suspend/resume semantics without blocking the worker (§4.2, §9).
package routing

import (
	"context"
	"fmt"
	"sync"

	"github.com/dop251/goja"
	"github.com/mcproxy/mcproxy/backend"
	"github.com/mcproxy/mcproxy/request"
	"github.com/mcproxy/mcproxy/selector"
	"github.com/sirupsen/logrus"
)

// Hook identifies which request kinds a routing function was attached to,
// per §6's `mcp.attach(hook, fn)` where `hook ∈ {CMD_ANY, CMD_GET, ...}`.
type Hook string

const (
	HookAny        Hook = "CMD_ANY"
	HookGet        Hook = "CMD_GET"
	HookSet        Hook = "CMD_SET"
	HookDelete     Hook = "CMD_DELETE"
	HookArithmetic Hook = "CMD_ARITHMETIC"
	HookTouch      Hook = "CMD_TOUCH"
	HookMeta       Hook = "CMD_META"
)

func hookFor(cmd request.Command) Hook {
	switch cmd {
	case request.CmdGet, request.CmdGets:
		return HookGet
	case request.CmdSet, request.CmdAdd, request.CmdReplace, request.CmdAppend, request.CmdPrepend, request.CmdCas:
		return HookSet
	case request.CmdDelete:
		return HookDelete
	case request.CmdIncr, request.CmdDecr:
		return HookArithmetic
	case request.CmdTouch:
		return HookTouch
	case request.CmdMeta:
		return HookMeta
	default:
		return HookAny
	}
}

// Dispatcher performs the actual backend round trip for a (backend
// address, wire request) pair, blocking the calling goroutine until a
// Response arrives (or ctx is done). The routing package is deliberately
// unaware of how submission/FIFO/timeout work — that is entirely the
// backend/ioqueue packages' job (§4.3, §4.5).
type Dispatcher func(ctx context.Context, addr string, wireRequest []byte) (*backend.Response, error)

// Runtime is one worker's routing runtime: exactly one goja.Runtime,
// exactly one hook table, isolation enforced by vmMu (§4.2 "Isolation...
// Global script state is per-worker").
//
// vmMu is released for the duration of any blocking Dispatcher call made
// from script code (see bindings.go's mcp.dispatch), which is what lets
// one connection's routing computation "suspend" — logically yielding —
// while another connection's goroutine takes the runtime's one turn. At
// most one goroutine ever executes JS bytecode at a time, matching
// "single-threaded per worker" for the parts of execution that actually
// touch the interpreter.
type Runtime struct {
	vm     *goja.Runtime
	vmMu   sync.Mutex
	hooks  map[Hook]goja.Callable
	mcpObj *goja.Object

	mu       sync.Mutex
	pools    map[string]*selector.Pool
	backends map[string]*backend.Backend

	newBackend func(addr string, weight int) *backend.Backend
	dispatch   Dispatcher
	logger     *logrus.Entry
}

func New(newBackend func(addr string, weight int) *backend.Backend, dispatch Dispatcher, logger *logrus.Entry) *Runtime {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	rt := &Runtime{
		vm:         goja.New(),
		hooks:      make(map[Hook]goja.Callable),
		pools:      make(map[string]*selector.Pool),
		backends:   make(map[string]*backend.Backend),
		newBackend: newBackend,
		dispatch:   dispatch,
		logger:     logger,
	}
	rt.installBindings()
	return rt
}

// Configure evaluates the routing script and invokes its two entry points,
// per §6's "Config entry point": `mcp_config_selectors()` then
// `mcp_config_routes(selectors)`, each run exactly once at worker start.
func (r *Runtime) Configure(script string) error {
	r.vmMu.Lock()
	defer r.vmMu.Unlock()

	if _, err := r.vm.RunString(script); err != nil {
		return fmt.Errorf("routing: script load failed: %w", err)
	}

	selectorsFn, ok := goja.AssertFunction(r.vm.Get("mcp_config_selectors"))
	if !ok {
		return fmt.Errorf("routing: script does not define mcp_config_selectors")
	}
	routesFn, ok := goja.AssertFunction(r.vm.Get("mcp_config_routes"))
	if !ok {
		return fmt.Errorf("routing: script does not define mcp_config_routes")
	}

	selectors, err := selectorsFn(goja.Undefined())
	if err != nil {
		return fmt.Errorf("routing: mcp_config_selectors failed: %w", err)
	}
	if _, err := routesFn(goja.Undefined(), selectors); err != nil {
		return fmt.Errorf("routing: mcp_config_routes failed: %w", err)
	}
	return nil
}

// Backends returns every backend declared via mcp.server, for the worker
// to Start().
func (r *Runtime) Backends() []*backend.Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*backend.Backend, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b)
	}
	return out
}
