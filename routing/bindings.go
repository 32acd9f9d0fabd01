package routing

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	"github.com/mcproxy/mcproxy/backend"
	"github.com/mcproxy/mcproxy/selector"
)

// installBindings wires the script-visible surface from §6:
// mcp.server, mcp.hash_selector, mcp.attach, mcp.hash_murmur3, plus the
// request:key()/:command() and response:ok() accessors built per call in
// Run. mcp.dispatch is rebound for each Run invocation (see run.go) since
// it needs to hand the resulting *backend.Response back to that
// invocation's Go caller, not just to the script.
func (r *Runtime) installBindings() {
	mcp := r.vm.NewObject()
	mcp.Set("server", r.jsServer)
	mcp.Set("hash_selector", r.jsHashSelector)
	mcp.Set("attach", r.jsAttach)
	mcp.Set("hash_murmur3", "murmur3")
	mcp.Set("hash_xxh3", "xxh3")
	r.vm.Set("mcp", mcp)
	r.mcpObj = mcp
}

// jsServer implements `mcp.server(ip, port, weight) → backend`. The
// returned script value is the backend's "ip:port" address string — a
// plain, comparable value that selector.Pool already keys its entries by,
// so hash_selector's backend list and mcp.server's return value compose
// without any extra wrapper type.
func (r *Runtime) jsServer(call goja.FunctionCall) goja.Value {
	ip := call.Argument(0).String()
	port := call.Argument(1).ToInteger()
	weight := 1
	if len(call.Arguments) > 2 {
		weight = int(call.Argument(2).ToInteger())
	}

	addr := fmt.Sprintf("%s:%d", ip, port)

	r.mu.Lock()
	if _, exists := r.backends[addr]; !exists {
		r.backends[addr] = r.newBackend(addr, weight)
	}
	r.mu.Unlock()

	return r.vm.ToValue(addr)
}

// jsHashSelector implements `mcp.hash_selector(hashfn, {backend, ...}) →
// selector`. The returned value is itself a callable JS function,
// `selector(request) → backend`, matching §6's "selector(request) →
// backend (invocable)".
func (r *Runtime) jsHashSelector(call goja.FunctionCall) goja.Value {
	hashName, _ := call.Argument(0).Export().(string)

	var addrs []string
	raw := call.Argument(1).Export()
	if list, ok := raw.([]interface{}); ok {
		for _, v := range list {
			if s, ok := v.(string); ok {
				addrs = append(addrs, s)
			}
		}
	}

	var hashFn selector.HashFunc
	switch hashName {
	case "xxh3":
		hashFn = selector.XXH3Hash
	default:
		hashFn = selector.Murmur3Hash
	}

	pool := selector.NewPool(fmt.Sprintf("pool-%d", len(r.pools)), addrs, selector.NewJumpSelector(hashFn))

	r.mu.Lock()
	r.pools[pool.Name()] = pool
	r.mu.Unlock()

	selectFn := func(innerCall goja.FunctionCall) goja.Value {
		reqObj := innerCall.Argument(0).ToObject(r.vm)
		keyVal := reqObj.Get("__key")
		key := ""
		if keyVal != nil {
			key = keyVal.String()
		}
		addr, err := pool.Select(key)
		if err != nil {
			panic(r.vm.ToValue(err.Error()))
		}
		return r.vm.ToValue(addr)
	}

	return r.vm.ToValue(selectFn)
}

// jsAttach implements `mcp.attach(hook, fn)`: exactly one function per
// hook per worker; re-attachment replaces, per §4.2.
func (r *Runtime) jsAttach(call goja.FunctionCall) goja.Value {
	hookName, _ := call.Argument(0).Export().(string)
	fn, ok := goja.AssertFunction(call.Argument(1))
	if !ok {
		panic(r.vm.ToValue("mcp.attach: second argument is not a function"))
	}
	r.hooks[Hook(hookName)] = fn
	return goja.Undefined()
}

// bindDispatch installs this invocation's mcp.dispatch(backend, request)
// binding: the script's only suspension point. Calling it performs a full
// backend round trip, blocking the calling goroutine (not the worker)
// until a Response is ready, and records that Response in last so Run can
// forward its raw bytes once the hook function returns. A second call
// during the same invocation (the "yields again" branch of §4.2) simply
// overwrites last with the newer Response.
func (r *Runtime) bindDispatch(ctx context.Context, last **backend.Response) {
	r.mcpObj.Set("dispatch", func(call goja.FunctionCall) goja.Value {
		addr, _ := call.Argument(0).Export().(string)
		wireReq, _ := call.Argument(1).Export().(string)

		r.vmMu.Unlock()
		resp, err := r.dispatch(ctx, addr, []byte(wireReq))
		r.vmMu.Lock()

		if err != nil {
			panic(r.vm.ToValue(err.Error()))
		}
		*last = resp
		return r.responseToJS(resp)
	})
}

func (r *Runtime) responseToJS(resp *backend.Response) *goja.Object {
	obj := r.vm.NewObject()
	obj.Set("ok", func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(resp.OK())
	})
	return obj
}
