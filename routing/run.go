package routing

import (
	"context"

	"github.com/dop251/goja"
	"github.com/mcproxy/mcproxy/backend"
	"github.com/mcproxy/mcproxy/request"
)

// Outcome is the result of one routing invocation, the three branches of
// §4.2 collapsed down to what the client adapter needs: either final reply
// bytes (from a returned string, or the last dispatched Response's wire
// bytes) or an error (to become "SERVER_ERROR ...\r\n").
type Outcome struct {
	Reply []byte
	Err   error
}

// Run creates a fresh per-request invocation of the hook attached to
// req's command (or CMD_ANY if none is attached), per §4.2's "For each
// parsed Request, the adapter creates a fresh coroutine, places (fn,
// request) on it, and resumes."
//
// Run blocks the calling goroutine for as long as the script takes,
// including any backend round trips triggered via mcp.dispatch — by
// design (see Runtime's vmMu doc comment): the caller is expected to be a
// per-connection goroutine, not the shared worker loop, so this is never
// the "blocking syscall on the worker thread" §5 forbids.
func (r *Runtime) Run(ctx context.Context, req *request.Request) Outcome {
	hook, ok := r.lookupHook(req.Command)
	if !ok {
		return Outcome{Err: errNoRoute}
	}

	r.vmMu.Lock()
	defer r.vmMu.Unlock()

	var lastResp *backend.Response
	r.bindDispatch(ctx, &lastResp)

	reqObj := r.requestToJS(req)

	result, err := hook(goja.Undefined(), reqObj)
	if err != nil {
		return Outcome{Err: err}
	}

	if result != nil && !goja.IsUndefined(result) && !goja.IsNull(result) {
		if s, ok := result.Export().(string); ok {
			return Outcome{Reply: []byte(s)}
		}
	}

	if lastResp != nil {
		return Outcome{Reply: lastResp.Buffer}
	}

	return Outcome{Err: errNoReply}
}

func (r *Runtime) lookupHook(cmd request.Command) (goja.Callable, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if fn, ok := r.hooks[hookFor(cmd)]; ok {
		return fn, true
	}
	fn, ok := r.hooks[HookAny]
	return fn, ok
}

// requestToJS builds the script-visible request object: request:key() and
// request:command() per §6, plus a hidden __key used internally by
// jsHashSelector's returned selector function. **[EXPANSION]** per
// SPEC_FULL.md §6/§8 scenario 3 (the SET round trip), mutation commands
// need their flags/exptime/value surfaced too, so a routing script can
// actually build a `set <key> <flags> <exptime> <bytes>\r\n<value>\r\n`
// line to forward — flags()/exptime()/vlen()/value() expose those fields
// individually, and raw() hands back the exact wire bytes (command line
// plus value) for scripts that would rather forward verbatim.
func (r *Runtime) requestToJS(req *request.Request) *goja.Object {
	obj := r.vm.NewObject()
	key := req.Key()
	obj.Set("__key", key)
	obj.Set("key", func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(key)
	})
	obj.Set("command", func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(int(req.Command))
	})
	obj.Set("flags", func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(req.Flags)
	})
	obj.Set("exptime", func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(req.Exptime)
	})
	obj.Set("vlen", func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(req.VLen)
	})
	obj.Set("value", func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(string(req.ValueData()))
	})
	obj.Set("raw", func(goja.FunctionCall) goja.Value {
		return r.vm.ToValue(string(req.Raw()))
	})
	return obj
}

type routingError string

func (e routingError) Error() string { return string(e) }

const (
	errNoRoute routingError = "no route attached for request"
	errNoReply routingError = "routing function returned no reply"
)
