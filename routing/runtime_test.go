package routing

import (
	"context"
	"testing"

	"github.com/mcproxy/mcproxy/backend"
	"github.com/mcproxy/mcproxy/request"
	"github.com/stretchr/testify/require"
)

func TestRunReturnsString(t *testing.T) {
	rt := New(nil, nil, nil)
	err := rt.Configure(`
		function mcp_config_selectors() { return {}; }
		function mcp_config_routes(selectors) {
			mcp.attach("CMD_ANY", function(r) { return "SERVER_ERROR no route\r\n"; });
		}
	`)
	require.NoError(t, err)

	req, err := request.Parse([]byte("get foo"))
	require.NoError(t, err)

	out := rt.Run(context.Background(), req)
	require.NoError(t, out.Err)
	require.Equal(t, "SERVER_ERROR no route\r\n", string(out.Reply))
}

func TestRunDispatchesToBackend(t *testing.T) {
	dispatch := func(ctx context.Context, addr string, wire []byte) (*backend.Response, error) {
		require.Equal(t, "127.0.0.1:11211", addr)
		return &backend.Response{
			Status: backend.StatusOK,
			Buffer: []byte("VALUE foo 0 3\r\nbar\r\nEND\r\n"),
		}, nil
	}

	rt := New(func(addr string, weight int) *backend.Backend {
		return backend.New(backend.Config{Addr: addr, Weight: weight})
	}, dispatch, nil)

	err := rt.Configure(`
		function mcp_config_selectors() {
			return { main: mcp.hash_selector("murmur3", [mcp.server("127.0.0.1", 11211, 1)]) };
		}
		function mcp_config_routes(selectors) {
			mcp.attach("CMD_GET", function(r) {
				var b = selectors.main(r);
				return mcp.dispatch(b, "get " + r.key() + "\r\n");
			});
		}
	`)
	require.NoError(t, err)

	req, err := request.Parse([]byte("get foo"))
	require.NoError(t, err)

	out := rt.Run(context.Background(), req)
	require.NoError(t, out.Err)
	require.Equal(t, "VALUE foo 0 3\r\nbar\r\nEND\r\n", string(out.Reply))
}

func TestRunDispatchesSetRoundTrip(t *testing.T) {
	dispatch := func(ctx context.Context, addr string, wire []byte) (*backend.Response, error) {
		require.Equal(t, "set foo 0 0 3\r\nbar\r\n", string(wire))
		return &backend.Response{
			Status: backend.StatusOK,
			Buffer: []byte("STORED\r\n"),
		}, nil
	}

	rt := New(func(addr string, weight int) *backend.Backend {
		return backend.New(backend.Config{Addr: addr, Weight: weight})
	}, dispatch, nil)

	err := rt.Configure(`
		function mcp_config_selectors() {
			return { main: mcp.hash_selector("murmur3", [mcp.server("127.0.0.1", 11211, 1)]) };
		}
		function mcp_config_routes(selectors) {
			mcp.attach("CMD_SET", function(r) {
				var b = selectors.main(r);
				return mcp.dispatch(b, r.raw());
			});
		}
	`)
	require.NoError(t, err)

	req, err := request.Parse([]byte("set foo 0 0 3"))
	require.NoError(t, err)
	require.NoError(t, request.SetValue(req, []byte("bar\r\n")))

	out := rt.Run(context.Background(), req)
	require.NoError(t, out.Err)
	require.Equal(t, "STORED\r\n", string(out.Reply))
}

func TestRunNoRouteAttached(t *testing.T) {
	rt := New(nil, nil, nil)
	err := rt.Configure(`
		function mcp_config_selectors() { return {}; }
		function mcp_config_routes(selectors) {}
	`)
	require.NoError(t, err)

	req, err := request.Parse([]byte("get foo"))
	require.NoError(t, err)

	out := rt.Run(context.Background(), req)
	require.Error(t, out.Err)
}

func TestBackendsCollectsDeclaredServers(t *testing.T) {
	rt := New(func(addr string, weight int) *backend.Backend {
		return backend.New(backend.Config{Addr: addr, Weight: weight})
	}, nil, nil)

	err := rt.Configure(`
		function mcp_config_selectors() {
			mcp.server("127.0.0.1", 11211, 1);
			mcp.server("127.0.0.1", 11212, 1);
			return {};
		}
		function mcp_config_routes(selectors) {}
	`)
	require.NoError(t, err)
	require.Len(t, rt.Backends(), 2)
}
