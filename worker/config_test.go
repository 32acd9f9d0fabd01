package worker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcproxy.ini")
	require.NoError(t, os.WriteFile(path, []byte(`
[proxy]
listen = :11311
backend_timeout = 2s
log_level = debug

[routing]
script = /etc/mcproxy/routes.js
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":11311", cfg.Listen)
	require.Equal(t, 2*time.Second, cfg.BackendTimeout)
	require.Equal(t, "debug", cfg.LogLevel)
	require.Equal(t, "/etc/mcproxy/routes.js", cfg.RoutingScript)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mcproxy.ini")
	require.NoError(t, os.WriteFile(path, []byte(`
[proxy]
listen = :11311

[routing]
script = /etc/mcproxy/routes.js
`), 0o644))

	t.Setenv("MCPROXY_LISTEN", ":22122")
	t.Setenv("MCPROXY_ROUTING_SCRIPT", "/tmp/routes.js")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":22122", cfg.Listen)
	require.Equal(t, "/tmp/routes.js", cfg.RoutingScript)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.ini"))
	require.Error(t, err)
}
