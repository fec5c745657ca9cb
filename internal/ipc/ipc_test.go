package ipc

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSocketPathPrecedence(t *testing.T) {
	t.Setenv("CLIPFERRY_SOCKET", "/env/sock")
	t.Setenv("XDG_RUNTIME_DIR", "/run/user/1000")
	assert.Equal(t, "/flag/sock", SocketPath("/flag/sock"))
	assert.Equal(t, "/env/sock", SocketPath(""))

	t.Setenv("CLIPFERRY_SOCKET", "")
	assert.Equal(t, filepath.Join("/run/user/1000", socketName), SocketPath(""))
}

func TestListenReplacesStaleSocket(t *testing.T) {
	// Unix socket paths are length-limited; keep it short.
	dir, err := os.MkdirTemp("", "cf")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })
	path := filepath.Join(dir, "s.sock")
	require.NoError(t, os.WriteFile(path, nil, 0o600))

	assert.False(t, IsRunning(path))
	ln, err := Listen(path)
	require.NoError(t, err)
	defer ln.Close()
	assert.True(t, IsRunning(path))

	_, err = Listen(path)
	require.Error(t, err)
}
