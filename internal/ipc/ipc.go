// Package ipc locates and opens the local socket on which a running
// clipferry daemon accepts transfer requests. Sub-commands probe for it and
// fall back to applying a request in-process when it is absent.
//
// The socket is an AF_UNIX stream socket on every platform; Windows 10 and
// later support them natively.
package ipc

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"time"
)

const socketName = "clipferry.sock"

// SocketPath returns the socket path. Precedence: override (the socket
// config key), $CLIPFERRY_SOCKET, $XDG_RUNTIME_DIR/clipferry.sock, then the
// temp dir.
func SocketPath(override string) string {
	if override != "" {
		return override
	}
	if s := os.Getenv("CLIPFERRY_SOCKET"); s != "" {
		return s
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, socketName)
	}
	return filepath.Join(os.TempDir(), socketName)
}

// IsRunning reports whether a daemon appears to be listening on path. It does
// a cheap dial-and-close; no data is exchanged.
func IsRunning(path string) bool {
	c, err := Dial(path, time.Second)
	if err != nil {
		return false
	}
	_ = c.Close()
	return true
}

// Dial connects to the daemon socket at path.
func Dial(path string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout("unix", path, timeout)
}

// Listen creates a listener on path. A stale socket left by a crashed run is
// removed first; a live one is an error.
func Listen(path string) (net.Listener, error) {
	if IsRunning(path) {
		return nil, fmt.Errorf("another daemon is listening on %s", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing stale socket: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("socket dir: %w", err)
	}
	ln, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	_ = os.Chmod(path, 0o600)
	return ln, nil
}
