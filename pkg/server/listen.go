// Package server resolves listen addresses for the streamable HTTP
// transport.
package server

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Listen binds addr, which is either a plain TCP "host:port" or one of the
// prefixed forms "unix://<path>", "fd://<number>", and, on Windows,
// "npipe://<path>".
func Listen(ctx context.Context, addr string) (net.Listener, error) {
	scheme, rest, ok := strings.Cut(addr, "://")
	if !ok {
		return listen(ctx, "tcp", addr)
	}

	switch scheme {
	case "unix":
		return listenUnix(ctx, rest)
	case "npipe":
		return listenNamedPipe(rest)
	case "fd":
		fd, err := strconv.ParseUint(rest, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid fd address %q: %w", addr, err)
		}
		return net.FileListener(os.NewFile(uintptr(fd), ""))
	default:
		return nil, fmt.Errorf("unsupported listen scheme %q", scheme)
	}
}

// listenUnix removes a stale socket before binding so restarts do not fail
// on the leftover file.
func listenUnix(ctx context.Context, path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return listen(ctx, "unix", path)
}

func listen(ctx context.Context, network, addr string) (net.Listener, error) {
	var lc net.ListenConfig
	return lc.Listen(ctx, network, addr)
}
