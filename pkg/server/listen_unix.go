//go:build !windows

package server

import (
	"fmt"
	"net"
	"runtime"
)

func listenNamedPipe(string) (net.Listener, error) {
	return nil, fmt.Errorf("npipe listeners require Windows, not %s", runtime.GOOS)
}
