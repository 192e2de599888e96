package server

import (
	"net"

	winio "github.com/Microsoft/go-winio"
)

// listenNamedPipe binds a named pipe such as `\\.\pipe\memkeep`.
func listenNamedPipe(path string) (net.Listener, error) {
	return winio.ListenPipe(path, nil)
}
