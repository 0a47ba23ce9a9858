//go:build !linux
// +build !linux

package transport

import "syscall"

func control(opts Options) func(network, address string, c syscall.RawConn) error {
	return nil
}
