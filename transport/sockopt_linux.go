//go:build linux
// +build linux

package transport

import (
	"strings"
	"syscall"

	"golang.org/x/sys/unix"
)

// keepAliveProbes is the number of unanswered keepalive probes before the
// kernel drops the connection. The idle time and interval are set by
// net.Dialer from Options.KeepAlive.
const keepAliveProbes = 3

func control(opts Options) func(network, address string, c syscall.RawConn) error {
	if opts.KeepAlive <= 0 {
		return nil
	}

	return func(network, address string, c syscall.RawConn) error {
		if !strings.HasPrefix(network, "tcp") {
			return nil
		}

		var serr error
		err := c.Control(func(fd uintptr) {
			serr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_KEEPCNT, keepAliveProbes)
		})
		if err != nil {
			return err
		}

		return serr
	}
}
