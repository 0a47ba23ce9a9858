package transport

import (
	"time"

	"go.uber.org/zap"
)

const (
	DefaultDialTimeout    = 5 * time.Second
	DefaultReadBufferSize = 16 * 1024
	DefaultCloseTimeout   = time.Second
)

type Options struct {
	// DialTimeout bounds the connection attempt, 0 means DefaultDialTimeout
	DialTimeout time.Duration

	// KeepAlive is the TCP keepalive period. 0 uses the system default, a
	// negative value disables keepalives
	KeepAlive time.Duration

	// ReadBufferSize is the size of the buffer inbound bytes are read into
	ReadBufferSize int

	// CloseTimeout bounds how long Close waits for queued writes to flush
	CloseTimeout time.Duration

	// Trace will dump every chunk read or written at debug level. This is only
	// useful in local debugging
	Trace bool

	Log *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.DialTimeout <= 0 {
		o.DialTimeout = DefaultDialTimeout
	}

	if o.ReadBufferSize <= 0 {
		o.ReadBufferSize = DefaultReadBufferSize
	}

	if o.CloseTimeout <= 0 {
		o.CloseTimeout = DefaultCloseTimeout
	}

	if o.Log == nil {
		o.Log = zap.NewNop()
	}

	return o
}
