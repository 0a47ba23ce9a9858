package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// TCP dials TCP and unix domain socket streams.
type TCP struct {
	opts Options
	log  *zap.Logger
}

func NewTCP(options Options) *TCP {
	options = options.withDefaults()

	return &TCP{
		opts: options,
		log:  options.Log,
	}
}

var _ Dialer = (*TCP)(nil)

func (t *TCP) Dial(ctx context.Context, network, address string, h Handler) Stream {
	conn := NewTCPConn(t.opts, h, t.log.Named("conn").With(
		zap.String("network", network),
		zap.String("address", address)))

	go conn.dial(ctx, network, address)

	return conn
}

type TCPConn struct {
	ctx        context.Context
	cancel     context.CancelFunc
	loopWaiter sync.WaitGroup

	opts    Options
	handler Handler

	mu      sync.Mutex
	conn    net.Conn
	queue   []byte
	closing bool

	// wake signals the write loop that queue grew or Close was called
	wake chan struct{}

	stopOnce sync.Once
	cause    error

	log *zap.Logger
}

var _ Stream = (*TCPConn)(nil)

func NewTCPConn(opts Options, h Handler, log *zap.Logger) *TCPConn {
	ctx, cancel := context.WithCancel(context.Background())
	opts = opts.withDefaults()

	if log == nil {
		log = opts.Log
	}

	return &TCPConn{
		ctx:     ctx,
		cancel:  cancel,
		opts:    opts,
		handler: h,
		wake:    make(chan struct{}, 1),
		log:     log,
	}
}

func (t *TCPConn) dial(ctx context.Context, network, address string) {
	dialCtx, stop := context.WithTimeout(ctx, t.opts.DialTimeout)
	defer stop()

	// Close must be able to abort a dial in progress
	go func() {
		select {
		case <-t.ctx.Done():
			stop()
		case <-dialCtx.Done():
		}
	}()

	dialer := net.Dialer{
		KeepAlive: t.opts.KeepAlive,
		Control:   control(t.opts),
	}

	conn, err := dialer.DialContext(dialCtx, network, address)
	stop()

	t.mu.Lock()
	if t.closing {
		if err == nil {
			conn.Close()
		}
		err = ErrClosed
	}

	if err == nil {
		t.conn = conn
	}
	t.mu.Unlock()

	if err != nil {
		t.log.Debug("Failed to connect", zap.Error(err))
		t.cancel()
		t.handler.OnConnect(err)
		return
	}

	t.log.Debug("Connected")
	t.handler.OnConnect(nil)

	t.loopWaiter.Add(2)

	go func() {
		defer t.loopWaiter.Done()
		t.ReadLoop()
	}()

	go func() {
		defer t.loopWaiter.Done()
		t.WriteLoop()
	}()

	t.loopWaiter.Wait()

	t.log.Debug("Stream closed", zap.Error(t.cause))
	t.handler.OnClose(t.cause)
}

func (t *TCPConn) ReadLoop() {
	log := t.log.Named("readLoop")
	buf := make([]byte, t.opts.ReadBufferSize)

	for {
		n, err := t.conn.Read(buf)
		if n > 0 {
			if t.opts.Trace {
				log.Debug("READ", zap.ByteString("data", buf[:n]))
			}
			t.handler.OnData(buf[:n])
		}

		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
				log.Debug("Peer closed the connection")
				t.stop(nil)

			case errors.Is(err, net.ErrClosed):
				// We closed it ourselves
				t.stop(nil)

			default:
				log.Warn("Failed to read from connection", zap.Error(err))
				t.stop(err)
			}

			return
		}
	}
}

func (t *TCPConn) WriteLoop() {
	log := t.log.Named("writeLoop")

	var buf []byte

	for {
		select {
		case <-t.ctx.Done():
			return

		case <-t.wake:
		}

		// Swap buffers so Write can keep queueing while we are on the network
		t.mu.Lock()
		buf, t.queue = t.queue, buf[:0]
		closing := t.closing
		t.mu.Unlock()

		if len(buf) > 0 {
			if t.opts.Trace {
				log.Debug("WRITE", zap.ByteString("data", buf))
			}

			if _, err := t.conn.Write(buf); err != nil {
				log.Warn("Failed to write to connection", zap.Error(err))
				t.stop(err)
				return
			}
		}

		if closing {
			t.stop(nil)
			return
		}
	}
}

// Write queues p for the write loop. p is copied.
func (t *TCPConn) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closing || !t.isRunning() {
		return ErrClosed
	}

	if t.conn == nil {
		return ErrNotOpen
	}

	t.queue = append(t.queue, p...)

	select {
	case t.wake <- struct{}{}:
	default:
	}

	return nil
}

// Close stops accepting writes, lets the write loop flush what is queued and
// then closes the connection. A dial in progress is aborted.
func (t *TCPConn) Close() error {
	t.mu.Lock()
	if t.closing {
		t.mu.Unlock()
		return nil
	}

	t.closing = true
	conn := t.conn
	t.mu.Unlock()

	if conn == nil {
		t.cancel()
		return nil
	}

	// A peer that stopped reading must not keep us waiting forever
	err := conn.SetWriteDeadline(time.Now().Add(t.opts.CloseTimeout))

	select {
	case t.wake <- struct{}{}:
	default:
	}

	return err
}

// stop tears the connection down once, remembering why.
func (t *TCPConn) stop(cause error) {
	t.stopOnce.Do(func() {
		t.cancel()

		t.mu.Lock()
		t.closing = true
		conn := t.conn
		t.mu.Unlock()

		if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			cause = multierr.Append(cause, err)
		}

		t.cause = cause
	})
}

// isRunning returns true until the connection has been torn down
func (t *TCPConn) isRunning() bool {
	select {
	case <-t.ctx.Done():
		// if we can read on this channel then it's been closed
		return false

	default:
		return true
	}
}
