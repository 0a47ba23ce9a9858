package client_test

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/luma/redisfast/protocol"
	"github.com/luma/redisfast/transport"
)

// manualScheduler queues functions until the test runs them.
type manualScheduler struct {
	mu    sync.Mutex
	queue []func()
}

func (s *manualScheduler) Schedule(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = append(s.queue, fn)
}

// RunAll runs queued functions, including those they schedule, and returns
// how many ran.
func (s *manualScheduler) RunAll() int {
	n := 0
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			return n
		}
		fn := s.queue[0]
		s.queue = s.queue[1:]
		s.mu.Unlock()

		fn()
		n++
	}
}

func (s *manualScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.queue)
}

type fakeDialer struct {
	// closes makes streams report OnClose from another goroutine once they
	// are closed, like a real transport
	closes bool

	mu      sync.Mutex
	streams []*fakeStream
}

func (d *fakeDialer) Dial(ctx context.Context, network, address string, h transport.Handler) transport.Stream {
	d.mu.Lock()
	defer d.mu.Unlock()

	s := &fakeStream{network: network, address: address, handler: h, closes: d.closes}
	d.streams = append(d.streams, s)

	return s
}

func (d *fakeDialer) Last() *fakeStream {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.streams) == 0 {
		return nil
	}
	return d.streams[len(d.streams)-1]
}

// fakeStream records writes. Tests play the transport by calling handler.
type fakeStream struct {
	network string
	address string
	handler transport.Handler
	closes  bool

	mu       sync.Mutex
	written  bytes.Buffer
	closed   bool
	writeErr error
}

func (s *fakeStream) Write(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return transport.ErrClosed
	}

	if s.writeErr != nil {
		return s.writeErr
	}

	s.written.Write(p)

	return nil
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closes && !s.closed {
		go func() {
			time.Sleep(10 * time.Millisecond)
			s.handler.OnClose(nil)
		}()
	}

	s.closed = true

	return nil
}

func (s *fakeStream) Written() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.written.String()
}

// Commands decodes everything written so far as requests.
func (s *fakeStream) Commands() [][]string {
	replies, err := protocol.NewDecoder().Feed([]byte(s.Written()))
	if err != nil {
		panic(err)
	}

	out := make([][]string, len(replies))
	for i, r := range replies {
		args, err := protocol.ParseCommand(r)
		if err != nil {
			panic(err)
		}

		out[i] = make([]string, len(args))
		for j, a := range args {
			out[i][j] = string(a)
		}
	}

	return out
}

func (s *fakeStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.closed
}

func (s *fakeStream) SetWriteErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.writeErr = err
}

type call struct {
	reply protocol.Reply
	err   error
}

// recorder collects handler invocations. It is only touched from the test
// goroutine, through manualScheduler.RunAll.
type recorder struct {
	calls []call
}

func (r *recorder) Handle(reply protocol.Reply, err error) {
	r.calls = append(r.calls, call{reply, err})
}

func (r *recorder) Strings() []string {
	out := make([]string, len(r.calls))
	for i, c := range r.calls {
		if c.err != nil {
			out[i] = "error: " + c.err.Error()
			continue
		}
		out[i] = c.reply.String()
	}
	return out
}
