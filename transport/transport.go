package transport

import (
	"context"
	"errors"
)

var (
	// ErrClosed is returned when writing to a stream after Close, and reported
	// through OnConnect when a stream is closed while still dialing.
	ErrClosed = errors.New("transport closed")

	// ErrNotOpen is returned when writing to a stream that has not connected yet.
	ErrNotOpen = errors.New("transport not connected")
)

// Handler receives the events of a single Stream.
//
// Events are delivered from the stream's own goroutines, one at a time.
// OnConnect always comes first. If it reports an error nothing else follows,
// otherwise OnData is called for every inbound chunk and OnClose exactly once
// at the end. OnData must not retain p.
type Handler interface {
	OnConnect(err error)
	OnData(p []byte)

	// OnClose reports why the stream ended, nil for a clean close by either side.
	OnClose(err error)
}

// Stream is an ordered, reliable byte stream.
type Stream interface {
	// Write queues p for sending. It never blocks on the network.
	Write(p []byte) error

	// Close flushes queued writes, bounded by a short deadline, and closes the
	// stream. It is safe to call from a Handler callback and more than once.
	Close() error
}

// Dialer opens streams.
//
// Dial must return immediately. The outcome of the connection attempt is
// reported to h.OnConnect from another goroutine, never from within Dial.
type Dialer interface {
	Dial(ctx context.Context, network, address string, h Handler) Stream
}
