package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/luma/redisfast/protocol"
	"github.com/luma/redisfast/transport"
)

// State is the lifecycle state of a Conn.
type State uint8

const (
	Disconnected State = iota
	Connecting
	Connected
	Disconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Disconnecting:
		return "disconnecting"
	default:
		return "disconnected"
	}
}

var (
	// ErrNotConnected is returned when submitting a command or disconnecting
	// while the connection is not established.
	ErrNotConnected = errors.New("not connected")

	// ErrDisconnected is reported to every handler still pending when the
	// connection goes away.
	ErrDisconnected = errors.New("connection closed before the reply arrived")

	// ErrAlreadyConnected is returned by Connect unless the connection is
	// disconnected.
	ErrAlreadyConnected = errors.New("already connected")
)

// disconnectError matches ErrDisconnected and unwraps to what caused the
// disconnect, e.g. a protocol error.
type disconnectError struct {
	cause error
}

func (e *disconnectError) Error() string {
	if e.cause == nil {
		return ErrDisconnected.Error()
	}
	return ErrDisconnected.Error() + ": " + e.cause.Error()
}

func (e *disconnectError) Is(target error) bool {
	return target == ErrDisconnected
}

func (e *disconnectError) Unwrap() error {
	return e.cause
}

// DefaultCloseTimeout bounds how long Close waits for the transport to
// report the connection closed.
const DefaultCloseTimeout = 2 * time.Second

type Options struct {
	// Dialer opens the byte stream, defaults to a transport.TCP
	Dialer transport.Dialer

	// Scheduler runs every handler and connection callback. When nil the
	// Conn runs its own Loop, stopped by Close.
	Scheduler Scheduler

	// CloseTimeout defaults to DefaultCloseTimeout
	CloseTimeout time.Duration

	Log *zap.Logger
}

// Conn is an asynchronous client for a single connection to a RESP server.
//
// Commands are pipelined: Command queues the encoded bytes and returns, the
// handler runs later on the Scheduler once the matching reply was decoded.
// Handlers of ordinary commands run exactly once and in submission order.
type Conn struct {
	dialer  transport.Dialer
	sched   Scheduler
	ownLoop *Loop

	closeTimeout time.Duration

	mu    sync.Mutex
	state State

	// gen identifies the current session, events of older sessions are
	// ignored
	gen    uint64
	stream transport.Stream

	// ended is closed once the current session is back to Disconnected
	ended chan struct{}

	onConnect    func(error)
	onDisconnect func(error)

	// closeErr is why we tore the connection down ourselves
	closeErr error

	table   *Table
	decoder *protocol.Decoder
	encBuf  []byte

	// fifo holds the commands awaiting replies, oldest first
	fifo []*request

	feeds      map[ID]*feed
	routes     map[route]ID
	monitor    ID
	subscribed bool

	log *zap.Logger
}

type request struct {
	id   ID
	kind protocol.CommandKind
	ns   protocol.Namespace

	// names are the channels or patterns of an (un)subscribe
	names []string

	// remaining is the number of replies still expected
	remaining int

	// replies collects unsubscribe confirmations
	replies []protocol.Reply
}

// feed is the persistent entry of a subscribe command.
type feed struct {
	ns    protocol.Namespace
	names map[string]struct{}

	// pending is the number of unconfirmed names
	pending int
}

type route struct {
	ns   protocol.Namespace
	name string
}

func New(options Options) *Conn {
	log := options.Log
	if log == nil {
		log = zap.NewNop()
	}

	c := &Conn{
		dialer:       options.Dialer,
		sched:        options.Scheduler,
		closeTimeout: options.CloseTimeout,
		table:        NewTable(),
		feeds:        make(map[ID]*feed),
		routes:       make(map[route]ID),
		log:          log,
	}

	if c.closeTimeout <= 0 {
		c.closeTimeout = DefaultCloseTimeout
	}

	if c.dialer == nil {
		c.dialer = transport.NewTCP(transport.Options{Log: log.Named("transport")})
	}

	if c.sched == nil {
		c.ownLoop = NewLoop(log.Named("loop"))
		c.sched = c.ownLoop
	}

	return c
}

// Address returns the network and address for host and port. A host that
// starts with "/" is a unix socket path and port is ignored.
func Address(host string, port int) (network, address string) {
	if strings.HasPrefix(host, "/") {
		return "unix", host
	}
	return "tcp", net.JoinHostPort(host, strconv.Itoa(port))
}

// Connect starts connecting and returns immediately. onConnect runs once the
// attempt finished, with the error if it failed. onDisconnect runs when an
// established connection ends, with nil for a clean close. Both may be nil.
func (c *Conn) Connect(ctx context.Context, host string, port int, onConnect, onDisconnect func(error)) error {
	network, address := Address(host, port)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Disconnected {
		return fmt.Errorf("%w: %s", ErrAlreadyConnected, c.state)
	}

	c.state = Connecting
	c.onConnect = onConnect
	c.onDisconnect = onDisconnect
	c.closeErr = nil
	c.decoder = protocol.NewDecoder()
	c.ended = make(chan struct{})
	c.gen++

	c.log.Debug("Connecting", zap.String("network", network), zap.String("address", address))

	// Dial never calls back synchronously, so holding the lock is fine and
	// c.stream is set before any event arrives
	c.stream = c.dialer.Dial(ctx, network, address, &session{conn: c, gen: c.gen})

	return nil
}

// Disconnect closes the connection. Commands still awaiting a reply are
// failed with ErrDisconnected right away, onDisconnect runs once the
// transport closed. Disconnecting while connecting aborts the attempt.
func (c *Conn) Disconnect() error {
	c.mu.Lock()

	switch c.state {
	case Disconnected:
		c.mu.Unlock()
		return ErrNotConnected

	case Disconnecting:
		c.mu.Unlock()
		return nil
	}

	if n := c.table.Len(); n > 0 {
		c.log.Warn("Disconnecting with pending replies", zap.Int("pending", n))
	}

	c.state = Disconnecting
	c.drain(nil)
	stream := c.stream
	c.mu.Unlock()

	// Close may flush, do that without holding the lock
	return stream.Close()
}

// Command submits args and returns once the encoded command is queued for
// writing. h receives the reply later.
//
// Subscribe commands and MONITOR are persistent: h receives every
// confirmation and every message routed to them until they are unsubscribed,
// reset or the connection ends. Unsubscribe commands invoke h once, with an
// array of all their confirmations.
func (c *Conn) Command(args [][]byte, h Handler) error {
	if len(args) == 0 {
		return protocol.ErrEmptyCommand
	}

	if h == nil {
		h = func(protocol.Reply, error) {}
	}

	kind, ns := protocol.ClassifyCommand(args)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != Connected {
		return fmt.Errorf("%w: %s", ErrNotConnected, c.state)
	}

	var err error
	c.encBuf, err = protocol.AppendCommand(c.encBuf[:0], args)
	if err != nil {
		return err
	}

	req := &request{kind: kind, ns: ns, remaining: 1}

	mode := OneShot
	if kind.Persistent() {
		mode = Persistent
	}

	switch kind {
	case protocol.KindSubscribe:
		req.names = names(args[1:])
		req.remaining = len(req.names)

	case protocol.KindUnsubscribe:
		req.names = names(args[1:])
		req.remaining = c.expectedUnsubscribes(ns, req.names)
	}

	req.id = c.table.Register(h, mode)

	if err := c.stream.Write(c.encBuf); err != nil {
		c.table.Release(req.id)
		return fmt.Errorf("failed to queue command: %w", err)
	}

	if kind == protocol.KindSubscribe {
		c.feeds[req.id] = &feed{
			ns:      ns,
			names:   make(map[string]struct{}, len(req.names)),
			pending: len(req.names),
		}
	}

	c.fifo = append(c.fifo, req)

	return nil
}

type result struct {
	reply protocol.Reply
	err   error
}

// Do submits a command built from args and waits for its first reply.
// Cancelling ctx stops the wait, not the command.
func (c *Conn) Do(ctx context.Context, args ...interface{}) (protocol.Reply, error) {
	done := make(chan result, 1)

	err := c.Command(protocol.Args(args...), func(reply protocol.Reply, err error) {
		select {
		case done <- result{reply, err}:
		default:
		}
	})
	if err != nil {
		return protocol.Nil, err
	}

	select {
	case res := <-done:
		return res.reply, res.err

	case <-ctx.Done():
		return protocol.Nil, ctx.Err()
	}
}

// Batch pipelines commands and calls fn once every one of them completed.
// replies and errs are indexed like commands, a command that could not be
// submitted only has its error set.
func (c *Conn) Batch(commands [][][]byte, fn func(replies []protocol.Reply, errs []error)) {
	if len(commands) == 0 {
		c.sched.Schedule(func() { fn(nil, nil) })
		return
	}

	var (
		mu        sync.Mutex
		replies   = make([]protocol.Reply, len(commands))
		errs      = make([]error, len(commands))
		done      = make([]bool, len(commands))
		remaining = len(commands)
	)

	complete := func(i int, reply protocol.Reply, err error) {
		mu.Lock()
		if done[i] {
			mu.Unlock()
			return
		}

		done[i] = true
		replies[i], errs[i] = reply, err
		remaining--
		last := remaining == 0
		mu.Unlock()

		if last {
			fn(replies, errs)
		}
	}

	for i, args := range commands {
		i := i
		err := c.Command(args, func(reply protocol.Reply, err error) {
			complete(i, reply, err)
		})
		if err != nil {
			// fn runs on the scheduler like every other handler
			c.sched.Schedule(func() { complete(i, protocol.Nil, err) })
		}
	}
}

// Pending returns the number of registered handlers.
func (c *Conn) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.table.Len()
}

func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.state
}

// Close disconnects and, when the Conn runs its own scheduler, stops it after
// running what is already queued. It waits up to the CloseTimeout for the
// transport to close so onDisconnect is scheduled before the loop stops.
func (c *Conn) Close() error {
	c.mu.Lock()
	ended := c.ended
	c.mu.Unlock()

	var err error
	if derr := c.Disconnect(); derr != nil && !errors.Is(derr, ErrNotConnected) {
		err = multierr.Append(err, derr)
	}

	if ended != nil {
		select {
		case <-ended:
		case <-time.After(c.closeTimeout):
			c.log.Warn("Timed out waiting for the connection to close",
				zap.Duration("timeout", c.closeTimeout))
		}
	}

	if c.ownLoop != nil {
		c.ownLoop.Close()
	}

	return err
}

// session receives the transport events of one Connect.
type session struct {
	conn *Conn
	gen  uint64
}

var _ transport.Handler = (*session)(nil)

func (s *session) OnConnect(err error) {
	c := s.conn

	c.mu.Lock()
	defer c.mu.Unlock()

	if s.gen != c.gen || (c.state != Connecting && c.state != Disconnecting) {
		return
	}

	if err != nil {
		c.log.Info("Failed to connect", zap.Error(err))
		c.drain(err)
		c.notify(c.onConnect, fmt.Errorf("failed to connect: %w", err))
		c.reset()
		return
	}

	// Disconnect won the race, OnClose follows
	if c.state == Disconnecting {
		return
	}

	c.log.Debug("Connected")
	c.state = Connected
	c.notify(c.onConnect, nil)
}

func (s *session) OnData(p []byte) {
	c := s.conn

	c.mu.Lock()

	if s.gen != c.gen || c.state != Connected {
		c.mu.Unlock()
		return
	}

	replies, err := c.decoder.Feed(p)
	for _, r := range replies {
		c.dispatch(r)
	}

	if err == nil {
		c.mu.Unlock()
		return
	}

	c.log.Error("Closing connection after protocol error",
		zap.Error(err),
		zap.Int("pending", c.table.Len()))

	c.state = Disconnecting
	c.closeErr = err
	c.drain(err)
	stream := c.stream
	c.mu.Unlock()

	if cerr := stream.Close(); cerr != nil {
		c.log.Warn("Failed to close connection", zap.Error(cerr))
	}
}

func (s *session) OnClose(err error) {
	c := s.conn

	c.mu.Lock()
	defer c.mu.Unlock()

	if s.gen != c.gen || c.state == Disconnected {
		return
	}

	reason := c.closeErr
	if reason == nil {
		reason = err
	}

	c.log.Debug("Disconnected", zap.Error(reason))

	// Scheduled before reset ends the session, Close waits for that
	c.drain(reason)
	c.notify(c.onDisconnect, reason)
	c.reset()
}

// reset returns to Disconnected. Callers hold c.mu.
func (c *Conn) reset() {
	c.state = Disconnected
	c.stream = nil
	c.onConnect = nil
	c.onDisconnect = nil
	c.closeErr = nil
	c.encBuf = nil

	if c.ended != nil {
		close(c.ended)
		c.ended = nil
	}

	if c.decoder != nil {
		c.decoder.Reset()
	}
}

// drain fails every pending handler with a disconnect error and forgets all
// routing state. Callers hold c.mu.
func (c *Conn) drain(cause error) {
	handlers := c.table.DrainAll()

	c.fifo = nil
	c.feeds = make(map[ID]*feed)
	c.routes = make(map[route]ID)
	c.monitor = 0
	c.subscribed = false

	if len(handlers) == 0 {
		return
	}

	err := &disconnectError{cause: cause}
	for _, h := range handlers {
		c.schedule(h, protocol.Nil, err)
	}
}

func (c *Conn) notify(fn func(error), err error) {
	if fn == nil {
		return
	}

	c.sched.Schedule(func() { fn(err) })
}

func (c *Conn) schedule(h Handler, reply protocol.Reply, err error) {
	c.sched.Schedule(func() { h(reply, err) })
}

// deliver resolves id and schedules its handler. Error replies reach the
// handler as a *protocol.ReplyError.
func (c *Conn) deliver(id ID, r protocol.Reply) {
	h, ok := c.table.Resolve(id)
	if !ok {
		return
	}

	if err := r.Err(); err != nil {
		c.schedule(h, protocol.Nil, err)
		return
	}

	c.schedule(h, r, nil)
}

func (c *Conn) popFront() {
	c.fifo[0] = nil
	c.fifo = c.fifo[1:]
}

// dispatch hands a decoded reply to whoever awaits it. Callers hold c.mu.
func (c *Conn) dispatch(r protocol.Reply) {
	var front *request
	if len(c.fifo) > 0 {
		front = c.fifo[0]
	}

	if c.expectsPush(front) {
		if p, ok := protocol.ParsePush(r); ok {
			switch {
			case p.Kind == protocol.PushMessage && c.subscribed:
				c.deliverMessage(r, p)
				return

			case p.Kind == protocol.PushSubscribe:
				c.confirmSubscribe(r, p, front)
				return

			case p.Kind == protocol.PushUnsubscribe:
				c.confirmUnsubscribe(r, p, front)
				return
			}
		}
	}

	// Monitor lines keep arriving while RESET and other commands await their
	// replies, so they never resolve the front of the queue
	if c.monitor != 0 && isMonitorLine(r) {
		c.deliver(c.monitor, r)
		return
	}

	if front == nil {
		if c.monitor != 0 {
			c.deliver(c.monitor, r)
			return
		}

		c.log.Warn("Dropping unsolicited reply", zap.Stringer("type", r.Type))
		return
	}

	c.popFront()

	switch front.kind {
	case protocol.KindMonitor:
		if r.Type == protocol.TypeError {
			c.deliver(front.id, r)
			c.table.Release(front.id)
			return
		}

		c.monitor = front.id
		c.deliver(front.id, r)

	case protocol.KindSubscribe:
		// Only a rejected subscribe gets here
		c.deliver(front.id, r)
		delete(c.feeds, front.id)
		c.table.Release(front.id)

	case protocol.KindReset:
		if r.Type == protocol.TypeStatus {
			c.endSubscribed()
			c.endMonitor()
		}
		c.deliver(front.id, r)

	default:
		c.deliver(front.id, r)
	}
}

// expectsPush is true when the next frame may be a pub/sub frame rather than
// the reply to an ordinary command.
func (c *Conn) expectsPush(front *request) bool {
	if c.subscribed {
		return true
	}

	return front != nil && (front.kind == protocol.KindSubscribe || front.kind == protocol.KindUnsubscribe)
}

func (c *Conn) deliverMessage(r protocol.Reply, p protocol.Push) {
	id, ok := c.routes[route{p.Namespace, string(p.Name)}]
	if !ok {
		c.log.Debug("Dropping message without subscriber",
			zap.Stringer("namespace", p.Namespace),
			zap.ByteString("name", p.Name))
		return
	}

	c.deliver(id, r)
}

func (c *Conn) confirmSubscribe(r protocol.Reply, p protocol.Push, front *request) {
	rt := route{p.Namespace, string(p.Name)}

	if front == nil || front.kind != protocol.KindSubscribe || front.ns != p.Namespace {
		// Not ours to claim, let the current owner know
		if id, ok := c.routes[rt]; ok {
			c.deliver(id, r)
			return
		}

		c.log.Warn("Dropping unexpected subscribe confirmation",
			zap.Stringer("namespace", p.Namespace),
			zap.ByteString("name", p.Name))
		return
	}

	c.claim(rt, front.id)
	c.subscribed = true

	if f := c.feeds[front.id]; f != nil && f.pending > 0 {
		f.pending--
	}

	c.deliver(front.id, r)

	front.remaining--
	if front.remaining <= 0 {
		c.popFront()
	}
}

func (c *Conn) confirmUnsubscribe(r protocol.Reply, p protocol.Push, front *request) {
	rt := route{p.Namespace, string(p.Name)}

	if owner, ok := c.routes[rt]; ok && p.Name != nil {
		delete(c.routes, rt)
		c.deliver(owner, r)
		c.disown(owner, rt)
	}

	if p.Count == 0 {
		c.endSubscribed()
	}

	if front == nil || front.kind != protocol.KindUnsubscribe || front.ns != p.Namespace {
		return
	}

	front.replies = append(front.replies, r)
	front.remaining--

	if front.remaining <= 0 {
		c.popFront()
		c.deliver(front.id, protocol.Array(front.replies...))
	}
}

// claim routes rt to id, taking it away from a previous owner.
func (c *Conn) claim(rt route, id ID) {
	if old, ok := c.routes[rt]; ok && old != id {
		c.disown(old, rt)
	}

	c.routes[rt] = id

	if f := c.feeds[id]; f != nil {
		f.names[rt.name] = struct{}{}
	}
}

// disown removes rt from the feed id and releases the feed once it owns
// nothing and awaits no confirmation.
func (c *Conn) disown(id ID, rt route) {
	f, ok := c.feeds[id]
	if !ok {
		return
	}

	delete(f.names, rt.name)

	if len(f.names) == 0 && f.pending == 0 {
		delete(c.feeds, id)
		c.table.Release(id)
	}
}

// endSubscribed leaves subscribed mode, the server holds no subscription.
func (c *Conn) endSubscribed() {
	c.subscribed = false
	c.routes = make(map[route]ID)

	for id, f := range c.feeds {
		f.names = make(map[string]struct{})

		if f.pending == 0 {
			delete(c.feeds, id)
			c.table.Release(id)
		}
	}
}

func (c *Conn) endMonitor() {
	if c.monitor == 0 {
		return
	}

	c.table.Release(c.monitor)
	c.monitor = 0
}

// isMonitorLine reports whether r is a status line of the monitor feed,
// shaped "<seconds>.<micros> [<db> <addr>] ...". Replies like +OK or
// +RESET never start with a digit.
func isMonitorLine(r protocol.Reply) bool {
	if r.Type != protocol.TypeStatus {
		return false
	}

	b := r.Str
	i := digits(b, 0)
	if i == 0 || i >= len(b) || b[i] != '.' {
		return false
	}

	j := digits(b, i+1)
	if j == i+1 || j+1 >= len(b) {
		return false
	}

	return b[j] == ' ' && b[j+1] == '['
}

// digits returns the index of the first non-digit in b at or after i.
func digits(b []byte, i int) int {
	for i < len(b) && b[i] >= '0' && b[i] <= '9' {
		i++
	}
	return i
}

// expectedUnsubscribes returns how many confirmations an unsubscribe in ns
// will produce once the server reaches it. Without names the server
// confirms every subscription of ns it holds at that point, or sends a
// single confirmation when there is none.
func (c *Conn) expectedUnsubscribes(ns protocol.Namespace, names []string) int {
	if len(names) > 0 {
		return len(names)
	}

	held := make(map[string]struct{})
	for rt := range c.routes {
		if rt.ns == ns {
			held[rt.name] = struct{}{}
		}
	}

	// Replay what is still in flight ahead of us
	for _, req := range c.fifo {
		switch {
		case req.kind == protocol.KindReset:
			held = make(map[string]struct{})

		case req.ns != ns:

		case req.kind == protocol.KindSubscribe:
			for _, name := range req.names {
				held[name] = struct{}{}
			}

		case req.kind == protocol.KindUnsubscribe && len(req.names) == 0:
			held = make(map[string]struct{})

		case req.kind == protocol.KindUnsubscribe:
			for _, name := range req.names {
				delete(held, name)
			}
		}
	}

	if len(held) == 0 {
		return 1
	}

	return len(held)
}

func names(args [][]byte) []string {
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = string(a)
	}
	return out
}
