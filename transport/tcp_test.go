package transport_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/redisfast/transport"
)

type recorder struct {
	connected chan error
	data      chan []byte
	closed    chan error
}

func newRecorder() *recorder {
	return &recorder{
		connected: make(chan error, 1),
		data:      make(chan []byte, 1024),
		closed:    make(chan error, 1),
	}
}

func (r *recorder) OnConnect(err error) { r.connected <- err }
func (r *recorder) OnData(p []byte)     { r.data <- append([]byte(nil), p...) }
func (r *recorder) OnClose(err error)   { r.closed <- err }

// received collects inbound chunks until n bytes arrived.
func (r *recorder) received(n int) string {
	var buf bytes.Buffer
	timeout := time.After(5 * time.Second)

	for buf.Len() < n {
		select {
		case p := <-r.data:
			buf.Write(p)
		case <-timeout:
			Fail("timed out waiting for data")
		}
	}

	return buf.String()
}

var _ = Describe("transport", func() {
	var (
		listener net.Listener
		accepted chan net.Conn
		dialer   *transport.TCP
		rec      *recorder
	)

	listen := func(network, address string) {
		var err error
		listener, err = net.Listen(network, address)
		Expect(err).To(Succeed())

		accepted = make(chan net.Conn, 1)
		go func() {
			defer GinkgoRecover()

			conn, err := listener.Accept()
			if err != nil {
				return
			}
			accepted <- conn
		}()
	}

	BeforeEach(func() {
		log, err := zap.NewDevelopment()
		Expect(err).To(Succeed())

		dialer = transport.NewTCP(transport.Options{
			Log:       log,
			KeepAlive: 30 * time.Second,
			Trace:     true,
		})
		rec = newRecorder()
	})

	AfterEach(func() {
		if listener != nil {
			listener.Close()
		}
	})

	Describe("TCP", func() {
		var (
			stream transport.Stream
			server net.Conn
		)

		BeforeEach(func() {
			listen("tcp", "127.0.0.1:0")

			stream = dialer.Dial(context.Background(), "tcp", listener.Addr().String(), rec)
			Eventually(rec.connected, 5*time.Second).Should(Receive(BeNil()))
			Eventually(accepted, 5*time.Second).Should(Receive(&server))
		})

		AfterEach(func() {
			stream.Close()
			server.Close()
		})

		It("delivers inbound bytes in order", func() {
			_, err := server.Write([]byte("+OK\r\n"))
			Expect(err).To(Succeed())
			_, err = server.Write([]byte(":1\r\n"))
			Expect(err).To(Succeed())

			Expect(rec.received(9)).To(Equal("+OK\r\n:1\r\n"))
		})

		It("writes queued bytes to the peer", func() {
			Expect(stream.Write([]byte("*1\r\n"))).To(Succeed())
			Expect(stream.Write([]byte("$4\r\nPING\r\n"))).To(Succeed())

			buf := make([]byte, len("*1\r\n$4\r\nPING\r\n"))
			Expect(server.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
			_, err := io.ReadFull(server, buf)
			Expect(err).To(Succeed())
			Expect(string(buf)).To(Equal("*1\r\n$4\r\nPING\r\n"))
		})

		It("reports a clean close when the peer hangs up", func() {
			Expect(server.Close()).To(Succeed())
			Eventually(rec.closed, 5*time.Second).Should(Receive(BeNil()))
		})

		It("flushes queued writes on Close and then closes", func() {
			Expect(stream.Write([]byte("*1\r\n$4\r\nQUIT\r\n"))).To(Succeed())
			Expect(stream.Close()).To(Succeed())

			Expect(server.SetReadDeadline(time.Now().Add(5 * time.Second))).To(Succeed())
			all, err := ioutil.ReadAll(server)
			Expect(err).To(Succeed())
			Expect(string(all)).To(Equal("*1\r\n$4\r\nQUIT\r\n"))

			Eventually(rec.closed, 5*time.Second).Should(Receive(BeNil()))
		})

		It("rejects writes after Close", func() {
			Expect(stream.Close()).To(Succeed())
			Expect(stream.Write([]byte("x"))).To(MatchError(transport.ErrClosed))
		})

		It("can be closed more than once", func() {
			Expect(stream.Close()).To(Succeed())
			Expect(stream.Close()).To(Succeed())
			Eventually(rec.closed, 5*time.Second).Should(Receive(BeNil()))
			Consistently(rec.closed, 100*time.Millisecond).ShouldNot(Receive())
		})
	})

	Describe("unix sockets", func() {
		It("dials a unix domain socket path", func() {
			dir, err := ioutil.TempDir("", "redisfast")
			Expect(err).To(Succeed())
			defer os.RemoveAll(dir)

			path := filepath.Join(dir, "redis.sock")
			listen("unix", path)

			stream := dialer.Dial(context.Background(), "unix", path, rec)
			defer stream.Close()

			Eventually(rec.connected, 5*time.Second).Should(Receive(BeNil()))

			var server net.Conn
			Eventually(accepted, 5*time.Second).Should(Receive(&server))
			defer server.Close()

			_, err = server.Write([]byte("+PONG\r\n"))
			Expect(err).To(Succeed())
			Expect(rec.received(7)).To(Equal("+PONG\r\n"))
		})
	})

	Describe("dial failures", func() {
		It("reports the error through OnConnect and nothing else", func() {
			listen("tcp", "127.0.0.1:0")
			addr := listener.Addr().String()
			Expect(listener.Close()).To(Succeed())

			stream := dialer.Dial(context.Background(), "tcp", addr, rec)

			var err error
			Eventually(rec.connected, 5*time.Second).Should(Receive(&err))
			Expect(err).To(HaveOccurred())
			Expect(stream.Write([]byte("x"))).To(HaveOccurred())
			Consistently(rec.closed, 100*time.Millisecond).ShouldNot(Receive())
		})

		It("reports ErrClosed when closed before the dial finished", func() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			listen("tcp", "127.0.0.1:0")
			stream := dialer.Dial(ctx, "tcp", listener.Addr().String(), rec)
			Expect(stream.Close()).To(Succeed())

			var err error
			Eventually(rec.connected, 5*time.Second).Should(Receive(&err))
			if err != nil {
				Expect(errors.Is(err, transport.ErrClosed)).To(BeTrue())
			}
		})
	})
})
