package protocol_test

import (
	"bytes"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/redisfast/protocol"
)

var _ = Describe("Writer", func() {
	Describe("EncodeCommand", func() {
		It("encodes SET k v byte exact", func() {
			b, err := protocol.EncodeCommand(protocol.Args("SET", "k", "v"))
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal("*3\r\n$3\r\nSET\r\n$1\r\nk\r\n$1\r\nv\r\n"))
		})

		It("encodes empty and binary elements with explicit lengths", func() {
			b, err := protocol.EncodeCommand([][]byte{[]byte("SET"), {}, {0, '\r', '\n'}})
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal("*3\r\n$3\r\nSET\r\n$0\r\n\r\n$3\r\n\x00\r\n\r\n"))
		})

		It("rejects an empty command", func() {
			_, err := protocol.EncodeCommand(nil)
			Expect(err).To(MatchError(protocol.ErrEmptyCommand))
		})
	})

	Describe("AppendCommand", func() {
		It("appends to the given buffer", func() {
			b, err := protocol.AppendCommand([]byte("xx"), protocol.Args("PING"))
			Expect(err).To(Succeed())
			Expect(string(b)).To(Equal("xx*1\r\n$4\r\nPING\r\n"))
		})

		It("leaves the buffer untouched on error", func() {
			b, err := protocol.AppendCommand([]byte("xx"), [][]byte{})
			Expect(err).To(MatchError(protocol.ErrEmptyCommand))
			Expect(string(b)).To(Equal("xx"))
		})
	})

	Describe("WriteCommand", func() {
		It("writes the encoded command", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteCommand(w, []byte("GET"), []byte("missing"))).To(Succeed())
			Expect(w.String()).To(Equal("*2\r\n$3\r\nGET\r\n$7\r\nmissing\r\n"))
		})
	})

	Describe("WriteReply", func() {
		It("ends in \r\n", func() {
			w := bytes.NewBuffer([]byte{})

			Expect(protocol.WriteReply(w, protocol.Status("OK"))).To(Succeed())
			Expect(w.String()).To(HaveSuffix("\r\n"))
		})

		It("writes every reply type", func() {
			w := bytes.NewBuffer([]byte{})

			reply := protocol.Array(
				protocol.Status("OK"),
				protocol.ErrorReply("ERR no"),
				protocol.Integer(-3),
				protocol.BulkString("hi"),
				protocol.Nil,
			)

			Expect(protocol.WriteReply(w, reply)).To(Succeed())
			Expect(w.String()).To(Equal("*5\r\n+OK\r\n-ERR no\r\n:-3\r\n$2\r\nhi\r\n$-1\r\n"))
		})
	})
})
