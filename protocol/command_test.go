package protocol_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/luma/redisfast/protocol"
)

var _ = Describe("Commands", func() {
	Describe("ClassifyCommand()", func() {
		It("recognises the persistent commands regardless of case", func() {
			kind, ns := protocol.ClassifyCommand(protocol.Args("subscribe", "a"))
			Expect(kind).To(Equal(protocol.KindSubscribe))
			Expect(ns).To(Equal(protocol.Channels))
			Expect(kind.Persistent()).To(BeTrue())

			kind, ns = protocol.ClassifyCommand(protocol.Args("PSubscribe", "a*"))
			Expect(kind).To(Equal(protocol.KindSubscribe))
			Expect(ns).To(Equal(protocol.Patterns))

			kind, _ = protocol.ClassifyCommand(protocol.Args("MONITOR"))
			Expect(kind).To(Equal(protocol.KindMonitor))
			Expect(kind.Persistent()).To(BeTrue())
		})

		It("treats unsubscribe, reset and everything else as one shot", func() {
			kind, ns := protocol.ClassifyCommand(protocol.Args("SUNSUBSCRIBE"))
			Expect(kind).To(Equal(protocol.KindUnsubscribe))
			Expect(ns).To(Equal(protocol.ShardChannels))
			Expect(kind.Persistent()).To(BeFalse())

			kind, _ = protocol.ClassifyCommand(protocol.Args("reset"))
			Expect(kind).To(Equal(protocol.KindReset))

			kind, _ = protocol.ClassifyCommand(protocol.Args("GET", "subscribe"))
			Expect(kind).To(Equal(protocol.KindOrdinary))
		})
	})

	Describe("ParsePush()", func() {
		It("parses channel messages", func() {
			push, ok := protocol.ParsePush(protocol.Array(
				protocol.BulkString("message"), protocol.BulkString("news"), protocol.BulkString("hello"),
			))
			Expect(ok).To(BeTrue())
			Expect(push.Kind).To(Equal(protocol.PushMessage))
			Expect(push.Namespace).To(Equal(protocol.Channels))
			Expect(string(push.Name)).To(Equal("news"))
			Expect(push.Payload).To(Equal(protocol.BulkString("hello")))
		})

		It("parses pattern messages", func() {
			push, ok := protocol.ParsePush(protocol.Array(
				protocol.BulkString("pmessage"), protocol.BulkString("n*"),
				protocol.BulkString("news"), protocol.BulkString("hello"),
			))
			Expect(ok).To(BeTrue())
			Expect(push.Namespace).To(Equal(protocol.Patterns))
			Expect(string(push.Name)).To(Equal("n*"))
			Expect(string(push.Channel)).To(Equal("news"))
		})

		It("parses confirmations with their remaining count", func() {
			push, ok := protocol.ParsePush(protocol.Array(
				protocol.BulkString("punsubscribe"), protocol.Nil, protocol.Integer(0),
			))
			Expect(ok).To(BeTrue())
			Expect(push.Kind).To(Equal(protocol.PushUnsubscribe))
			Expect(push.Namespace).To(Equal(protocol.Patterns))
			Expect(push.Name).To(BeNil())
			Expect(push.Count).To(BeZero())
		})

		It("ignores arrays that only look similar", func() {
			_, ok := protocol.ParsePush(protocol.Array(protocol.BulkString("message"), protocol.BulkString("x")))
			Expect(ok).To(BeFalse())

			_, ok = protocol.ParsePush(protocol.Array(
				protocol.BulkString("subscribe"), protocol.BulkString("x"), protocol.BulkString("1"),
			))
			Expect(ok).To(BeFalse())

			_, ok = protocol.ParsePush(protocol.Status("message"))
			Expect(ok).To(BeFalse())
		})
	})
})
