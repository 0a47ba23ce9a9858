package format_test

import (
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/redisfast/internal/format"
	"github.com/luma/redisfast/protocol"
)

var nested = protocol.Array(
	protocol.BulkString("a"),
	protocol.Array(protocol.Integer(1), protocol.Nil),
	protocol.Status("OK"),
)

var _ = Describe("format", func() {
	DescribeTable("Pretty",
		func(r protocol.Reply, expected string) {
			Expect(format.Pretty(r)).To(Equal(expected))
		},
		Entry("status", protocol.Status("OK"), "OK"),
		Entry("error", protocol.ErrorReply("ERR unknown command"), "(error) ERR unknown command"),
		Entry("integer", protocol.Integer(-3), "(integer) -3"),
		Entry("nil", protocol.Nil, "(nil)"),
		Entry("bulk", protocol.Bulk([]byte("a \"b\"\n\x00")), `"a \"b\"\n\x00"`),
		Entry("empty array", protocol.Array(), "(empty array)"),
		Entry("nested array", nested, "1) \"a\"\n2) 1) (integer) 1\n   2) (nil)\n3) OK"),
	)

	It("aligns indexes of long arrays", func() {
		elems := make([]protocol.Reply, 10)
		for i := range elems {
			elems[i] = protocol.Integer(int64(i))
		}

		out := format.Pretty(protocol.Array(elems...))
		Expect(out).To(HavePrefix(" 1) (integer) 0\n"))
		Expect(out).To(HaveSuffix("\n10) (integer) 9"))
	})

	DescribeTable("Raw",
		func(r protocol.Reply, expected string) {
			Expect(format.Raw(r)).To(Equal(expected))
		},
		Entry("status", protocol.Status("OK"), "OK"),
		Entry("integer", protocol.Integer(42), "42"),
		Entry("bulk", protocol.BulkString("hello world"), "hello world"),
		Entry("nested array", nested, "a\n1\n\nOK"),
	)

	DescribeTable("JSON",
		func(r protocol.Reply, expected string) {
			out, err := format.JSON(r)
			Expect(err).To(Succeed())
			Expect(out).To(MatchJSON(expected))
		},
		Entry("status", protocol.Status("OK"), `{"reply":"OK"}`),
		Entry("error", protocol.ErrorReply("WRONGTYPE bad"), `{"error":"WRONGTYPE bad"}`),
		Entry("nil", protocol.Nil, `{"reply":null}`),
		Entry("quotes", protocol.BulkString(`say "hi"`), `{"reply":"say \"hi\""}`),
		Entry("nested array", nested, `{"reply":["a",[1,null],"OK"]}`),
		Entry("empty array", protocol.Array(), `{"reply":[]}`),
	)
})
