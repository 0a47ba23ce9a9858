package cmd

import (
	"errors"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"

	"github.com/luma/redisfast/protocol"
)

var _ = Describe("splitArgs", func() {
	DescribeTable("splits",
		func(line string, expected []string) {
			args, err := splitArgs(line)
			Expect(err).To(Succeed())
			Expect(args).To(Equal(expected))
		},
		Entry("empty line", "   ", nil),
		Entry("plain words", "SET  k v", []string{"SET", "k", "v"}),
		Entry("double quotes", `SET k "hello world"`, []string{"SET", "k", "hello world"}),
		Entry("empty quoted argument", `SET k ""`, []string{"SET", "k", ""}),
		Entry("escapes", `SET k "a\"b\n\x00\xff"`, []string{"SET", "k", "a\"b\n\x00\xff"}),
		Entry("single quotes", `SET k 'it\'s "raw" \n'`, []string{"SET", "k", `it's "raw" \n`}),
		Entry("tabs", "GET\tk", []string{"GET", "k"}),
	)

	DescribeTable("rejects",
		func(line string) {
			_, err := splitArgs(line)
			Expect(err).To(MatchError(errUnbalancedQuotes))
		},
		Entry("unterminated double quote", `SET k "abc`),
		Entry("unterminated single quote", `SET k 'abc`),
		Entry("text after a closing quote", `SET k "abc"def`),
	)
})

var _ = Describe("asReply", func() {
	It("turns server errors into error replies", func() {
		reply, err := asReply(protocol.Nil, &protocol.ReplyError{Message: "ERR nope"})
		Expect(err).To(Succeed())
		Expect(reply).To(Equal(protocol.ErrorReply("ERR nope")))
	})

	It("keeps other errors", func() {
		failure := errors.New("boom")
		_, err := asReply(protocol.Nil, failure)
		Expect(err).To(Equal(failure))
	})

	It("passes replies through", func() {
		reply, err := asReply(protocol.Status("OK"), nil)
		Expect(err).To(Succeed())
		Expect(reply.String()).To(Equal("OK"))
	})
})
