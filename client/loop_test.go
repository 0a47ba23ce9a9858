package client_test

import (
	"sync"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/luma/redisfast/client"
)

var _ = Describe("Loop", func() {
	var loop *client.Loop

	BeforeEach(func() {
		loop = client.NewLoop(zap.NewNop())
	})

	AfterEach(func() {
		loop.Close()
	})

	It("runs functions in the order they were scheduled", func() {
		var (
			mu  sync.Mutex
			ran []int
		)

		for i := 0; i < 100; i++ {
			i := i
			loop.Schedule(func() {
				mu.Lock()
				ran = append(ran, i)
				mu.Unlock()
			})
		}

		loop.Close()

		Expect(ran).To(HaveLen(100))
		for i, n := range ran {
			Expect(n).To(Equal(i))
		}
	})

	It("lets scheduled functions schedule more", func() {
		done := make(chan struct{})

		loop.Schedule(func() {
			loop.Schedule(func() {
				close(done)
			})
		})

		Eventually(done, time.Second).Should(BeClosed())
	})

	It("survives a panicking function", func() {
		done := make(chan struct{})

		loop.Schedule(func() {
			panic("boom")
		})
		loop.Schedule(func() {
			close(done)
		})

		Eventually(done, time.Second).Should(BeClosed())
	})

	It("drops functions scheduled after Close", func() {
		loop.Close()

		ran := false
		loop.Schedule(func() { ran = true })

		Consistently(func() bool { return ran }, 50*time.Millisecond).Should(BeFalse())
	})
})
