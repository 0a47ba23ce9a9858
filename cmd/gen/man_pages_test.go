package gen

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
)

var _ = Describe("documentation", func() {
	var (
		dir  string
		out  *bytes.Buffer
		root *cobra.Command
	)

	BeforeEach(func() {
		var err error
		dir, err = os.MkdirTemp("", "redisfast-gen")
		Expect(err).To(Succeed())

		out = &bytes.Buffer{}

		root = &cobra.Command{Use: "redisfast"}
		root.PersistentFlags().String("host", "127.0.0.1", "Server hostname")
		root.AddCommand(
			&cobra.Command{Use: "exec", Short: "Run one command", Run: func(*cobra.Command, []string) {}},
			&cobra.Command{Use: "subscribe", Short: "Stream channel messages", Run: func(*cobra.Command, []string) {}},
		)
	})

	AfterEach(func() {
		Expect(os.RemoveAll(dir)).To(Succeed())
	})

	It("writes a man page per command", func() {
		target := filepath.Join(dir, "man1")
		Expect(writeManPages(root, target, out)).To(Succeed())

		for _, name := range []string{"redisfast.1", "redisfast-exec.1", "redisfast-subscribe.1"} {
			Expect(filepath.Join(target, name)).To(BeARegularFile())
		}

		page, err := os.ReadFile(filepath.Join(target, "redisfast-subscribe.1"))
		Expect(err).To(Succeed())
		Expect(string(page)).To(ContainSubstring("Stream channel messages"))
		Expect(string(page)).To(ContainSubstring("redisfast Manual"))
		Expect(string(page)).To(ContainSubstring("host"))

		Expect(out.String()).To(ContainSubstring("Creating " + target))
		Expect(out.String()).To(ContainSubstring("Wrote man pages to " + target))
	})

	It("writes markdown pages into an existing directory", func() {
		Expect(writeMarkdown(root, dir, out)).To(Succeed())

		Expect(filepath.Join(dir, "redisfast.md")).To(BeARegularFile())
		Expect(filepath.Join(dir, "redisfast_exec.md")).To(BeARegularFile())
		Expect(out.String()).NotTo(ContainSubstring("Creating"))
	})

	It("leaves the gen commands out of the documented tree", func() {
		root.AddCommand(RootCmd)
		Expect(documented(ManPagesCmd)).To(BeIdenticalTo(root))

		for _, c := range root.Commands() {
			Expect(c.Name()).NotTo(Equal("gen"))
		}
		Expect(root.DisableAutoGenTag).To(BeTrue())
	})
})
