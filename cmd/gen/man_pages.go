package gen

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/luma/redisfast/internal/meta"
)

var (
	manDir      string
	markdownDir string
)

var ManPagesCmd = &cobra.Command{
	Use:   "man",
	Short: "Write section 1 man pages, one per redisfast command",
	Long: `Write section 1 man pages, one per redisfast command

Every page lists the RESP command syntax accepted by the command and the
persistent connection flags. Pages are named after the command path, e.g.
redisfast-subscribe.1.

Usage
	redisfast gen man --dir /usr/local/share/man/man1
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeManPages(documented(cmd), manDir, cmd.OutOrStdout())
	},
}

var MarkdownCmd = &cobra.Command{
	Use:   "markdown",
	Short: "Write markdown pages, one per redisfast command",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return writeMarkdown(documented(cmd), markdownDir, cmd.OutOrStdout())
	},
}

func init() {
	ManPagesCmd.Flags().StringVar(&manDir, "dir", "man", "The directory to write the man pages to")
	MarkdownCmd.Flags().StringVar(&markdownDir, "dir", "docs", "The directory to write the markdown pages to")

	for _, c := range []*cobra.Command{ManPagesCmd, MarkdownCmd} {
		// For bash-completion
		if err := c.Flags().SetAnnotation("dir", cobra.BashCompSubdirsInDir, []string{}); err != nil {
			panic(err)
		}
	}
}

func writeManPages(root *cobra.Command, dir string, out io.Writer) error {
	if err := prepareDir(out, dir); err != nil {
		return err
	}

	header := &doc.GenManHeader{
		Section: "1",
		Manual:  "redisfast Manual",
		Source:  fmt.Sprintf("redisfast %s", meta.Version),
	}

	if err := doc.GenManTree(root, header, dir); err != nil {
		return fmt.Errorf("failed to write man pages: %w", err)
	}

	fmt.Fprintln(out, "Wrote man pages to", dir)

	return nil
}

func writeMarkdown(root *cobra.Command, dir string, out io.Writer) error {
	if err := prepareDir(out, dir); err != nil {
		return err
	}

	if err := doc.GenMarkdownTree(root, dir); err != nil {
		return fmt.Errorf("failed to write markdown pages: %w", err)
	}

	fmt.Fprintln(out, "Wrote markdown pages to", dir)

	return nil
}
