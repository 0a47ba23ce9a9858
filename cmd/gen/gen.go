package gen

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var RootCmd = &cobra.Command{
	Use:   "gen",
	Short: "Generate reference documentation for the redisfast commands",
	Long: `Generate reference documentation for every redisfast subcommand

The pages cover exec, cli, bench, subscribe, psubscribe, monitor and serve,
including the connection flags (--host, --port, --env-file) they share.`,
}

func init() {
	RootCmd.AddCommand(ManPagesCmd)
	RootCmd.AddCommand(MarkdownCmd)
}

// prepareDir creates dir when it is missing.
func prepareDir(out io.Writer, dir string) error {
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	fmt.Fprintln(out, "Creating", dir)

	return os.MkdirAll(dir, 0750)
}

// documented returns the root of the command tree without the gen commands
// themselves, which only matter to whoever packages redisfast.
func documented(cmd *cobra.Command) *cobra.Command {
	root := cmd.Root()
	root.DisableAutoGenTag = true
	root.RemoveCommand(RootCmd)

	return root
}
