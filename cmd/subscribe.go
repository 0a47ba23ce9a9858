package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/luma/redisfast/client"
	"github.com/luma/redisfast/protocol"
)

var SubscribeCmd = &cobra.Command{
	Use:   "subscribe <channel>...",
	Short: "Print messages published to channels until interrupted",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return stream(cmd, append([]string{"SUBSCRIBE"}, args...))
	},
}

var PSubscribeCmd = &cobra.Command{
	Use:   "psubscribe <pattern>...",
	Short: "Print messages published to channels matching patterns until interrupted",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return stream(cmd, append([]string{"PSUBSCRIBE"}, args...))
	},
}

var MonitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Print every command the server executes until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return stream(cmd, []string{"MONITOR"})
	},
}

func init() {
	for _, c := range []*cobra.Command{SubscribeCmd, PSubscribeCmd, MonitorCmd} {
		c.Flags().BoolVar(&outputJSON, "json", false, "Print replies as JSON")
		c.Flags().BoolVar(&outputRaw, "raw", false, "Print replies raw even on a terminal")
	}
}

func stream(cmd *cobra.Command, command []string) error {
	ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer signalStop()

	conf, log, err := loadEnv(ctx, cmd)
	if err != nil {
		return err
	}
	defer log.Sync() //nolint:errcheck

	conn, disconnected, err := connect(ctx, conf, log)
	if err != nil {
		return err
	}
	defer conn.Close()

	return streamReplies(ctx, cmd, conn, disconnected, toArgs(command))
}

// streamReplies submits a persistent command and prints every reply it
// receives until ctx is done, the server rejects it or the connection ends.
func streamReplies(ctx context.Context, cmd *cobra.Command, conn *client.Conn, disconnected <-chan error, args [][]byte) error {
	out := cmd.OutOrStdout()
	failed := make(chan error, 1)

	err := conn.Command(args, func(reply protocol.Reply, err error) {
		if err != nil {
			select {
			case failed <- err:
			default:
			}
			return
		}

		text, err := render(reply)
		if err != nil {
			return
		}

		fmt.Fprintln(out, text)
	})
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.ErrOrStderr(), "Reading messages... (press Ctrl-C to quit)")

	select {
	case <-ctx.Done():
		return nil

	case err := <-failed:
		return err

	case err := <-disconnected:
		return err
	}
}
