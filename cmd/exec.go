package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func init() {
	flags := ExecCmd.Flags()

	flags.BoolVar(&outputJSON, "json", false, "Print the reply as JSON")
	flags.BoolVar(&outputRaw, "raw", false, "Print the reply raw even on a terminal")
}

var ExecCmd = &cobra.Command{
	Use:   "exec <command> [arg...]",
	Short: "Run one command and print its reply",
	Long: `Run one command and print its reply

Usage
	redisfast exec SET greeting hello
	redisfast exec --json HGETALL hset:1

`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		conf, log, err := loadEnv(ctx, cmd)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		conn, _, err := connect(ctx, conf, log)
		if err != nil {
			return err
		}
		defer conn.Close()

		values := make([]interface{}, len(args))
		for i, a := range args {
			values[i] = a
		}

		reply, err := asReply(conn.Do(ctx, values...))
		if err != nil {
			return err
		}

		out, err := render(reply)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), out)

		return nil
	},
}
