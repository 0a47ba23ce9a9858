package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/redisfast/client"
	"github.com/luma/redisfast/protocol"
)

const historyFileEnv = "REDISFAST_HISTFILE"

var historyFile string

func init() {
	flags := CliCmd.Flags()

	flags.StringVar(&historyFile, "history", "", "The history file, defaults to ~/.redisfast_history")
	flags.BoolVar(&outputJSON, "json", false, "Print replies as JSON")
	flags.BoolVar(&outputRaw, "raw", false, "Print replies raw even on a terminal")
}

var CliCmd = &cobra.Command{
	Use:   "cli",
	Short: "Interactive prompt, like redis-cli",
	Long: `Interactive prompt, like redis-cli

Arguments are split on spaces, use double quotes for arguments with spaces or
escapes such as "\x00". Type quit or press Ctrl-D to leave.

`,
	Args: cobra.NoArgs,
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

		line := liner.NewLiner()
		defer line.Close()

		line.SetCtrlCAborts(true)

		history := historyPath()
		if f, err := os.Open(history); err == nil {
			if _, err := line.ReadHistory(f); err != nil {
				log.Debug("Failed to read history", zap.Error(err))
			}
			f.Close()
		}

		defer func() {
			f, err := os.Create(history)
			if err != nil {
				log.Debug("Failed to save history", zap.Error(err))
				return
			}
			defer f.Close()

			if _, err := line.WriteHistory(f); err != nil {
				log.Debug("Failed to save history", zap.Error(err))
			}
		}()

		serverHost, serverPort := conf.Server()
		prompt := serverHost + "> "
		if serverPort != 0 {
			prompt = serverHost + ":" + strconv.Itoa(serverPort) + "> "
		}

		out := cmd.OutOrStdout()

		for {
			input, err := line.Prompt(prompt)
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}

			fields, err := splitArgs(input)
			if err != nil {
				fmt.Fprintln(out, "Invalid argument(s)")
				continue
			}

			if len(fields) == 0 {
				continue
			}

			line.AppendHistory(input)

			if strings.EqualFold(fields[0], "quit") || strings.EqualFold(fields[0], "exit") {
				return nil
			}

			args := toArgs(fields)

			if kind, _ := protocol.ClassifyCommand(args); kind.Persistent() {
				return streamReplies(ctx, cmd, conn, nil, args)
			}

			if err := runPrompted(ctx, conn, out, args); err != nil {
				return err
			}
		}
	},
}

func runPrompted(ctx context.Context, conn *client.Conn, out io.Writer, args [][]byte) error {
	values := make([]interface{}, len(args))
	for i, a := range args {
		values[i] = a
	}

	reply, err := asReply(conn.Do(ctx, values...))
	if errors.Is(err, client.ErrNotConnected) || errors.Is(err, client.ErrDisconnected) {
		return err
	}

	if err != nil {
		fmt.Fprintln(out, "(error)", err)
		return nil
	}

	text, err := render(reply)
	if err != nil {
		return err
	}

	fmt.Fprintln(out, text)

	return nil
}

func historyPath() string {
	if historyFile != "" {
		return historyFile
	}

	if path := os.Getenv(historyFileEnv); path != "" {
		return path
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".redisfast_history"
	}

	return filepath.Join(home, ".redisfast_history")
}
