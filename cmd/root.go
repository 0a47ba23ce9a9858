package cmd

import (
	"context"
	"errors"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/redisfast/client"
	"github.com/luma/redisfast/cmd/gen"
	"github.com/luma/redisfast/internal/env"
	"github.com/luma/redisfast/internal/format"
	"github.com/luma/redisfast/protocol"
	"github.com/luma/redisfast/transport"
)

var (
	// Path of an optional YAML config file
	configFile string

	// The server to connect to, these override the config
	host     string
	port     int
	socket   string
	logLevel string
	logFile  string

	// Output modes for replies
	outputJSON bool
	outputRaw  bool
)

var RootCmd = &cobra.Command{
	Use:   "redisfast",
	Short: "An asynchronous, pipelining Redis client",
	Long: `An asynchronous, pipelining Redis client

Connection settings come from REDISFAST_* environment variables, .env.local,
an optional YAML config file and finally the flags below.`,
	SilenceUsage: true,
}

func init() {
	flags := RootCmd.PersistentFlags()

	flags.StringVarP(&configFile, "config", "c", "", "A YAML config file")
	flags.StringVar(&host, "host", "127.0.0.1", "The server host, a path starting with / is a unix socket")
	flags.IntVarP(&port, "port", "p", 6379, "The server port")
	flags.StringVarP(&socket, "socket", "s", "", "The server unix socket, overrides host and port")
	flags.StringVar(&logLevel, "log-level", "info", "The log level")
	flags.StringVar(&logFile, "log-file", "", "Write logs to this file, rotated, instead of stderr")

	RootCmd.AddCommand(ExecCmd)
	RootCmd.AddCommand(CliCmd)
	RootCmd.AddCommand(BenchCmd)
	RootCmd.AddCommand(SubscribeCmd)
	RootCmd.AddCommand(PSubscribeCmd)
	RootCmd.AddCommand(MonitorCmd)
	RootCmd.AddCommand(ServeCmd)
	RootCmd.AddCommand(VersionCmd)
	RootCmd.AddCommand(gen.RootCmd)
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadEnv loads the config, applies flags that were set explicitly and
// builds the logger.
func loadEnv(ctx context.Context, cmd *cobra.Command) (*env.Config, *zap.Logger, error) {
	conf, err := env.LoadConfig(ctx, configFile)
	if err != nil {
		return nil, nil, err
	}

	flags := cmd.Flags()

	if flags.Changed("host") {
		conf.Host = host
	}

	if flags.Changed("port") {
		conf.Port = port
	}

	if flags.Changed("socket") {
		conf.Socket = socket
	}

	if flags.Changed("log-level") {
		conf.LogLevel = logLevel
	}

	if flags.Changed("log-file") {
		conf.LogFile = logFile
	}

	log, err := env.MakeLogger(conf)
	if err != nil {
		return nil, nil, err
	}

	return conf, log, nil
}

// connect dials the configured server and waits until the connection is up.
// The returned channel receives the reason the connection ended.
func connect(ctx context.Context, conf *env.Config, log *zap.Logger) (*client.Conn, <-chan error, error) {
	conn := client.New(client.Options{
		Dialer: transport.NewTCP(transport.Options{
			DialTimeout: conf.DialTimeout,
			KeepAlive:   conf.KeepAlive,
			Log:         log.Named("transport"),
		}),
		Log: log.Named("client"),
	})

	connected := make(chan error, 1)
	disconnected := make(chan error, 1)

	serverHost, serverPort := conf.Server()

	err := conn.Connect(ctx, serverHost, serverPort,
		func(err error) { connected <- err },
		func(err error) { disconnected <- err })
	if err != nil {
		conn.Close()
		return nil, nil, err
	}

	select {
	case err := <-connected:
		if err != nil {
			conn.Close()
			return nil, nil, err
		}

	case <-ctx.Done():
		conn.Close()
		return nil, nil, ctx.Err()
	}

	log.Debug("Connected", zap.String("host", serverHost), zap.Int("port", serverPort))

	return conn, disconnected, nil
}

// asReply turns a server error back into an error reply so it can be
// printed, other errors are returned.
func asReply(reply protocol.Reply, err error) (protocol.Reply, error) {
	var replyErr *protocol.ReplyError
	if errors.As(err, &replyErr) {
		return protocol.ErrorReply(replyErr.Message), nil
	}
	return reply, err
}

// render formats a reply for stdout: JSON when asked, redis-cli style on a
// terminal and raw otherwise.
func render(reply protocol.Reply) (string, error) {
	switch {
	case outputJSON:
		out, err := format.JSON(reply)
		return string(out), err

	case outputRaw:
		return format.Raw(reply), nil

	case isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()):
		return format.Pretty(reply), nil

	default:
		return format.Raw(reply), nil
	}
}

func toArgs(values []string) [][]byte {
	args := make([][]byte, len(values))
	for i, v := range values {
		args[i] = []byte(v)
	}
	return args
}
