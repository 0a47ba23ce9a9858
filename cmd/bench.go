package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"github.com/luma/redisfast/client"
	"github.com/luma/redisfast/protocol"
)

var (
	benchRepeats  []int
	benchRate     float64
	benchCooldown time.Duration
)

type benchTest struct {
	description string
	args        [][]byte
}

var benchTests = []benchTest{
	{"PING command", protocol.Args("PING")},
	{"INCR command", protocol.Args("INCR", "INCR:TMP")},
	{"GET command", protocol.Args("GET", "INCR:TMP")},
	{"HGET command", protocol.Args("HGET", "hset:1", "a")},
	{"HGETALL command", protocol.Args("HGETALL", "hset:1")},
	{"ZRANGE 0 4 command", protocol.Args("ZRANGE", "zset:1", 0, 4)},
}

// benchSeed creates the keys the tests read
var benchSeed = [][][]byte{
	protocol.Args("HMSET", "hset:1", "a", 1, "b", 2, "c", 3),
	protocol.Args("ZADD", "zset:1", 1, "a", 2, "b", 3, "c", 4, "d"),
}

func init() {
	flags := BenchCmd.Flags()

	flags.IntSliceVarP(&benchRepeats, "repeat", "n", []int{1000, 5000, 10000, 25000}, "How many times each command is pipelined, per round")
	flags.Float64Var(&benchRate, "rate", 0, "Limit submissions to this many commands per second, 0 for no limit")
	flags.DurationVar(&benchCooldown, "cooldown", 0, "Pause between tests")
}

var BenchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Measure pipelined throughput of a few common commands",
	Long: `Measure pipelined throughput of a few common commands

Each command is submitted --repeat times without waiting for replies, the
test completes when the last reply arrived. Writes hset:1, zset:1 and
INCR:TMP.

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

		if err := seed(ctx, conn); err != nil {
			return fmt.Errorf("failed to create bench keys: %w", err)
		}

		var limiter *rate.Limiter
		if benchRate > 0 {
			limiter = rate.NewLimiter(rate.Limit(benchRate), 1)
		}

		out := cmd.OutOrStdout()
		rule := strings.Repeat("=", 49)

		fmt.Fprintln(out, rule)

		for _, repeat := range benchRepeats {
			if repeat <= 0 {
				continue
			}

			for _, test := range benchTests {
				fmt.Fprintf(out, "===\nStart test: %s %d times\n", test.description, repeat)

				elapsed, failures, err := runBench(ctx, conn, limiter, test.args, repeat)
				if err != nil {
					return err
				}

				fmt.Fprintf(out, "Test complete in %s, speed %.2f in second, %d errors\n",
					elapsed.Round(time.Microsecond),
					float64(repeat)/elapsed.Seconds(),
					failures)

				if benchCooldown > 0 {
					select {
					case <-time.After(benchCooldown):
					case <-ctx.Done():
						return nil
					}
				}
			}
		}

		fmt.Fprintln(out, rule)

		return nil
	},
}

func seed(ctx context.Context, conn *client.Conn) error {
	done := make(chan error, 1)

	conn.Batch(benchSeed, func(_ []protocol.Reply, errs []error) {
		done <- multierr.Combine(errs...)
	})

	select {
	case err := <-done:
		return err

	case <-ctx.Done():
		return ctx.Err()
	}
}

// runBench pipelines args repeat times and waits for every reply.
func runBench(ctx context.Context, conn *client.Conn, limiter *rate.Limiter, args [][]byte, repeat int) (time.Duration, int64, error) {
	if repeat <= 0 {
		return 0, 0, nil
	}

	var (
		completed int64
		failures  int64
		done      = make(chan struct{})
	)

	onComplete := func(_ protocol.Reply, err error) {
		if err != nil {
			atomic.AddInt64(&failures, 1)
		}

		if atomic.AddInt64(&completed, 1) == int64(repeat) {
			close(done)
		}
	}

	start := time.Now()

	for n := 0; n < repeat; n++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return 0, 0, err
			}
		}

		if err := conn.Command(args, onComplete); err != nil {
			return 0, 0, err
		}
	}

	select {
	case <-done:
	case <-ctx.Done():
		return 0, 0, ctx.Err()
	}

	return time.Since(start), atomic.LoadInt64(&failures), nil
}
