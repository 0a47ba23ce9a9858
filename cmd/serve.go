package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	reuseport "github.com/kavu/go_reuseport"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/luma/redisfast/client"
	"github.com/luma/redisfast/internal/format"
	"github.com/luma/redisfast/protocol"
)

var (
	// The address to listen for http requests on
	httpAddr string

	errBadRequest = errors.New("bad request")
)

func init() {
	flags := ServeCmd.Flags()

	flags.StringVar(&httpAddr, "http-addr", "127.0.0.1:7380", "The address to listen to HTTP requests on")
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve an HTTP gateway that forwards commands to the server",
	Long: `Serve an HTTP gateway that forwards commands to the server

Every request is pipelined over a single connection.

Usage
	redisfast serve
	curl -d '{"args": ["SET", "k", "v"]}' localhost:7380/command

`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer signalStop()

		conf, log, err := loadEnv(ctx, cmd)
		if err != nil {
			return err
		}
		defer log.Sync() //nolint:errcheck

		if cmd.Flags().Changed("http-addr") {
			conf.HTTPAddr = httpAddr
		}

		fileLimit, err := setFileLimit()
		if err != nil {
			return err
		}

		log.Info("Set file limit", zap.Uint64("fileLimit", fileLimit))

		conn, disconnected, err := connect(ctx, conf, log)
		if err != nil {
			return err
		}
		defer conn.Close()

		router := setupRouter(conf.DebugHTTP, log)
		routeCommands(router, conn)

		listener, err := reuseport.Listen("tcp", conf.HTTPAddr)
		if err != nil {
			return err
		}

		s := &http.Server{
			Handler: router,
		}

		// Initializing the server in a goroutine so that
		// it won't block the graceful shutdown handling below
		go func() {
			if err := s.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("Http server errored", zap.Error(err))
			}
		}()

		serverHost, serverPort := conf.Server()
		log.Info("Listening",
			zap.String("httpAddr", conf.HTTPAddr),
			zap.String("host", serverHost),
			zap.Int("port", serverPort))

		// Listen for the interrupt signal, or losing the server
		select {
		case <-ctx.Done():
		case err = <-disconnected:
			log.Error("Lost the connection to the server", zap.Error(err))
			if err == nil {
				err = client.ErrDisconnected
			}
		}

		// Restore default behavior on the interrupt signal and notify user of shutdown.
		signalStop()
		log.Info("Shutting down gracefully, press Ctrl+C again to force")

		// The context is used to inform the server it has 5 seconds to finish
		// the request it is currently handling
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.SetKeepAlivesEnabled(false)

		if serr := s.Shutdown(shutdownCtx); serr != nil {
			log.Error("Http server forced to shutdown", zap.Error(serr))
		}

		log.Info("Exiting")
		return err
	},
}

func setupRouter(debugHTTP bool, log *zap.Logger) *gin.Engine {
	gin.DisableConsoleColor()
	if !debugHTTP {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// Add a ginzap middleware, which:
	//   - Logs all requests, like a combined access and error log.
	//   - RFC3339 with UTC time format.
	r.Use(ginzap.GinzapWithConfig(log, &ginzap.Config{
		TimeFormat: time.RFC3339,
		UTC:        true,
		SkipPaths:  []string{"/ping"},
	}))

	// Logs all panic to error log
	//   - stack means whether output the stack info.
	r.Use(ginzap.RecoveryWithZap(log, true))

	return r
}

func routeCommands(r *gin.Engine, conn *client.Conn) {
	r.GET("/ping", func(c *gin.Context) {
		if _, err := conn.Do(c.Request.Context(), "PING"); err != nil {
			c.String(http.StatusServiceUnavailable, err.Error())
			return
		}

		c.String(http.StatusOK, "pong")
	})

	r.POST("/command", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			writeJSONError(c, http.StatusBadRequest, err)
			return
		}

		args, err := parseCommandBody(body)
		if err != nil {
			writeJSONError(c, http.StatusBadRequest, err)
			return
		}

		reply, err := asReply(conn.Do(c.Request.Context(), args...))
		if err != nil {
			writeJSONError(c, http.StatusBadGateway, err)
			return
		}

		out, err := format.JSON(reply)
		if err != nil {
			writeJSONError(c, http.StatusInternalServerError, err)
			return
		}

		c.Data(http.StatusOK, "application/json; charset=utf-8", out)
	})
}

// parseCommandBody reads {"args": [...]}. Numbers and booleans are sent in
// their JSON text form.
func parseCommandBody(body []byte) ([]interface{}, error) {
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("%w: body is not valid JSON", errBadRequest)
	}

	result := gjson.GetBytes(body, "args")
	if !result.IsArray() {
		return nil, fmt.Errorf("%w: args must be an array", errBadRequest)
	}

	var args []interface{}
	result.ForEach(func(_, value gjson.Result) bool {
		args = append(args, value.String())
		return true
	})

	if len(args) == 0 {
		return nil, fmt.Errorf("%w: %s", errBadRequest, protocol.ErrEmptyCommand)
	}

	// A persistent command would keep its handler forever
	if kind, _ := protocol.ClassifyCommand(protocol.Args(args[0])); kind.Persistent() {
		return nil, fmt.Errorf("%w: %s is not supported over HTTP", errBadRequest, args[0])
	}

	return args, nil
}

func writeJSONError(c *gin.Context, status int, err error) {
	out, jerr := sjson.SetBytes([]byte(`{}`), "error", err.Error())
	if jerr != nil {
		c.String(http.StatusInternalServerError, jerr.Error())
		return
	}

	c.Data(status, "application/json; charset=utf-8", out)
}

func setFileLimit() (uint64, error) {
	var rLimit syscall.Rlimit

	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	rLimit.Cur = rLimit.Max
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		return 0, err
	}

	return rLimit.Cur, nil
}
