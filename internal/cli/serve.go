package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	redisserver "github.com/raniellyferreira/redis-inmemory-server"
)

// serveConfig holds the serve command settings
type serveConfig struct {
	Port           int
	Bind           string
	ReplicaOf      string
	LogLevel       string
	MetricsAddr    string
	IdleTimeout    time.Duration
	ConnectTimeout time.Duration
	Shards         int
}

var (
	serveCmdConfig = &serveConfig{}
	serveCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the server",
		Long: `Start the server with the specified configuration. The configuration can be set via command line flags or environment variables. The format of the environment variables is REDIS_SERVER_<flag> (e.g. REDIS_SERVER_REPLICAOF="localhost 6379").

With --replicaof the server starts as a slave and performs the replication handshake with its master before accepting clients; a failed handshake exits with an error.`,
		PreRunE: processServeConfig,
		RunE:    runServe,
	}
)

func init() {
	key := "port"
	serveCmd.Flags().Int(key, 6379, WrapString("TCP port to listen on (0 picks a free port)"))

	key = "bind"
	serveCmd.Flags().String(key, "0.0.0.0", WrapString("Interface address to listen on"))

	key = "replicaof"
	serveCmd.Flags().String(key, "", WrapString("Run as a slave of the given master, formatted as \"<host> <port>\""))

	key = "log-level"
	serveCmd.Flags().String(key, "info", WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))

	key = "metrics-addr"
	serveCmd.Flags().String(key, "", WrapString("Address for the Prometheus /metrics endpoint (e.g. localhost:9121). Disabled when empty"))

	key = "idle-timeout"
	serveCmd.Flags().Duration(key, 0, WrapString("Close client connections idle for longer than this (0 disables)"))

	key = "connect-timeout"
	serveCmd.Flags().Duration(key, 5*time.Second, WrapString("Timeout for connecting to the master"))

	key = "shards"
	serveCmd.Flags().Int(key, 64, WrapString("Number of storage shards (rounded up to a power of two)"))
}

// processServeConfig reads flags and environment variables into serveCmdConfig
func processServeConfig(cmd *cobra.Command, args []string) error {
	if err := bindFlags(cmd, args); err != nil {
		return err
	}

	serveCmdConfig.Port = viper.GetInt("port")
	serveCmdConfig.Bind = viper.GetString("bind")
	serveCmdConfig.ReplicaOf = viper.GetString("replicaof")
	serveCmdConfig.LogLevel = viper.GetString("log-level")
	serveCmdConfig.MetricsAddr = viper.GetString("metrics-addr")
	serveCmdConfig.IdleTimeout = viper.GetDuration("idle-timeout")
	serveCmdConfig.ConnectTimeout = viper.GetDuration("connect-timeout")
	serveCmdConfig.Shards = viper.GetInt("shards")

	if _, err := redisserver.ParseLevel(serveCmdConfig.LogLevel); err != nil {
		return err
	}
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, *serveCmdConfig, cmd.OutOrStdout(), nil)
}

// serve runs a node until ctx is done. onStart, when set, is called once
// the node accepts clients, with the metrics address if one is served.
func serve(ctx context.Context, cfg serveConfig, out io.Writer, onStart func(*redisserver.Node, string)) error {
	level, err := redisserver.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := redisserver.NewLogger(level, out)
	set := metrics.NewSet()

	node, err := redisserver.New(
		redisserver.WithPort(cfg.Port),
		redisserver.WithBindAddr(cfg.Bind),
		redisserver.WithReplicaOf(cfg.ReplicaOf),
		redisserver.WithLogger(logger),
		redisserver.WithIdleTimeout(cfg.IdleTimeout),
		redisserver.WithConnectTimeout(cfg.ConnectTimeout),
		redisserver.WithShardCount(cfg.Shards),
		redisserver.WithMetricsSet(set),
	)
	if err != nil {
		return err
	}
	defer node.Close()

	if err := node.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	var metricsAddr string
	if cfg.MetricsAddr != "" {
		srv, addr, err := serveMetrics(cfg.MetricsAddr, set, logger)
		if err != nil {
			return err
		}
		metricsAddr = addr
		defer func() {
			shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shCtx)
		}()
		logger.Info("Metrics listening", redisserver.Field{Key: "addr", Value: addr})
	}

	if onStart != nil {
		onStart(node, metricsAddr)
	}

	<-ctx.Done()
	logger.Info("Shutting down", redisserver.Field{Key: "addr", Value: node.Addr()})
	return nil
}

// serveMetrics exposes set and the process metrics at /metrics
func serveMetrics(addr string, set *metrics.Set, logger redisserver.Logger) (*http.Server, string, error) {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, "", fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		set.WritePrometheus(w)
		metrics.WriteProcessMetrics(w)
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Metrics server failed", redisserver.Field{Key: "error", Value: err})
		}
	}()

	return srv, l.Addr().String(), nil
}
