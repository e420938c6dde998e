package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/raniellyferreira/redis-inmemory-server/client"
)

// benchConfig holds the bench command settings
type benchConfig struct {
	Addr     string
	Clients  int
	Requests int
	PoolSize int
	DataSize int
	Timeout  time.Duration
}

// benchResult is the outcome of one benchmarked command
type benchResult struct {
	Name     string
	Requests int64
	Errors   int64
	Elapsed  time.Duration
}

// RequestsPerSecond returns the throughput of successful requests
func (r benchResult) RequestsPerSecond() float64 {
	if r.Elapsed <= 0 {
		return 0
	}
	return float64(r.Requests-r.Errors) / r.Elapsed.Seconds()
}

func (r benchResult) String() string {
	return fmt.Sprintf("%-4s %d requests in %s, %d errors, %.2f requests per second",
		r.Name+":", r.Requests, r.Elapsed.Round(time.Millisecond), r.Errors, r.RequestsPerSecond())
}

var benchCmd = &cobra.Command{
	Use:     "bench",
	Short:   "Measure SET/GET throughput of a server",
	PreRunE: bindFlags,
	RunE:    runBench,
}

func init() {
	key := "addr"
	benchCmd.Flags().String(key, "localhost:6379", WrapString("Address of the server"))

	key = "clients"
	benchCmd.Flags().Int(key, 10, WrapString("Number of concurrent clients"))

	key = "requests"
	benchCmd.Flags().Int(key, 10000, WrapString("Total number of requests per command"))

	key = "pool-size"
	benchCmd.Flags().Int(key, 10, WrapString("Maximum number of pooled connections"))

	key = "data-size"
	benchCmd.Flags().Int(key, 3, WrapString("Size of the SET value in bytes"))

	key = "timeout"
	benchCmd.Flags().Duration(key, 5*time.Second, WrapString("Read and write timeout per request"))
}

func runBench(cmd *cobra.Command, _ []string) error {
	cfg := benchConfig{
		Addr:     viper.GetString("addr"),
		Clients:  viper.GetInt("clients"),
		Requests: viper.GetInt("requests"),
		PoolSize: viper.GetInt("pool-size"),
		DataSize: viper.GetInt("data-size"),
		Timeout:  viper.GetDuration("timeout"),
	}
	if cfg.Clients <= 0 || cfg.Requests <= 0 || cfg.PoolSize <= 0 || cfg.DataSize < 0 {
		return fmt.Errorf("clients, requests and pool-size must be positive, data-size non-negative")
	}

	_, err := bench(cmd.Context(), cfg, cmd.OutOrStdout())
	return err
}

// bench runs SET then GET against cfg.Addr and prints one line per command
func bench(ctx context.Context, cfg benchConfig, out io.Writer) ([]benchResult, error) {
	p := client.NewPool(ctx, cfg.Addr, cfg.PoolSize,
		client.WithReadTimeout(cfg.Timeout),
		client.WithWriteTimeout(cfg.Timeout),
	)
	defer p.Close(ctx)

	// Fail fast when the server is unreachable
	if _, err := p.Do(ctx, "PING"); err != nil {
		return nil, fmt.Errorf("failed to reach %s: %w", cfg.Addr, err)
	}

	value := strings.Repeat("x", cfg.DataSize)
	key := func(i int) string { return "bench:" + strconv.Itoa(i%1000) }

	fmt.Fprintf(out, "Benchmarking %s with %d clients, %d requests, pool size %d\n",
		cfg.Addr, cfg.Clients, cfg.Requests, cfg.PoolSize)

	results := []benchResult{
		benchCommand(ctx, "SET", cfg, func(i int) error {
			reply, err := p.Do(ctx, "SET", key(i), value)
			if err == nil && reply.IsError() {
				err = reply
			}
			return err
		}),
		benchCommand(ctx, "GET", cfg, func(i int) error {
			reply, err := p.Do(ctx, "GET", key(i))
			if err == nil && reply.IsError() {
				err = reply
			}
			return err
		}),
	}

	for _, r := range results {
		fmt.Fprintln(out, r.String())
	}
	return results, nil
}

// benchCommand spreads cfg.Requests calls of fn over cfg.Clients goroutines
func benchCommand(ctx context.Context, name string, cfg benchConfig, fn func(i int) error) benchResult {
	var (
		next   atomic.Int64
		errs   atomic.Int64
		issued atomic.Int64
		wg     sync.WaitGroup
	)

	start := time.Now()
	for c := 0; c < cfg.Clients; c++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i := next.Add(1) - 1
				if i >= int64(cfg.Requests) || ctx.Err() != nil {
					return
				}
				issued.Add(1)
				if err := fn(int(i)); err != nil {
					errs.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	return benchResult{
		Name:     name,
		Requests: issued.Load(),
		Errors:   errs.Load(),
		Elapsed:  time.Since(start),
	}
}
