// File: internal/cli/cli.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Command line surface of hioload-jobs.
//
//	hioload-jobs
//	├── run      start the runtime and serve /metrics until SIGINT/SIGTERM
//	├── bench    push a burst of tasks and a parallel-for through the pool
//	├── alloc    exercise the allocation stack
//	└── status   print the effective config and runtime probes
//
// Every command takes --config/-c. A missing file at the default path
// falls back to built-in defaults.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/momentics/hioload-jobs/api"
	"github.com/momentics/hioload-jobs/control"
	"github.com/momentics/hioload-jobs/facade"
	"github.com/momentics/hioload-jobs/jobs"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

const (
	defaultConfigPath = "configs/default.yaml"
	version           = "0.3.0"
)

// BuildCLI returns the root command.
func BuildCLI() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "hioload-jobs",
		Short:         "hioload-jobs: job scheduling runtime with pooled memory",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", defaultConfigPath, "config file path")

	load := func(cmd *cobra.Command) (*control.Config, error) {
		return loadConfig(configFile, cmd.Flags().Changed("config"))
	}
	root.AddCommand(buildRunCommand(load))
	root.AddCommand(buildBenchCommand(load))
	root.AddCommand(buildAllocCommand(load))
	root.AddCommand(buildStatusCommand(load))
	return root
}

type configLoader func(cmd *cobra.Command) (*control.Config, error)

func loadConfig(path string, explicit bool) (*control.Config, error) {
	cfg, err := control.LoadConfig(path)
	if err == nil {
		return cfg, nil
	}
	if !explicit && errors.Is(err, fs.ErrNotExist) {
		return control.DefaultConfig(), nil
	}
	return nil, fmt.Errorf("failed to load config: %w", err)
}

func buildRunCommand(load configLoader) *cobra.Command {
	var statusEvery time.Duration

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the runtime and wait for a shutdown signal",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runSystem(ctx, cfg, statusEvery, cmd.ErrOrStderr())
		},
	}
	cmd.Flags().DurationVar(&statusEvery, "status-every", 10*time.Second, "interval of the status log line (0 disables)")
	return cmd
}

func runSystem(ctx context.Context, cfg *control.Config, statusEvery time.Duration, logOut io.Writer) error {
	rt, err := facade.New(cfg, facade.WithLogOutput(logOut))
	if err != nil {
		return err
	}
	defer rt.Shutdown()
	log := rt.Logger().Named("cli")

	var srv *http.Server
	if c := rt.Collector(); c != nil {
		mux := http.NewServeMux()
		mux.Handle("/metrics", c.Handler())
		srv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			log.Info("metrics listening", api.F("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", api.F("error", err))
			}
		}()
	}

	if statusEvery > 0 {
		tick, err := rt.Timers().Every(statusEvery, func() {
			st := rt.Pool().Stats()
			log.Info("status",
				api.F("executed", st.Executed),
				api.F("queued", st.Queued),
				api.F("companions", st.Companions),
				api.F("timers", rt.Scheduler().Dispatcher().Pending()))
		})
		if err != nil {
			return err
		}
		defer tick.Cancel()
	}

	<-ctx.Done()
	log.Info("received shutdown signal, stopping")

	if srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			log.Warn("metrics server shutdown", api.F("error", err))
		}
	}
	return nil
}

func buildBenchCommand(load configLoader) *cobra.Command {
	var (
		tasks     int
		producers int
		items     int
		batch     int
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Measure task throughput and parallel-for speed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			cfg.Metrics.Enabled = false
			return runBench(cmd.Context(), cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), tasks, producers, items, batch)
		},
	}
	cmd.Flags().IntVar(&tasks, "tasks", 100000, "tasks submitted in total")
	cmd.Flags().IntVar(&producers, "producers", 4, "concurrent submitting goroutines")
	cmd.Flags().IntVar(&items, "items", 1000000, "parallel-for range size")
	cmd.Flags().IntVar(&batch, "batch", 1000, "parallel-for batch size")
	return cmd
}

func runBench(ctx context.Context, cfg *control.Config, out, logOut io.Writer, tasks, producers, items, batch int) error {
	if tasks < 0 || producers <= 0 || items < 0 || batch <= 0 {
		return fmt.Errorf("bench: %w", api.ErrInvalidArgument)
	}
	rt, err := facade.New(cfg, facade.WithLogOutput(logOut))
	if err != nil {
		return err
	}
	defer rt.Shutdown()

	var done atomic.Int64
	group := jobs.NewJobGroup(rt.Pool())
	start := time.Now()
	g, _ := errgroup.WithContext(ctx)
	per := tasks / producers
	for p := 0; p < producers; p++ {
		n := per
		if p == producers-1 {
			n = tasks - per*(producers-1)
		}
		g.Go(func() error {
			for i := 0; i < n; i++ {
				group.PushJob(func(*jobs.TaskContext) { done.Add(1) })
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	group.Wait(nil)
	taskTime := time.Since(start)

	var sum atomic.Int64
	pf := jobs.NewParallelForJob(rt.Pool())
	start = time.Now()
	pf.Run(nil, items, batch, func(_ *jobs.TaskContext, s, e int) {
		var local int64
		for i := s; i < e; i++ {
			local += int64(i)
		}
		sum.Add(local)
	})
	forTime := time.Since(start)

	fmt.Fprintf(out, "workers:       %d\n", rt.Pool().WorkerCount())
	fmt.Fprintf(out, "tasks:         %d in %v (%.0f/s)\n", done.Load(), taskTime, rate(done.Load(), taskTime))
	fmt.Fprintf(out, "parallel-for:  %d items, %d lists in %v\n", items, pf.NumTaskLists()+1, forTime)
	fmt.Fprintf(out, "checksum:      %d\n", sum.Load())
	return nil
}

func rate(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}

func buildAllocCommand(load configLoader) *cobra.Command {
	var (
		count int
		size  int
	)

	cmd := &cobra.Command{
		Use:   "alloc",
		Short: "Allocate and free blocks through the memory stack",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			cfg.Metrics.Enabled = false
			return runAlloc(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr(), count, size)
		},
	}
	cmd.Flags().IntVar(&count, "count", 10000, "blocks to allocate")
	cmd.Flags().IntVar(&size, "size", 64, "block size in bytes")
	return cmd
}

func runAlloc(cfg *control.Config, out, logOut io.Writer, count, size int) error {
	if count < 0 || size <= 0 {
		return fmt.Errorf("alloc: %w", api.ErrInvalidArgument)
	}
	rt, err := facade.New(cfg, facade.WithLogOutput(logOut))
	if err != nil {
		return err
	}
	defer rt.Shutdown()

	res := rt.Resource()
	blocks := make([][]byte, 0, count)
	start := time.Now()
	for i := 0; i < count; i++ {
		b, err := res.Allocate(size, 0)
		if err != nil {
			for _, b := range blocks {
				res.Deallocate(b)
			}
			return fmt.Errorf("alloc: block %d: %w", i, err)
		}
		blocks = append(blocks, b)
	}
	peak, err := yaml.Marshal(rt.Probes().DumpState()["memory.arena"])
	for _, b := range blocks {
		res.Deallocate(b)
	}
	if err != nil {
		return fmt.Errorf("alloc: arena stats: %w", err)
	}
	elapsed := time.Since(start)

	fmt.Fprintf(out, "allocated %d x %d bytes in %v\n", count, size, elapsed)
	fmt.Fprintf(out, "arena at peak:\n%s", peak)
	return nil
}

func buildStatusCommand(load configLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Print the effective config and runtime probes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load(cmd)
			if err != nil {
				return err
			}
			cfg.Metrics.Enabled = false
			return printStatus(cfg, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}

func printStatus(cfg *control.Config, out, logOut io.Writer) error {
	rt, err := facade.New(cfg, facade.WithLogOutput(logOut))
	if err != nil {
		return err
	}
	defer rt.Shutdown()

	doc, err := yaml.Marshal(rt.Config())
	if err != nil {
		return err
	}
	probes, err := rt.Probes().DumpYAML()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "config:\n%s\nprobes:\n%s", indent(doc), indent(probes))
	return nil
}

func indent(b []byte) string {
	var out []byte
	lineStart := true
	for _, c := range b {
		if lineStart {
			out = append(out, ' ', ' ')
		}
		out = append(out, c)
		lineStart = c == '\n'
	}
	return string(out)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
