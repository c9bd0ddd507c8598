package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrescamacho/carfactory-go/internal/adapters/events"
	factorygrpc "github.com/andrescamacho/carfactory-go/internal/adapters/grpc"
	"github.com/andrescamacho/carfactory-go/internal/adapters/logging"
	"github.com/andrescamacho/carfactory-go/internal/adapters/metrics"
	"github.com/andrescamacho/carfactory-go/internal/adapters/persistence"
	"github.com/andrescamacho/carfactory-go/internal/application/common"
	"github.com/andrescamacho/carfactory-go/internal/application/factory"
	"github.com/andrescamacho/carfactory-go/internal/domain/shared"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/config"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/database"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/pidfile"
	"github.com/andrescamacho/carfactory-go/pkg/utils"
)

// RunOptions are the `run` flags that override configuration
type RunOptions struct {
	Duration time.Duration
	Seed     uint64
	NoPID    bool
}

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	var opts RunOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the car factory",
		Long: `Start every agent of the factory and run until interrupted.

The order book generates orders, dispatches them round robin to the
production lines, workers build cars with parts drawn from their
inventory, and inventories restock themselves. Every assembled car and
every restock is written to the production ledger.

While running, the factory exposes:
  - Prometheus metrics (metrics.enabled)
  - the gRPC health service (daemon.address)
  - AMQP completion events (events.amqp_url)

Examples:
  carfactory run
  carfactory run --duration 5m --seed 42
  carfactory run --config ./configs/factory.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if opts.Seed != 0 {
				cfg.Factory.Seed = opts.Seed
			}
			if opts.NoPID {
				cfg.Daemon.PIDFile = ""
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return RunFactory(ctx, cmd.OutOrStdout(), cfg, opts)
		},
	}

	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	cmd.Flags().Uint64Var(&opts.Seed, "seed", 0, "Random seed (overrides factory.seed)")
	cmd.Flags().BoolVar(&opts.NoPID, "no-pid-file", false, "Do not take the PID file lock")

	return cmd
}

// RunFactory runs one factory until ctx ends or opts.Duration elapses, then
// shuts it down and prints a summary to out.
func RunFactory(ctx context.Context, out io.Writer, cfg *config.Config, opts RunOptions) error {
	logger, err := logging.NewConsoleLogger(cfg.Logging, nil)
	if err != nil {
		return err
	}
	defer logger.Close()
	ctx = common.WithLogger(ctx, logger)

	clock := shared.NewRealClock()
	runID := utils.GenerateRunID(clock.Now())

	if cfg.Daemon.PIDFile != "" {
		pf := pidfile.New(cfg.Daemon.PIDFile)
		if err := pf.Acquire(runID); err != nil {
			return err
		}
		defer func() {
			if err := pf.Release(); err != nil {
				logger.Log(common.LevelWarn, "Failed to release PID file", map[string]interface{}{"error": err.Error()})
			}
		}()
	}

	db, err := database.OpenLedger(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open ledger: %w", err)
	}
	defer database.Close(db)
	ledger := persistence.NewGormLedgerRepository(db)
	sinks := []factory.Sink{ledger}

	if cfg.Events.Enabled() {
		publisher, err := events.Dial(cfg.Events)
		if err != nil {
			return err
		}
		defer publisher.Close()
		sinks = append(sinks, publisher)
		logger.Log(common.LevelInfo, "Publishing events", map[string]interface{}{"exchange": cfg.Events.Exchange})
	}

	f, err := factory.Build(cfg.Factory, factory.BuildOptions{
		Clock: clock,
		RunID: runID,
		Sinks: sinks,
	})
	if err != nil {
		return fmt.Errorf("failed to build factory: %w", err)
	}

	if cfg.Metrics.Enabled {
		stopMetrics, err := startMetrics(ctx, cfg.Metrics, f, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	var health *factorygrpc.HealthServer
	if cfg.Daemon.Address != "" {
		health, err = factorygrpc.NewHealthServer(cfg.Daemon.Address)
		if err != nil {
			return err
		}
		health.Start()
		defer health.Stop()
		logger.Log(common.LevelInfo, "Health service listening", map[string]interface{}{"address": health.Addr()})
	}

	// Agents outlive the signal; Shutdown below is their only teardown path
	if err := f.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("failed to start factory: %w", err)
	}
	if health != nil {
		health.SetServing(true)
	}

	fmt.Fprintf(out, "Factory running (run %s, seed %d)\n", runID, f.Seed())
	waitErr := wait(ctx, out, f, cfg.Daemon.StatusInterval, opts.Duration, health)

	if health != nil {
		health.SetServing(false)
	}

	// Agents answer snapshot queries until Shutdown
	snapCtx, cancelSnap := context.WithTimeout(context.Background(), 5*time.Second)
	snap, snapErr := f.Snapshot(snapCtx)
	cancelSnap()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Daemon.ShutdownTimeout)
	defer cancel()
	if err := f.Shutdown(shutdownCtx); err != nil {
		logger.Log(common.LevelWarn, "Shutdown did not drain every event", map[string]interface{}{"error": err.Error()})
	}

	if snapErr != nil {
		logger.Log(common.LevelWarn, "Final snapshot unavailable", map[string]interface{}{"error": snapErr.Error()})
	} else {
		recorded, err := ledger.CountCompletions(context.Background(), runID)
		if err != nil {
			recorded = -1
		}
		printSummary(out, snap, recorded)
	}

	return waitErr
}

func startMetrics(ctx context.Context, cfg config.MetricsConfig, f *factory.Factory, logger common.Logger) (func(), error) {
	metrics.InitRegistry()

	collector := metrics.NewFactoryMetricsCollector(f, cfg.PollInterval)
	if err := collector.Register(); err != nil {
		return nil, fmt.Errorf("failed to register metrics: %w", err)
	}

	server, err := metrics.NewServer(cfg.Host, cfg.Port, cfg.Path)
	if err != nil {
		return nil, err
	}

	metrics.SetGlobalCollector(collector)
	collector.Start(ctx)
	server.Start()
	logger.Log(common.LevelInfo, "Metrics server listening", map[string]interface{}{
		"address": server.Addr(),
		"path":    cfg.Path,
	})

	return func() {
		collector.Stop()
		metrics.SetGlobalCollector(nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}, nil
}

// wait blocks until ctx ends, duration elapses or the health server fails,
// printing a progress line every statusInterval.
func wait(ctx context.Context, out io.Writer, f *factory.Factory, statusInterval, duration time.Duration, health *factorygrpc.HealthServer) error {
	var deadline <-chan time.Time
	if duration > 0 {
		timer := time.NewTimer(duration)
		defer timer.Stop()
		deadline = timer.C
	}

	var ticks <-chan time.Time
	if statusInterval > 0 {
		ticker := time.NewTicker(statusInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	var healthErr <-chan error
	if health != nil {
		healthErr = health.Err()
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				fmt.Fprintln(out, "\nShutdown signal received, stopping factory...")
				return nil
			}
			return ctx.Err()
		case <-deadline:
			fmt.Fprintf(out, "Run duration %s reached, stopping factory...\n", duration)
			return nil
		case err := <-healthErr:
			return err
		case <-ticks:
			printStatus(ctx, out, f)
		}
	}
}

func printStatus(ctx context.Context, out io.Writer, f *factory.Factory) {
	queryCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	snap, err := f.Snapshot(queryCtx)
	if err != nil {
		return
	}
	fmt.Fprintf(out, "[%s] generated=%d queued=%d shed=%d completed=%d\n",
		time.Now().Format(time.RFC3339),
		snap.OrderBook.Generated,
		len(snap.OrderBook.Queue),
		snap.OrderBook.ShedCount,
		snap.Completed(),
	)
}

func printSummary(out io.Writer, snap factory.Snapshot, recorded int64) {
	fmt.Fprintln(out, "\nRun Summary")
	fmt.Fprintln(out, "===========")
	fmt.Fprintf(out, "  Run ID:           %s\n", snap.RunID)
	fmt.Fprintf(out, "  Orders generated: %d\n", snap.OrderBook.Generated)
	fmt.Fprintf(out, "  Orders queued:    %d\n", len(snap.OrderBook.Queue))
	fmt.Fprintf(out, "  Orders shed:      %d\n", snap.OrderBook.ShedCount)
	fmt.Fprintf(out, "  Cars completed:   %d\n", snap.Completed())
	if recorded >= 0 {
		fmt.Fprintf(out, "  Ledger entries:   %d\n", recorded)
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nLINE\tDISPATCHED\tCOMPLETED\tREJECTIONS")
	for _, line := range snap.Lines {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\n", line.Name, snap.OrderBook.Dispatched[line.Name], line.Completed, line.Rejections)
	}
	w.Flush()

	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\nINVENTORY\tREQUESTS\tDELIVERED\tMISSING\tRESTOCKS\tSTOCK")
	for _, inv := range snap.Inventories {
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%d\t%s\n",
			inv.Name, inv.Requests, inv.Delivered, inv.Missing, inv.Restocks, formatStock(inv.Stock))
	}
	w.Flush()
}

func formatStock[K ~string](stock map[K]int) string {
	keys := make([]string, 0, len(stock))
	for k := range stock {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)

	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%d", k, stock[K(k)])
	}
	return strings.Join(pairs, " ")
}
