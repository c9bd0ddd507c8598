package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/andrescamacho/carfactory-go/internal/adapters/persistence"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/config"
	"github.com/andrescamacho/carfactory-go/internal/infrastructure/database"
)

// NewLedgerCommand creates the ledger command with subcommands
func NewLedgerCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Production ledger queries",
		Long: `View what factory runs produced.

The ledger records every assembled car (order, line, worker, delivered
parts and timings) and every inventory restock. It is a report of past
runs: nothing in it is reloaded when the factory starts.

Examples:
  carfactory ledger runs
  carfactory ledger list --run run-20250301-090000-a3f8e2b1
  carfactory ledger list --line Line-1 --limit 20
  carfactory ledger restocks --since 2025-03-01T09:00:00Z`,
	}

	// Add subcommands
	cmd.AddCommand(newLedgerListCommand())
	cmd.AddCommand(newLedgerRestocksCommand())
	cmd.AddCommand(newLedgerRunsCommand())

	return cmd
}

type ledgerFlags struct {
	runID  string
	line   string
	worker string
	since  string
	limit  int
	offset int
}

func (f *ledgerFlags) bind(cmd *cobra.Command, withLineFilters bool) {
	cmd.Flags().StringVar(&f.runID, "run", "", "Filter by run id")
	if withLineFilters {
		cmd.Flags().StringVar(&f.line, "line", "", "Filter by production line")
		cmd.Flags().StringVar(&f.worker, "worker", "", "Filter by worker")
	}
	cmd.Flags().StringVar(&f.since, "since", "", "Only entries after this time (RFC3339)")
	cmd.Flags().IntVar(&f.limit, "limit", 50, "Maximum number of entries to return")
	cmd.Flags().IntVar(&f.offset, "offset", 0, "Number of entries to skip")
}

func (f *ledgerFlags) filter() (persistence.LedgerFilter, error) {
	filter := persistence.LedgerFilter{
		RunID:  f.runID,
		Line:   f.line,
		Worker: f.worker,
		Limit:  f.limit,
		Offset: f.offset,
	}
	if f.since != "" {
		since, err := time.Parse(time.RFC3339, f.since)
		if err != nil {
			return filter, fmt.Errorf("invalid --since (use RFC3339): %w", err)
		}
		filter.Since = &since
	}
	return filter, nil
}

// newLedgerListCommand creates the ledger list subcommand
func newLedgerListCommand() *cobra.Command {
	var flags ledgerFlags

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List assembled cars",
		Long: `List assembled cars, newest first.

Examples:
  carfactory ledger list --limit 10
  carfactory ledger list --worker Rahul`,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			return withLedger(cmd.Context(), func(ctx context.Context, repo *persistence.GormLedgerRepository) error {
				entries, err := repo.ListCompletions(ctx, filter)
				if err != nil {
					return err
				}
				displayCompletions(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
	flags.bind(cmd, true)

	return cmd
}

// newLedgerRestocksCommand creates the ledger restocks subcommand
func newLedgerRestocksCommand() *cobra.Command {
	var flags ledgerFlags

	cmd := &cobra.Command{
		Use:   "restocks",
		Short: "List inventory restocks",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter, err := flags.filter()
			if err != nil {
				return err
			}
			return withLedger(cmd.Context(), func(ctx context.Context, repo *persistence.GormLedgerRepository) error {
				entries, err := repo.ListRestocks(ctx, filter)
				if err != nil {
					return err
				}
				displayRestocks(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
	flags.bind(cmd, false)

	return cmd
}

// newLedgerRunsCommand creates the ledger runs subcommand
func newLedgerRunsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "runs",
		Short: "Summarise recorded runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(cmd.Context(), func(ctx context.Context, repo *persistence.GormLedgerRepository) error {
				runs, err := repo.ListRuns(ctx)
				if err != nil {
					return err
				}
				displayRuns(cmd.OutOrStdout(), runs)
				return nil
			})
		},
	}
}

func withLedger(ctx context.Context, fn func(context.Context, *persistence.GormLedgerRepository) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	db, err := database.OpenLedger(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)

	return fn(ctx, persistence.NewGormLedgerRepository(db))
}

func displayCompletions(out io.Writer, entries []persistence.CompletionEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No cars recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "COMPLETED\tORDER\tLINE\tWORKER\tPARTS\tDURATION\tRUN")
	for _, e := range entries {
		names := make([]string, len(e.Parts))
		for i, k := range e.Parts {
			names[i] = string(k)
		}
		parts := fmt.Sprintf("%d/%d", len(e.Parts), e.RequestedParts)
		if len(names) > 0 {
			parts += " " + strings.Join(names, ",")
		}
		if e.PartsTimedOut {
			parts += " (timed out)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CompletedAt.Format(time.RFC3339),
			e.OrderID,
			e.Line,
			e.Worker,
			parts,
			e.Duration,
			e.RunID,
		)
	}
	w.Flush()
	fmt.Fprintf(out, "\n%d car(s)\n", len(entries))
}

func displayRestocks(out io.Writer, entries []persistence.RestockEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No restocks recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RESTOCKED\tINVENTORY\tINCREMENT\tSTOCK AFTER\tRUN")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t+%d\t%s\t%s\n",
			e.RestockedAt.Format(time.RFC3339),
			e.Inventory,
			e.Increment,
			formatStock(e.StockAfter),
			e.RunID,
		)
	}
	w.Flush()
}

func displayRuns(out io.Writer, runs []persistence.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded.")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tCARS\tFIRST\tLAST")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\n",
			r.RunID,
			r.Completions,
			formatTime(r.FirstAt),
			formatTime(r.LastAt),
		)
	}
	w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
