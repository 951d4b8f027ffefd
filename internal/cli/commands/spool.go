package commands

import (
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapflow-posthog/internal/archive"
	"github.com/leapstack-labs/leapflow-posthog/internal/cli/output"
	"github.com/leapstack-labs/leapflow-posthog/internal/relay"
	"github.com/leapstack-labs/leapflow-posthog/internal/spool"
)

// SpoolBatchRow is one batch in list output, without its payload.
type SpoolBatchRow struct {
	ID        string    `json:"id"`
	ConnID    string    `json:"conn_id"`
	Status    string    `json:"status"`
	Events    int       `json:"events"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSpoolCommand creates the spool command and its subcommands.
func NewSpoolCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spool",
		Short: "Inspect and drain the delivery spool",
		Long: `Work with the durable spool that holds failed deliveries.

Batches that could not be delivered are parked here by the relay and by
operators. replay pushes them back through the configured connection;
export copies everything into a DuckDB file for ad-hoc SQL; purge
removes old replayed and dead batches.`,
		Example: `  # What is waiting
  leapflow-posthog spool stats

  # Look at the batches themselves
  leapflow-posthog spool list --all

  # Redeliver the backlog
  leapflow-posthog spool replay

  # Archive for analysis, then clean up
  leapflow-posthog spool export spool.duckdb
  leapflow-posthog spool purge --older-than 72h`,
	}

	cmd.AddCommand(newSpoolListCommand())
	cmd.AddCommand(newSpoolStatsCommand())
	cmd.AddCommand(newSpoolReplayCommand())
	cmd.AddCommand(newSpoolExportCommand())
	cmd.AddCommand(newSpoolPurgeCommand())

	return cmd
}

func newSpoolListCommand() *cobra.Command {
	var all bool
	var limit int

	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List spooled batches",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContextWithoutStores(cmd)
			store, err := openSpool(cmdCtx.Cfg, cmdCtx.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var batches []*spool.Batch
			if all {
				batches, err = store.ListAll(cmd.Context())
			} else {
				batches, err = store.ListPending(cmd.Context(), limit)
			}
			if err != nil {
				return err
			}

			rows := make([]SpoolBatchRow, 0, len(batches))
			for _, b := range batches {
				rows = append(rows, SpoolBatchRow{
					ID:        b.ID,
					ConnID:    b.ConnID,
					Status:    b.Status,
					Events:    b.EventCount,
					Attempts:  b.Attempts,
					Error:     b.Error,
					CreatedAt: b.CreatedAt,
					UpdatedAt: b.UpdatedAt,
				})
			}

			r := cmdCtx.Renderer
			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(rows)
			case output.ModeMarkdown:
				return renderSpoolListMarkdown(r, rows)
			default:
				return renderSpoolListTable(r, rows)
			}
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Include replayed and dead batches")
	cmd.Flags().IntVar(&limit, "limit", 0, "Cap how many pending batches to list (0 = all)")

	return cmd
}

func renderSpoolListTable(r *output.Renderer, rows []SpoolBatchRow) error {
	if len(rows) == 0 {
		r.Muted("Spool is empty.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(r.Writer())
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Status", "Events", "Attempts", "Created", "Error"})
	for _, row := range rows {
		t.AppendRow(table.Row{
			shortID(row.ID),
			row.Status,
			row.Events,
			row.Attempts,
			row.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			truncate(row.Error, 48),
		})
	}
	t.Render()
	r.Printf("(%d batches)\n", len(rows))
	return nil
}

func renderSpoolListMarkdown(r *output.Renderer, rows []SpoolBatchRow) error {
	r.Println(output.FormatHeader(1, "Spooled Batches"))
	r.Println("")
	if len(rows) == 0 {
		r.Println("Spool is empty.")
		return nil
	}
	r.Println("| ID | Status | Events | Attempts | Created | Error |")
	r.Println("|----|--------|--------|----------|---------|-------|")
	for _, row := range rows {
		r.Printf("| %s | %s | %d | %d | %s | %s |\n",
			shortID(row.ID), row.Status, row.Events, row.Attempts,
			row.CreatedAt.UTC().Format(time.RFC3339), truncate(row.Error, 48))
	}
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}

func newSpoolStatsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the spool by status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContextWithoutStores(cmd)
			store, err := openSpool(cmdCtx.Cfg, cmdCtx.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			stats, err := store.Stats(cmd.Context())
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(stats)
			case output.ModeMarkdown:
				r.Println(output.FormatHeader(1, "Spool"))
				r.Println("")
				r.Println(output.FormatKeyValue("Path", store.Path()))
				r.Println(output.FormatKeyValue("Pending", fmt.Sprintf("%d batches (%d events)", stats.Pending, stats.PendingEvents)))
				r.Println(output.FormatKeyValue("Replayed", fmt.Sprintf("%d batches", stats.Replayed)))
				r.Println(output.FormatKeyValue("Dead", fmt.Sprintf("%d batches", stats.Dead)))
				r.Println(output.FormatKeyValue("Total events", fmt.Sprintf("%d", stats.TotalEvents)))
			default:
				styles := r.Styles()
				r.Println(styles.Header2.Render("Spool " + store.Path()))
				r.Printf("  pending:      %d batches (%d events)\n", stats.Pending, stats.PendingEvents)
				r.Printf("  replayed:     %d batches\n", stats.Replayed)
				r.Printf("  dead:         %d batches\n", stats.Dead)
				r.Printf("  total events: %d\n", stats.TotalEvents)
				if stats.Dead > 0 {
					r.Warning(fmt.Sprintf("%d dead batches will not be retried; inspect with 'spool list --all'", stats.Dead))
				}
			}
			return nil
		},
	}
}

func newSpoolReplayCommand() *cobra.Command {
	var limit, maxAttempts int

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Redeliver pending batches to PostHog",
		Long: `Push pending spool batches back through the configured connection.

Batches go out one at a time in their original order. A batch that
fails again stays pending with its attempt counter bumped; after too
many attempts it is marked dead and left for inspection. Transforms do
not run again, events were already transformed on first ingest.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx, cleanup, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			defer cleanup()

			store, err := openSpool(cmdCtx.Cfg, cmdCtx.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			svc, err := relay.NewService(relay.ServiceConfig{
				ConnID:   cmdCtx.Cfg.ConnID,
				Resolver: cmdCtx.Chain,
				Spool:    store,
				Logger:   cmdCtx.Logger,
			})
			if err != nil {
				return err
			}
			defer func() { _ = svc.Close() }()

			r := cmdCtx.Renderer
			var spinner *output.Spinner
			if r.EffectiveMode() == output.ModeText {
				spinner = r.NewSpinner("Replaying spool...")
				spinner.Start()
			}

			result, err := svc.ReplaySpool(cmd.Context(), spool.ReplayOptions{
				Limit:       limit,
				MaxAttempts: maxAttempts,
			})
			if err != nil {
				if spinner != nil {
					spinner.Fail("Replay aborted")
				}
				return err
			}

			if spinner != nil {
				spinner.Success(fmt.Sprintf("Replayed %d batches (%d events)", result.Replayed, result.Events))
			}

			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(result)
			case output.ModeMarkdown:
				r.Println(output.FormatHeader(1, "Replay"))
				r.Println("")
				r.Println(output.FormatKeyValue("Replayed", fmt.Sprintf("%d batches (%d events)", result.Replayed, result.Events)))
				r.Println(output.FormatKeyValue("Failed", fmt.Sprintf("%d", result.Failed)))
				r.Println(output.FormatKeyValue("Dead", fmt.Sprintf("%d", result.Dead)))
			default:
				if result.Failed > 0 {
					r.Warning(fmt.Sprintf("%d batches failed again and stay pending", result.Failed))
				}
				if result.Dead > 0 {
					r.Warning(fmt.Sprintf("%d batches exhausted their attempts and are dead", result.Dead))
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 0, "Replay at most this many batches (0 = all)")
	cmd.Flags().IntVar(&maxAttempts, "max-attempts", 0, fmt.Sprintf("Mark a batch dead after this many failures (0 = %d)", spool.DefaultMaxAttempts))

	return cmd
}

func newSpoolExportCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "export [path]",
		Short: "Archive the spool into a DuckDB file",
		Long: `Copy every spooled batch and its events into a DuckDB database,
one row per event, ready for plain SQL. Re-running against the same
file only appends batches that are not archived yet.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "spool-archive.duckdb"
			if len(args) > 0 {
				path = args[0]
			}

			cmdCtx := NewCommandContextWithoutStores(cmd)
			store, err := openSpool(cmdCtx.Cfg, cmdCtx.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			result, err := archive.NewExporter(store, cmdCtx.Logger).Export(cmd.Context(), path)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			switch r.EffectiveMode() {
			case output.ModeJSON:
				return r.JSON(map[string]any{
					"path":    path,
					"batches": result.Batches,
					"events":  result.Events,
					"skipped": result.Skipped,
				})
			default:
				r.Success(fmt.Sprintf("Archived %d batches (%d events) to %s", result.Batches, result.Events, path))
				if result.Skipped > 0 {
					r.Muted(fmt.Sprintf("  %d batches were already archived", result.Skipped))
				}
			}
			return nil
		},
	}
}

func newSpoolPurgeCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete old replayed and dead batches",
		Long: `Remove replayed and dead batches whose last update is older than
the cutoff. Pending batches are never purged.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cmdCtx := NewCommandContextWithoutStores(cmd)
			store, err := openSpool(cmdCtx.Cfg, cmdCtx.Logger)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			removed, err := store.Purge(cmd.Context(), olderThan)
			if err != nil {
				return err
			}

			r := cmdCtx.Renderer
			if r.EffectiveMode() == output.ModeJSON {
				return r.JSON(map[string]any{"removed": removed})
			}
			r.Success(fmt.Sprintf("Purged %d batches older than %s", removed, olderThan))
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 168*time.Hour, "Age cutoff for replayed and dead batches")

	return cmd
}
