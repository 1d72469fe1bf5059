package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/gunestv/dizicrawl/internal/config"
	"github.com/gunestv/dizicrawl/internal/database"
	"github.com/gunestv/dizicrawl/internal/model"
)

// NewHistoryCmd creates the history command.
func NewHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show recorded crawl runs",
		Long: `History lists the runs recorded in the ledger, newest first.

With a run id it prints the full report of that run instead. With --site
it also counts the site's fetches by outcome over the --since window.

Examples:
  # Last 20 runs of every site
  dizicrawl history

  # Runs and fetch outcomes of one site over the last week
  dizicrawl history --site films --since 168h

  # Full report of run 42 as Markdown
  dizicrawl history 42 --markdown`,
		Args: cobra.MaximumNArgs(1),
		RunE: runHistoryCmd,
	}

	cmd.Flags().StringP("site", "s", "", "Only show runs of this site")
	cmd.Flags().IntP("limit", "n", 20, "Maximum runs to list (0 lists all)")
	cmd.Flags().Duration("since", 24*time.Hour, "Window of the fetch outcome summary")
	cmd.Flags().BoolP("json", "j", false, "Print the run report as JSON")
	cmd.Flags().BoolP("markdown", "m", false, "Print the run report as Markdown")

	return cmd
}

func runHistoryCmd(cmd *cobra.Command, args []string) error {
	db, err := database.Open(dataDir(cmd), database.Options{EnableWAL: true})
	if err != nil {
		return err
	}
	defer db.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q", args[0])
		}
		return showRun(ctx, cmd, db, id)
	}

	site, err := cmd.Flags().GetString("site")
	if err != nil {
		return err
	}
	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return err
	}

	runs, err := db.ListRuns(ctx, site, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(out, "No runs recorded yet.")
	} else {
		writeRunsTable(out, runs)
	}

	if site == "" {
		return nil
	}
	since, err := cmd.Flags().GetDuration("since")
	if err != nil {
		return err
	}
	now := time.Now()
	summary, err := db.FetchSummary(ctx, site, now.Add(-since), now)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\nFetches of %s in the last %s:\n", site, since)
	writeFetchTable(out, summary)
	return nil
}

// showRun prints the stored report of one run.
func showRun(ctx context.Context, cmd *cobra.Command, db *database.CrawlDB, id int64) error {
	rep, err := db.GetRun(ctx, id)
	if errors.Is(err, database.ErrRunNotFound) {
		return fmt.Errorf("run %d not found", id)
	}
	if err != nil {
		return err
	}

	cfg := config.NewConfig()
	if cfg.JSONReport, err = cmd.Flags().GetBool("json"); err != nil {
		return err
	}
	if cfg.MarkdownReport, err = cmd.Flags().GetBool("markdown"); err != nil {
		return err
	}
	if cfg.JSONReport && cfg.MarkdownReport {
		return config.ErrConflictingReportFormats
	}
	cfg.Verbose, _ = cmd.Flags().GetBool("verbose") //nolint:errcheck // persistent flag always defined

	_, err = newReportWriter(cfg, cmd.OutOrStdout()).Write(rep)
	return err
}

func writeRunsTable(w io.Writer, runs []database.RunMetadata) {
	t := newTable(w, table.Row{"ID", "Site", "Kind", "Started", "Duration", "Stop", "Added", "Updated", "Failed", "Catalog"})
	for _, r := range runs {
		duration := "-"
		if !r.FinishedAt.IsZero() {
			duration = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		t.AppendRow(table.Row{
			r.ID, r.Site, r.Kind, formatTime(r.StartedAt), duration, r.StopReason,
			r.ItemsAdded, r.ItemsUpdated, r.ItemsFailed, r.CatalogSize,
		})
	}
	t.Render()
}

func writeFetchTable(w io.Writer, summary map[model.OutcomeKind]int) {
	t := newTable(w, table.Row{"Outcome", "Fetches"})
	total := 0
	for _, kind := range []model.OutcomeKind{
		model.OutcomeOK,
		model.OutcomeNotFound,
		model.OutcomeBlocked,
		model.OutcomeTransportError,
	} {
		t.AppendRow(table.Row{kind, summary[kind]})
		total += summary[kind]
	}
	t.AppendFooter(table.Row{"Total", total})
	t.Render()
}
