package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/huangc28/kikichoice-be/internal/inventory/catalog"
	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
	"github.com/huangc28/kikichoice-be/internal/ui"
)

// runTable renders run history.
type runTable []schema.RunRecord

func (t runTable) Headers() []string {
	return []string{"ID", "PIPELINE", "STATUS", "ATTEMPTS", "INSERTED", "UPDATED", "TOTAL", "STARTED", "DURATION", "ERROR"}
}

func (t runTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, r := range t {
		duration := "-"
		if r.FinishedAt != nil {
			duration = r.Duration().Round(time.Millisecond).String()
		}
		rows = append(rows, []string{
			r.ID,
			r.Pipeline,
			ui.RenderStatus(r.Status),
			strconv.Itoa(r.Attempts),
			strconv.Itoa(r.Result.Inserted),
			strconv.Itoa(r.Result.Updated),
			strconv.Itoa(r.Result.Total),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			duration,
			truncate(r.Error, 60),
		})
	}
	return rows
}

// stepTable renders the steps of one run.
type stepTable []schema.StepRecord

func (t stepTable) Headers() []string {
	return []string{"ATTEMPT", "STEP", "STATUS", "DURATION", "ERROR"}
}

func (t stepTable) Rows() [][]string {
	rows := make([][]string, 0, len(t))
	for _, s := range t {
		rows = append(rows, []string{
			strconv.Itoa(s.Attempt),
			s.Name,
			ui.RenderStatus(s.Status),
			s.Duration.Round(time.Millisecond).String(),
			truncate(s.Error, 60),
		})
	}
	return rows
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

var runsCmd = &cobra.Command{
	Use:     "runs [run-id]",
	GroupID: "inspect",
	Short:   "List pipeline run history",
	Long: `List recorded pipeline runs, newest first. With a run ID, show the
steps of that run including memoized replays.

--since accepts RFC3339 timestamps, dates, durations ("36h") and phrases
such as "yesterday" or "3 days ago".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		formatFlag, _ := cmd.Flags().GetString("format")
		format, err := ui.ParseFormat(formatFlag)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if len(args) == 1 {
			return showRun(ctx, db, args[0], format)
		}

		opts := catalog.ListRunsOptions{}
		opts.Pipeline, _ = cmd.Flags().GetString("pipeline")
		opts.Limit, _ = cmd.Flags().GetInt("limit")
		if since, _ := cmd.Flags().GetString("since"); since != "" {
			opts.Since, err = parseSince(since, time.Now())
			if err != nil {
				return err
			}
		}

		runs, err := db.ListRuns(ctx, opts)
		if err != nil {
			return err
		}
		if len(runs) == 0 && format == ui.FormatTable {
			fmt.Println("No runs recorded")
			return nil
		}
		return ui.Write(os.Stdout, format, runTable(runs))
	},
}

func showRun(ctx context.Context, db *catalog.DB, id string, format ui.Format) error {
	run, err := db.GetRun(ctx, id)
	if errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return err
	}
	steps, err := db.ListSteps(ctx, id)
	if err != nil {
		return err
	}
	if format != ui.FormatTable {
		return ui.Write(os.Stdout, format, struct {
			schema.RunRecord
			Steps []schema.StepRecord `json:"steps"`
		}{*run, steps})
	}
	if err := ui.Write(os.Stdout, format, runTable{*run}); err != nil {
		return err
	}
	return ui.Write(os.Stdout, format, stepTable(steps))
}

var runsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete run history older than the retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if !cmd.Flags().Changed("days") {
			days = cfg.Sync.HistoryDays
		}
		if days < 1 {
			return fmt.Errorf("--days must be positive")
		}

		db, err := openCatalog(cmd.Context())
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := db.PruneRuns(cmd.Context(), time.Now().AddDate(0, 0, -days))
		if err != nil {
			return err
		}
		fmt.Printf("%s pruned %d runs older than %d days\n", ui.RenderPass("✓"), n, days)
		return nil
	},
}

// parseSince turns a --since value into an absolute time.
func parseSince(s string, now time.Time) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil {
		return now.Add(-d), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	r, err := w.Parse(s, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: %w", s, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("invalid --since %q: not a time or duration", s)
	}
	return r.Time, nil
}

func init() {
	runsCmd.Flags().StringP("format", "o", "", "Output format (table, json, yaml)")
	runsCmd.Flags().String("pipeline", "", "Only show runs of this pipeline (products, variants)")
	runsCmd.Flags().Int("limit", 20, "Maximum number of runs (0 for all)")
	runsCmd.Flags().String("since", "", "Only show runs started after this time")
	runsPruneCmd.Flags().Int("days", 30, "Keep this many days of history")

	runsCmd.AddCommand(runsPruneCmd)
	rootCmd.AddCommand(runsCmd)
}
