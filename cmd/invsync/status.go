package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/huangc28/kikichoice-be/internal/inventory/catalog"
	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
	"github.com/huangc28/kikichoice-be/internal/inventory/sync"
	"github.com/huangc28/kikichoice-be/internal/ui"
)

// statusReport summarizes the catalog and the latest run of each pipeline.
type statusReport struct {
	Driver   string                      `json:"driver"`
	Backend  string                      `json:"backend"`
	Products int                         `json:"products"`
	Variants int                         `json:"variants"`
	Drift    []catalog.ParentDrift       `json:"drift"`
	LastRuns map[string]schema.RunRecord `json:"last_runs"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "inspect",
	Short:   "Show catalog size and the latest run of each pipeline",
	Args:    cobra.NoArgs,
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

		report := statusReport{
			Driver:   cfg.Database.Driver,
			Backend:  cfg.Sheets.Backend,
			LastRuns: make(map[string]schema.RunRecord),
		}
		if report.Products, err = db.ProductCount(ctx); err != nil {
			return err
		}
		if report.Variants, err = db.VariantCount(ctx); err != nil {
			return err
		}
		if report.Drift, err = db.ParentStockDrift(ctx); err != nil {
			return err
		}
		for _, p := range []string{sync.PipelineProducts, sync.PipelineVariants} {
			runs, err := db.ListRuns(ctx, catalog.ListRunsOptions{Pipeline: p, Limit: 1})
			if err != nil {
				return err
			}
			if len(runs) > 0 {
				report.LastRuns[p] = runs[0]
			}
		}

		if format != ui.FormatTable {
			return ui.Write(os.Stdout, format, report)
		}

		fmt.Printf("Catalog:  %s (%s)\n", ui.RenderAccent(report.Driver), cfg.Database.DSN)
		fmt.Printf("Sheets:   %s\n", report.Backend)
		fmt.Printf("Products: %d\n", report.Products)
		fmt.Printf("Variants: %d\n", report.Variants)
		fmt.Printf("Drift:    %s\n\n", formatDrift(report.Drift))
		for _, p := range []string{sync.PipelineProducts, sync.PipelineVariants} {
			run, ok := report.LastRuns[p]
			if !ok {
				fmt.Printf("%-9s %s\n", p+":", ui.RenderMuted("never run"))
				continue
			}
			ago := time.Since(run.StartedAt).Round(time.Second)
			fmt.Printf("%-9s %s %s ago, %d inserted, %d updated\n",
				p+":", ui.RenderStatus(run.Status), ago, run.Result.Inserted, run.Result.Updated)
			if run.Error != "" {
				fmt.Printf("          %s\n", ui.RenderFail(truncate(run.Error, 100)))
			}
		}
		return nil
	},
}

// formatDrift renders the parents whose stock disagrees with their variants.
func formatDrift(drift []catalog.ParentDrift) string {
	if len(drift) == 0 {
		return ui.RenderPass("parents match their variant totals")
	}
	parts := make([]string, 0, len(drift))
	for i, d := range drift {
		if i == 3 {
			parts = append(parts, fmt.Sprintf("+%d more", len(drift)-i))
			break
		}
		parts = append(parts, fmt.Sprintf("%s has %d, variants sum to %d", d.SKU, d.StockCount, d.VariantTotal))
	}
	return ui.RenderWarn(fmt.Sprintf("%d parent(s) differ from variant totals: %s", len(drift), strings.Join(parts, "; ")))
}

func init() {
	statusCmd.Flags().StringP("format", "o", "", "Output format (table, json, yaml)")
	rootCmd.AddCommand(statusCmd)
}
