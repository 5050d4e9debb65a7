package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
	"github.com/huangc28/kikichoice-be/internal/inventory/sync"
	"github.com/huangc28/kikichoice-be/internal/ui"
)

var syncFormat string

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Run a reconciliation pipeline once",
	Long: `Run a reconciliation pipeline once and exit.

  invsync sync products   # apply product sheet adjustments, write back stock
  invsync sync variants   # apply variant adjustments, roll up parent totals
  invsync sync all        # products, then variants

Adjustments are additive: running the same sheet twice applies its deltas
twice. Clear the adjustment column after a successful run.`,
}

var syncProductsCmd = &cobra.Command{
	Use:   "products",
	Short: "Sync the products sheet",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(func(ctx context.Context, s *sync.Syncer) ([]*schema.RunRecord, error) {
			run, err := s.SyncProducts(ctx)
			return []*schema.RunRecord{run}, err
		})
	},
}

var syncVariantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "Sync the variants sheet and parent totals",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(func(ctx context.Context, s *sync.Syncer) ([]*schema.RunRecord, error) {
			run, err := s.SyncVariants(ctx)
			return []*schema.RunRecord{run}, err
		})
	},
}

var syncAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Sync products, then variants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSync(func(ctx context.Context, s *sync.Syncer) ([]*schema.RunRecord, error) {
			return s.SyncAll(ctx)
		})
	},
}

func runSync(fn func(context.Context, *sync.Syncer) ([]*schema.RunRecord, error)) error {
	format, err := ui.ParseFormat(syncFormat)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	p, err := openPipeline(ctx)
	if err != nil {
		return err
	}
	defer p.Close()

	runs, runErr := fn(ctx, p.syncer)
	var records []schema.RunRecord
	for _, r := range runs {
		if r != nil {
			records = append(records, *r)
		}
	}
	if len(records) > 0 {
		if err := ui.Write(os.Stdout, format, runTable(records)); err != nil {
			return err
		}
	}
	if runErr != nil {
		var stageErr *sync.StageError
		if errors.As(runErr, &stageErr) && stageErr.Attempted > 0 {
			fmt.Fprintf(os.Stderr, "%s %s failed after attempting %d records. Catalog changes from earlier stages are committed; re-running applies the sheet adjustments again.\n",
				ui.RenderWarn("Warning:"), stageErr.Stage, stageErr.Attempted)
		}
		return runErr
	}
	return nil
}

func init() {
	syncCmd.PersistentFlags().StringVarP(&syncFormat, "format", "o", "", "Output format (table, json, yaml)")
	syncCmd.AddCommand(syncProductsCmd, syncVariantsCmd, syncAllCmd)
	rootCmd.AddCommand(syncCmd)
}
