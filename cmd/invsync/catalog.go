package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/huangc28/kikichoice-be/internal/inventory/migrate"
	"github.com/huangc28/kikichoice-be/internal/ui"
)

var catalogCmd = &cobra.Command{
	Use:     "catalog",
	GroupID: "advanced",
	Short:   "Export or restore catalog stock snapshots",
	Long: `Export the catalog to a JSONL snapshot, or restore one.

Snapshots are the way to undo an adjustment that was applied twice, for
example after a retried run: export before syncing, fix the file, import.
Import overwrites stock counts; it does not add to them.`,
}

var catalogExportCmd = &cobra.Command{
	Use:   "export [file]",
	Short: "Write products and variants as JSONL (stdout when no file)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		db, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		if len(args) == 0 {
			_, err := migrate.Export(ctx, db, os.Stdout)
			return err
		}
		res, err := migrate.ExportFile(ctx, db, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s exported %d products and %d variants to %s\n",
			ui.RenderPass("✓"), res.Products, res.Variants, args[0])
		return nil
	},
}

var catalogImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Restore a JSONL snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		snap, err := migrate.FromJSONL(args[0])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, err := openCatalog(ctx)
		if err != nil {
			return err
		}
		defer db.Close()

		res, err := migrate.Import(ctx, db, snap, migrate.ImportOptions{DryRun: dryRun})
		if err != nil {
			return err
		}

		verb := "restored"
		if dryRun {
			verb = "would restore"
		}
		fmt.Printf("%s %s %d products and %d variants\n", ui.RenderPass("✓"), verb, res.Products, res.Variants)
		if len(res.Orphans) > 0 {
			fmt.Printf("%s skipped %d variants without a parent: %s\n",
				ui.RenderWarn("!"), len(res.Orphans), strings.Join(res.Orphans, ", "))
		}
		return nil
	},
}

func init() {
	catalogImportCmd.Flags().Bool("dry-run", false, "Resolve parents and report without writing")
	catalogCmd.AddCommand(catalogExportCmd, catalogImportCmd)
	rootCmd.AddCommand(catalogCmd)
}
