package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/huangc28/kikichoice-be/internal/inventory/loadtest"
	"github.com/huangc28/kikichoice-be/internal/ui"
)

var benchCmd = &cobra.Command{
	Use:     "bench",
	GroupID: "advanced",
	Short:   "Measure batch upsert latency on a synthetic catalog",
	Long: `Seed a catalog with synthetic products and measure batched stock
upserts and concurrent SKU lookups, reporting p50/p95/p99 latency.

By default a throwaway SQLite database is created in a temp directory.
--use-catalog runs against the configured catalog instead; synthetic
products are prefixed with "bench-" and left in place.

Examples:
  invsync bench                              # 1000 products, batch 100
  invsync bench --products 5000 --batch 250  # larger batches
  invsync bench --use-catalog --json`,
	Args: cobra.NoArgs,
	Run:  runBench,
}

type benchReport struct {
	Products  int                    `json:"products"`
	BatchSize int                    `json:"batch_size"`
	Upserts   *loadtest.LatencyStats `json:"upserts"`
	Lookups   *loadtest.LatencyStats `json:"lookups"`
}

func runBench(cmd *cobra.Command, args []string) {
	products, _ := cmd.Flags().GetInt("products")
	batch, _ := cmd.Flags().GetInt("batch")
	rounds, _ := cmd.Flags().GetInt("rounds")
	agents, _ := cmd.Flags().GetInt("agents")
	lookups, _ := cmd.Flags().GetInt("lookups")
	seed, _ := cmd.Flags().GetUint64("seed")
	useCatalog, _ := cmd.Flags().GetBool("use-catalog")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if products <= 0 || batch <= 0 || rounds <= 0 || agents <= 0 || lookups <= 0 {
		fmt.Fprintf(os.Stderr, "Error: --products, --batch, --rounds, --agents and --lookups must be positive\n")
		os.Exit(1)
	}
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	ctx := context.Background()
	b, cleanup, err := openBench(ctx, products, useCatalog)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to set up benchmark: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	if !jsonOutput {
		fmt.Printf("Benchmarking %s products, batch size %d...\n", ui.RenderAccent(fmt.Sprint(products)), batch)
	}

	report := benchReport{Products: products, BatchSize: batch}
	report.Upserts, err = b.RunUpserts(ctx, batch, rounds, seed)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: upsert benchmark failed: %v\n", err)
		os.Exit(1)
	}
	report.Lookups, err = b.RunConcurrentLookups(ctx, agents, lookups, batch)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: lookup benchmark failed: %v\n", err)
		os.Exit(1)
	}
	if err := b.Verify(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println(ui.RenderAccent("\nBatch upserts"))
	report.Upserts.Fprint(os.Stdout)
	fmt.Println(ui.RenderAccent("\nConcurrent lookups"))
	report.Lookups.Fprint(os.Stdout)
	fmt.Printf("\n%s stock counts verified\n", ui.RenderPass("✓"))
}

// openBench seeds either the configured catalog or a temporary SQLite file.
// The returned cleanup closes the catalog and removes any temp files.
func openBench(ctx context.Context, products int, useCatalog bool) (*loadtest.Bench, func(), error) {
	if useCatalog {
		db, err := openCatalog(ctx)
		if err != nil {
			return nil, nil, err
		}
		b, err := loadtest.New(ctx, db, products)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return b, func() { _ = b.Close() }, nil
	}

	dir, err := os.MkdirTemp("", "invsync-bench-")
	if err != nil {
		return nil, nil, err
	}
	b, err := loadtest.Setup(ctx, filepath.Join(dir, "bench.db"), products)
	if err != nil {
		_ = os.RemoveAll(dir)
		return nil, nil, err
	}
	return b, func() {
		_ = b.Close()
		_ = os.RemoveAll(dir)
	}, nil
}

func init() {
	benchCmd.Flags().Int("products", 1000, "Number of synthetic products")
	benchCmd.Flags().Int("batch", 100, "Records per upsert statement")
	benchCmd.Flags().Int("rounds", 5, "Full passes over the catalog")
	benchCmd.Flags().Int("agents", 10, "Concurrent lookup workers")
	benchCmd.Flags().Int("lookups", 20, "Lookups per worker")
	benchCmd.Flags().Uint64("seed", 0, "Random seed for stock deltas (0 = time based)")
	benchCmd.Flags().Bool("use-catalog", false, "Benchmark the configured catalog instead of a temp database")
	benchCmd.Flags().Bool("json", false, "Output results as JSON")
	rootCmd.AddCommand(benchCmd)
}
