// Package loadtest measures batch-upsert latency against a synthetic catalog.
//
// It is used to pick a batch size: each upsert batch is one statement, so
// larger batches mean fewer round trips but longer statements and a larger
// amount of work lost when a batch fails.
package loadtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/huangc28/kikichoice-be/internal/inventory/catalog"
	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
)

// SKUPrefix marks synthetic products.
const SKUPrefix = "bench-"

// LatencyStats captures latency percentiles of a series of operations.
type LatencyStats struct {
	Min        time.Duration
	Max        time.Duration
	Mean       time.Duration
	P50        time.Duration
	P95        time.Duration
	P99        time.Duration
	Operations int
	Records    int
	Errors     int
	Elapsed    time.Duration
}

// RecordsPerSecond is the throughput over the whole series.
func (s *LatencyStats) RecordsPerSecond() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Records) / s.Elapsed.Seconds()
}

// Bench holds a populated catalog and the stock each synthetic product
// should have after the deltas applied so far.
type Bench struct {
	DB       *catalog.DB
	SKUs     []string
	expected map[string]int
}

// Setup opens a SQLite catalog at path and seeds it with n products.
func Setup(ctx context.Context, path string, n int) (*Bench, error) {
	db, err := catalog.OpenSQLite(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	b, err := New(ctx, db, n)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// New seeds an existing catalog with n synthetic products at stock 0.
// Products left over from an earlier bench are reset.
func New(ctx context.Context, db *catalog.DB, n int) (*Bench, error) {
	if n < 1 {
		return nil, fmt.Errorf("product count must be positive, got %d", n)
	}
	b := &Bench{
		DB:       db,
		SKUs:     make([]string, n),
		expected: make(map[string]int, n),
	}
	for i := range n {
		b.SKUs[i] = fmt.Sprintf("%s%06d", SKUPrefix, i)
	}

	existing, err := db.FindBySKUs(ctx, b.SKUs)
	if err != nil {
		return nil, fmt.Errorf("failed to look up existing bench products: %w", err)
	}
	entries := make([]schema.CatalogEntry, n)
	for i, sku := range b.SKUs {
		id := catalog.NewID()
		if e, ok := existing[sku]; ok {
			id = e.ID
		}
		entries[i] = schema.CatalogEntry{
			ID:           id,
			SKU:          sku,
			Name:         fmt.Sprintf("Bench product %d", i),
			ReadyForSale: i%3 != 0,
			Price:        decimal.New(int64(100+i%900), -1),
		}
		b.expected[sku] = 0
	}
	if _, err := db.RestoreProducts(ctx, entries); err != nil {
		return nil, fmt.Errorf("failed to seed products: %w", err)
	}
	return b, nil
}

// Close closes the catalog.
func (b *Bench) Close() error {
	if b.DB != nil {
		return b.DB.Close()
	}
	return nil
}

// RunUpserts applies rounds of random signed deltas to every product, one
// batch of batchSize records per statement, and records each batch's
// latency.
func (b *Bench) RunUpserts(ctx context.Context, batchSize, rounds int, seed uint64) (*LatencyStats, error) {
	if batchSize < 1 || rounds < 1 {
		return nil, fmt.Errorf("batch size and rounds must be positive")
	}
	b.DB.SetBatchSize(batchSize)
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	var durations []time.Duration
	records := 0
	start := time.Now()
	for range rounds {
		for batch := range slices.Chunk(b.SKUs, batchSize) {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			recs := make([]schema.ProductRecord, len(batch))
			for i, sku := range batch {
				recs[i] = schema.ProductRecord{
					SKU:         sku,
					Name:        "Bench product",
					StockAdjust: rng.IntN(21) - 10,
				}
			}

			t0 := time.Now()
			res, err := b.DB.UpsertProducts(ctx, recs)
			durations = append(durations, time.Since(t0))
			if err != nil {
				return nil, fmt.Errorf("upsert batch failed: %w", err)
			}
			for _, r := range res.Rows {
				b.expected[r.SKU] += r.Delta
			}
			records += len(recs)
		}
	}

	stats := ComputeLatencyStats(durations)
	stats.Records = records
	stats.Elapsed = time.Since(start)
	return stats, nil
}

// RunConcurrentLookups runs agents concurrent readers, each performing
// lookups parent lookups of lookupSize random SKUs, the query pattern of
// parent resolution.
func (b *Bench) RunConcurrentLookups(ctx context.Context, agents, lookups, lookupSize int) (*LatencyStats, error) {
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		durations []time.Duration
		errs      []error
	)
	start := time.Now()
	for agent := range agents {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(uint64(agent), 42))
			local := make([]time.Duration, 0, lookups)
			for range lookups {
				skus := make([]string, lookupSize)
				for i := range skus {
					skus[i] = b.SKUs[rng.IntN(len(b.SKUs))]
				}
				t0 := time.Now()
				_, err := b.DB.FindBySKUs(ctx, skus)
				local = append(local, time.Since(t0))
				if err != nil {
					mu.Lock()
					errs = append(errs, fmt.Errorf("agent %d: %w", agent, err))
					mu.Unlock()
					break
				}
			}
			mu.Lock()
			durations = append(durations, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(durations) == 0 {
		return nil, errors.Join(append(errs, errors.New("no lookups completed"))...)
	}
	stats := ComputeLatencyStats(durations)
	stats.Errors = len(errs)
	stats.Records = len(durations) * lookupSize
	stats.Elapsed = time.Since(start)
	return stats, errors.Join(errs...)
}

// Verify checks every synthetic product's stock equals the sum of the
// deltas applied to it.
func (b *Bench) Verify(ctx context.Context) error {
	found, err := b.DB.FindBySKUs(ctx, b.SKUs)
	if err != nil {
		return err
	}
	var errs []error
	for _, sku := range b.SKUs {
		e, ok := found[sku]
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("%s missing", sku))
		case e.StockCount != b.expected[sku]:
			errs = append(errs, fmt.Errorf("%s: stock %d, want %d", sku, e.StockCount, b.expected[sku]))
		}
	}
	return errors.Join(errs...)
}

// ComputeLatencyStats calculates statistics from a slice of durations.
func ComputeLatencyStats(durations []time.Duration) *LatencyStats {
	if len(durations) == 0 {
		return &LatencyStats{}
	}

	sorted := slices.Clone(durations)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}

	return &LatencyStats{
		Min:        sorted[0],
		Max:        sorted[len(sorted)-1],
		Mean:       sum / time.Duration(len(sorted)),
		P50:        sorted[len(sorted)*50/100],
		P95:        sorted[len(sorted)*95/100],
		P99:        sorted[len(sorted)*99/100],
		Operations: len(sorted),
	}
}

// Fprint writes the statistics in a fixed-width layout.
func (s *LatencyStats) Fprint(w io.Writer) {
	fmt.Fprintf(w, "  Operations:    %d\n", s.Operations)
	fmt.Fprintf(w, "  Records:       %d (%.0f/s)\n", s.Records, s.RecordsPerSecond())
	fmt.Fprintf(w, "  Errors:        %d\n", s.Errors)
	fmt.Fprintf(w, "  Min:           %v\n", s.Min)
	fmt.Fprintf(w, "  P50 (Median):  %v\n", s.P50)
	fmt.Fprintf(w, "  Mean:          %v\n", s.Mean)
	fmt.Fprintf(w, "  P95:           %v\n", s.P95)
	fmt.Fprintf(w, "  P99:           %v\n", s.P99)
	fmt.Fprintf(w, "  Max:           %v\n", s.Max)
}
