package sync

import (
	"context"
	"errors"
	"path/filepath"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/huangc28/kikichoice-be/internal/inventory/catalog"
	"github.com/huangc28/kikichoice-be/internal/inventory/ingest"
	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
	"github.com/huangc28/kikichoice-be/internal/inventory/workflow"
	"github.com/huangc28/kikichoice-be/internal/sheet"
)

var (
	productHeader = []string{"sku", "name", "ready_for_sale", "short_desc", "", "", "stock_adjust", "stock", "", "", "", "price"}
	variantHeader = []string{"parent_sku", "sku", "name", "stock_adjust", "stock", "price"}
)

func productRow(sku, adjust, price string) []string {
	return []string{sku, "Name " + sku, "Y", "", "", "", adjust, "", "", "", "", price}
}

type fixture struct {
	db       *catalog.DB
	products *sheet.Memory
	variants *sheet.Memory
	syncer   *Syncer
}

// newFixture builds a syncer over a temp SQLite catalog. wrap, when set,
// decorates the catalog the syncer sees.
func newFixture(t *testing.T, wrap func(Catalog) Catalog) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)

	db, err := catalog.OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.InitSchema())
	var cat Catalog = db
	if wrap != nil {
		cat = wrap(db)
	}

	products := sheet.NewMemory()
	products.SetSheet("Sheet1", [][]string{productHeader})
	variants := sheet.NewMemory()
	variants.SetSheet("Sheet1", [][]string{variantHeader})

	loader := ingest.NewLoader(products, variants, ingest.Ranges{}, logger)
	prop, err := NewPropagator(products, variants, loader.Ranges(), logger)
	require.NoError(t, err)
	sched, err := workflow.New(workflow.Config{Retries: 3}, db, catalog.NewID, logger)
	require.NoError(t, err)
	s, err := New(loader, cat, prop, sched, logger)
	require.NoError(t, err)

	return &fixture{db: db, products: products, variants: variants, syncer: s}
}

func (f *fixture) stock(t *testing.T, sku string) int {
	t.Helper()
	e, err := f.db.GetProduct(context.Background(), sku)
	require.NoError(t, err)
	return e.StockCount
}

func TestSyncProducts_InsertThenAdjust(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products.SetSheet("Sheet1", [][]string{productHeader, productRow("SKU1", "5", "10")})

	run, err := f.syncer.SyncProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusSucceeded, run.Status)
	assert.Equal(t, schema.RunResult{Inserted: 1, Total: 1}, run.Result)
	assert.Equal(t, 5, f.stock(t, "SKU1"))
	assert.Equal(t, "0", f.products.Cell("Sheet1!G2"))
	assert.Equal(t, "5", f.products.Cell("Sheet1!H2"))

	// The operator enters -2 in the cleared adjustment cell.
	require.NoError(t, f.products.WriteCells(ctx, []sheet.CellUpdate{{Cell: "Sheet1!G2", Value: "-2"}}))

	run, err = f.syncer.SyncProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, schema.RunResult{Updated: 1, Total: 1}, run.Result)
	assert.Equal(t, 3, f.stock(t, "SKU1"))
	assert.Equal(t, "0", f.products.Cell("Sheet1!G2"))
	assert.Equal(t, "3", f.products.Cell("Sheet1!H2"))

	// With the adjustment cleared, another run changes nothing.
	_, err = f.syncer.SyncProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, f.stock(t, "SKU1"))
}

func TestSyncProducts_DuplicateRowsLastWins(t *testing.T) {
	f := newFixture(t, nil)
	f.products.SetSheet("Sheet1", [][]string{
		productHeader,
		productRow("SKU1", "5", "10"),
		productRow("SKU1", "7", "12"),
	})

	run, err := f.syncer.SyncProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, run.Result.Total)
	assert.Equal(t, 7, f.stock(t, "SKU1"))
	assert.Equal(t, "0", f.products.Cell("Sheet1!G2"))
	assert.Equal(t, "0", f.products.Cell("Sheet1!G3"))
}

func TestSyncProducts_EmptySheetIsNoop(t *testing.T) {
	f := newFixture(t, nil)

	run, err := f.syncer.SyncProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusNoop, run.Status)
	assert.Equal(t, 1, run.Attempts)

	stored, err := f.db.GetRun(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusNoop, stored.Status)
}

func TestSyncProducts_SheetWriteRetryDoesNotReapply(t *testing.T) {
	f := newFixture(t, nil)
	f.products.SetSheet("Sheet1", [][]string{productHeader, productRow("SKU1", "5", "10")})
	failures := 1
	f.products.WriteErr = func([]sheet.CellUpdate) error {
		if failures > 0 {
			failures--
			return errors.New("sheets quota exceeded")
		}
		return nil
	}

	run, err := f.syncer.SyncProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, run.Attempts)
	assert.Equal(t, 5, f.stock(t, "SKU1"), "upsert replayed, not re-applied")
	assert.Equal(t, "0", f.products.Cell("Sheet1!G2"))

	steps, err := f.db.ListSteps(context.Background(), run.ID)
	require.NoError(t, err)
	var statuses []string
	for _, s := range steps {
		if s.Name == BatchStep(StageUpsertProducts, 0) {
			statuses = append(statuses, s.Status)
		}
	}
	assert.Equal(t, []string{schema.StepStatusSucceeded, schema.StepStatusMemoized}, statuses)
}

func TestSyncProducts_FailedWriteLeavesReapplyWindow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products.SetSheet("Sheet1", [][]string{productHeader, productRow("SKU1", "5", "10")})
	f.products.WriteErr = func([]sheet.CellUpdate) error { return errors.New("sheet locked") }

	run, err := f.syncer.SyncProducts(ctx)
	require.Error(t, err)
	assert.Equal(t, schema.RunStatusFailed, run.Status)
	assert.Equal(t, 4, run.Attempts)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageProductSheet, stageErr.Stage)
	assert.Equal(t, 1, stageErr.Attempted)

	// The delta reached the catalog but the adjustment cell was never
	// cleared, so the next run applies it again.
	assert.Equal(t, 5, f.stock(t, "SKU1"))
	assert.Equal(t, "5", f.products.Cell("Sheet1!G2"))

	f.products.WriteErr = nil
	_, err = f.syncer.SyncProducts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, f.stock(t, "SKU1"))
	assert.Equal(t, "0", f.products.Cell("Sheet1!G2"))
}

func TestSyncAll_ParentTotals(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.products.SetSheet("Sheet1", [][]string{
		productHeader,
		productRow("P1", "8", "50"),
		productRow("SKU1", "2", "10"),
	})
	f.variants.SetSheet("Sheet1", [][]string{
		variantHeader,
		{"P1", "V1", "Red", "4"},
		{"P1", "V2", "Blue", "6", "", "55"},
		{"GHOST", "V9", "Orphan", "1"},
	})

	runs, err := f.syncer.SyncAll(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, PipelineProducts, runs[0].Pipeline)
	assert.Equal(t, PipelineVariants, runs[1].Pipeline)
	assert.Equal(t, schema.RunResult{Inserted: 2, Total: 2, Skipped: 1}, runs[1].Result)

	// Parent stock is the full sum of its variants, overwriting the
	// suppressed primary-sheet adjustment.
	assert.Equal(t, 10, f.stock(t, "P1"))
	assert.Equal(t, "10", f.products.Cell("Sheet1!H2"))
	assert.Equal(t, "0", f.products.Cell("Sheet1!G2"))
	assert.Equal(t, 2, f.stock(t, "SKU1"))

	// Variant sheet: adjustment cleared, stock and effective price written.
	assert.Equal(t, []string{"P1", "V1", "Red", "0", "4", "50"}, f.variants.Rows("Sheet1")[1])
	assert.Equal(t, []string{"P1", "V2", "Blue", "0", "6", "55"}, f.variants.Rows("Sheet1")[2])
	// Orphan row untouched.
	assert.Equal(t, []string{"GHOST", "V9", "Orphan", "1"}, f.variants.Rows("Sheet1")[3])

	totals, err := f.db.ParentStockTotals(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"P1": 10}, totals)
}

func TestSyncVariants_AllOrphansSkipped(t *testing.T) {
	f := newFixture(t, nil)
	f.variants.SetSheet("Sheet1", [][]string{variantHeader, {"GHOST", "V1", "x", "3"}})

	run, err := f.syncer.SyncVariants(context.Background())
	require.NoError(t, err)
	assert.Equal(t, schema.RunStatusSucceeded, run.Status)
	assert.Equal(t, schema.RunResult{Skipped: 1}, run.Result)
	assert.Empty(t, f.variants.Writes())
}

type failingCatalog struct {
	Catalog
	err error
}

func (c failingCatalog) UpsertProducts(context.Context, []schema.ProductRecord) (*schema.UpsertResult, error) {
	return nil, c.err
}

func TestSyncProducts_UpsertStageError(t *testing.T) {
	boom := errors.New("connection reset")
	f := newFixture(t, func(c Catalog) Catalog { return failingCatalog{Catalog: c, err: boom} })
	f.products.SetSheet("Sheet1", [][]string{productHeader, productRow("A", "1", "1"), productRow("B", "1", "1")})

	run, err := f.syncer.SyncProducts(context.Background())
	require.ErrorIs(t, err, boom)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageUpsertProducts, stageErr.Stage)
	assert.Equal(t, 2, stageErr.Attempted)
	assert.Equal(t, 4, run.Attempts)
	assert.Empty(t, f.products.Writes(), "nothing propagated after a failed upsert")
}

// flakyCatalog fails the first upsert of any batch containing failSKU.
type flakyCatalog struct {
	Catalog
	failSKU  string
	failures int
}

func (c *flakyCatalog) UpsertProducts(ctx context.Context, records []schema.ProductRecord) (*schema.UpsertResult, error) {
	if c.failures > 0 && slices.ContainsFunc(records, func(r schema.ProductRecord) bool { return r.SKU == c.failSKU }) {
		c.failures--
		return nil, errors.New("deadlock detected")
	}
	return c.Catalog.UpsertProducts(ctx, records)
}

func (c *flakyCatalog) UpsertVariants(ctx context.Context, variants []schema.ResolvedVariant) (*schema.VariantUpsertResult, error) {
	if c.failures > 0 && slices.ContainsFunc(variants, func(v schema.ResolvedVariant) bool { return v.SKU == c.failSKU }) {
		c.failures--
		return nil, errors.New("deadlock detected")
	}
	return c.Catalog.UpsertVariants(ctx, variants)
}

func stepStatuses(t *testing.T, f *fixture, runID, name string) []string {
	t.Helper()
	steps, err := f.db.ListSteps(context.Background(), runID)
	require.NoError(t, err)
	var statuses []string
	for _, s := range steps {
		if s.Name == name {
			statuses = append(statuses, s.Status)
		}
	}
	return statuses
}

func TestSyncProducts_RetryAfterPartialUpsertResumes(t *testing.T) {
	f := newFixture(t, func(c Catalog) Catalog { return &flakyCatalog{Catalog: c, failSKU: "SKU3", failures: 1} })
	f.db.SetBatchSize(2)
	rows := [][]string{productHeader}
	for _, sku := range []string{"SKU1", "SKU2", "SKU3", "SKU4", "SKU5"} {
		rows = append(rows, productRow(sku, "1", "10"))
	}
	f.products.SetSheet("Sheet1", rows)

	run, err := f.syncer.SyncProducts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, run.Attempts)
	assert.Equal(t, schema.RunResult{Inserted: 5, Total: 5}, run.Result)
	for _, sku := range []string{"SKU1", "SKU2", "SKU3", "SKU4", "SKU5"} {
		assert.Equal(t, 1, f.stock(t, sku), "stock of %s", sku)
	}

	assert.Equal(t, []string{schema.StepStatusSucceeded, schema.StepStatusMemoized},
		stepStatuses(t, f, run.ID, BatchStep(StageUpsertProducts, 0)))
	assert.Equal(t, []string{schema.StepStatusFailed, schema.StepStatusSucceeded},
		stepStatuses(t, f, run.ID, BatchStep(StageUpsertProducts, 1)))
	assert.Equal(t, []string{schema.StepStatusSucceeded},
		stepStatuses(t, f, run.ID, BatchStep(StageUpsertProducts, 2)))
}

func TestSyncProducts_PartialUpsertStageError(t *testing.T) {
	f := newFixture(t, func(c Catalog) Catalog { return &flakyCatalog{Catalog: c, failSKU: "SKU3", failures: 100} })
	f.db.SetBatchSize(2)
	f.products.SetSheet("Sheet1", [][]string{
		productHeader,
		productRow("SKU1", "1", "10"),
		productRow("SKU2", "1", "10"),
		productRow("SKU3", "1", "10"),
	})

	_, err := f.syncer.SyncProducts(context.Background())
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageUpsertProducts, stageErr.Stage)
	assert.Equal(t, 3, stageErr.Attempted)
	// The committed first batch was never re-applied by the retries.
	assert.Equal(t, 1, f.stock(t, "SKU1"))
}

func TestSyncVariants_RetryAfterPartialUpsertResumes(t *testing.T) {
	f := newFixture(t, func(c Catalog) Catalog { return &flakyCatalog{Catalog: c, failSKU: "V3", failures: 1} })
	ctx := context.Background()
	f.products.SetSheet("Sheet1", [][]string{productHeader, productRow("P1", "0", "50")})
	_, err := f.syncer.SyncProducts(ctx)
	require.NoError(t, err)

	f.db.SetBatchSize(2)
	f.variants.SetSheet("Sheet1", [][]string{
		variantHeader,
		{"P1", "V1", "a", "2"},
		{"P1", "V2", "b", "2"},
		{"P1", "V3", "c", "2"},
	})

	run, err := f.syncer.SyncVariants(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, run.Attempts)
	assert.Equal(t, schema.RunResult{Inserted: 3, Total: 3}, run.Result)
	assert.Equal(t, 6, f.stock(t, "P1"))
	assert.Equal(t, []string{"P1", "V1", "a", "0", "2", "50"}, f.variants.Rows("Sheet1")[1])
}

func TestSyncAll_SharedSpreadsheetSeparateTabs(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()
	db, err := catalog.OpenSQLite(filepath.Join(t.TempDir(), "catalog.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.InitSchema())

	book := sheet.NewMemory()
	book.SetSheet("Sheet1", [][]string{
		productHeader,
		{"SKU1", "Widget", "Y", "desc", "", "", "5", "", "", "", "", "9.99"},
		productRow("P1", "3", "20"),
	})
	book.SetSheet("Variants", [][]string{variantHeader, {"P1", "V1", "Red", "4"}})

	ranges := ingest.Ranges{Products: "Sheet1!A2:L", Variants: "Variants!A2:F", ParentSKUs: "Variants!A2:A"}
	loader := ingest.NewLoader(book, book, ranges, logger)
	prop, err := NewPropagator(book, book, ranges, logger)
	require.NoError(t, err)
	sched, err := workflow.New(workflow.Config{}, db, catalog.NewID, logger)
	require.NoError(t, err)
	s, err := New(loader, db, prop, sched, logger)
	require.NoError(t, err)

	_, err = s.SyncAll(ctx)
	require.NoError(t, err)

	widget, err := db.GetProduct(ctx, "SKU1")
	require.NoError(t, err)
	assert.Equal(t, 5, widget.StockCount)
	assert.Equal(t, "desc", widget.ShortDesc)
	assert.Equal(t, []string{"SKU1", "Widget", "Y", "desc", "", "", "0", "5", "", "", "", "9.99"}, book.Rows("Sheet1")[1])

	parent, err := db.GetProduct(ctx, "P1")
	require.NoError(t, err)
	assert.Equal(t, 4, parent.StockCount)
	assert.Equal(t, []string{"P1", "V1", "Red", "0", "4", "20"}, book.Rows("Variants")[1])
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(nil, nil, nil, nil, nil)
	assert.Error(t, err)
}
