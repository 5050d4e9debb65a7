package sync

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/huangc28/kikichoice-be/internal/inventory/ingest"
	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
	"github.com/huangc28/kikichoice-be/internal/sheet"
)

// Propagator writes reconciled values back to the spreadsheets.
//
// Target rows are found by re-reading the sheet at write time and matching
// on SKU, so rows inserted or reordered since ingestion are still updated
// correctly. Every row carrying a SKU is written, including duplicate rows
// whose adjustment lost deduplication. Column indexes are offsets from the
// first column of the configured range.
type Propagator struct {
	products sheet.Source
	variants sheet.Source
	prodRng  sheet.Range
	varRng   sheet.Range
	logger   *zap.Logger
}

// NewPropagator creates a Propagator over the given sheets and ranges.
func NewPropagator(products, variants sheet.Source, ranges ingest.Ranges, logger *zap.Logger) (*Propagator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	prodRng, err := sheet.ParseRange(ranges.Products)
	if err != nil {
		return nil, fmt.Errorf("products range: %w", err)
	}
	varRng, err := sheet.ParseRange(ranges.Variants)
	if err != nil {
		return nil, fmt.Errorf("variants range: %w", err)
	}
	return &Propagator{
		products: products,
		variants: variants,
		prodRng:  prodRng,
		varRng:   varRng,
		logger:   logger.Named("propagate"),
	}, nil
}

// WriteProductStock writes each product's stock_count into the current
// stock column and resets its adjustment cell to "0". It returns the
// number of sheet rows updated.
func (p *Propagator) WriteProductStock(ctx context.Context, rows []schema.UpsertedRow) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stock := make(map[string]int, len(rows))
	for _, r := range rows {
		stock[r.SKU] = r.StockCount
	}

	return p.write(ctx, p.products, p.prodRng, schema.ProductColSKU, "products", func(sku string) ([]colValue, bool) {
		n, ok := stock[sku]
		if !ok {
			return nil, false
		}
		return []colValue{
			{schema.ProductColStock, strconv.Itoa(n)},
			{schema.ProductColStockAdjust, schema.ClearedAdjustment},
		}, true
	}, len(stock))
}

// WriteVariantStock writes each variant's stock_count and price and resets
// its adjustment cell to "0".
func (p *Propagator) WriteVariantStock(ctx context.Context, processed []schema.ProcessedVariant) (int, error) {
	if len(processed) == 0 {
		return 0, nil
	}
	bySKU := make(map[string]schema.ProcessedVariant, len(processed))
	for _, pv := range processed {
		bySKU[pv.SKU] = pv
	}

	return p.write(ctx, p.variants, p.varRng, schema.VariantColSKU, "variants", func(sku string) ([]colValue, bool) {
		pv, ok := bySKU[sku]
		if !ok {
			return nil, false
		}
		return []colValue{
			{schema.VariantColStockAdjust, schema.ClearedAdjustment},
			{schema.VariantColStock, strconv.Itoa(pv.StockCount)},
			{schema.VariantColPrice, pv.Price.String()},
		}, true
	}, len(bySKU))
}

// WriteParentTotals writes aggregated variant stock into the parents' stock
// column on the primary sheet.
func (p *Propagator) WriteParentTotals(ctx context.Context, totals map[string]int) (int, error) {
	if len(totals) == 0 {
		return 0, nil
	}
	return p.write(ctx, p.products, p.prodRng, schema.ProductColSKU, "parent totals", func(sku string) ([]colValue, bool) {
		n, ok := totals[sku]
		if !ok {
			return nil, false
		}
		return []colValue{{schema.ProductColStock, strconv.Itoa(n)}}, true
	}, len(totals))
}

type colValue struct {
	col   int
	value string
}

func (p *Propagator) write(
	ctx context.Context,
	src sheet.Source,
	rng sheet.Range,
	skuCol int,
	target string,
	values func(sku string) ([]colValue, bool),
	want int,
) (int, error) {
	rows, err := src.Read(ctx, rng.String())
	if err != nil {
		return 0, fmt.Errorf("failed to re-read %s sheet: %w", target, err)
	}

	var updates []sheet.CellUpdate
	matched := make(map[string]bool)
	rowsUpdated := 0
	for i, row := range rows {
		sku := ingest.Cell(row, skuCol)
		if sku == "" {
			continue
		}
		cols, ok := values(sku)
		if !ok {
			continue
		}
		matched[sku] = true
		rowsUpdated++
		for _, cv := range cols {
			updates = append(updates, sheet.CellUpdate{
				Cell:  rng.Cell(rng.StartCol+cv.col, i),
				Value: cv.value,
			})
		}
	}

	if missing := want - len(matched); missing > 0 {
		p.logger.Warn("skus not found in sheet at write time",
			zap.String("target", target),
			zap.Int("missing", missing))
	}

	if err := src.WriteCells(ctx, updates); err != nil {
		return 0, fmt.Errorf("failed to write %s sheet: %w", target, err)
	}

	p.logger.Info("wrote sheet",
		zap.String("target", target),
		zap.Int("rows", rowsUpdated),
		zap.Int("cells", len(updates)))
	return rowsUpdated, nil
}
