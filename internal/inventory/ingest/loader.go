package ingest

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
	"github.com/huangc28/kikichoice-be/internal/sheet"
)

// Ranges are the A1 ranges the loader reads. Each should start at the data
// row (row 2) and column A so that column indexes match the sheet layout.
type Ranges struct {
	Products   string
	Variants   string
	ParentSKUs string // parent_sku column of the variants sheet
}

// DefaultRanges covers the full column layout of both sheets.
var DefaultRanges = Ranges{
	Products:   "Sheet1!A2:L",
	Variants:   "Sheet1!A2:F",
	ParentSKUs: "Sheet1!A2:A",
}

// Stats describes what ingestion saw.
type Stats struct {
	Rows       int      `json:"rows"`
	Blank      int      `json:"blank"` // rows without a SKU, dropped
	Negative   int      `json:"negative,omitempty"`
	Suppressed []string `json:"suppressed,omitempty"`
	// VariantFilter is false when the has-variants set could not be read
	// and product adjustments were taken as-is.
	VariantFilter bool `json:"variant_filter"`
}

// ProductSheet is the result of reading the primary sheet.
type ProductSheet struct {
	Records []schema.ProductRecord `json:"records"`
	Stats   Stats                  `json:"stats"`
}

// VariantSheet is the result of reading the variants sheet.
type VariantSheet struct {
	Records []schema.VariantRecord `json:"records"`
	Stats   Stats                  `json:"stats"`
}

// Loader reads both sheets.
type Loader struct {
	products sheet.Source
	variants sheet.Source
	ranges   Ranges
	logger   *zap.Logger
}

// NewLoader creates a Loader. Empty range fields fall back to DefaultRanges.
func NewLoader(products, variants sheet.Source, ranges Ranges, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	if ranges.Products == "" {
		ranges.Products = DefaultRanges.Products
	}
	if ranges.Variants == "" {
		ranges.Variants = DefaultRanges.Variants
	}
	if ranges.ParentSKUs == "" {
		ranges.ParentSKUs = DefaultRanges.ParentSKUs
	}
	return &Loader{
		products: products,
		variants: variants,
		ranges:   ranges,
		logger:   logger.Named("ingest"),
	}
}

// Ranges returns the ranges the loader reads.
func (l *Loader) Ranges() Ranges {
	return l.ranges
}

// LoadProducts reads the primary sheet and, concurrently, the parent_sku
// column of the variants sheet. Products that have at least one variant row
// get their adjustment suppressed to 0, since their stock is derived from
// the variants. If the variants read fails the products are returned
// unfiltered.
func (l *Loader) LoadProducts(ctx context.Context) (*ProductSheet, error) {
	var (
		rows        [][]string
		hasVariants map[string]struct{}
		filterErr   error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = l.products.Read(gctx, l.ranges.Products)
		if err != nil {
			return fmt.Errorf("failed to fetch products sheet: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		// Never fails the group.
		hasVariants, filterErr = l.parentSKUs(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &ProductSheet{Stats: Stats{Rows: len(rows), VariantFilter: filterErr == nil}}
	if filterErr != nil {
		l.logger.Warn("continuing without variant filtering", zap.Error(filterErr))
	}

	for _, row := range rows {
		rec := ParseProductRow(row)
		if rec.SKU == "" {
			out.Stats.Blank++
			continue
		}
		if _, ok := hasVariants[rec.SKU]; ok && rec.StockAdjust != 0 {
			l.logger.Info("suppressing stock adjustment for product with variants",
				zap.String("sku", rec.SKU),
				zap.Int("adjustment", rec.StockAdjust))
			out.Stats.Suppressed = append(out.Stats.Suppressed, rec.SKU)
			rec.StockAdjust = 0
		}
		out.Records = append(out.Records, rec)
	}

	l.logger.Info("loaded products sheet",
		zap.Int("rows", out.Stats.Rows),
		zap.Int("records", len(out.Records)),
		zap.Int("blank", out.Stats.Blank),
		zap.Int("parents_with_variants", len(hasVariants)))
	return out, nil
}

// LoadVariants reads the variants sheet.
func (l *Loader) LoadVariants(ctx context.Context) (*VariantSheet, error) {
	rows, err := l.variants.Read(ctx, l.ranges.Variants)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch variants sheet: %w", err)
	}

	out := &VariantSheet{Stats: Stats{Rows: len(rows), VariantFilter: true}}
	for _, row := range rows {
		rec := ParseVariantRow(row)
		if rec.SKU == "" {
			out.Stats.Blank++
			continue
		}
		if rec.StockAdjust < 0 {
			out.Stats.Negative++
			l.logger.Info("negative stock adjustment",
				zap.String("sku", rec.SKU),
				zap.Int("adjustment", rec.StockAdjust))
		}
		out.Records = append(out.Records, rec)
	}

	l.logger.Info("loaded variants sheet",
		zap.Int("rows", out.Stats.Rows),
		zap.Int("records", len(out.Records)),
		zap.Int("blank", out.Stats.Blank))
	return out, nil
}

func (l *Loader) parentSKUs(ctx context.Context) (map[string]struct{}, error) {
	rows, err := l.variants.Read(ctx, l.ranges.ParentSKUs)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch parent skus: %w", err)
	}
	set := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		if sku := Cell(row, 0); sku != "" {
			set[sku] = struct{}{}
		}
	}
	return set, nil
}
