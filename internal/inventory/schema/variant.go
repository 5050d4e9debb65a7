package schema

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// VariantRecord is one parsed row of the variants sheet.
type VariantRecord struct {
	ParentSKU   string          `json:"parent_sku"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	StockAdjust int             `json:"stock_adjust_count"` // delta
	Price       decimal.Decimal `json:"price"`              // zero inherits the parent's price
}

// Key returns the natural key used for deduplication and conflict detection.
func (v VariantRecord) Key() string {
	return v.SKU
}

// Validate checks the record can be written to the catalog.
func (v VariantRecord) Validate() error {
	if v.SKU == "" {
		return fmt.Errorf("sku is required")
	}
	if v.ParentSKU == "" {
		return fmt.Errorf("parent_sku is required")
	}
	if v.Price.IsNegative() {
		return fmt.Errorf("price must not be negative (got %s)", v.Price)
	}
	return nil
}

// InheritsPrice reports whether the variant takes its parent's price.
func (v VariantRecord) InheritsPrice() bool {
	return v.Price.IsZero()
}

// ResolvedVariant is a variant whose parent exists in the catalog.
type ResolvedVariant struct {
	VariantRecord
	ParentID string `json:"parent_id"`
}

// ProcessedVariant is the post-upsert state of a resolved variant.
type ProcessedVariant struct {
	SKU        string          `json:"sku"`
	ParentSKU  string          `json:"parent_sku"`
	Inserted   bool            `json:"inserted"`
	StockCount int             `json:"stock_count"`
	Price      decimal.Decimal `json:"price"`
}

// VariantUpsertResult is UpsertResult for the variants table, carrying the
// parent linkage needed for aggregation.
type VariantUpsertResult struct {
	Inserted  int                `json:"inserted"`
	Updated   int                `json:"updated"`
	Total     int                `json:"total"`
	Processed []ProcessedVariant `json:"processed"`
}

// Add folds a batch result into r.
func (r *VariantUpsertResult) Add(batch *VariantUpsertResult) {
	if batch == nil {
		return
	}
	r.Inserted += batch.Inserted
	r.Updated += batch.Updated
	r.Total += batch.Total
	r.Processed = append(r.Processed, batch.Processed...)
}

// CatalogVariant is a row of the product_variants table.
type CatalogVariant struct {
	ID         string          `json:"id"`
	ProductID  string          `json:"product_id"`
	SKU        string          `json:"sku"`
	Name       string          `json:"name"`
	StockCount int             `json:"stock_count"`
	Price      decimal.Decimal `json:"price"`
}

// Validate checks the variant carries the fields required by the
// product_variants table.
func (c CatalogVariant) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.ProductID == "" {
		return fmt.Errorf("product_id is required")
	}
	if c.SKU == "" {
		return fmt.Errorf("sku is required")
	}
	if c.Price.IsNegative() {
		return fmt.Errorf("price must not be negative (got %s)", c.Price)
	}
	return nil
}
