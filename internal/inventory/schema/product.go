package schema

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ProductRecord is one parsed row of the primary sheet.
type ProductRecord struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	ReadyForSale bool            `json:"ready_for_sale"`
	ShortDesc    string          `json:"short_desc"`
	StockAdjust  int             `json:"stock_adjust_count"` // delta
	Price        decimal.Decimal `json:"price"`
}

// Key returns the natural key used for deduplication and conflict detection.
func (p ProductRecord) Key() string {
	return p.SKU
}

// Validate checks the record can be written to the catalog.
func (p ProductRecord) Validate() error {
	if p.SKU == "" {
		return fmt.Errorf("sku is required")
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("price must not be negative (got %s)", p.Price)
	}
	return nil
}

// CatalogEntry is a row of the products table.
type CatalogEntry struct {
	ID           string          `json:"id"`
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	ReadyForSale bool            `json:"ready_for_sale"`
	ShortDesc    string          `json:"short_desc"`
	StockCount   int             `json:"stock_count"`
	Price        decimal.Decimal `json:"price"`
}

// Validate checks the entry carries the fields required by the products table.
func (c CatalogEntry) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.SKU == "" {
		return fmt.Errorf("sku is required")
	}
	if c.Price.IsNegative() {
		return fmt.Errorf("price must not be negative (got %s)", c.Price)
	}
	return nil
}

// UpsertedRow is the state of a single catalog row after an upsert.
type UpsertedRow struct {
	SKU        string          `json:"sku"`
	Inserted   bool            `json:"inserted"`
	Delta      int             `json:"delta"`
	StockCount int             `json:"stock_count"`
	Price      decimal.Decimal `json:"price"`
}

// StockBefore returns the stock_count the row held before the upsert.
// Inserted rows had no prior stock.
func (r UpsertedRow) StockBefore() int {
	if r.Inserted {
		return 0
	}
	return r.StockCount - r.Delta
}

// UpsertResult aggregates the outcome of one or more upsert batches.
type UpsertResult struct {
	Inserted int           `json:"inserted"`
	Updated  int           `json:"updated"`
	Total    int           `json:"total"`
	Rows     []UpsertedRow `json:"rows"`
}

// Add folds a batch result into r.
func (r *UpsertResult) Add(batch *UpsertResult) {
	if batch == nil {
		return
	}
	r.Inserted += batch.Inserted
	r.Updated += batch.Updated
	r.Total += batch.Total
	r.Rows = append(r.Rows, batch.Rows...)
}
