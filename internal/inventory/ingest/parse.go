// Package ingest turns spreadsheet rows into typed inventory records.
//
// Parsing never fails: blank cells become "" or 0, unparseable numbers
// become 0, and every string is trimmed. Rows may be ragged.
package ingest

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
)

var (
	intPrefix   = regexp.MustCompile(`^[+-]?\d+`)
	floatPrefix = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?`)
)

// Cell returns the trimmed value at index i, or "" if the row is too short.
func Cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// ParseInt reads the leading integer of s, ignoring anything after it.
// "12", "12 pcs" and "12.9" all give 12; "", "abc" and overflow give 0.
func ParseInt(s string) int {
	m := intPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return 0
	}
	n, err := strconv.Atoi(m)
	if err != nil {
		return 0
	}
	return n
}

// ParsePrice reads the leading decimal number of s. Blank, unparseable and
// negative values give zero.
func ParsePrice(s string) decimal.Decimal {
	m := floatPrefix.FindString(strings.TrimSpace(s))
	if m == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(m)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// ParseProductRow maps a primary sheet row to a ProductRecord.
func ParseProductRow(row []string) schema.ProductRecord {
	return schema.ProductRecord{
		SKU:          Cell(row, schema.ProductColSKU),
		Name:         Cell(row, schema.ProductColName),
		ReadyForSale: Cell(row, schema.ProductColReadyForSale) == schema.ReadyForSaleMarker,
		ShortDesc:    Cell(row, schema.ProductColShortDesc),
		StockAdjust:  ParseInt(Cell(row, schema.ProductColStockAdjust)),
		Price:        ParsePrice(Cell(row, schema.ProductColPrice)),
	}
}

// ParseVariantRow maps a variants sheet row to a VariantRecord.
func ParseVariantRow(row []string) schema.VariantRecord {
	return schema.VariantRecord{
		ParentSKU:   Cell(row, schema.VariantColParentSKU),
		SKU:         Cell(row, schema.VariantColSKU),
		Name:        Cell(row, schema.VariantColName),
		StockAdjust: ParseInt(Cell(row, schema.VariantColStockAdjust)),
		Price:       ParsePrice(Cell(row, schema.VariantColPrice)),
	}
}
