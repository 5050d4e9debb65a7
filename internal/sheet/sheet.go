// Package sheet provides tabular spreadsheet access for inventory sync.
//
// A Source reads rectangular ranges of string cells and writes individual
// cells in batches. Addresses use A1 notation: a column letter followed by a
// 1-based row number, optionally prefixed by a sheet name ("Sheet1!G2").
// Row 1 of every sheet is a header; data starts at row 2.
//
// Three backends are provided:
//   - Google: Google Sheets v4 API
//   - CSVBook: a directory of CSV files, one per sheet tab
//   - Memory: an in-process grid used by tests
package sheet

import (
	"context"
	"fmt"
)

// Source is the spreadsheet collaborator used by ingestion and propagation.
type Source interface {
	// Read returns the cells of rng, one slice per row. Trailing empty
	// cells and trailing empty rows are omitted, so rows may be ragged.
	Read(ctx context.Context, rng string) ([][]string, error)

	// WriteCells writes every update in a single batch. An empty batch
	// is a no-op.
	WriteCells(ctx context.Context, updates []CellUpdate) error
}

// CellUpdate sets a single cell to a raw string value.
type CellUpdate struct {
	Cell  string `json:"cell"`
	Value string `json:"value"`
}

func (u CellUpdate) String() string {
	return fmt.Sprintf("%s=%q", u.Cell, u.Value)
}
