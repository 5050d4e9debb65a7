// Package schema defines the typed records that flow through an inventory
// sync run.
//
// # Overview
//
// Spreadsheet rows are parsed exactly once, at ingestion, into one of two
// record types. Nothing past ingestion sees raw cells.
//
//   - ProductRecord: one row of the primary (parent products) sheet
//   - VariantRecord: one row of the variants sheet
//
// The catalog side is described by CatalogEntry, and the output of a
// variant upsert by ProcessedVariant.
//
// # Stock Semantics
//
// StockAdjust on both record types is a delta, never an absolute value:
//
//	catalog.stock_count(after) = catalog.stock_count(before) + record.StockAdjust
//
// Parent products whose stock is derived from their variants carry a zero
// delta; their stock_count is overwritten with the sum of their variants.
//
// # Sheet Layout
//
// Column positions are fixed. See layout.go for the 0-based indexes of each
// field in the primary and variants sheets.
package schema
