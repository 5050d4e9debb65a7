// Package sync reconciles the inventory spreadsheets with the catalog.
//
// Two pipelines run as scheduled workflows:
//
//	products:  fetch-sheet-data → dedupe-products → upsert-products
//	           → sync-sheet-current-stock
//
//	variants:  fetch-sheet-data → dedupe-variants → resolve-parents
//	           → upsert-product-variants → sync-product-variants-sheet
//	           → aggregate-parent-stock → sync-parent-products-stock
//	           → update-parent-products-db
//
// Stock adjustments are additive: every run adds each row's adjustment to
// the catalog's running stock_count and then writes "0" back into the
// adjustment cell. A run that fails after the upsert but before the sheet
// write can apply the same adjustment twice; the scheduler limits this by
// replaying the recorded results of upserts on retry instead of running
// them again. Upserts are committed and recorded one batch at a time
// (upsert-products/batch-1, batch-2, ...), so a run that fails part way
// through resumes with the first uncommitted batch.
//
// Parents of variant families get their stock_count overwritten with the
// sum of their variants' stock, in both the catalog and the primary sheet.
package sync
