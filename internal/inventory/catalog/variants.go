package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
)

// UpsertVariants applies resolved variant records to the catalog in batches,
// with the same additive stock semantics as UpsertProducts. Every record must
// already carry its parent's id. A zero price is written as-is; price
// inheritance happens during parent resolution.
func (db *DB) UpsertVariants(ctx context.Context, variants []schema.ResolvedVariant) (*schema.VariantUpsertResult, error) {
	result := &schema.VariantUpsertResult{}
	if len(variants) == 0 {
		return result, nil
	}
	if err := checkUnique(variants, func(v schema.ResolvedVariant) string { return v.SKU }); err != nil {
		return result, err
	}
	for _, v := range variants {
		if err := v.Validate(); err != nil {
			return result, fmt.Errorf("invalid variant %q: %w", v.SKU, err)
		}
		if v.ParentID == "" {
			return result, fmt.Errorf("invalid variant %q: parent id is required", v.SKU)
		}
	}

	batches := chunk(variants, db.batchSize)
	for i, batch := range batches {
		batchResult, err := db.upsertVariantBatch(ctx, batch)
		if err != nil {
			return result, fmt.Errorf("failed to upsert variant batch %d/%d: %w", i+1, len(batches), err)
		}
		result.Add(batchResult)
	}
	return result, nil
}

func (db *DB) upsertVariantBatch(ctx context.Context, batch []schema.ResolvedVariant) (*schema.VariantUpsertResult, error) {
	now := db.timestamp()
	args := make([]any, 0, len(batch)*8)
	parents := make(map[string]string, len(batch))
	for _, v := range batch {
		args = append(args, db.newID(), v.ParentID, v.SKU, v.Name, v.StockAdjust, v.Price, now, now)
		parents[v.SKU] = v.ParentSKU
	}

	query := `
	INSERT INTO product_variants (
		id, product_id, sku, name, stock_count, price, created_at, updated_at
	)
	VALUES ` + valuesClause(len(batch), 8) + `
	ON CONFLICT (sku) DO UPDATE SET
		product_id = excluded.product_id,
		name = excluded.name,
		stock_count = product_variants.stock_count + excluded.stock_count,
		price = excluded.price,
		revision = product_variants.revision + 1,
		updated_at = excluded.updated_at
	RETURNING sku, stock_count, price, ` + db.dialect.insertedExpr() + ` AS inserted
	`

	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &schema.VariantUpsertResult{}
	for rows.Next() {
		var pv schema.ProcessedVariant
		if err := rows.Scan(&pv.SKU, &pv.StockCount, &pv.Price, &pv.Inserted); err != nil {
			return nil, fmt.Errorf("failed to scan upserted variant: %w", err)
		}
		pv.ParentSKU = parents[pv.SKU]
		if pv.Inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
		result.Total++
		result.Processed = append(result.Processed, pv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating upserted variants: %w", err)
	}
	return result, nil
}

// ListVariants returns every variant ordered by SKU.
func (db *DB) ListVariants(ctx context.Context) ([]schema.CatalogVariant, error) {
	rows, err := db.query(ctx, `
	SELECT id, product_id, sku, name, stock_count, price
	FROM product_variants
	ORDER BY sku
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list variants: %w", err)
	}
	defer rows.Close()
	return scanVariants(rows)
}

// ParentStockTotals sums variant stock per parent SKU straight from the
// catalog. It is the database-side counterpart of the in-memory aggregation.
func (db *DB) ParentStockTotals(ctx context.Context) (map[string]int, error) {
	rows, err := db.query(ctx, `
	SELECT p.sku, COALESCE(SUM(v.stock_count), 0)
	FROM products p
	JOIN product_variants v ON v.product_id = p.id
	GROUP BY p.sku
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to sum variant stock: %w", err)
	}
	defer rows.Close()

	totals := make(map[string]int)
	for rows.Next() {
		var sku string
		var total int
		if err := rows.Scan(&sku, &total); err != nil {
			return nil, fmt.Errorf("failed to scan parent total: %w", err)
		}
		totals[sku] = total
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parent totals: %w", err)
	}
	return totals, nil
}

// ParentDrift is a parent product whose stock_count disagrees with the sum
// of its variants.
type ParentDrift struct {
	SKU          string `json:"sku"`
	StockCount   int    `json:"stock_count"`
	VariantTotal int    `json:"variant_total"`
}

// ParentStockDrift compares every parent's stock_count with
// ParentStockTotals and returns the parents that differ, ordered by SKU.
// Drift is expected between a variant upsert and the parent update that
// follows it; anything left after a successful variants run means the
// catalog was edited outside invsync.
func (db *DB) ParentStockDrift(ctx context.Context) ([]ParentDrift, error) {
	totals, err := db.ParentStockTotals(ctx)
	if err != nil {
		return nil, err
	}
	skus := slices.Sorted(maps.Keys(totals))
	parents, err := db.FindBySKUs(ctx, skus)
	if err != nil {
		return nil, err
	}

	var drift []ParentDrift
	for _, sku := range skus {
		p, ok := parents[sku]
		if !ok || p.StockCount == totals[sku] {
			continue
		}
		drift = append(drift, ParentDrift{SKU: sku, StockCount: p.StockCount, VariantTotal: totals[sku]})
	}
	return drift, nil
}

// RestoreVariants writes variants back verbatim, keyed on SKU, overwriting
// stock_count. Parent products must already exist.
func (db *DB) RestoreVariants(ctx context.Context, variants []schema.CatalogVariant) (int, error) {
	if err := checkUnique(variants, func(v schema.CatalogVariant) string { return v.SKU }); err != nil {
		return 0, err
	}
	restored := 0
	for _, batch := range chunk(variants, db.batchSize) {
		now := db.timestamp()
		args := make([]any, 0, len(batch)*8)
		for _, v := range batch {
			if err := v.Validate(); err != nil {
				return restored, fmt.Errorf("invalid variant %q: %w", v.SKU, err)
			}
			args = append(args, v.ID, v.ProductID, v.SKU, v.Name, v.StockCount, v.Price, now, now)
		}
		query := `
		INSERT INTO product_variants (
			id, product_id, sku, name, stock_count, price, created_at, updated_at
		)
		VALUES ` + valuesClause(len(batch), 8) + `
		ON CONFLICT (sku) DO UPDATE SET
			product_id = excluded.product_id,
			name = excluded.name,
			stock_count = excluded.stock_count,
			price = excluded.price,
			revision = product_variants.revision + 1,
			updated_at = excluded.updated_at
		`
		if _, err := db.exec(ctx, query, args...); err != nil {
			return restored, fmt.Errorf("failed to restore variants: %w", err)
		}
		restored += len(batch)
	}
	return restored, nil
}

// VariantCount returns the number of variants in the catalog.
func (db *DB) VariantCount(ctx context.Context) (int, error) {
	var count int
	if err := db.queryRow(ctx, "SELECT COUNT(*) FROM product_variants").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get variant count: %w", err)
	}
	return count, nil
}

func scanVariants(rows *sql.Rows) ([]schema.CatalogVariant, error) {
	var out []schema.CatalogVariant
	for rows.Next() {
		var v schema.CatalogVariant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Name, &v.StockCount, &v.Price); err != nil {
			return nil, fmt.Errorf("failed to scan variant: %w", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating variants: %w", err)
	}
	return out, nil
}
