package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
)

// UpsertProducts applies product records to the catalog in batches.
//
// New SKUs are inserted with a fresh id and stock_count equal to the
// record's adjustment. Existing SKUs have name, ready_for_sale, short_desc
// and price overwritten and the adjustment added to stock_count, without
// clamping. Each batch is its own statement; when a batch fails, the
// result of the batches already committed is returned with the error.
func (db *DB) UpsertProducts(ctx context.Context, records []schema.ProductRecord) (*schema.UpsertResult, error) {
	result := &schema.UpsertResult{}
	if len(records) == 0 {
		return result, nil
	}
	if err := checkUnique(records, func(r schema.ProductRecord) string { return r.SKU }); err != nil {
		return result, err
	}
	for _, r := range records {
		if err := r.Validate(); err != nil {
			return result, fmt.Errorf("invalid product %q: %w", r.SKU, err)
		}
	}

	batches := chunk(records, db.batchSize)
	for i, batch := range batches {
		batchResult, err := db.upsertProductBatch(ctx, batch)
		if err != nil {
			return result, fmt.Errorf("failed to upsert product batch %d/%d: %w", i+1, len(batches), err)
		}
		result.Add(batchResult)
	}
	return result, nil
}

func (db *DB) upsertProductBatch(ctx context.Context, batch []schema.ProductRecord) (*schema.UpsertResult, error) {
	now := db.timestamp()
	args := make([]any, 0, len(batch)*9)
	deltas := make(map[string]int, len(batch))
	for _, r := range batch {
		args = append(args, db.newID(), r.SKU, r.Name, r.ReadyForSale, r.ShortDesc, r.StockAdjust, r.Price, now, now)
		deltas[r.SKU] = r.StockAdjust
	}

	query := `
	INSERT INTO products (
		id, sku, name, ready_for_sale, short_desc, stock_count, price,
		created_at, updated_at
	)
	VALUES ` + valuesClause(len(batch), 9) + `
	ON CONFLICT (sku) DO UPDATE SET
		name = excluded.name,
		ready_for_sale = excluded.ready_for_sale,
		short_desc = excluded.short_desc,
		stock_count = products.stock_count + excluded.stock_count,
		price = excluded.price,
		revision = products.revision + 1,
		updated_at = excluded.updated_at
	RETURNING sku, stock_count, price, ` + db.dialect.insertedExpr() + ` AS inserted
	`

	rows, err := db.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := &schema.UpsertResult{}
	for rows.Next() {
		var row schema.UpsertedRow
		if err := rows.Scan(&row.SKU, &row.StockCount, &row.Price, &row.Inserted); err != nil {
			return nil, fmt.Errorf("failed to scan upserted product: %w", err)
		}
		row.Delta = deltas[row.SKU]
		if row.Inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
		result.Total++
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating upserted products: %w", err)
	}
	return result, nil
}

// FindBySKUs returns the catalog entries for every SKU that exists, keyed by
// SKU. Missing SKUs are simply absent from the map.
func (db *DB) FindBySKUs(ctx context.Context, skus []string) (map[string]schema.CatalogEntry, error) {
	found := make(map[string]schema.CatalogEntry, len(skus))
	for _, part := range chunk(distinct(skus), db.batchSize) {
		args := make([]any, len(part))
		for i, s := range part {
			args[i] = s
		}
		query := `
		SELECT id, sku, name, ready_for_sale, short_desc, stock_count, price
		FROM products
		WHERE sku IN (` + inClause(len(part)) + `)
		`
		rows, err := db.query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("failed to query products by sku: %w", err)
		}
		entries, err := scanProducts(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			found[e.SKU] = e
		}
	}
	return found, nil
}

// GetProduct retrieves a single product by SKU. Returns ErrNotFound if the
// SKU is not in the catalog.
func (db *DB) GetProduct(ctx context.Context, sku string) (*schema.CatalogEntry, error) {
	row := db.queryRow(ctx, `
	SELECT id, sku, name, ready_for_sale, short_desc, stock_count, price
	FROM products
	WHERE sku = ?
	`, sku)

	var e schema.CatalogEntry
	err := row.Scan(&e.ID, &e.SKU, &e.Name, &e.ReadyForSale, &e.ShortDesc, &e.StockCount, &e.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", sku, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product %s: %w", sku, err)
	}
	return &e, nil
}

// ListProducts returns every product ordered by SKU.
func (db *DB) ListProducts(ctx context.Context) ([]schema.CatalogEntry, error) {
	rows, err := db.query(ctx, `
	SELECT id, sku, name, ready_for_sale, short_desc, stock_count, price
	FROM products
	ORDER BY sku
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	defer rows.Close()
	return scanProducts(rows)
}

// SetStockCounts overwrites stock_count for each SKU in totals. It returns
// the number of rows updated; SKUs not in the catalog are ignored.
func (db *DB) SetStockCounts(ctx context.Context, totals map[string]int) (int, error) {
	if len(totals) == 0 {
		return 0, nil
	}

	skus := make([]string, 0, len(totals))
	for sku := range totals {
		skus = append(skus, sku)
	}
	slices.Sort(skus)

	updated := 0
	for _, part := range chunk(skus, db.batchSize) {
		var cases strings.Builder
		args := make([]any, 0, len(part)*3+1)
		for _, sku := range part {
			cases.WriteString(" WHEN ? THEN CAST(? AS INTEGER)")
			args = append(args, sku, totals[sku])
		}
		args = append(args, db.timestamp())
		for _, sku := range part {
			args = append(args, sku)
		}

		query := `
		UPDATE products
		SET
			stock_count = CASE sku` + cases.String() + ` ELSE stock_count END,
			updated_at = ?
		WHERE sku IN (` + inClause(len(part)) + `)
		`
		res, err := db.exec(ctx, query, args...)
		if err != nil {
			return updated, fmt.Errorf("failed to set stock counts: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return updated, fmt.Errorf("failed to read affected rows: %w", err)
		}
		updated += int(n)
	}
	return updated, nil
}

// RestoreProducts writes entries back verbatim, keyed on SKU. Unlike
// UpsertProducts, stock_count is overwritten rather than adjusted. Used to
// import a catalog snapshot.
func (db *DB) RestoreProducts(ctx context.Context, entries []schema.CatalogEntry) (int, error) {
	if err := checkUnique(entries, func(e schema.CatalogEntry) string { return e.SKU }); err != nil {
		return 0, err
	}
	restored := 0
	for _, batch := range chunk(entries, db.batchSize) {
		now := db.timestamp()
		args := make([]any, 0, len(batch)*9)
		for _, e := range batch {
			if err := e.Validate(); err != nil {
				return restored, fmt.Errorf("invalid product %q: %w", e.SKU, err)
			}
			args = append(args, e.ID, e.SKU, e.Name, e.ReadyForSale, e.ShortDesc, e.StockCount, e.Price, now, now)
		}
		query := `
		INSERT INTO products (
			id, sku, name, ready_for_sale, short_desc, stock_count, price,
			created_at, updated_at
		)
		VALUES ` + valuesClause(len(batch), 9) + `
		ON CONFLICT (sku) DO UPDATE SET
			name = excluded.name,
			ready_for_sale = excluded.ready_for_sale,
			short_desc = excluded.short_desc,
			stock_count = excluded.stock_count,
			price = excluded.price,
			revision = products.revision + 1,
			updated_at = excluded.updated_at
		`
		if _, err := db.exec(ctx, query, args...); err != nil {
			return restored, fmt.Errorf("failed to restore products: %w", err)
		}
		restored += len(batch)
	}
	return restored, nil
}

// ProductCount returns the number of products in the catalog.
func (db *DB) ProductCount(ctx context.Context) (int, error) {
	var count int
	if err := db.queryRow(ctx, "SELECT COUNT(*) FROM products").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get product count: %w", err)
	}
	return count, nil
}

func scanProducts(rows *sql.Rows) ([]schema.CatalogEntry, error) {
	var entries []schema.CatalogEntry
	for rows.Next() {
		var e schema.CatalogEntry
		if err := rows.Scan(&e.ID, &e.SKU, &e.Name, &e.ReadyForSale, &e.ShortDesc, &e.StockCount, &e.Price); err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating products: %w", err)
	}
	return entries, nil
}
