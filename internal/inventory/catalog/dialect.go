package catalog

import (
	"strconv"
	"strings"
)

// Dialect selects SQL syntax differences between catalog backends.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// rebind rewrites ? placeholders to $n for Postgres.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 16)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// insertedExpr reports, in a RETURNING clause, whether the upsert inserted
// the row. Postgres exposes this through xmax; SQLite rows carry a revision
// counter that starts at 1 and is bumped on every conflict update.
func (d Dialect) insertedExpr() string {
	if d == DialectPostgres {
		return "(xmax = 0)"
	}
	return "(revision = 1)"
}

// valuesClause renders rows groups of cols placeholders each, followed by
// any fixed SQL expressions, e.g. "(?, ?, 1), (?, ?, 1)".
func valuesClause(rows, cols int, extra ...string) string {
	parts := make([]string, 0, cols+len(extra))
	for i := 0; i < cols; i++ {
		parts = append(parts, "?")
	}
	parts = append(parts, extra...)
	group := "(" + strings.Join(parts, ", ") + ")"

	groups := make([]string, rows)
	for i := range groups {
		groups[i] = group
	}
	return strings.Join(groups, ", ")
}

// inClause renders n comma-separated placeholders.
func inClause(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

// chunk splits items into consecutive slices of at most size elements.
func chunk[T any](items []T, size int) [][]T {
	if size < 1 {
		size = DefaultBatchSize
	}
	var out [][]T
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		out = append(out, items[start:end])
	}
	return out
}

func (d Dialect) ddl() []string {
	boolType, priceType, serial := "INTEGER", "TEXT", "INTEGER PRIMARY KEY AUTOINCREMENT"
	if d == DialectPostgres {
		boolType, priceType, serial = "BOOLEAN", "NUMERIC(12, 2)", "BIGSERIAL PRIMARY KEY"
	}
	falseLit := "0"
	if d == DialectPostgres {
		falseLit = "FALSE"
	}

	return []string{
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY,
			sku TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			ready_for_sale ` + boolType + ` NOT NULL DEFAULT ` + falseLit + `,
			short_desc TEXT NOT NULL DEFAULT '',
			stock_count INTEGER NOT NULL DEFAULT 0,
			price ` + priceType + ` NOT NULL DEFAULT 0,
			revision INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS product_variants (
			id TEXT PRIMARY KEY,
			product_id TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
			sku TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			stock_count INTEGER NOT NULL DEFAULT 0,
			price ` + priceType + ` NOT NULL DEFAULT 0,
			revision INTEGER NOT NULL DEFAULT 1,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_product_variants_product ON product_variants(product_id)`,
		`CREATE TABLE IF NOT EXISTS sync_runs (
			id TEXT PRIMARY KEY,
			pipeline TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			inserted INTEGER NOT NULL DEFAULT 0,
			updated INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			skipped INTEGER NOT NULL DEFAULT 0,
			error TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			finished_at TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_runs_started ON sync_runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS sync_steps (
			seq ` + serial + `,
			run_id TEXT NOT NULL REFERENCES sync_runs(id) ON DELETE CASCADE,
			attempt INTEGER NOT NULL,
			name TEXT NOT NULL,
			status TEXT NOT NULL,
			output TEXT NOT NULL DEFAULT '',
			error TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			duration_ms INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_steps_run ON sync_steps(run_id, attempt)`,
	}
}
