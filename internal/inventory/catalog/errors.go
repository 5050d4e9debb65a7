package catalog

import "errors"

var (
	// ErrUnknownDialect is returned by Open for an unsupported driver name.
	ErrUnknownDialect = errors.New("unknown catalog dialect")

	// ErrNotFound is returned when a row looked up by key does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateSKU is returned when one upsert call carries the same SKU
	// twice. Callers must deduplicate first; Postgres rejects a statement
	// that updates a row twice.
	ErrDuplicateSKU = errors.New("duplicate sku in upsert")
)
