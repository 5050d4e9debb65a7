package sync

import "github.com/huangc28/kikichoice-be/internal/inventory/schema"

// Aggregate sums variant stock per parent SKU.
func Aggregate(processed []schema.ProcessedVariant) map[string]int {
	totals := make(map[string]int)
	for _, pv := range processed {
		totals[pv.ParentSKU] += pv.StockCount
	}
	return totals
}
