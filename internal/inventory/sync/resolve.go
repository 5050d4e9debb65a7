package sync

import (
	"context"
	"fmt"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
)

// ParentFinder looks up catalog entries by SKU.
type ParentFinder interface {
	FindBySKUs(ctx context.Context, skus []string) (map[string]schema.CatalogEntry, error)
}

// Resolution partitions variants by whether their parent exists.
type Resolution struct {
	Valid   []schema.ResolvedVariant `json:"valid"`
	Skipped []schema.VariantRecord   `json:"skipped"`
}

// ResolveParents looks up every distinct parent SKU in one batched query
// and attaches the parent id to each variant whose parent exists. A zero
// variant price is replaced by the parent's current price. Variants with
// an unknown parent are returned in Skipped, in input order.
func ResolveParents(ctx context.Context, finder ParentFinder, variants []schema.VariantRecord) (*Resolution, error) {
	res := &Resolution{}
	if len(variants) == 0 {
		return res, nil
	}

	skus := make([]string, 0, len(variants))
	seen := make(map[string]bool, len(variants))
	for _, v := range variants {
		if !seen[v.ParentSKU] {
			seen[v.ParentSKU] = true
			skus = append(skus, v.ParentSKU)
		}
	}

	parents, err := finder.FindBySKUs(ctx, skus)
	if err != nil {
		return nil, fmt.Errorf("failed to look up parent products: %w", err)
	}

	for _, v := range variants {
		parent, ok := parents[v.ParentSKU]
		if !ok {
			res.Skipped = append(res.Skipped, v)
			continue
		}
		if v.InheritsPrice() {
			v.Price = parent.Price
		}
		res.Valid = append(res.Valid, schema.ResolvedVariant{VariantRecord: v, ParentID: parent.ID})
	}
	return res, nil
}
