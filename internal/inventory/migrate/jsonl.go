// Package migrate exports the catalog to a JSONL snapshot and imports one
// back. A snapshot is the manual-correction path after a run applied an
// adjustment twice: export, fix stock counts, import.
package migrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
)

// Record kinds.
const (
	KindProduct = "product"
	KindVariant = "variant"
)

// Record is one line of a snapshot. Variants carry their parent's SKU so a
// snapshot can be imported into a catalog where the parent has another id.
type Record struct {
	Kind      string                 `json:"kind"`
	Product   *schema.CatalogEntry   `json:"product,omitempty"`
	Variant   *schema.CatalogVariant `json:"variant,omitempty"`
	ParentSKU string                 `json:"parent_sku,omitempty"`
}

// Snapshot is a parsed JSONL file.
type Snapshot struct {
	Products []schema.CatalogEntry
	Variants []VariantEntry
}

// VariantEntry is a variant with its parent's SKU.
type VariantEntry struct {
	ParentSKU string
	Variant   schema.CatalogVariant
}

// Store is the catalog surface used for export and import. *catalog.DB
// implements it.
type Store interface {
	ListProducts(ctx context.Context) ([]schema.CatalogEntry, error)
	ListVariants(ctx context.Context) ([]schema.CatalogVariant, error)
	FindBySKUs(ctx context.Context, skus []string) (map[string]schema.CatalogEntry, error)
	RestoreProducts(ctx context.Context, entries []schema.CatalogEntry) (int, error)
	RestoreVariants(ctx context.Context, variants []schema.CatalogVariant) (int, error)
}

// ExportResult counts exported records.
type ExportResult struct {
	Products int
	Variants int
}

// Export writes every product, then every variant, one JSON object per line.
func Export(ctx context.Context, store Store, w io.Writer) (*ExportResult, error) {
	products, err := store.ListProducts(ctx)
	if err != nil {
		return nil, err
	}
	variants, err := store.ListVariants(ctx)
	if err != nil {
		return nil, err
	}

	skuByID := make(map[string]string, len(products))
	for _, p := range products {
		skuByID[p.ID] = p.SKU
	}

	enc := json.NewEncoder(w)
	result := &ExportResult{}
	for i := range products {
		if err := enc.Encode(Record{Kind: KindProduct, Product: &products[i]}); err != nil {
			return result, fmt.Errorf("failed to write product %s: %w", products[i].SKU, err)
		}
		result.Products++
	}
	for i := range variants {
		v := &variants[i]
		parent, ok := skuByID[v.ProductID]
		if !ok {
			return result, fmt.Errorf("variant %s references unknown product %s", v.SKU, v.ProductID)
		}
		if err := enc.Encode(Record{Kind: KindVariant, Variant: v, ParentSKU: parent}); err != nil {
			return result, fmt.Errorf("failed to write variant %s: %w", v.SKU, err)
		}
		result.Variants++
	}
	return result, nil
}

// ExportFile writes a snapshot to path atomically via a temp file.
func ExportFile(ctx context.Context, store Store, path string) (*ExportResult, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	tmpPath := path + ".tmp"
	// #nosec G304 - controlled path from CLI
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	result, err := Export(ctx, store, f)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to close temp file: %w", closeErr)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to rename snapshot: %w", err)
	}
	return result, nil
}

// ReadSnapshot parses a JSONL snapshot.
func ReadSnapshot(r io.Reader) (*Snapshot, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	snap := &Snapshot{}
	for n := 1; ; n++ {
		var rec Record
		if err := dec.Decode(&rec); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("invalid JSON in record %d: %w", n, err)
		}

		switch rec.Kind {
		case KindProduct:
			if rec.Product == nil {
				return nil, fmt.Errorf("record %d: product record without product", n)
			}
			snap.Products = append(snap.Products, *rec.Product)
		case KindVariant:
			if rec.Variant == nil || rec.ParentSKU == "" {
				return nil, fmt.Errorf("record %d: variant record needs variant and parent_sku", n)
			}
			snap.Variants = append(snap.Variants, VariantEntry{ParentSKU: rec.ParentSKU, Variant: *rec.Variant})
		default:
			return nil, fmt.Errorf("record %d: unknown kind %q", n, rec.Kind)
		}
	}
	return snap, nil
}

// FromJSONL reads a snapshot file.
func FromJSONL(path string) (*Snapshot, error) {
	// #nosec G304 - controlled path from CLI
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()
	return ReadSnapshot(f)
}

// ImportOptions configures Import.
type ImportOptions struct {
	DryRun bool // validate and resolve parents without writing
}

// ImportResult reports what Import did.
type ImportResult struct {
	Products int
	Variants int
	// Orphans lists variant SKUs whose parent is neither in the snapshot
	// nor in the catalog. They are not imported.
	Orphans []string
}

// Import restores a snapshot. Stock counts are overwritten, not adjusted.
// Products are written first so variants can be attached to them by SKU.
func Import(ctx context.Context, store Store, snap *Snapshot, opts ImportOptions) (*ImportResult, error) {
	result := &ImportResult{}
	for _, p := range snap.Products {
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("invalid product %q: %w", p.SKU, err)
		}
	}

	if !opts.DryRun {
		n, err := store.RestoreProducts(ctx, snap.Products)
		if err != nil {
			return result, err
		}
		result.Products = n
	} else {
		result.Products = len(snap.Products)
	}

	if len(snap.Variants) == 0 {
		return result, nil
	}

	parentSKUs := make([]string, 0, len(snap.Variants))
	for _, v := range snap.Variants {
		parentSKUs = append(parentSKUs, v.ParentSKU)
	}
	parents, err := store.FindBySKUs(ctx, parentSKUs)
	if err != nil {
		return result, err
	}
	if parents == nil {
		parents = make(map[string]schema.CatalogEntry)
	}
	if opts.DryRun {
		// Nothing was restored, so parents in the snapshot count as found.
		for _, p := range snap.Products {
			if _, ok := parents[p.SKU]; !ok {
				parents[p.SKU] = p
			}
		}
	}

	variants := make([]schema.CatalogVariant, 0, len(snap.Variants))
	for _, v := range snap.Variants {
		parent, ok := parents[v.ParentSKU]
		if !ok {
			result.Orphans = append(result.Orphans, v.Variant.SKU)
			continue
		}
		cv := v.Variant
		cv.ProductID = parent.ID
		if err := cv.Validate(); err != nil {
			return result, fmt.Errorf("invalid variant %q: %w", cv.SKU, err)
		}
		variants = append(variants, cv)
	}

	if opts.DryRun {
		result.Variants = len(variants)
		return result, nil
	}
	n, err := store.RestoreVariants(ctx, variants)
	result.Variants = n
	return result, err
}
