package sync

import "fmt"

// Stage names, used as workflow step names.
const (
	StageFetch          = "fetch-sheet-data"
	StageDedupeProducts = "dedupe-products"
	StageDedupeVariants = "dedupe-variants"
	StageResolveParents = "resolve-parents"
	StageUpsertProducts = "upsert-products"
	StageUpsertVariants = "upsert-product-variants"
	StageProductSheet   = "sync-sheet-current-stock"
	StageVariantSheet   = "sync-product-variants-sheet"
	StageAggregate      = "aggregate-parent-stock"
	StageParentSheet    = "sync-parent-products-stock"
	StageParentCatalog  = "update-parent-products-db"
)

// Pipeline names.
const (
	PipelineProducts = "products"
	PipelineVariants = "variants"
)

// BatchStep names the step that commits batch i (0-based) of an upsert stage.
func BatchStep(stage string, i int) string {
	return fmt.Sprintf("%s/batch-%d", stage, i+1)
}

// StageError reports which stage failed and how many records it was
// handling when it did.
type StageError struct {
	Stage     string
	Attempted int
	Err       error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed (%d records attempted): %v", e.Stage, e.Attempted, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

func stageErr(stage string, attempted int, err error) error {
	if err == nil {
		return nil
	}
	return &StageError{Stage: stage, Attempted: attempted, Err: err}
}
