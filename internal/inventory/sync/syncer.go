package sync

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/huangc28/kikichoice-be/internal/inventory/ingest"
	"github.com/huangc28/kikichoice-be/internal/inventory/schema"
	"github.com/huangc28/kikichoice-be/internal/inventory/workflow"
)

// Catalog is the relational store the pipelines reconcile against.
// *catalog.DB implements it.
type Catalog interface {
	ParentFinder
	UpsertProducts(ctx context.Context, records []schema.ProductRecord) (*schema.UpsertResult, error)
	UpsertVariants(ctx context.Context, variants []schema.ResolvedVariant) (*schema.VariantUpsertResult, error)
	SetStockCounts(ctx context.Context, totals map[string]int) (int, error)
	// BatchSize is the number of records per upsert statement.
	BatchSize() int
}

// Syncer runs the products and variants pipelines.
type Syncer struct {
	loader     *ingest.Loader
	catalog    Catalog
	propagator *Propagator
	scheduler  *workflow.Scheduler
	logger     *zap.Logger
}

// New creates a Syncer. All collaborators are required.
func New(loader *ingest.Loader, catalog Catalog, propagator *Propagator, scheduler *workflow.Scheduler, logger *zap.Logger) (*Syncer, error) {
	if loader == nil || catalog == nil || propagator == nil || scheduler == nil {
		return nil, errors.New("sync: loader, catalog, propagator and scheduler are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Syncer{
		loader:     loader,
		catalog:    catalog,
		propagator: propagator,
		scheduler:  scheduler,
		logger:     logger.Named("sync"),
	}, nil
}

// SyncProducts runs the products pipeline.
func (s *Syncer) SyncProducts(ctx context.Context) (*schema.RunRecord, error) {
	return s.scheduler.Run(ctx, PipelineProducts, s.products)
}

// SyncVariants runs the variants pipeline.
func (s *Syncer) SyncVariants(ctx context.Context) (*schema.RunRecord, error) {
	return s.scheduler.Run(ctx, PipelineVariants, s.variants)
}

// SyncAll runs the products pipeline, then the variants pipeline. The
// variants pipeline runs even if the products pipeline failed, since
// parent totals only depend on the variants sheet.
func (s *Syncer) SyncAll(ctx context.Context) ([]*schema.RunRecord, error) {
	var runs []*schema.RunRecord
	var errs []error

	for _, run := range []func(context.Context) (*schema.RunRecord, error){s.SyncProducts, s.SyncVariants} {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		record, err := run(ctx)
		if record != nil {
			runs = append(runs, record)
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return runs, errors.Join(errs...)
}

// batches splits records into upsert batches. Each batch is committed by a
// single statement and memoized as its own step, so a retried run resumes
// after the last committed batch instead of adding its deltas again.
func batches[T any](records []T, size int) [][]T {
	if size < 1 {
		size = max(len(records), 1)
	}
	return slices.Collect(slices.Chunk(records, size))
}

type dedupedProducts struct {
	Records   []schema.ProductRecord `json:"records"`
	Discarded int                    `json:"discarded"`
	Keys      []string               `json:"keys,omitempty"`
}

type dedupedVariants struct {
	Records   []schema.VariantRecord `json:"records"`
	Discarded int                    `json:"discarded"`
	Keys      []string               `json:"keys,omitempty"`
}

func (s *Syncer) products(ctx context.Context, run *workflow.Run) (schema.RunResult, error) {
	log := run.Logger()

	sheetData, err := workflow.Do(ctx, run, StageFetch, func(ctx context.Context) (*ingest.ProductSheet, error) {
		out, err := s.loader.LoadProducts(ctx)
		return out, stageErr(StageFetch, 0, err)
	})
	if err != nil {
		return schema.RunResult{}, err
	}
	if len(sheetData.Records) == 0 {
		return schema.RunResult{}, fmt.Errorf("no products to update: %w", workflow.ErrNothingToDo)
	}

	deduped, err := workflow.Do(ctx, run, StageDedupeProducts, func(ctx context.Context) (dedupedProducts, error) {
		unique, discarded, keys := Dedupe(sheetData.Records)
		if discarded > 0 {
			log.Warn("discarded duplicate product rows, last occurrence wins",
				zap.Int("discarded", discarded),
				zap.Strings("skus", keys))
		}
		return dedupedProducts{Records: unique, Discarded: discarded, Keys: keys}, nil
	})
	if err != nil {
		return schema.RunResult{}, err
	}

	upserted := &schema.UpsertResult{}
	for i, batch := range batches(deduped.Records, s.catalog.BatchSize()) {
		res, err := workflow.Do(ctx, run, BatchStep(StageUpsertProducts, i), func(ctx context.Context) (*schema.UpsertResult, error) {
			res, err := s.catalog.UpsertProducts(ctx, batch)
			if err != nil {
				return nil, stageErr(StageUpsertProducts, upserted.Total+len(batch), err)
			}
			for _, row := range res.Rows {
				log.Debug("product stock adjusted",
					zap.String("sku", row.SKU),
					zap.Bool("inserted", row.Inserted),
					zap.Int("before", row.StockBefore()),
					zap.Int("delta", row.Delta),
					zap.Int("after", row.StockCount))
			}
			return res, nil
		})
		if err != nil {
			return schema.RunResult{}, err
		}
		upserted.Add(res)
	}
	log.Info("upserted products",
		zap.Int("inserted", upserted.Inserted),
		zap.Int("updated", upserted.Updated),
		zap.Int("total", upserted.Total))

	_, err = workflow.Do(ctx, run, StageProductSheet, func(ctx context.Context) (int, error) {
		n, err := s.propagator.WriteProductStock(ctx, upserted.Rows)
		return n, stageErr(StageProductSheet, len(upserted.Rows), err)
	})
	if err != nil {
		return schema.RunResult{}, err
	}

	return schema.RunResult{
		Inserted: upserted.Inserted,
		Updated:  upserted.Updated,
		Total:    upserted.Total,
	}, nil
}

func (s *Syncer) variants(ctx context.Context, run *workflow.Run) (schema.RunResult, error) {
	log := run.Logger()

	sheetData, err := workflow.Do(ctx, run, StageFetch, func(ctx context.Context) (*ingest.VariantSheet, error) {
		out, err := s.loader.LoadVariants(ctx)
		return out, stageErr(StageFetch, 0, err)
	})
	if err != nil {
		return schema.RunResult{}, err
	}
	if len(sheetData.Records) == 0 {
		return schema.RunResult{}, fmt.Errorf("no product variants to update: %w", workflow.ErrNothingToDo)
	}

	deduped, err := workflow.Do(ctx, run, StageDedupeVariants, func(ctx context.Context) (dedupedVariants, error) {
		unique, discarded, keys := Dedupe(sheetData.Records)
		if discarded > 0 {
			log.Warn("discarded duplicate variant rows, last occurrence wins",
				zap.Int("discarded", discarded),
				zap.Strings("skus", keys))
		}
		return dedupedVariants{Records: unique, Discarded: discarded, Keys: keys}, nil
	})
	if err != nil {
		return schema.RunResult{}, err
	}

	resolved, err := workflow.Do(ctx, run, StageResolveParents, func(ctx context.Context) (*Resolution, error) {
		res, err := ResolveParents(ctx, s.catalog, deduped.Records)
		if err != nil {
			return nil, stageErr(StageResolveParents, len(deduped.Records), err)
		}
		for _, v := range res.Skipped {
			log.Warn("parent product not found, skipping variant",
				zap.String("sku", v.SKU),
				zap.String("parent_sku", v.ParentSKU))
		}
		return res, nil
	})
	if err != nil {
		return schema.RunResult{}, err
	}

	result := schema.RunResult{Skipped: len(resolved.Skipped)}
	if len(resolved.Valid) == 0 {
		log.Warn("no variants with a known parent", zap.Int("skipped", result.Skipped))
		return result, nil
	}

	upserted := &schema.VariantUpsertResult{}
	for i, batch := range batches(resolved.Valid, s.catalog.BatchSize()) {
		res, err := workflow.Do(ctx, run, BatchStep(StageUpsertVariants, i), func(ctx context.Context) (*schema.VariantUpsertResult, error) {
			res, err := s.catalog.UpsertVariants(ctx, batch)
			if err != nil {
				return nil, stageErr(StageUpsertVariants, upserted.Total+len(batch), err)
			}
			return res, nil
		})
		if err != nil {
			return schema.RunResult{}, err
		}
		upserted.Add(res)
	}
	log.Info("upserted variants",
		zap.Int("inserted", upserted.Inserted),
		zap.Int("updated", upserted.Updated),
		zap.Int("total", upserted.Total),
		zap.Int("skipped", result.Skipped))
	result.Inserted = upserted.Inserted
	result.Updated = upserted.Updated
	result.Total = upserted.Total

	_, err = workflow.Do(ctx, run, StageVariantSheet, func(ctx context.Context) (int, error) {
		n, err := s.propagator.WriteVariantStock(ctx, upserted.Processed)
		return n, stageErr(StageVariantSheet, len(upserted.Processed), err)
	})
	if err != nil {
		return schema.RunResult{}, err
	}

	totals, err := workflow.Do(ctx, run, StageAggregate, func(ctx context.Context) (map[string]int, error) {
		return Aggregate(upserted.Processed), nil
	})
	if err != nil {
		return schema.RunResult{}, err
	}

	_, err = workflow.Do(ctx, run, StageParentSheet, func(ctx context.Context) (int, error) {
		n, err := s.propagator.WriteParentTotals(ctx, totals)
		return n, stageErr(StageParentSheet, len(totals), err)
	})
	if err != nil {
		return schema.RunResult{}, err
	}

	_, err = workflow.Do(ctx, run, StageParentCatalog, func(ctx context.Context) (int, error) {
		n, err := s.catalog.SetStockCounts(ctx, totals)
		if err != nil {
			return 0, stageErr(StageParentCatalog, len(totals), err)
		}
		log.Info("updated parent stock in catalog", zap.Int("parents", n))
		return n, nil
	})
	if err != nil {
		return schema.RunResult{}, err
	}

	return result, nil
}
