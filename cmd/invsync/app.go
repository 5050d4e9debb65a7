package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/huangc28/kikichoice-be/internal/inventory/catalog"
	"github.com/huangc28/kikichoice-be/internal/inventory/ingest"
	"github.com/huangc28/kikichoice-be/internal/inventory/sync"
	"github.com/huangc28/kikichoice-be/internal/inventory/workflow"
	"github.com/huangc28/kikichoice-be/internal/sheet"
)

// openCatalog connects to the configured catalog and ensures its schema.
func openCatalog(ctx context.Context) (*catalog.DB, error) {
	db, err := catalog.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	db.SetBatchSize(cfg.Database.BatchSize)
	if err := db.InitSchemaContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// pipeline bundles everything a sync needs.
type pipeline struct {
	db        *catalog.DB
	syncer    *sync.Syncer
	scheduler *workflow.Scheduler
}

func (p *pipeline) Close() error {
	return p.db.Close()
}

// openPipeline validates the configuration and wires sheets, catalog and
// scheduler into a Syncer.
func openPipeline(ctx context.Context) (*pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}

	products, err := sheet.Open(ctx, cfg.ProductsSheet())
	if err != nil {
		return nil, fmt.Errorf("failed to open products sheet: %w", err)
	}
	variants, err := sheet.Open(ctx, cfg.VariantsSheet())
	if err != nil {
		return nil, fmt.Errorf("failed to open variants sheet: %w", err)
	}

	db, err := openCatalog(ctx)
	if err != nil {
		return nil, err
	}

	log := logger.Logger
	ranges := cfg.Ranges()
	loader := ingest.NewLoader(products, variants, ranges, log)
	propagator, err := sync.NewPropagator(products, variants, ranges, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	scheduler, err := workflow.New(cfg.Workflow(), db, catalog.NewID, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	syncer, err := sync.New(loader, db, propagator, scheduler, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	log.Debug("pipeline ready",
		zap.String("backend", cfg.Sheets.Backend),
		zap.String("driver", cfg.Database.Driver),
		zap.Int("batch_size", db.BatchSize()),
	)
	return &pipeline{db: db, syncer: syncer, scheduler: scheduler}, nil
}
