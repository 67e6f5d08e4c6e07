package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/BartekS5/sante-etl/internal/ledger"
	"github.com/BartekS5/sante-etl/pkg/logger"
	"github.com/BartekS5/sante-etl/pkg/models"
)

// Pipeline runs every stage for one execution date: extract and clean the
// dimensions, then the facts, aggregate, load dimensions, load facts.
type Pipeline struct {
	Catalog    *models.Catalog
	Extractor  *Extractor
	Cleaner    *Cleaner
	Aggregator *Aggregator
	Loader     *WarehouseLoader
	Ledger     ledger.Ledger
	RunID      string
	// DryRun stops after aggregation; Loader may then be nil.
	DryRun bool
}

func NewPipeline(catalog *models.Catalog, ext *Extractor, cleaner *Cleaner, agg *Aggregator, loader *WarehouseLoader, l ledger.Ledger) *Pipeline {
	if l == nil {
		l = ledger.NopLedger{}
	}
	return &Pipeline{
		Catalog:    catalog,
		Extractor:  ext,
		Cleaner:    cleaner,
		Aggregator: agg,
		Loader:     loader,
		Ledger:     l,
		RunID:      uuid.NewString(),
	}
}

// Run stops at the first extraction, cleaning or aggregation error. Load
// failures are per table and only show up in the returned outcomes; see
// FailedLoads.
func (p *Pipeline) Run(ctx context.Context, date models.Date) (outcomes []Outcome, err error) {
	log := logger.WithFields(logger.Fields{"run_id": p.RunID, "date": date})

	release, err := p.Ledger.Acquire(ctx, p.RunID, date.String())
	if err != nil {
		return nil, err
	}
	defer func() {
		if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
			log.Errorf("Releasing run lock failed: %v", relErr)
		}
	}()

	log.Infof("Starting pipeline for %d tables", len(p.Catalog.Tables))
	startTime := time.Now()

	tables := append(p.Catalog.Dimensions(), p.Catalog.Facts()...)
	for _, t := range tables {
		o, err := p.Extractor.Extract(ctx, t.Name, date)
		outcomes = append(outcomes, p.record(ctx, o, err))
		if err != nil {
			return outcomes, fmt.Errorf("extracting %s: %w", t.Name, err)
		}

		o, err = p.Cleaner.Clean(ctx, t.Name, date)
		outcomes = append(outcomes, p.record(ctx, o, err))
		if err != nil {
			return outcomes, fmt.Errorf("cleaning %s: %w", t.Name, err)
		}
	}

	o, err := p.Aggregator.AggregateDaily(ctx, date)
	outcomes = append(outcomes, p.record(ctx, o, err))
	if err != nil {
		return outcomes, fmt.Errorf("aggregating: %w", err)
	}

	if p.DryRun {
		log.Infof("[DRY RUN] Skipping warehouse load, %d stages ran", len(outcomes))
		return outcomes, nil
	}

	for _, load := range []func(context.Context, models.Date) ([]Outcome, error){p.Loader.LoadDimensions, p.Loader.LoadFacts} {
		loaded, err := load(ctx, date)
		for _, o := range loaded {
			outcomes = append(outcomes, p.record(ctx, o, nil))
		}
		if err != nil {
			return outcomes, fmt.Errorf("loading: %w", err)
		}
	}

	summary := Summarize(loadOutcomes(outcomes))
	log.Infof("Pipeline finished in %s. Loaded %d tables (%d rows), skipped %d, failed %d",
		time.Since(startTime).Round(time.Millisecond), summary.Loaded, summary.Rows, summary.Skipped, summary.Failed)
	return outcomes, nil
}

// record logs the outcome and writes it to the ledger. A ledger error is
// logged and otherwise ignored.
func (p *Pipeline) record(ctx context.Context, o Outcome, err error) Outcome {
	if err != nil {
		o.Status, o.Err = StatusFailed, err
	}
	log := logger.WithFields(logger.Fields{"run_id": p.RunID, "stage": o.Stage, "table": o.Table, "date": o.Date})
	switch {
	case o.Err != nil:
		log.Errorf("%s failed: %v", o.Stage, o.Err)
	case o.Stage != StageLoad:
		log.Info(o.String())
	}

	entry := ledger.Entry{
		RunID:         p.RunID,
		Stage:         string(o.Stage),
		Table:         o.Table,
		ExecutionDate: o.Date.String(),
		Status:        string(o.Status),
		Records:       o.Records,
		Message:       o.String(),
	}
	if o.Err != nil {
		entry.Error = o.Err.Error()
	}
	if recErr := p.Ledger.Record(ctx, entry); recErr != nil {
		log.Warnf("Recording outcome in ledger failed: %v", recErr)
	}
	return o
}

func loadOutcomes(outcomes []Outcome) []Outcome {
	var out []Outcome
	for _, o := range outcomes {
		if o.Stage == StageLoad {
			out = append(out, o)
		}
	}
	return out
}
