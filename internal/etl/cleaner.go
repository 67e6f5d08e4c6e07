package etl

import (
	"context"
	"errors"
	"fmt"

	"github.com/BartekS5/sante-etl/pkg/columnar"
	"github.com/BartekS5/sante-etl/pkg/logger"
	"github.com/BartekS5/sante-etl/pkg/models"
	"github.com/BartekS5/sante-etl/pkg/objectstore"
)

// Cleaner turns a raw partition into a clean one: table rule, then null
// removal, then deduplication.
type Cleaner struct {
	Catalog *models.Catalog
	Rules   *RuleRegistry
	Store   *Store
	Writer  *PartitionWriter
	Buckets Buckets
}

func NewCleaner(catalog *models.Catalog, rules *RuleRegistry, store *Store, writer *PartitionWriter, buckets Buckets) *Cleaner {
	return &Cleaner{Catalog: catalog, Rules: rules, Store: store, Writer: writer, Buckets: buckets}
}

func (c *Cleaner) Clean(ctx context.Context, table string, date models.Date) (Outcome, error) {
	out := Outcome{Stage: StageClean, Table: table, Date: date}
	desc, ok := c.Catalog.Lookup(table)
	if !ok {
		return out, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	log := logger.WithFields(logger.Fields{"stage": StageClean, "table": table, "date": date})

	rawKey := PartitionKey(table, date, "")
	data, err := c.Store.Get(ctx, c.Buckets.Raw, rawKey)
	if errors.Is(err, objectstore.ErrNotFound) {
		log.Infof("No raw partition at %s", rawKey)
		out.Status = StatusNoData
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("reading %s/%s: %w", c.Buckets.Raw, rawKey, err)
	}
	raw, err := columnar.Decode(ctx, data)
	if err != nil {
		return out, fmt.Errorf("decoding %s: %w", rawKey, err)
	}

	cleaned, err := c.CleanResult(desc, raw)
	if err != nil {
		return out, err
	}
	log.Infof("Kept %d of %d rows", cleaned.Len(), raw.Len())

	written, key, err := c.Writer.WritePartition(ctx, c.Buckets.Clean, table, date, cleaned, CleanSuffix)
	if err != nil {
		return out, err
	}
	if !written {
		out.Status = StatusEmpty
		return out, nil
	}
	out.Status = StatusSaved
	out.Records = cleaned.Len()
	out.Key = key
	return out, nil
}

// CleanResult applies the cleaning steps to an in-memory partition.
func (c *Cleaner) CleanResult(desc models.TableDescriptor, raw *models.TabularResult) (*models.TabularResult, error) {
	if err := ValidateColumns(desc, raw); err != nil {
		return nil, err
	}
	res, err := c.Rules.For(desc.Name)(raw)
	if err != nil {
		return nil, err
	}
	return Deduplicate(DropNulls(res)), nil
}
