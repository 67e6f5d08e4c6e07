package etl

import (
	"context"
	"fmt"

	"github.com/BartekS5/sante-etl/pkg/logger"
	"github.com/BartekS5/sante-etl/pkg/models"
)

// Extractor copies one table/date from the source into the raw layer.
type Extractor struct {
	Catalog *models.Catalog
	Reader  PartitionReader
	Writer  *PartitionWriter
	Buckets Buckets
}

func NewExtractor(catalog *models.Catalog, reader PartitionReader, writer *PartitionWriter, buckets Buckets) *Extractor {
	return &Extractor{Catalog: catalog, Reader: reader, Writer: writer, Buckets: buckets}
}

// Extract returns a saved or no_data outcome. Source and storage failures
// are returned as errors and are not retried here beyond the writer's
// single upload retry.
func (e *Extractor) Extract(ctx context.Context, table string, date models.Date) (Outcome, error) {
	out := Outcome{Stage: StageExtract, Table: table, Date: date}
	desc, ok := e.Catalog.Lookup(table)
	if !ok {
		return out, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	log := logger.WithFields(logger.Fields{"stage": StageExtract, "table": table, "date": date})
	if desc.HasDateColumn() {
		log.Infof("Extracting rows where %s = %s", desc.DateColumn, date)
	} else {
		log.Info("Extracting full table")
	}

	result, err := e.Reader.ExtractPartition(ctx, desc, date)
	if err != nil {
		return out, err
	}
	log.Infof("Extracted %d records", result.Len())

	written, key, err := e.Writer.WritePartition(ctx, e.Buckets.Raw, table, date, result, "")
	if err != nil {
		return out, err
	}
	if !written {
		out.Status = StatusNoData
		return out, nil
	}
	out.Status = StatusSaved
	out.Records = result.Len()
	out.Key = key
	return out, nil
}
