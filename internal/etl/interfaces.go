package etl

import (
	"context"

	"github.com/BartekS5/sante-etl/pkg/models"
)

// PartitionReader returns the rows of one table for one execution date.
type PartitionReader interface {
	ExtractPartition(ctx context.Context, table models.TableDescriptor, date models.Date) (*models.TabularResult, error)
}

// CleaningRule rewrites a partition. It must not mutate its input.
type CleaningRule func(*models.TabularResult) (*models.TabularResult, error)
