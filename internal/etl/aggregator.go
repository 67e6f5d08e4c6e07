package etl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/BartekS5/sante-etl/pkg/columnar"
	"github.com/BartekS5/sante-etl/pkg/logger"
	"github.com/BartekS5/sante-etl/pkg/models"
	"github.com/BartekS5/sante-etl/pkg/objectstore"
	"github.com/BartekS5/sante-etl/pkg/utils"
)

const (
	ConsultationTable      = "fact_consultation"
	ConsultationDateColumn = "date_consultation"
	ConsultationCount      = "nb_consultations"
)

// Aggregator builds the daily consultation rollup.
type Aggregator struct {
	Store   *Store
	Writer  *PartitionWriter
	Buckets Buckets
}

func NewAggregator(store *Store, writer *PartitionWriter, buckets Buckets) *Aggregator {
	return &Aggregator{Store: store, Writer: writer, Buckets: buckets}
}

// AggregateDaily reads the clean fact_consultation partition and writes the
// per-day count. The rollup is written even when it has no rows.
func (a *Aggregator) AggregateDaily(ctx context.Context, date models.Date) (Outcome, error) {
	out := Outcome{Stage: StageAggregate, Table: ConsultationTable, Date: date}
	log := logger.WithFields(logger.Fields{"stage": StageAggregate, "date": date})

	key := PartitionKey(ConsultationTable, date, CleanSuffix)
	data, err := a.Store.Get(ctx, a.Buckets.Clean, key)
	if errors.Is(err, objectstore.ErrNotFound) {
		out.Status = StatusNoData
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("reading %s/%s: %w", a.Buckets.Clean, key, err)
	}
	res, err := columnar.Decode(ctx, data)
	if err != nil {
		return out, fmt.Errorf("decoding %s: %w", key, err)
	}

	if !res.HasColumn(ConsultationDateColumn) {
		log.Warnf("%s column not found in %s", ConsultationDateColumn, ConsultationTable)
		out.Status = StatusMissingColumn
		return out, nil
	}
	agg := DailyConsultations(res)

	aggKey := AggregateKey(date)
	if err := a.Writer.WriteObject(ctx, a.Buckets.Aggregated, aggKey, agg); err != nil {
		return out, err
	}
	log.Infof("Aggregated %d consultations into %d days", res.Len(), agg.Len())
	out.Status = StatusSaved
	out.Records = agg.Len()
	out.Key = aggKey
	return out, nil
}

// DailyConsultations counts rows per date_consultation value. Groups come
// out in ascending date order, with a nil group last. The caller checks the
// date column exists.
func DailyConsultations(res *models.TabularResult) *models.TabularResult {
	idx := res.ColumnIndex(ConsultationDateColumn)
	out := models.NewTabularResult(
		models.Column{Name: ConsultationDateColumn, Type: res.Columns[idx].Type},
		models.Column{Name: ConsultationCount, Type: models.TypeInteger},
	)

	counts := make(map[any]int64)
	var keys []any
	for _, row := range res.Rows {
		k := row[idx]
		if _, ok := counts[k]; !ok {
			keys = append(keys, k)
		}
		counts[k]++
	}
	sort.SliceStable(keys, func(i, j int) bool { return lessValue(keys[i], keys[j]) })

	for _, k := range keys {
		out.Append(k, counts[k])
	}
	return out
}

func lessValue(a, b any) bool {
	if a == nil || b == nil {
		return a != nil && b == nil
	}
	switch av := a.(type) {
	case models.Date:
		if bv, ok := b.(models.Date); ok {
			return av.Before(bv)
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Before(bv)
		}
	case int64:
		if bv, ok := b.(int64); ok {
			return av < bv
		}
	}
	return utils.ConvertToString(a) < utils.ConvertToString(b)
}
