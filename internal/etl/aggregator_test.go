package etl

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/sante-etl/pkg/models"
	"github.com/BartekS5/sante-etl/pkg/objectstore"
)

func newTestAggregator(t *testing.T) (*Aggregator, *objectstore.MemoryClient) {
	t.Helper()
	mem := objectstore.NewMemoryClient()
	store, _ := newTestStore(t, mem)
	return NewAggregator(store, NewPartitionWriter(store, 0), DefaultBuckets()), mem
}

func TestDailyConsultations(t *testing.T) {
	res := consultations(day(2024, 1, 2), day(2024, 1, 1), nil, day(2024, 1, 1))

	agg := DailyConsultations(res)
	assert.Equal(t, []string{"date_consultation", "nb_consultations"}, agg.ColumnNames())
	assert.Equal(t, [][]any{
		{day(2024, 1, 1), int64(2)},
		{day(2024, 1, 2), int64(1)},
		{nil, int64(1)},
	}, agg.Rows)
}

func TestAggregateDailyWritesRollup(t *testing.T) {
	a, mem := newTestAggregator(t)
	putPartition(t, mem, "clean", PartitionKey(ConsultationTable, testDate, CleanSuffix),
		consultations(day(2024, 1, 1), day(2024, 1, 1), day(2024, 1, 2)))

	out, err := a.AggregateDaily(context.Background(), testDate)
	require.NoError(t, err)
	assert.Equal(t, StatusSaved, out.Status)
	assert.Equal(t, "consultation_daily/consultation_2024-01-01_agg.parquet", out.Key)
	assert.Equal(t, "Aggregated data saved for date 2024-01-01", out.String())

	got := readPartition(t, mem, "aggregated", out.Key)
	assert.Equal(t, [][]any{
		{day(2024, 1, 1), int64(2)},
		{day(2024, 1, 2), int64(1)},
	}, got.Rows)
}

func TestAggregateDailyMissingColumn(t *testing.T) {
	a, mem := newTestAggregator(t)
	putPartition(t, mem, "clean", PartitionKey(ConsultationTable, testDate, CleanSuffix),
		abTable([]any{int64(1), int64(2)}))

	out, err := a.AggregateDaily(context.Background(), testDate)
	require.NoError(t, err)
	assert.Equal(t, StatusMissingColumn, out.Status)
	assert.Equal(t, "Missing column", out.String())
	assert.Empty(t, mem.Keys("aggregated"))
}

func TestAggregateDailyNoData(t *testing.T) {
	a, mem := newTestAggregator(t)

	out, err := a.AggregateDaily(context.Background(), testDate)
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, out.Status)
	assert.Equal(t, "No consultation data to aggregate", out.String())
	assert.Empty(t, mem.Keys("aggregated"))
}

func TestLessValueMixedTypes(t *testing.T) {
	assert.True(t, lessValue(int64(2), int64(10)))
	assert.True(t, lessValue("a", "b"))
	assert.True(t, lessValue(models.Date{Year: 2023, Month: 12, Day: 31}, testDate))
	assert.False(t, lessValue(nil, int64(1)))
	assert.True(t, lessValue(int64(1), nil))
}
