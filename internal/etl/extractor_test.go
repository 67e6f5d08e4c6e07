package etl

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BartekS5/sante-etl/pkg/models"
	"github.com/BartekS5/sante-etl/pkg/objectstore"
)

func newTestExtractor(t *testing.T, reader PartitionReader) (*Extractor, *objectstore.MemoryClient) {
	t.Helper()
	mem := objectstore.NewMemoryClient()
	store, _ := newTestStore(t, mem)
	return NewExtractor(models.DefaultCatalog(), reader, NewPartitionWriter(store, 0), DefaultBuckets()), mem
}

func TestExtractSavesPartition(t *testing.T) {
	reader := &stubReader{result: consultations(testDate, testDate)}
	ext, mem := newTestExtractor(t, reader)

	out, err := ext.Extract(context.Background(), "fact_consultation", testDate)
	require.NoError(t, err)
	assert.Equal(t, StatusSaved, out.Status)
	assert.Equal(t, 2, out.Records)
	assert.Equal(t, "fact_consultation/fact_consultation_2024-01-01.parquet", out.Key)
	assert.Equal(t, "Extracted and saved 2 records from fact_consultation", out.String())

	got := readPartition(t, mem, "raw", out.Key)
	assert.Equal(t, reader.result.Rows, got.Rows)
}

func TestExtractNoRowsWritesNothing(t *testing.T) {
	ext, mem := newTestExtractor(t, &stubReader{result: consultations()})

	out, err := ext.Extract(context.Background(), "fact_analyse", testDate)
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, out.Status)
	assert.Equal(t, "No data found for fact_analyse on 2024-01-01", out.String())
	assert.Empty(t, mem.Keys("raw"))
}

func TestExtractRerunOverwrites(t *testing.T) {
	reader := &stubReader{result: consultations(testDate)}
	ext, mem := newTestExtractor(t, reader)

	first, err := ext.Extract(context.Background(), "fact_consultation", testDate)
	require.NoError(t, err)
	before := readPartition(t, mem, "raw", first.Key)

	second, err := ext.Extract(context.Background(), "fact_consultation", testDate)
	require.NoError(t, err)
	assert.Equal(t, first.Key, second.Key)
	assert.Len(t, mem.Keys("raw"), 1)
	assert.Equal(t, before, readPartition(t, mem, "raw", second.Key))
}

func TestExtractPropagatesSourceErrors(t *testing.T) {
	srcErr := errors.New("dial tcp: connection refused")
	ext, mem := newTestExtractor(t, &stubReader{err: classifySourceError("dim_patient", srcErr)})

	_, err := ext.Extract(context.Background(), "dim_patient", testDate)
	assert.ErrorIs(t, err, ErrQueryFailed)
	assert.Empty(t, mem.Keys("raw"))
}

func TestExtractUnknownTable(t *testing.T) {
	reader := &stubReader{}
	ext, _ := newTestExtractor(t, reader)

	_, err := ext.Extract(context.Background(), "patients; DROP TABLE x", testDate)
	assert.ErrorIs(t, err, ErrUnknownTable)
	assert.Zero(t, reader.calls)
}
