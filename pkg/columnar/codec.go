// Package columnar serializes TabularResults to and from parquet.
package columnar

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/BartekS5/sante-etl/pkg/models"
)

// arrowType maps a column type onto its parquet/arrow storage type.
func arrowType(t models.ColumnType) (arrow.DataType, error) {
	switch t {
	case models.TypeString:
		return arrow.BinaryTypes.String, nil
	case models.TypeInteger:
		return arrow.PrimitiveTypes.Int64, nil
	case models.TypeFloat:
		return arrow.PrimitiveTypes.Float64, nil
	case models.TypeBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case models.TypeDate:
		return arrow.FixedWidthTypes.Date32, nil
	case models.TypeTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	default:
		return nil, fmt.Errorf("unsupported column type %q", t)
	}
}

// columnType maps an arrow type read back from a file onto a column type.
func columnType(dt arrow.DataType) (models.ColumnType, error) {
	switch dt.ID() {
	case arrow.STRING, arrow.LARGE_STRING:
		return models.TypeString, nil
	case arrow.INT8, arrow.INT16, arrow.INT32, arrow.INT64:
		return models.TypeInteger, nil
	case arrow.FLOAT32, arrow.FLOAT64:
		return models.TypeFloat, nil
	case arrow.BOOL:
		return models.TypeBoolean, nil
	case arrow.DATE32:
		return models.TypeDate, nil
	case arrow.TIMESTAMP:
		return models.TypeTimestamp, nil
	default:
		return "", fmt.Errorf("unsupported parquet column type %s", dt)
	}
}

// Encode writes r as a single row group parquet file.
func Encode(r *models.TabularResult) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("invalid result: %w", err)
	}

	fields := make([]arrow.Field, len(r.Columns))
	for i, c := range r.Columns {
		dt, err := arrowType(c.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", c.Name, err)
		}
		fields[i] = arrow.Field{Name: c.Name, Type: dt, Nullable: true}
	}
	schema := arrow.NewSchema(fields, nil)

	pool := memory.NewGoAllocator()
	b := array.NewRecordBuilder(pool, schema)
	defer b.Release()

	for _, row := range r.Rows {
		for i, v := range row {
			appendValue(b.Field(i), v)
		}
	}
	record := b.NewRecord()
	defer record.Release()

	var buf bytes.Buffer
	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	writer, err := pqarrow.NewFileWriter(schema, &buf, props, pqarrow.DefaultWriterProps())
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}
	if err := writer.Write(record); err != nil {
		writer.Close()
		return nil, fmt.Errorf("failed to write parquet record: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return buf.Bytes(), nil
}

// appendValue relies on Validate having checked the cell types.
func appendValue(fb array.Builder, v any) {
	if v == nil {
		fb.AppendNull()
		return
	}
	switch b := fb.(type) {
	case *array.StringBuilder:
		b.Append(v.(string))
	case *array.Int64Builder:
		b.Append(v.(int64))
	case *array.Float64Builder:
		b.Append(v.(float64))
	case *array.BooleanBuilder:
		b.Append(v.(bool))
	case *array.Date32Builder:
		b.Append(arrow.Date32FromTime(v.(models.Date).Time()))
	case *array.TimestampBuilder:
		b.Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
	}
}

// Decode reads a parquet file produced by Encode, or any file whose columns
// have a supported type.
func Decode(ctx context.Context, data []byte) (*models.TabularResult, error) {
	pool := memory.NewGoAllocator()
	tbl, err := pqarrow.ReadTable(ctx, bytes.NewReader(data), parquet.NewReaderProperties(pool),
		pqarrow.ArrowReadProperties{}, pool)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet: %w", err)
	}
	defer tbl.Release()

	schema := tbl.Schema()
	nrows := int(tbl.NumRows())
	out := &models.TabularResult{
		Columns: make([]models.Column, schema.NumFields()),
		Rows:    make([][]any, nrows),
	}
	for i := range out.Rows {
		out.Rows[i] = make([]any, schema.NumFields())
	}

	for c := 0; c < schema.NumFields(); c++ {
		field := schema.Field(c)
		ct, err := columnType(field.Type)
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", field.Name, err)
		}
		out.Columns[c] = models.Column{Name: field.Name, Type: ct}

		row := 0
		for _, chunk := range tbl.Column(c).Data().Chunks() {
			for i := 0; i < chunk.Len(); i++ {
				out.Rows[row][c] = cellValue(chunk, i)
				row++
			}
		}
	}
	return out, nil
}

func cellValue(arr arrow.Array, i int) any {
	if arr.IsNull(i) {
		return nil
	}
	switch a := arr.(type) {
	case *array.String:
		return a.Value(i)
	case *array.LargeString:
		return a.Value(i)
	case *array.Int8:
		return int64(a.Value(i))
	case *array.Int16:
		return int64(a.Value(i))
	case *array.Int32:
		return int64(a.Value(i))
	case *array.Int64:
		return a.Value(i)
	case *array.Float32:
		return float64(a.Value(i))
	case *array.Float64:
		return a.Value(i)
	case *array.Boolean:
		return a.Value(i)
	case *array.Date32:
		return models.DateOf(a.Value(i).ToTime())
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		return a.Value(i).ToTime(unit).UTC()
	}
	return nil
}
