package etl

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/BartekS5/sante-etl/pkg/database"
	"github.com/BartekS5/sante-etl/pkg/models"
	"github.com/BartekS5/sante-etl/pkg/utils"
)

// SourceReader runs the date-filtered extraction queries against the
// operational database.
type SourceReader struct {
	DB      *sql.DB
	Dialect database.Dialect
}

func NewSourceReader(db *sql.DB, d database.Dialect) *SourceReader {
	return &SourceReader{DB: db, Dialect: d}
}

// Query builds the extraction statement and its arguments. Tables without a
// date column are read in full.
func (s *SourceReader) Query(table models.TableDescriptor, date models.Date) (string, []any) {
	query := "SELECT * FROM " + s.Dialect.QuoteIdent(table.Name)
	if !table.HasDateColumn() {
		return query, nil
	}
	return query + " WHERE " + s.Dialect.DateEquals(table.DateColumn, 1), []any{date.String()}
}

func (s *SourceReader) ExtractPartition(ctx context.Context, table models.TableDescriptor, date models.Date) (*models.TabularResult, error) {
	query, args := s.Query(table, date)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classifySourceError(table.Name, err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: reading column types: %w", ErrQueryFailed, table.Name, err)
	}
	result := &models.TabularResult{Columns: make([]models.Column, len(colTypes))}
	for i, ct := range colTypes {
		result.Columns[i] = models.Column{Name: ct.Name(), Type: columnTypeOf(ct.DatabaseTypeName())}
	}

	for rows.Next() {
		values := make([]any, len(colTypes))
		pointers := make([]any, len(colTypes))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrQueryFailed, table.Name, err)
		}

		row := make([]any, len(values))
		for i, v := range values {
			nv, err := utils.Cast(v, result.Columns[i].Type)
			if err != nil {
				return nil, fmt.Errorf("%w: %s.%s: %w", ErrQueryFailed, table.Name, result.Columns[i].Name, err)
			}
			row[i] = nv
		}
		result.Rows = append(result.Rows, row)
	}
	if err := rows.Err(); err != nil {
		return nil, classifySourceError(table.Name, err)
	}
	return result, nil
}

// columnTypeOf maps a driver type name onto a column type. Unknown types are
// carried as strings.
func columnTypeOf(dbType string) models.ColumnType {
	switch strings.ToUpper(dbType) {
	case "INT2", "INT4", "INT8", "INT", "INTEGER", "BIGINT", "SMALLINT", "TINYINT", "SERIAL", "BIGSERIAL":
		return models.TypeInteger
	case "FLOAT4", "FLOAT8", "FLOAT", "REAL", "DOUBLE", "NUMERIC", "DECIMAL", "MONEY", "SMALLMONEY":
		return models.TypeFloat
	case "BOOL", "BOOLEAN", "BIT":
		return models.TypeBoolean
	case "DATE":
		return models.TypeDate
	case "TIMESTAMP", "TIMESTAMPTZ", "DATETIME", "DATETIME2", "SMALLDATETIME", "DATETIMEOFFSET":
		return models.TypeTimestamp
	default:
		return models.TypeString
	}
}

func classifySourceError(table string, err error) error {
	var netErr net.Error
	if errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %w", ErrSourceUnavailable, table, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrQueryFailed, table, err)
}
