package models

import (
	"fmt"
	"time"
)

// ColumnType is the semantic type of a column.
type ColumnType string

const (
	TypeString    ColumnType = "string"
	TypeInteger   ColumnType = "integer"
	TypeFloat     ColumnType = "float"
	TypeBoolean   ColumnType = "boolean"
	TypeDate      ColumnType = "date"
	TypeTimestamp ColumnType = "timestamp"
)

// Valid reports whether t is one of the known column types.
func (t ColumnType) Valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeDate, TypeTimestamp:
		return true
	}
	return false
}

// Accepts reports whether v is a legal non-nil cell for a column of type t.
func (t ColumnType) Accepts(v any) bool {
	switch v.(type) {
	case string:
		return t == TypeString
	case int64:
		return t == TypeInteger
	case float64:
		return t == TypeFloat
	case bool:
		return t == TypeBoolean
	case Date:
		return t == TypeDate
	case time.Time:
		return t == TypeTimestamp
	}
	return false
}

// Date is a calendar day without a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

const dateLayout = "2006-01-02"

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// String formats the date as YYYY-MM-DD.
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// Time returns midnight UTC of the date.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// Before reports whether d is earlier than o.
func (d Date) Before(o Date) bool {
	return d.Time().Before(o.Time())
}

// IsZero reports whether d is the zero value.
func (d Date) IsZero() bool {
	return d == Date{}
}

// Column is a named, typed column of a TabularResult.
type Column struct {
	Name string
	Type ColumnType
}

// TabularResult is an ordered set of rows sharing one column list.
// Each row holds one cell per column, in column order; nil is SQL NULL.
type TabularResult struct {
	Columns []Column
	Rows    [][]any
}

// NewTabularResult returns an empty result with the given columns.
func NewTabularResult(cols ...Column) *TabularResult {
	return &TabularResult{Columns: cols}
}

// Len returns the number of rows.
func (r *TabularResult) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// IsEmpty reports whether the result has no rows.
func (r *TabularResult) IsEmpty() bool {
	return r.Len() == 0
}

// ColumnIndex returns the position of the named column or -1.
func (r *TabularResult) ColumnIndex(name string) int {
	for i, c := range r.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// HasColumn reports whether the named column exists.
func (r *TabularResult) HasColumn(name string) bool {
	return r.ColumnIndex(name) >= 0
}

// ColumnNames returns the column names in order.
func (r *TabularResult) ColumnNames() []string {
	names := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		names[i] = c.Name
	}
	return names
}

// Append adds a row. The row must have one cell per column.
func (r *TabularResult) Append(row ...any) {
	r.Rows = append(r.Rows, row)
}

// Row returns row i as a column name to value map.
func (r *TabularResult) Row(i int) map[string]any {
	m := make(map[string]any, len(r.Columns))
	for j, c := range r.Columns {
		m[c.Name] = r.Rows[i][j]
	}
	return m
}

// WithRows returns a result sharing r's columns with the given rows.
func (r *TabularResult) WithRows(rows [][]any) *TabularResult {
	cols := make([]Column, len(r.Columns))
	copy(cols, r.Columns)
	return &TabularResult{Columns: cols, Rows: rows}
}

// Validate checks that every row has one cell per column and that each
// non-nil cell matches its column type.
func (r *TabularResult) Validate() error {
	seen := make(map[string]bool, len(r.Columns))
	for _, c := range r.Columns {
		if seen[c.Name] {
			return fmt.Errorf("duplicate column %s", c.Name)
		}
		seen[c.Name] = true
		if !c.Type.Valid() {
			return fmt.Errorf("column %s: unknown type %q", c.Name, c.Type)
		}
	}
	for i, row := range r.Rows {
		if len(row) != len(r.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(r.Columns))
		}
		for j, v := range row {
			if v == nil {
				continue
			}
			if !r.Columns[j].Type.Accepts(v) {
				return fmt.Errorf("row %d column %s: %T is not a %s", i, r.Columns[j].Name, v, r.Columns[j].Type)
			}
		}
	}
	return nil
}
