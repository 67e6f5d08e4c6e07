package etl

import (
	"fmt"
	"strings"
	"time"

	"github.com/BartekS5/sante-etl/pkg/models"
	"github.com/BartekS5/sante-etl/pkg/utils"
)

// RuleRegistry maps table names to their cleaning rule. It is built once
// from the catalog.
type RuleRegistry struct {
	rules map[string]CleaningRule
}

// NewRuleRegistry builds the cast rules of the catalog. loc is the source
// session time zone, used when a timestamp is cast to a date; nil means UTC.
func NewRuleRegistry(catalog *models.Catalog, loc *time.Location) *RuleRegistry {
	r := &RuleRegistry{rules: make(map[string]CleaningRule)}
	for _, t := range catalog.Tables {
		if len(t.Casts) > 0 {
			r.Register(t.Name, CastColumns(t.Name, t.Casts, loc))
		}
	}
	return r
}

// Register replaces the rule of a table.
func (r *RuleRegistry) Register(table string, rule CleaningRule) {
	r.rules[table] = rule
}

// For returns the table's rule, or the identity when it has none.
func (r *RuleRegistry) For(table string) CleaningRule {
	if rule, ok := r.rules[table]; ok {
		return rule
	}
	return identity
}

func identity(res *models.TabularResult) (*models.TabularResult, error) {
	return res, nil
}

// CastColumns converts the listed columns to their declared types. Any value
// that does not convert fails the whole partition. Timestamps cast to a date
// take their calendar day in loc.
func CastColumns(table string, casts []models.CastRule, loc *time.Location) CleaningRule {
	if loc == nil {
		loc = time.UTC
	}
	return func(in *models.TabularResult) (*models.TabularResult, error) {
		rows := make([][]any, len(in.Rows))
		for i, row := range in.Rows {
			rows[i] = append([]any(nil), row...)
		}
		out := in.WithRows(rows)

		for _, c := range casts {
			idx := out.ColumnIndex(c.Column)
			if idx < 0 {
				return nil, fmt.Errorf("%w: %s.%s: column not found", ErrTypeCastFailed, table, c.Column)
			}
			for i, row := range out.Rows {
				v, err := castIn(row[idx], c.Type, loc)
				if err != nil {
					return nil, fmt.Errorf("%w: %s.%s row %d: %w", ErrTypeCastFailed, table, c.Column, i, err)
				}
				row[idx] = v
			}
			out.Columns[idx].Type = c.Type
		}
		return out, nil
	}
}

func castIn(v any, to models.ColumnType, loc *time.Location) (any, error) {
	if t, ok := v.(time.Time); ok && to == models.TypeDate {
		return models.DateOf(t.In(loc)), nil
	}
	return utils.Cast(v, to)
}

// DropNulls removes every row holding a nil in any column.
func DropNulls(in *models.TabularResult) *models.TabularResult {
	rows := make([][]any, 0, len(in.Rows))
next:
	for _, row := range in.Rows {
		for _, v := range row {
			if v == nil {
				continue next
			}
		}
		rows = append(rows, row)
	}
	return in.WithRows(rows)
}

// Deduplicate keeps the first of every group of rows equal in all columns.
func Deduplicate(in *models.TabularResult) *models.TabularResult {
	seen := make(map[string]bool, len(in.Rows))
	rows := make([][]any, 0, len(in.Rows))
	for _, row := range in.Rows {
		k := rowKey(row)
		if seen[k] {
			continue
		}
		seen[k] = true
		rows = append(rows, row)
	}
	return in.WithRows(rows)
}

func rowKey(row []any) string {
	var b strings.Builder
	for _, v := range row {
		// type prefix keeps int64(1) and "1" apart; quoting keeps cells apart
		fmt.Fprintf(&b, "%T=%q,", v, utils.ConvertToString(v))
	}
	return b.String()
}

// ValidateColumns checks that res carries every expected column of table.
func ValidateColumns(table models.TableDescriptor, res *models.TabularResult) error {
	var missing []string
	for _, c := range table.Columns {
		if !res.HasColumn(c) {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s: missing columns %s", ErrSchemaMismatch, table.Name, strings.Join(missing, ", "))
	}
	return nil
}
