package etl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/BartekS5/sante-etl/pkg/columnar"
	"github.com/BartekS5/sante-etl/pkg/database"
	"github.com/BartekS5/sante-etl/pkg/logger"
	"github.com/BartekS5/sante-etl/pkg/models"
	"github.com/BartekS5/sante-etl/pkg/objectstore"
)

// WarehouseLoader inserts clean partitions into the warehouse, one
// transaction per table. A failing table is rolled back and the next table
// is loaded regardless.
type WarehouseLoader struct {
	DB      *sql.DB
	Dialect database.Dialect
	Catalog *models.Catalog
	Store   *Store
	Buckets Buckets
}

func NewWarehouseLoader(db *sql.DB, d database.Dialect, catalog *models.Catalog, store *Store, buckets Buckets) *WarehouseLoader {
	return &WarehouseLoader{DB: db, Dialect: d, Catalog: catalog, Store: store, Buckets: buckets}
}

func (l *WarehouseLoader) LoadDimensions(ctx context.Context, date models.Date) ([]Outcome, error) {
	return l.loadTables(ctx, l.Catalog.Dimensions(), date)
}

func (l *WarehouseLoader) LoadFacts(ctx context.Context, date models.Date) ([]Outcome, error) {
	return l.loadTables(ctx, l.Catalog.Facts(), date)
}

// loadTables only returns an error when ctx is done.
func (l *WarehouseLoader) loadTables(ctx context.Context, tables []models.TableDescriptor, date models.Date) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(tables))
	for _, t := range tables {
		if err := ctx.Err(); err != nil {
			return outcomes, err
		}
		o := l.loadTable(ctx, t, date)
		log := logger.WithFields(logger.Fields{"stage": StageLoad, "table": t.Name, "date": date})
		if o.Succeeded() {
			log.Info(o.String())
		} else {
			log.Error(o.String())
		}
		outcomes = append(outcomes, o)
	}
	return outcomes, nil
}

func (l *WarehouseLoader) loadTable(ctx context.Context, t models.TableDescriptor, date models.Date) Outcome {
	out := Outcome{Stage: StageLoad, Table: t.Name, Date: date}

	key := PartitionKey(t.Name, date, CleanSuffix)
	data, err := l.Store.Get(ctx, l.Buckets.Clean, key)
	if errors.Is(err, objectstore.ErrNotFound) {
		out.Status = StatusSkipped
		return out
	}
	if err != nil {
		out.Status, out.Err = StatusFailed, fmt.Errorf("reading %s/%s: %w", l.Buckets.Clean, key, err)
		return out
	}
	res, err := columnar.Decode(ctx, data)
	if err != nil {
		out.Status, out.Err = StatusFailed, fmt.Errorf("decoding %s: %w", key, err)
		return out
	}

	if err := l.insertAll(ctx, t.Name, res); err != nil {
		out.Status, out.Err = StatusRolledBack, err
		return out
	}
	out.Status = StatusLoaded
	out.Records = res.Len()
	out.Key = key
	return out
}

// InsertStatement builds the parameterized INSERT for the given columns.
func (l *WarehouseLoader) InsertStatement(table string, columns []string) string {
	cols := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = l.Dialect.QuoteIdent(c)
		placeholders[i] = l.Dialect.Placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		l.Dialect.QuoteIdent(table), strings.Join(cols, ", "), strings.Join(placeholders, ", "))
}

func (l *WarehouseLoader) insertAll(ctx context.Context, table string, res *models.TabularResult) (err error) {
	tx, err := l.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: %s: begin: %w", ErrRowInsertFailed, table, err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Errorf("Rollback of %s failed: %v", table, rbErr)
			}
		}
	}()

	query := l.InsertStatement(table, res.ColumnNames())
	for i, row := range res.Rows {
		args := make([]any, len(row))
		for j, v := range row {
			args[j] = sqlValue(v)
		}
		if _, err = tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("%w: %s row %d: %w", ErrRowInsertFailed, table, i, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: %s: commit: %w", ErrRowInsertFailed, table, err)
	}
	return nil
}

func sqlValue(v any) any {
	if d, ok := v.(models.Date); ok {
		return d.Time()
	}
	return v
}

// LoadSummary counts load outcomes by result.
type LoadSummary struct {
	Loaded  int
	Skipped int
	Failed  int
	Rows    int
}

func Summarize(outcomes []Outcome) LoadSummary {
	var s LoadSummary
	for _, o := range outcomes {
		switch o.Status {
		case StatusLoaded:
			s.Loaded++
			s.Rows += o.Records
		case StatusSkipped:
			s.Skipped++
		default:
			s.Failed++
		}
	}
	return s
}

// FailedLoads lists, in load order, the tables whose load was rolled back or
// failed.
func FailedLoads(outcomes []Outcome) []string {
	var failed []string
	for _, o := range outcomes {
		if o.Stage == StageLoad && !o.Succeeded() {
			failed = append(failed, o.Table)
		}
	}
	return failed
}
