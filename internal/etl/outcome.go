package etl

import (
	"fmt"

	"github.com/BartekS5/sante-etl/pkg/models"
)

type Stage string

const (
	StageExtract   Stage = "extract"
	StageClean     Stage = "clean"
	StageAggregate Stage = "aggregate"
	StageLoad      Stage = "load"
)

type Status string

const (
	StatusSaved         Status = "saved"
	StatusNoData        Status = "no_data"
	StatusEmpty         Status = "empty"
	StatusMissingColumn Status = "missing_column"
	StatusLoaded        Status = "loaded"
	StatusSkipped       Status = "skipped"
	StatusRolledBack    Status = "rolled_back"
	StatusFailed        Status = "failed"
)

// Outcome describes what a stage did for one table and date. Its String form
// is meant for logs, not for control flow.
type Outcome struct {
	Stage   Stage
	Table   string
	Date    models.Date
	Status  Status
	Records int
	Key     string
	Err     error
}

func (o Outcome) String() string {
	if o.Status == StatusFailed && o.Stage != StageLoad {
		return fmt.Sprintf("%s of %s failed: %v", o.Stage, o.Table, o.Err)
	}
	switch o.Stage {
	case StageExtract:
		if o.Status == StatusSaved {
			return fmt.Sprintf("Extracted and saved %d records from %s", o.Records, o.Table)
		}
		return fmt.Sprintf("No data found for %s on %s", o.Table, o.Date)
	case StageClean:
		if o.Status == StatusSaved {
			return fmt.Sprintf("Cleaned and saved %d records from %s", o.Records, o.Table)
		}
		if o.Status == StatusEmpty {
			return fmt.Sprintf("No rows left after cleaning %s on %s", o.Table, o.Date)
		}
		return fmt.Sprintf("No data found for %s on %s", o.Table, o.Date)
	case StageAggregate:
		switch o.Status {
		case StatusSaved:
			return fmt.Sprintf("Aggregated data saved for date %s", o.Date)
		case StatusMissingColumn:
			return "Missing column"
		default:
			return "No consultation data to aggregate"
		}
	case StageLoad:
		switch o.Status {
		case StatusLoaded:
			return fmt.Sprintf("Inserted %d rows into %s", o.Records, o.Table)
		case StatusSkipped:
			return fmt.Sprintf("No cleaned data for %s on %s, skipped", o.Table, o.Date)
		default:
			return fmt.Sprintf("Error inserting data into %s: %v", o.Table, o.Err)
		}
	}
	return fmt.Sprintf("%s %s %s: %s", o.Stage, o.Table, o.Date, o.Status)
}

// Succeeded reports whether the outcome is a success, including "no data".
func (o Outcome) Succeeded() bool {
	return o.Status != StatusRolledBack && o.Status != StatusFailed
}
