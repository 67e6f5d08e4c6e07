// Package ledger records stage outcomes and guards against two runs of the
// same execution date being in flight at once.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrRunInFlight is returned by Acquire when the date is already locked.
var ErrRunInFlight = errors.New("a run for this execution date is already in flight")

// Entry is one stage outcome.
type Entry struct {
	RunID         string    `bson:"run_id"`
	Stage         string    `bson:"stage"`
	Table         string    `bson:"table,omitempty"`
	ExecutionDate string    `bson:"execution_date"`
	Status        string    `bson:"status"`
	Records       int       `bson:"records"`
	Message       string    `bson:"message"`
	Error         string    `bson:"error,omitempty"`
	RecordedAt    time.Time `bson:"recorded_at"`
}

// Release unlocks a date acquired with Acquire.
type Release func(ctx context.Context) error

type Ledger interface {
	Acquire(ctx context.Context, runID, executionDate string) (Release, error)
	Record(ctx context.Context, e Entry) error
}

// NopLedger is used when no ledger database is configured.
type NopLedger struct{}

func (NopLedger) Acquire(ctx context.Context, runID, executionDate string) (Release, error) {
	return func(context.Context) error { return nil }, nil
}

func (NopLedger) Record(ctx context.Context, e Entry) error { return nil }
