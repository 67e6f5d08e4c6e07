package etl

import "errors"

var (
	// ErrSourceUnavailable means the relational source could not be reached.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrQueryFailed covers malformed SQL, constraint errors and unreadable rows.
	ErrQueryFailed = errors.New("query failed")
	// ErrStorageWriteFailed is returned once the single retry of an upload failed too.
	ErrStorageWriteFailed = errors.New("storage write failed")
	// ErrTypeCastFailed aborts the cleaning of a partition.
	ErrTypeCastFailed = errors.New("type cast failed")
	// ErrRowInsertFailed rolls back the current warehouse table.
	ErrRowInsertFailed = errors.New("row insert failed")
	ErrUnknownTable    = errors.New("unknown table")
	ErrSchemaMismatch  = errors.New("partition does not match table schema")
)
