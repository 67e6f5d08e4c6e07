package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/BartekS5/sante-etl/pkg/columnar"
	"github.com/BartekS5/sante-etl/pkg/logger"
	"github.com/BartekS5/sante-etl/pkg/models"
)

const DefaultRetryDelay = 5 * time.Second

// PartitionWriter serializes results to parquet and uploads them. A failed
// upload is retried once, after RetryDelay, on a re-acquired client.
type PartitionWriter struct {
	store      *Store
	retryDelay time.Duration
}

func NewPartitionWriter(store *Store, retryDelay time.Duration) *PartitionWriter {
	return &PartitionWriter{store: store, retryDelay: retryDelay}
}

// WritePartition stores result under {table}/{table}_{date}{suffix}.parquet.
// Empty results are never written: written is false and key is empty.
func (w *PartitionWriter) WritePartition(ctx context.Context, bucket, table string, date models.Date,
	result *models.TabularResult, suffix string) (written bool, key string, err error) {
	if result.IsEmpty() {
		return false, "", nil
	}
	key = PartitionKey(table, date, suffix)
	if err := w.WriteObject(ctx, bucket, key, result); err != nil {
		return false, "", err
	}
	return true, key, nil
}

// WriteObject stores result at key, even when it has no rows.
func (w *PartitionWriter) WriteObject(ctx context.Context, bucket, key string, result *models.TabularResult) error {
	data, err := columnar.Encode(result)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return w.upload(ctx, bucket, key, data)
}

func (w *PartitionWriter) upload(ctx context.Context, bucket, key string, data []byte) error {
	log := logger.WithFields(logger.Fields{"bucket": bucket, "key": key})

	attempt := 0
	op := func() error {
		attempt++
		if attempt > 1 {
			if err := w.store.Reconnect(ctx); err != nil {
				return err
			}
		}
		c := w.store.Client()
		if err := c.EnsureBucket(ctx, bucket); err != nil {
			return err
		}
		return c.Put(ctx, bucket, key, data)
	}
	notify := func(err error, wait time.Duration) {
		log.Errorf("Upload failed: %v. Retrying in %s", err, wait)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(w.retryDelay), 1), ctx)
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return fmt.Errorf("%w: %s/%s after %d attempts: %w", ErrStorageWriteFailed, bucket, key, attempt, err)
	}
	log.Debugf("Uploaded %d bytes", len(data))
	return nil
}
