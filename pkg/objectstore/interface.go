// Package objectstore wraps the bucket based blob store holding the staged
// parquet partitions.
package objectstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("object not found")

type Getter interface {
	// Get returns ErrNotFound if the given key doesn't exist.
	Get(ctx context.Context, bucket, key string) ([]byte, error)
}

type Putter interface {
	// Put overwrites any existing object at key.
	Put(ctx context.Context, bucket, key string, data []byte) error
}

type BucketMaker interface {
	// EnsureBucket creates the bucket when it is absent.
	EnsureBucket(ctx context.Context, bucket string) error
}

// Client is a scoped handle on the store. Close releases it.
type Client interface {
	BucketMaker
	Getter
	Putter
	Close() error
}

// Connector acquires a fresh Client.
type Connector func(ctx context.Context) (Client, error)
