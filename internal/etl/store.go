package etl

import (
	"context"
	"fmt"
	"sync"

	"github.com/BartekS5/sante-etl/pkg/models"
	"github.com/BartekS5/sante-etl/pkg/objectstore"
)

// Buckets names the bucket of each storage layer.
type Buckets struct {
	Raw        string
	Clean      string
	Aggregated string
}

func DefaultBuckets() Buckets {
	return Buckets{Raw: "raw", Clean: "clean", Aggregated: "aggregated"}
}

const CleanSuffix = "_clean"

// PartitionKey is the object key of a raw (suffix "") or clean partition.
func PartitionKey(table string, date models.Date, suffix string) string {
	return fmt.Sprintf("%s/%s_%s%s.parquet", table, table, date, suffix)
}

// AggregateKey is the object key of the daily consultation rollup.
func AggregateKey(date models.Date) string {
	return fmt.Sprintf("consultation_daily/consultation_%s_agg.parquet", date)
}

// Store is the object store handle shared by the stages of one invocation.
// It can be re-acquired after a failure; Close releases the current client.
type Store struct {
	mu      sync.Mutex
	client  objectstore.Client
	connect objectstore.Connector
}

// OpenStore acquires a first client from connect.
func OpenStore(ctx context.Context, connect objectstore.Connector) (*Store, error) {
	c, err := connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("connecting to object store: %w", err)
	}
	return &Store{client: c, connect: connect}, nil
}

// Client returns the current client.
func (s *Store) Client() objectstore.Client {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.client
}

// Reconnect swaps the current client for a freshly acquired one.
func (s *Store) Reconnect(ctx context.Context) error {
	c, err := s.connect(ctx)
	if err != nil {
		return fmt.Errorf("reconnecting to object store: %w", err)
	}
	s.mu.Lock()
	old := s.client
	s.client = c
	s.mu.Unlock()

	if old != nil && old != c {
		_ = old.Close()
	}
	return nil
}

// Get reads an object. A missing key yields objectstore.ErrNotFound.
func (s *Store) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	return s.Client().Get(ctx, bucket, key)
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
