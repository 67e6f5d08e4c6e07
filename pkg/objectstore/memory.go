package objectstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryClient is an in-process store. It backs `run --dry-run` and tests.
type MemoryClient struct {
	mu      sync.RWMutex
	buckets map[string]map[string][]byte
	puts    int
}

func NewMemoryClient() *MemoryClient {
	return &MemoryClient{buckets: make(map[string]map[string][]byte)}
}

// Connector returns a Connector handing out this same client.
func (m *MemoryClient) Connector() Connector {
	return func(ctx context.Context) (Client, error) {
		return m, nil
	}
}

func (m *MemoryClient) EnsureBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		m.buckets[bucket] = make(map[string][]byte)
	}
	return nil
}

func (m *MemoryClient) Get(ctx context.Context, bucket, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.buckets[bucket][key]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

func (m *MemoryClient) Put(ctx context.Context, bucket, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[bucket]
	if !ok {
		return fmt.Errorf("bucket %s does not exist", bucket)
	}
	stored := make([]byte, len(data))
	copy(stored, data)
	b[key] = stored
	m.puts++
	return nil
}

func (m *MemoryClient) Close() error {
	return nil
}

// Keys lists the keys of a bucket in lexical order.
func (m *MemoryClient) Keys(bucket string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.buckets[bucket]))
	for k := range m.buckets[bucket] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Puts returns how many successful Put calls were made.
func (m *MemoryClient) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
