package etl

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/BartekS5/sante-etl/pkg/columnar"
	"github.com/BartekS5/sante-etl/pkg/models"
	"github.com/BartekS5/sante-etl/pkg/objectstore"
)

var testDate = models.Date{Year: 2024, Month: 1, Day: 1}

// flakyClient fails the first failPuts Put calls, then delegates.
type flakyClient struct {
	*objectstore.MemoryClient

	mu       sync.Mutex
	failPuts int
	attempts int
}

var errUploadRefused = errors.New("connection reset by peer")

func (f *flakyClient) Put(ctx context.Context, bucket, key string, data []byte) error {
	f.mu.Lock()
	f.attempts++
	fail := f.attempts <= f.failPuts
	f.mu.Unlock()
	if fail {
		return errUploadRefused
	}
	return f.MemoryClient.Put(ctx, bucket, key, data)
}

func (f *flakyClient) Attempts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts
}

// newTestStore returns a store over a fresh in-memory client, plus a counter
// of how often the store (re)connected.
func newTestStore(t *testing.T, client objectstore.Client) (*Store, *int) {
	t.Helper()
	connects := 0
	store, err := OpenStore(context.Background(), func(ctx context.Context) (objectstore.Client, error) {
		connects++
		return client, nil
	})
	require.NoError(t, err)
	return store, &connects
}

func putPartition(t *testing.T, mem *objectstore.MemoryClient, bucket, key string, res *models.TabularResult) {
	t.Helper()
	ctx := context.Background()
	data, err := columnar.Encode(res)
	require.NoError(t, err)
	require.NoError(t, mem.EnsureBucket(ctx, bucket))
	require.NoError(t, mem.Put(ctx, bucket, key, data))
}

func readPartition(t *testing.T, mem *objectstore.MemoryClient, bucket, key string) *models.TabularResult {
	t.Helper()
	data, err := mem.Get(context.Background(), bucket, key)
	require.NoError(t, err)
	res, err := columnar.Decode(context.Background(), data)
	require.NoError(t, err)
	return res
}

type stubReader struct {
	result *models.TabularResult
	err    error
	calls  int
}

func (s *stubReader) ExtractPartition(ctx context.Context, table models.TableDescriptor, date models.Date) (*models.TabularResult, error) {
	s.calls++
	return s.result, s.err
}

func consultations(dates ...any) *models.TabularResult {
	res := models.NewTabularResult(
		models.Column{Name: "id", Type: models.TypeInteger},
		models.Column{Name: "date_consultation", Type: models.TypeDate},
		models.Column{Name: "duree_minutes", Type: models.TypeInteger},
	)
	for i, d := range dates {
		res.Append(int64(i+1), d, int64(15))
	}
	return res
}

func day(y, m, d int) models.Date {
	return models.Date{Year: y, Month: time.Month(m), Day: d}
}
