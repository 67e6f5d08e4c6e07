package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestMongoLedgerAcquire(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("free date", func(mt *mtest.T) {
		l := NewMongoLedger(mt.Client, mt.DB.Name())
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())

		release, err := l.Acquire(context.Background(), "run-1", "2024-01-01")
		require.NoError(t, err)
		require.NoError(t, release(context.Background()))
	})

	mt.Run("date already locked", func(mt *mtest.T) {
		l := NewMongoLedger(mt.Client, mt.DB.Name())
		ns := mt.DB.Name() + "." + locksCollection
		mt.AddMockResponses(
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error"}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
				{Key: "_id", Value: "2024-01-01"},
				{Key: "run_id", Value: "run-0"},
				{Key: "acquired_at", Value: time.Now().UTC().Add(-time.Hour)},
				{Key: "expires_at", Value: time.Now().UTC().Add(time.Hour)},
			}),
		)

		release, err := l.Acquire(context.Background(), "run-1", "2024-01-01")
		assert.ErrorIs(t, err, ErrRunInFlight)
		assert.Contains(t, err.Error(), "run-0")
		assert.Nil(t, release)
	})

	mt.Run("expired lock is taken over", func(mt *mtest.T) {
		l := NewMongoLedger(mt.Client, mt.DB.Name())
		ns := mt.DB.Name() + "." + locksCollection
		acquired := time.Date(2024, 1, 1, 2, 0, 0, 0, time.UTC)
		mt.AddMockResponses(
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error"}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
				{Key: "_id", Value: "2024-01-01"},
				{Key: "run_id", Value: "run-0"},
				{Key: "acquired_at", Value: acquired},
				{Key: "expires_at", Value: acquired.Add(DefaultLockTTL)},
			}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(),
		)

		release, err := l.Acquire(context.Background(), "run-1", "2024-01-01")
		require.NoError(t, err)
		require.NotNil(t, release)

		var deleted bool
		for _, ev := range mt.GetAllStartedEvents() {
			if ev.CommandName != "delete" {
				continue
			}
			deleted = true
			var cmd struct {
				Deletes []struct {
					Q bson.M `bson:"q"`
				} `bson:"deletes"`
			}
			require.NoError(t, bson.Unmarshal(ev.Command, &cmd))
			require.Len(t, cmd.Deletes, 1)
			assert.Equal(t, "run-0", cmd.Deletes[0].Q["run_id"], "only the stale holder is removed")
		}
		assert.True(t, deleted)
	})

	mt.Run("lock without expiry falls back to acquired_at", func(mt *mtest.T) {
		l := NewMongoLedger(mt.Client, mt.DB.Name())
		l.LockTTL = time.Minute
		ns := mt.DB.Name() + "." + locksCollection
		mt.AddMockResponses(
			mtest.CreateWriteErrorsResponse(mtest.WriteError{Index: 0, Code: 11000, Message: "E11000 duplicate key error"}),
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch, bson.D{
				{Key: "_id", Value: "2024-01-01"},
				{Key: "run_id", Value: "run-0"},
				{Key: "acquired_at", Value: time.Now().UTC().Add(-time.Hour)},
			}),
			mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}),
			mtest.CreateSuccessResponse(),
		)

		_, err := l.Acquire(context.Background(), "run-1", "2024-01-01")
		assert.NoError(t, err)
	})
}

func TestMongoLedgerUnlock(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("held", func(mt *mtest.T) {
		l := NewMongoLedger(mt.Client, mt.DB.Name())
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 1}))

		removed, err := l.Unlock(context.Background(), "2024-01-01")
		require.NoError(t, err)
		assert.True(t, removed)
	})

	mt.Run("free", func(mt *mtest.T) {
		l := NewMongoLedger(mt.Client, mt.DB.Name())
		mt.AddMockResponses(mtest.CreateSuccessResponse(bson.E{Key: "n", Value: 0}))

		removed, err := l.Unlock(context.Background(), "2024-01-01")
		require.NoError(t, err)
		assert.False(t, removed)
	})
}

func TestMongoLedgerEnsureIndexesCreatesTTLIndex(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("indexes", func(mt *mtest.T) {
		l := NewMongoLedger(mt.Client, mt.DB.Name())
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())

		require.NoError(t, l.EnsureIndexes(context.Background()))

		var ttlSeen bool
		for _, ev := range mt.GetAllStartedEvents() {
			if ev.CommandName != "createIndexes" {
				continue
			}
			var cmd struct {
				Collection string   `bson:"createIndexes"`
				Indexes    []bson.M `bson:"indexes"`
			}
			require.NoError(t, bson.Unmarshal(ev.Command, &cmd))
			if cmd.Collection == locksCollection {
				require.Len(t, cmd.Indexes, 1)
				_, ttlSeen = cmd.Indexes[0]["expireAfterSeconds"]
			}
		}
		assert.True(t, ttlSeen)
	})
}

func TestMongoLedgerRecord(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert", func(mt *mtest.T) {
		l := NewMongoLedger(mt.Client, mt.DB.Name())
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := l.Record(context.Background(), Entry{
			RunID: "run-1", Stage: "extract", Table: "dim_patient",
			ExecutionDate: "2024-01-01", Status: "saved", Records: 3,
		})
		require.NoError(t, err)

		sent := mt.GetStartedEvent()
		require.NotNil(t, sent)
		assert.Equal(t, "insert", sent.CommandName)
		var cmd struct {
			Documents []Entry `bson:"documents"`
		}
		require.NoError(t, bson.Unmarshal(sent.Command, &cmd))
		require.Len(t, cmd.Documents, 1)
		assert.Equal(t, "dim_patient", cmd.Documents[0].Table)
		assert.Equal(t, 3, cmd.Documents[0].Records)
		assert.False(t, cmd.Documents[0].RecordedAt.IsZero())
	})

	mt.Run("history", func(mt *mtest.T) {
		l := NewMongoLedger(mt.Client, mt.DB.Name())
		ns := mt.DB.Name() + "." + runsCollection
		mt.AddMockResponses(
			mtest.CreateCursorResponse(0, ns, mtest.FirstBatch,
				bson.D{{Key: "run_id", Value: "run-1"}, {Key: "stage", Value: "extract"}, {Key: "execution_date", Value: "2024-01-01"}},
				bson.D{{Key: "run_id", Value: "run-1"}, {Key: "stage", Value: "clean"}, {Key: "execution_date", Value: "2024-01-01"}},
			),
		)

		entries, err := l.History(context.Background(), "2024-01-01")
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, "extract", entries[0].Stage)
		assert.Equal(t, "clean", entries[1].Stage)
	})
}

func TestNopLedger(t *testing.T) {
	var l Ledger = NopLedger{}
	release, err := l.Acquire(context.Background(), "run-1", "2024-01-01")
	require.NoError(t, err)
	assert.NoError(t, release(context.Background()))
	assert.NoError(t, l.Record(context.Background(), Entry{}))
}
