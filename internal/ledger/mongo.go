package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/BartekS5/sante-etl/pkg/logger"
)

const (
	runsCollection  = "stage_runs"
	locksCollection = "run_locks"
)

// DefaultLockTTL is how long a date lock lives when nobody releases it.
const DefaultLockTTL = 6 * time.Hour

type lockDoc struct {
	Date       string    `bson:"_id"`
	RunID      string    `bson:"run_id"`
	AcquiredAt time.Time `bson:"acquired_at"`
	ExpiresAt  time.Time `bson:"expires_at"`
}

// expiry falls back to AcquiredAt+ttl for locks written without expires_at.
func (l lockDoc) expiry(ttl time.Duration) time.Time {
	if l.ExpiresAt.IsZero() {
		return l.AcquiredAt.Add(ttl)
	}
	return l.ExpiresAt
}

// MongoLedger stores entries in stage_runs and date locks in run_locks,
// keyed by execution date so a second insert hits the _id unique index.
// A lock left behind by a crashed run expires after LockTTL.
type MongoLedger struct {
	runs    *mongo.Collection
	locks   *mongo.Collection
	LockTTL time.Duration
}

func NewMongoLedger(client *mongo.Client, database string) *MongoLedger {
	db := client.Database(database)
	return &MongoLedger{
		runs:    db.Collection(runsCollection),
		locks:   db.Collection(locksCollection),
		LockTTL: DefaultLockTTL,
	}
}

func (m *MongoLedger) ttl() time.Duration {
	if m.LockTTL <= 0 {
		return DefaultLockTTL
	}
	return m.LockTTL
}

// EnsureIndexes creates the lookup index on stage_runs and the TTL index
// that lets Mongo purge expired locks.
func (m *MongoLedger) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_, err := m.runs.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "execution_date", Value: 1}, {Key: "stage", Value: 1}, {Key: "table", Value: 1}},
	})
	if err != nil {
		return err
	}
	_, err = m.locks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "expires_at", Value: 1}},
		Options: options.Index().SetExpireAfterSeconds(0),
	})
	return err
}

// Acquire locks executionDate for runID. An expired lock is taken over;
// the TTL monitor only sweeps once a minute.
func (m *MongoLedger) Acquire(ctx context.Context, runID, executionDate string) (Release, error) {
	for attempt := 0; ; attempt++ {
		now := time.Now().UTC()
		_, err := m.locks.InsertOne(ctx, lockDoc{
			Date:       executionDate,
			RunID:      runID,
			AcquiredAt: now,
			ExpiresAt:  now.Add(m.ttl()),
		})
		if err == nil {
			break
		}
		if !mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("acquiring lock for %s: %w", executionDate, err)
		}

		var held lockDoc
		findErr := m.locks.FindOne(ctx, bson.M{"_id": executionDate}).Decode(&held)
		if errors.Is(findErr, mongo.ErrNoDocuments) && attempt == 0 {
			// released between our insert and the lookup
			continue
		}
		if findErr != nil {
			return nil, fmt.Errorf("%w: %s", ErrRunInFlight, executionDate)
		}
		if attempt > 0 || now.Before(held.expiry(m.ttl())) {
			return nil, fmt.Errorf("%w: %s held by run %s since %s", ErrRunInFlight, executionDate, held.RunID, held.AcquiredAt.Format(time.RFC3339))
		}

		logger.Warnf("Lock for %s held by run %s expired at %s, taking over",
			executionDate, held.RunID, held.expiry(m.ttl()).Format(time.RFC3339))
		// match the exact holder so a concurrent takeover wins only once
		_, err = m.locks.DeleteOne(ctx, bson.M{"_id": executionDate, "run_id": held.RunID, "acquired_at": held.AcquiredAt})
		if err != nil {
			return nil, fmt.Errorf("clearing expired lock for %s: %w", executionDate, err)
		}
	}

	return func(ctx context.Context) error {
		_, err := m.locks.DeleteOne(ctx, bson.M{"_id": executionDate, "run_id": runID})
		return err
	}, nil
}

// Unlock removes the lock of executionDate whoever holds it. It reports
// whether a lock was there.
func (m *MongoLedger) Unlock(ctx context.Context, executionDate string) (bool, error) {
	res, err := m.locks.DeleteOne(ctx, bson.M{"_id": executionDate})
	if err != nil {
		return false, fmt.Errorf("unlocking %s: %w", executionDate, err)
	}
	return res.DeletedCount > 0, nil
}

func (m *MongoLedger) Record(ctx context.Context, e Entry) error {
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}
	_, err := m.runs.InsertOne(ctx, e)
	return err
}

// History returns the entries of one execution date, oldest first.
func (m *MongoLedger) History(ctx context.Context, executionDate string) ([]Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "recorded_at", Value: 1}})
	cursor, err := m.runs.Find(ctx, bson.M{"execution_date": executionDate}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []Entry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
