// Package mongodb stores the visitor counter as one document in MongoDB.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portfolio-sync/internal/shared/database"
	sharederrors "portfolio-sync/internal/shared/errors"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/visitor/domain/model"
	"portfolio-sync/internal/visitor/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// DefaultCollection holds the counter document.
const DefaultCollection = "site_counters"

// Server error codes meaning the deployment cannot run the atomic update:
// FailedToParse, TypeMismatch, CommandNotFound, CommandNotSupported.
var unsupportedCodes = []int{9, 14, 59, 115}

// CounterStore reads and increments the global counter document.
type CounterStore struct {
	col    database.CollectionInterface
	logger logger.Logger
	now    func() time.Time
}

var (
	_ repository.CounterReader = (*CounterStore)(nil)
	_ repository.Prober        = (*CounterStore)(nil)
)

// NewCounterStore creates a store over the named collection.
func NewCounterStore(db database.DatabaseProvider, collection string, log logger.Logger) *CounterStore {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if collection == "" {
		collection = DefaultCollection
	}
	return &CounterStore{
		col:    db.Collection(collection),
		logger: log.WithComponent("counter-mongodb"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func classify(op string, err error) error {
	var se mongo.ServerError
	if errors.As(err, &se) {
		for _, code := range unsupportedCodes {
			if se.HasErrorCode(code) {
				return fmt.Errorf("%s: %w: %v", op, sharederrors.ErrAtomicUnsupported, err)
			}
		}
	}
	return sharederrors.NewTransientRemoteError("counter " + op + " failed").WithCause(err)
}

func (s *CounterStore) Read(ctx context.Context) (model.CounterRecord, bool, error) {
	var rec model.CounterRecord
	err := s.col.FindOne(ctx, bson.M{"_id": model.GlobalCounterID}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.CounterRecord{ID: model.GlobalCounterID}, false, nil
	}
	if err != nil {
		return model.CounterRecord{}, false, classify("read", err)
	}
	return rec, true, nil
}

// Probe runs the atomic update shape against the counter without changing
// it, so an old server rejects it the same way it would reject Increment.
func (s *CounterStore) Probe(ctx context.Context) error {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"count": "$count"}}},
	}
	var rec model.CounterRecord
	err := s.col.FindOneAndUpdate(ctx, bson.M{"_id": model.GlobalCounterID}, update).Decode(&rec)
	if err == nil || errors.Is(err, mongo.ErrNoDocuments) {
		return nil
	}
	return classify("probe", err)
}

// Atomic returns the single round trip increment path.
func (s *CounterStore) Atomic() repository.AtomicIncrement {
	return atomicIncrement{s}
}

// Fallback returns the read-then-write increment path.
func (s *CounterStore) Fallback() repository.AtomicIncrement {
	return fallbackIncrement{s}
}

type atomicIncrement struct{ s *CounterStore }

// Increment adds one in a single pipeline update, creating the document and
// setting created_at only where absent.
func (a atomicIncrement) Increment(ctx context.Context) (model.CounterRecord, error) {
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"count":      bson.M{"$add": bson.A{bson.M{"$ifNull": bson.A{"$count", 0}}, 1}},
			"created_at": bson.M{"$ifNull": bson.A{"$created_at", a.s.now()}},
		}}},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var rec model.CounterRecord
	if err := a.s.col.FindOneAndUpdate(ctx, bson.M{"_id": model.GlobalCounterID}, update, opts).Decode(&rec); err != nil {
		return model.CounterRecord{}, classify("atomic increment", err)
	}
	return rec, nil
}

type fallbackIncrement struct{ s *CounterStore }

// Increment reads the count and writes count+1. Two callers that read the
// same value both write the same result, so one increment is lost. The
// write keeps the larger of the stored and computed values, so a slow
// caller never moves the counter backwards.
func (f fallbackIncrement) Increment(ctx context.Context) (model.CounterRecord, error) {
	current, _, err := f.s.Read(ctx)
	if err != nil {
		return model.CounterRecord{}, err
	}
	next := current.Count + 1
	now := f.s.now()

	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"count":      bson.M{"$max": bson.A{bson.M{"$ifNull": bson.A{"$count", 0}}, next}},
			"created_at": bson.M{"$ifNull": bson.A{"$created_at", now}},
		}}},
	}
	if _, err := f.s.col.UpdateOne(ctx, bson.M{"_id": model.GlobalCounterID}, update, options.Update().SetUpsert(true)); err != nil {
		return model.CounterRecord{}, classify("fallback increment", err)
	}

	rec := model.CounterRecord{ID: model.GlobalCounterID, Count: next, CreatedAt: current.CreatedAt}
	if rec.CreatedAt == nil {
		rec.CreatedAt = &now
	}
	f.s.logger.Debug("Counter incremented by read-modify-write", zap.Int64("count", next))
	return rec, nil
}
