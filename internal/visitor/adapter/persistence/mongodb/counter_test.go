package mongodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"portfolio-sync/internal/shared/database/databasetest"
	sharederrors "portfolio-sync/internal/shared/errors"
	"portfolio-sync/internal/visitor/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

func newTestStore() (*CounterStore, *databasetest.MockCollection) {
	db := databasetest.NewMockDatabaseProvider()
	store := NewCounterStore(db, "", nil)
	store.now = func() time.Time { return time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC) }
	return store, db.Collections[DefaultCollection]
}

var globalFilter = bson.M{"_id": model.GlobalCounterID}

func TestCounterStore_ReadMissing(t *testing.T) {
	store, col := newTestStore()
	col.On("FindOne", mock.Anything, globalFilter).Return(databasetest.SingleResult{Err: mongo.ErrNoDocuments})

	rec, found, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.False(t, found)
	assert.EqualValues(t, 0, rec.Count)
}

func TestCounterStore_Read(t *testing.T) {
	store, col := newTestStore()
	created := time.Date(2023, 1, 2, 3, 4, 5, 0, time.UTC)
	col.On("FindOne", mock.Anything, globalFilter).Return(databasetest.SingleResult{
		Doc: bson.M{"_id": model.GlobalCounterID, "count": int64(42), "created_at": created},
	})

	rec, found, err := store.Read(context.Background())
	require.NoError(t, err)
	assert.True(t, found)
	assert.EqualValues(t, 42, rec.Count)
	require.NotNil(t, rec.CreatedAt)
	assert.True(t, created.Equal(*rec.CreatedAt))
}

func TestCounterStore_ReadErrorIsTransient(t *testing.T) {
	store, col := newTestStore()
	col.On("FindOne", mock.Anything, globalFilter).Return(databasetest.SingleResult{Err: errors.New("connection reset")})

	_, _, err := store.Read(context.Background())
	assert.True(t, sharederrors.IsTransientRemote(err))
}

func TestCounterStore_AtomicIncrement(t *testing.T) {
	store, col := newTestStore()
	col.On("FindOneAndUpdate", mock.Anything, globalFilter, mock.AnythingOfType("mongo.Pipeline")).
		Return(databasetest.SingleResult{Doc: bson.M{"_id": model.GlobalCounterID, "count": int64(7), "created_at": store.now()}})

	rec, err := store.Atomic().Increment(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 7, rec.Count)
	col.AssertExpectations(t)
}

func TestCounterStore_AtomicUnsupported(t *testing.T) {
	store, col := newTestStore()
	col.On("FindOneAndUpdate", mock.Anything, globalFilter, mock.Anything).
		Return(databasetest.SingleResult{Err: mongo.CommandError{Code: 59, Message: "no such command"}})

	_, err := store.Atomic().Increment(context.Background())
	assert.ErrorIs(t, err, sharederrors.ErrAtomicUnsupported)
	assert.ErrorIs(t, store.Probe(context.Background()), sharederrors.ErrAtomicUnsupported)
}

func TestCounterStore_ProbeTreatsMissingDocAsSupported(t *testing.T) {
	store, col := newTestStore()
	col.On("FindOneAndUpdate", mock.Anything, globalFilter, mock.Anything).
		Return(databasetest.SingleResult{Err: mongo.ErrNoDocuments})

	assert.NoError(t, store.Probe(context.Background()))
}

func TestCounterStore_FallbackWritesMax(t *testing.T) {
	store, col := newTestStore()
	col.On("FindOne", mock.Anything, globalFilter).Return(databasetest.SingleResult{
		Doc: bson.M{"_id": model.GlobalCounterID, "count": int64(100)},
	})

	var update mongo.Pipeline
	col.On("UpdateOne", mock.Anything, globalFilter, mock.Anything).
		Run(func(args mock.Arguments) { update = args.Get(2).(mongo.Pipeline) }).
		Return(databasetest.UpdateResult{MatchedCount: 1}, nil)

	rec, err := store.Fallback().Increment(context.Background())
	require.NoError(t, err)
	assert.EqualValues(t, 101, rec.Count)
	require.NotNil(t, rec.CreatedAt)

	require.Len(t, update, 1)
	set := update[0][0].Value.(bson.M)
	assert.Contains(t, set["count"], "$max")
}

func TestCounterStore_FallbackWriteFailure(t *testing.T) {
	store, col := newTestStore()
	col.On("FindOne", mock.Anything, globalFilter).Return(databasetest.SingleResult{Err: mongo.ErrNoDocuments})
	col.On("UpdateOne", mock.Anything, globalFilter, mock.Anything).Return(nil, errors.New("timeout"))

	_, err := store.Fallback().Increment(context.Background())
	assert.True(t, sharederrors.IsTransientRemote(err))
}
