// Package databasetest provides testify mocks and slice-backed fakes for the
// database interfaces.
package databasetest

import (
	"context"
	"errors"

	"portfolio-sync/internal/shared/database"

	"github.com/stretchr/testify/mock"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MockDatabaseProvider is a mock implementation of database.DatabaseProvider.
type MockDatabaseProvider struct {
	mock.Mock
	Collections map[string]*MockCollection
}

// NewMockDatabaseProvider returns a provider that hands out one MockCollection per name.
func NewMockDatabaseProvider() *MockDatabaseProvider {
	return &MockDatabaseProvider{Collections: make(map[string]*MockCollection)}
}

func (m *MockDatabaseProvider) Collection(name string) database.CollectionInterface {
	if col, ok := m.Collections[name]; ok {
		return col
	}
	col := &MockCollection{}
	m.Collections[name] = col
	return col
}

func (m *MockDatabaseProvider) Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (database.ChangeStreamInterface, error) {
	args := m.Called(ctx, pipeline)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(database.ChangeStreamInterface), args.Error(1)
}

func (m *MockDatabaseProvider) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockCollection is a mock implementation of database.CollectionInterface.
type MockCollection struct {
	mock.Mock
}

func (m *MockCollection) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockCollection) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) database.SingleResultInterface {
	args := m.Called(ctx, filter)
	return args.Get(0).(database.SingleResultInterface)
}

func (m *MockCollection) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (database.CursorInterface, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(database.CursorInterface), args.Error(1)
}

func (m *MockCollection) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (database.UpdateResultInterface, error) {
	args := m.Called(ctx, filter, update)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(database.UpdateResultInterface), args.Error(1)
}

func (m *MockCollection) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (database.UpdateResultInterface, error) {
	args := m.Called(ctx, filter, replacement)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(database.UpdateResultInterface), args.Error(1)
}

func (m *MockCollection) DeleteOne(ctx context.Context, filter interface{}) (database.DeleteResultInterface, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(database.DeleteResultInterface), args.Error(1)
}

func (m *MockCollection) DeleteMany(ctx context.Context, filter interface{}) (database.DeleteResultInterface, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(database.DeleteResultInterface), args.Error(1)
}

func (m *MockCollection) FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) database.SingleResultInterface {
	args := m.Called(ctx, filter, update)
	return args.Get(0).(database.SingleResultInterface)
}

// SingleResult decodes Doc, or returns Err.
type SingleResult struct {
	Doc interface{}
	Err error
}

func (r SingleResult) Decode(v interface{}) error {
	if r.Err != nil {
		return r.Err
	}
	return roundTrip(r.Doc, v)
}

// UpdateResult is a fixed database.UpdateResultInterface.
type UpdateResult struct {
	MatchedCount  int64
	UpsertedCount int64
}

func (r UpdateResult) Matched() int64  { return r.MatchedCount }
func (r UpdateResult) Upserted() int64 { return r.UpsertedCount }

// DeleteResult is a fixed database.DeleteResultInterface.
type DeleteResult struct{ DeletedCount int64 }

func (r DeleteResult) Deleted() int64 { return r.DeletedCount }

// Cursor iterates over Docs; it also satisfies database.ChangeStreamInterface.
// When Block is set, Next waits for ctx once the docs run out.
type Cursor struct {
	Docs  []interface{}
	Block bool
	Error error
	pos   int
}

func (c *Cursor) Next(ctx context.Context) bool {
	if c.pos < len(c.Docs) {
		c.pos++
		return true
	}
	if c.Block {
		<-ctx.Done()
	}
	return false
}

func (c *Cursor) Decode(val interface{}) error {
	if c.pos == 0 || c.pos > len(c.Docs) {
		return errors.New("cursor not positioned")
	}
	return roundTrip(c.Docs[c.pos-1], val)
}

func (c *Cursor) Close(ctx context.Context) error { return nil }
func (c *Cursor) Err() error                      { return c.Error }

func roundTrip(doc interface{}, out interface{}) error {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return err
	}
	return bson.Unmarshal(raw, out)
}
