package database

import (
	"context"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionInterface is the subset of *mongo.Collection the adapters use,
// so they can run against mocks in unit tests.
type CollectionInterface interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
	FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) SingleResultInterface
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (CursorInterface, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (UpdateResultInterface, error)
	ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (UpdateResultInterface, error)
	DeleteOne(ctx context.Context, filter interface{}) (DeleteResultInterface, error)
	DeleteMany(ctx context.Context, filter interface{}) (DeleteResultInterface, error)
	FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) SingleResultInterface
}

// DatabaseProvider hands out collections and database-wide change streams.
type DatabaseProvider interface {
	Collection(name string) CollectionInterface
	Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (ChangeStreamInterface, error)
	Ping(ctx context.Context) error
}

type SingleResultInterface interface {
	Decode(v interface{}) error
}
type UpdateResultInterface interface {
	Matched() int64
	Upserted() int64
}
type DeleteResultInterface interface{ Deleted() int64 }
type CursorInterface interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Close(ctx context.Context) error
	Err() error
}
type ChangeStreamInterface interface {
	Next(ctx context.Context) bool
	Decode(val interface{}) error
	Close(ctx context.Context) error
	Err() error
}

// MongoDatabaseProvider adapts *mongo.Database to DatabaseProvider.
type MongoDatabaseProvider struct {
	db *mongo.Database
}

func NewMongoDatabaseProvider(db *mongo.Database) *MongoDatabaseProvider {
	return &MongoDatabaseProvider{db: db}
}

func (p *MongoDatabaseProvider) Collection(name string) CollectionInterface {
	return NewMongoCollectionAdapter(p.db.Collection(name))
}

func (p *MongoDatabaseProvider) Watch(ctx context.Context, pipeline interface{}, opts ...*options.ChangeStreamOptions) (ChangeStreamInterface, error) {
	cs, err := p.db.Watch(ctx, pipeline, opts...)
	if err != nil {
		return nil, err
	}
	return cs, nil
}

func (p *MongoDatabaseProvider) Ping(ctx context.Context) error {
	return p.db.Client().Ping(ctx, nil)
}

// MongoCollectionAdapter makes *mongo.Collection satisfy CollectionInterface.
type MongoCollectionAdapter struct {
	col *mongo.Collection
}

func NewMongoCollectionAdapter(col *mongo.Collection) *MongoCollectionAdapter {
	return &MongoCollectionAdapter{col: col}
}

func (m *MongoCollectionAdapter) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return m.col.CountDocuments(ctx, filter, opts...)
}

func (m *MongoCollectionAdapter) FindOne(ctx context.Context, filter interface{}, opts ...*options.FindOneOptions) SingleResultInterface {
	return m.col.FindOne(ctx, filter, opts...)
}

func (m *MongoCollectionAdapter) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) (CursorInterface, error) {
	cur, err := m.col.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	return cur, nil
}

func (m *MongoCollectionAdapter) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (UpdateResultInterface, error) {
	res, err := m.col.UpdateOne(ctx, filter, update, opts...)
	if err != nil {
		return nil, err
	}
	return &MongoUpdateResultAdapter{matched: res.MatchedCount, upserted: res.UpsertedCount}, nil
}

func (m *MongoCollectionAdapter) ReplaceOne(ctx context.Context, filter interface{}, replacement interface{}, opts ...*options.ReplaceOptions) (UpdateResultInterface, error) {
	res, err := m.col.ReplaceOne(ctx, filter, replacement, opts...)
	if err != nil {
		return nil, err
	}
	return &MongoUpdateResultAdapter{matched: res.MatchedCount, upserted: res.UpsertedCount}, nil
}

func (m *MongoCollectionAdapter) DeleteOne(ctx context.Context, filter interface{}) (DeleteResultInterface, error) {
	res, err := m.col.DeleteOne(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &MongoDeleteResultAdapter{deleted: res.DeletedCount}, nil
}

func (m *MongoCollectionAdapter) DeleteMany(ctx context.Context, filter interface{}) (DeleteResultInterface, error) {
	res, err := m.col.DeleteMany(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &MongoDeleteResultAdapter{deleted: res.DeletedCount}, nil
}

func (m *MongoCollectionAdapter) FindOneAndUpdate(ctx context.Context, filter interface{}, update interface{}, opts ...*options.FindOneAndUpdateOptions) SingleResultInterface {
	return m.col.FindOneAndUpdate(ctx, filter, update, opts...)
}

// MongoUpdateResultAdapter wraps the matched and upserted counts
type MongoUpdateResultAdapter struct {
	matched  int64
	upserted int64
}

func (m *MongoUpdateResultAdapter) Matched() int64  { return m.matched }
func (m *MongoUpdateResultAdapter) Upserted() int64 { return m.upserted }

// MongoDeleteResultAdapter wraps the deleted count
type MongoDeleteResultAdapter struct {
	deleted int64
}

func (m *MongoDeleteResultAdapter) Deleted() int64 { return m.deleted }
