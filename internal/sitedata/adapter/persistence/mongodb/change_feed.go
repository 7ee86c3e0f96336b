package mongodb

import (
	"context"
	"time"

	"portfolio-sync/internal/shared/database"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// ChangeFeed turns a database change stream into remote change notices.
// Change streams need a replica set; on a standalone server Watch fails and
// the feed keeps retrying while the backup reload carries on.
type ChangeFeed struct {
	db         database.DatabaseProvider
	logger     logger.Logger
	retryDelay time.Duration
}

var _ repository.RemoteFeed = (*ChangeFeed)(nil)

// NewChangeFeed creates a change-stream feed.
func NewChangeFeed(db database.DatabaseProvider, log logger.Logger) *ChangeFeed {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &ChangeFeed{db: db, logger: log.WithComponent("mongodb-change-feed"), retryDelay: 5 * time.Second}
}

type changeEvent struct {
	NS struct {
		Coll string `bson:"coll"`
	} `bson:"ns"`
	OperationType string `bson:"operationType"`
}

func (f *ChangeFeed) pipeline() mongo.Pipeline {
	names := make([]string, 0, len(model.AllKeys()))
	for _, key := range model.AllKeys() {
		names = append(names, key.RemoteCollection())
	}
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "ns.coll", Value: bson.D{{Key: "$in", Value: names}}}}}},
	}
}

// Watch blocks until ctx is done, reopening the stream after failures.
func (f *ChangeFeed) Watch(ctx context.Context, fn func(key model.CollectionKey)) error {
	gap := false
	for {
		opened, err := f.watchOnce(ctx, gap, fn)
		if err != nil && ctx.Err() == nil {
			f.logger.Warn("Change stream interrupted, reconnecting", zap.Error(err), zap.Duration("retry_in", f.retryDelay))
		}
		gap = gap || opened
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.retryDelay):
		}
	}
}

// watchOnce runs one change stream. When it reopens after a stream that had
// been running, changes may have been missed, so every collection is
// reported once.
func (f *ChangeFeed) watchOnce(ctx context.Context, afterGap bool, fn func(key model.CollectionKey)) (bool, error) {
	stream, err := f.db.Watch(ctx, f.pipeline(), options.ChangeStream())
	if err != nil {
		return false, err
	}
	defer stream.Close(context.Background())

	f.logger.Info("Watching remote collections for changes")
	if afterGap {
		fn("")
	}
	for stream.Next(ctx) {
		var ev changeEvent
		if err := stream.Decode(&ev); err != nil {
			f.logger.Warn("Failed to decode change event", zap.Error(err))
			continue
		}
		key, ok := model.KeyForRemote(ev.NS.Coll)
		if !ok {
			continue
		}
		if ev.OperationType == "drop" || ev.OperationType == "invalidate" {
			fn("")
			continue
		}
		fn(key)
	}
	return true, stream.Err()
}
