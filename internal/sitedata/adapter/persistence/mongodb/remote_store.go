package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portfolio-sync/internal/shared/database"
	sharederrors "portfolio-sync/internal/shared/errors"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/domain/repository"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
)

// markerCollection holds one document per collection key that has ever been
// written, so an emptied collection is not mistaken for one never stored.
const markerCollection = "sync_markers"

// RemoteStore keeps one MongoDB collection per CollectionKey. Records are
// stored as individual documents keyed by their id.
type RemoteStore struct {
	db     database.DatabaseProvider
	logger logger.Logger
	now    func() time.Time
}

var _ repository.RemoteStore = (*RemoteStore)(nil)

// NewRemoteStore creates a MongoDB-backed remote store.
func NewRemoteStore(db database.DatabaseProvider, log logger.Logger) *RemoteStore {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &RemoteStore{db: db, logger: log.WithComponent("mongodb-remote"), now: time.Now}
}

func transient(op string, key model.CollectionKey, err error) error {
	return sharederrors.NewTransientRemoteError(fmt.Sprintf("%s %s", op, key)).WithCause(err)
}

// Pull reads every record of key. An empty collection is found only when its
// marker exists; otherwise the caller seeds it from local data.
func (r *RemoteStore) Pull(ctx context.Context, key model.CollectionKey) (model.Snapshot, bool, error) {
	coll := r.db.Collection(key.RemoteCollection())

	if key == model.KeyProfile {
		var p model.Profile
		err := coll.FindOne(ctx, bson.M{}).Decode(&p)
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, transient("pull", key, err)
		}
		return model.Normalize(p), true, nil
	}

	sortField := "order_index"
	if key == model.KeyMessages {
		sortField = "created_at"
	}
	cur, err := coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: sortField, Value: 1}}))
	if err != nil {
		return nil, false, transient("pull", key, err)
	}
	defer cur.Close(ctx)

	var snap model.Snapshot
	switch key {
	case model.KeyProjects:
		snap, err = decodeAll[model.Project, model.Projects](ctx, cur, r.logger)
	case model.KeyExperiences:
		snap, err = decodeAll[model.Experience, model.Experiences](ctx, cur, r.logger)
	case model.KeyInterviews:
		snap, err = decodeAll[model.Interview, model.Interviews](ctx, cur, r.logger)
	case model.KeyMessages:
		snap, err = decodeAll[model.Message, model.Messages](ctx, cur, r.logger)
	case model.KeyCategories:
		snap, err = decodeAll[model.Category, model.Categories](ctx, cur, r.logger)
	default:
		return nil, false, fmt.Errorf("%w: %q", sharederrors.ErrUnknownCollection, key)
	}
	if err != nil {
		return nil, false, transient("pull", key, err)
	}
	if snap.Len() == 0 {
		stored, err := r.stored(ctx, key)
		if err != nil {
			return nil, false, transient("pull", key, err)
		}
		if !stored {
			return nil, false, nil
		}
	}
	return model.Normalize(snap), true, nil
}

func (r *RemoteStore) stored(ctx context.Context, key model.CollectionKey) (bool, error) {
	var marker bson.M
	err := r.db.Collection(markerCollection).FindOne(ctx, bson.M{"_id": key.String()}).Decode(&marker)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return false, nil
	}
	return err == nil, err
}

func (r *RemoteStore) mark(ctx context.Context, key model.CollectionKey) error {
	_, err := r.db.Collection(markerCollection).UpdateOne(ctx,
		bson.M{"_id": key.String()},
		bson.M{"$set": bson.M{"updated_at": r.now().UTC()}},
		options.Update().SetUpsert(true))
	return err
}

func decodeAll[T any, S ~[]T](ctx context.Context, cur database.CursorInterface, log logger.Logger) (S, error) {
	out := S{}
	for cur.Next(ctx) {
		var rec T
		if err := cur.Decode(&rec); err != nil {
			log.Warn("Skipping undecodable remote document", zap.Error(err))
			continue
		}
		out = append(out, rec)
	}
	return out, cur.Err()
}

// Push replaces every record of snap by id and removes documents whose id
// is no longer present. MESSAGES are only upserted: other visitors may have
// posted since this snapshot was read.
func (r *RemoteStore) Push(ctx context.Context, snap model.Snapshot) error {
	key := snap.Key()
	coll := r.db.Collection(key.RemoteCollection())
	records := model.Records(snap)

	ids := make([]string, 0, len(records))
	for _, rec := range records {
		id := rec.RecordID()
		if id == "" {
			continue
		}
		if _, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, rec, options.Replace().SetUpsert(true)); err != nil {
			return transient("push", key, err)
		}
		ids = append(ids, id)
	}

	if key != model.KeyMessages {
		res, err := coll.DeleteMany(ctx, bson.M{"_id": bson.M{"$nin": ids}})
		if err != nil {
			return transient("prune", key, err)
		}
		if res.Deleted() > 0 {
			r.logger.Debug("Pruned remote records", zap.String("key", key.String()), zap.Int64("deleted", res.Deleted()))
		}
	}
	if err := r.mark(ctx, key); err != nil {
		return transient("mark", key, err)
	}
	return nil
}

func (r *RemoteStore) UpsertMessage(ctx context.Context, msg model.Message) error {
	coll := r.db.Collection(model.KeyMessages.RemoteCollection())
	if _, err := coll.ReplaceOne(ctx, bson.M{"_id": msg.ID}, msg, options.Replace().SetUpsert(true)); err != nil {
		return transient("upsert message", model.KeyMessages, err)
	}
	if err := r.mark(ctx, model.KeyMessages); err != nil {
		return transient("mark", model.KeyMessages, err)
	}
	return nil
}

func (r *RemoteStore) DeleteMessage(ctx context.Context, id string) error {
	coll := r.db.Collection(model.KeyMessages.RemoteCollection())
	if _, err := coll.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return transient("delete message", model.KeyMessages, err)
	}
	return nil
}

func (r *RemoteStore) Ping(ctx context.Context) error {
	if err := r.db.Ping(ctx); err != nil {
		return sharederrors.NewUnavailableError("remote ping failed").WithCause(err)
	}
	return nil
}
