// Package usecase holds the local-first site data services: the entity
// store, the change bus, the cloud reconciler and the guestbook.
package usecase

import (
	"context"
	"fmt"

	sharederrors "portfolio-sync/internal/shared/errors"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/shared/utils"
	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/domain/repository"

	"go.uber.org/zap"
)

// EntityStore reads and writes whole collections on the local medium and
// announces every write on the change bus.
type EntityStore struct {
	medium repository.Medium
	bus    *ChangeBus
	logger logger.Logger
}

// NewEntityStore creates a store over medium.
func NewEntityStore(medium repository.Medium, bus *ChangeBus, log logger.Logger) *EntityStore {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &EntityStore{
		medium: medium,
		bus:    bus,
		logger: log.WithComponent("entity-store"),
	}
}

// Load returns the current snapshot of key. It never fails: a missing,
// unreadable or malformed value yields the seed, and the stored bytes are
// left as they are. An unknown key yields nil.
func (s *EntityStore) Load(ctx context.Context, key model.CollectionKey) model.Snapshot {
	if !key.Valid() {
		s.logger.WithContext(ctx).Error("Load of unknown collection", zap.String("key", string(key)))
		return nil
	}
	raw, ok, err := s.medium.Get(ctx, key)
	if err != nil {
		s.logger.WithContext(ctx).Warn("Local read failed, using seed",
			zap.String("key", string(key)), zap.Error(err))
		return model.Seed(key)
	}
	if !ok {
		return model.Seed(key)
	}
	snap, err := model.Decode(key, raw)
	if err != nil {
		s.logger.WithContext(ctx).Warn("Stored snapshot is malformed, using seed",
			zap.String("key", string(key)), zap.Int("bytes", len(raw)), zap.Error(err))
		return model.Seed(key)
	}
	return snap
}

// LoadAs loads key and asserts its concrete snapshot type.
func LoadAs[T model.Snapshot](ctx context.Context, s *EntityStore, key model.CollectionKey) (T, error) {
	var zero T
	snap := s.Load(ctx, key)
	typed, ok := snap.(T)
	if !ok {
		return zero, fmt.Errorf("%w: %s holds %T", sharederrors.ErrCollectionMismatch, key, snap)
	}
	return typed, nil
}

// Save replaces the snapshot of key and notifies subscribers. It fails only
// when snap does not belong to key or the medium rejects the write.
func (s *EntityStore) Save(ctx context.Context, key model.CollectionKey, snap model.Snapshot) error {
	return s.save(ctx, key, snap, model.SourceLocal)
}

func (s *EntityStore) save(ctx context.Context, key model.CollectionKey, snap model.Snapshot, source model.ChangeSource) error {
	if !key.Valid() {
		return sharederrors.NewValidationError(fmt.Sprintf("unknown collection %q", key)).
			WithCause(sharederrors.ErrUnknownCollection)
	}
	if snap == nil || snap.Key() != key {
		return sharederrors.NewValidationError(fmt.Sprintf("snapshot does not belong to %s", key)).
			WithCause(sharederrors.ErrCollectionMismatch)
	}

	snap = model.Normalize(snap)
	raw, err := model.Encode(snap)
	if err != nil {
		return sharederrors.NewInternalError("failed to encode snapshot").WithCause(err)
	}

	ctx = utils.WithOperation(utils.WithCollection(ctx, string(key)), "save")
	log := s.logger.WithContext(ctx)
	if err := s.medium.Set(ctx, key, raw); err != nil {
		log.Error("Local write failed", zap.Error(err))
		return sharederrors.NewInfrastructureError("failed to write local store").WithCause(err)
	}
	log.Debug("Saved collection", zap.String("source", string(source)), zap.Int("records", snap.Len()))

	if s.bus != nil {
		s.bus.publish(ctx, model.ChangeNotification{Key: key, Data: snap, Source: source})
	}
	return nil
}

// Reset deletes the stored values of keys, or of every collection when none
// are given, so the next load returns the seed.
func (s *EntityStore) Reset(ctx context.Context, keys ...model.CollectionKey) error {
	if len(keys) == 0 {
		keys = model.AllKeys()
	}
	for _, key := range keys {
		if !key.Valid() {
			return sharederrors.NewValidationError(fmt.Sprintf("unknown collection %q", key)).
				WithCause(sharederrors.ErrUnknownCollection)
		}
	}
	ctx = utils.WithOperation(ctx, "reset")
	for _, key := range keys {
		if err := s.medium.Delete(ctx, key); err != nil {
			return sharederrors.NewInfrastructureError("failed to reset local store").WithCause(err)
		}
		s.logger.WithContext(ctx).Info("Reset collection to seed", zap.String("key", string(key)))
		if s.bus != nil {
			s.bus.publish(ctx, model.ChangeNotification{Key: key, Data: model.Seed(key), Source: model.SourceLocalRecord})
		}
	}
	return nil
}
