package repository

import (
	"context"

	"portfolio-sync/internal/sitedata/domain/model"
)

// RemoteStore is the optional cloud copy of the collections.
type RemoteStore interface {
	// Pull fetches the authoritative snapshot. found is false when the remote
	// has never held this collection.
	Pull(ctx context.Context, key model.CollectionKey) (snap model.Snapshot, found bool, err error)
	// Push writes a whole collection. MESSAGES are upserted only.
	Push(ctx context.Context, snap model.Snapshot) error
	UpsertMessage(ctx context.Context, msg model.Message) error
	DeleteMessage(ctx context.Context, id string) error
	Ping(ctx context.Context) error
}

// RemoteFeed delivers server-initiated change notices. Watch blocks until
// ctx is done; an empty key means every collection.
type RemoteFeed interface {
	Watch(ctx context.Context, fn func(key model.CollectionKey)) error
}
