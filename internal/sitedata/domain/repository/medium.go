package repository

import (
	"context"
	"time"

	"portfolio-sync/internal/sitedata/domain/model"
)

// Signal is a cross-process change signal. An empty Key means every
// collection may have changed.
type Signal struct {
	Key    model.CollectionKey
	Origin string
	At     time.Time
}

// Medium is the durable local store shared by every surface on a host. It
// holds one value per collection and carries change signals between the
// processes attached to it.
type Medium interface {
	// Get returns the stored value; ok is false when nothing is stored.
	Get(ctx context.Context, key model.CollectionKey) (value []byte, ok bool, err error)
	// Set replaces the stored value.
	Set(ctx context.Context, key model.CollectionKey, value []byte) error
	// Delete removes the stored value. Only operator resets use it.
	Delete(ctx context.Context, key model.CollectionKey) error
	// Signal tells the other attached processes that key changed.
	Signal(ctx context.Context, key model.CollectionKey) error
	// Listen blocks until ctx is done, calling fn for every signal emitted by
	// another origin. Delivery is at-least-once and may be coalesced.
	Listen(ctx context.Context, fn func(Signal)) error
	// Origin identifies this handle in the signals it emits.
	Origin() string
	Close() error
}
