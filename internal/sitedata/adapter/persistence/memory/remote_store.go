package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	sharederrors "portfolio-sync/internal/shared/errors"
	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/domain/repository"
)

// RemoteStore is an in-memory cloud store with failure injection. It also
// acts as its own RemoteFeed: Publish stands in for another client writing
// to the cloud.
type RemoteStore struct {
	mu       sync.Mutex
	data     map[model.CollectionKey][]byte
	failing  bool
	failNext int
	delay    time.Duration
	pushes   int
	pulls    int

	watchMu  sync.Mutex
	watchers map[int]chan model.CollectionKey
	nextID   int
}

var (
	_ repository.RemoteStore = (*RemoteStore)(nil)
	_ repository.RemoteFeed  = (*RemoteStore)(nil)
)

// NewRemoteStore creates an empty remote.
func NewRemoteStore() *RemoteStore {
	return &RemoteStore{
		data:     make(map[model.CollectionKey][]byte),
		watchers: make(map[int]chan model.CollectionKey),
	}
}

// SetFailing makes every call fail until cleared.
func (r *RemoteStore) SetFailing(failing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failing = failing
}

// FailNext makes the next n calls fail.
func (r *RemoteStore) FailNext(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failNext = n
}

// SetDelay adds latency to every call; calls honour ctx while waiting.
func (r *RemoteStore) SetDelay(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delay = d
}

// Pushes returns how many successful Push and UpsertMessage calls were made.
func (r *RemoteStore) Pushes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pushes
}

// Pulls returns how many successful Pull calls were made.
func (r *RemoteStore) Pulls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.pulls
}

// Snapshot returns what the remote holds for key without counting as a pull.
func (r *RemoteStore) Snapshot(key model.CollectionKey) (model.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.data[key]
	if !ok {
		return nil, false
	}
	snap, err := model.Decode(key, raw)
	if err != nil {
		return nil, false
	}
	return snap, true
}

// Publish writes snap as another client would and notifies watchers.
func (r *RemoteStore) Publish(snap model.Snapshot) error {
	raw, err := model.Encode(snap)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.data[snap.Key()] = raw
	r.mu.Unlock()
	r.notify(snap.Key())
	return nil
}

func (r *RemoteStore) enter(ctx context.Context) error {
	r.mu.Lock()
	delay := r.delay
	fail := r.failing
	if !fail && r.failNext > 0 {
		r.failNext--
		fail = true
	}
	r.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return sharederrors.NewTransientRemoteError("remote call timed out").WithCause(ctx.Err())
		case <-time.After(delay):
		}
	}
	if fail {
		return sharederrors.NewTransientRemoteError("remote unreachable").WithCause(sharederrors.ErrRemoteUnavailable)
	}
	return nil
}

func (r *RemoteStore) Pull(ctx context.Context, key model.CollectionKey) (model.Snapshot, bool, error) {
	if err := r.enter(ctx); err != nil {
		return nil, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pulls++
	raw, ok := r.data[key]
	if !ok {
		return nil, false, nil
	}
	snap, err := model.Decode(key, raw)
	if err != nil {
		return nil, false, fmt.Errorf("pull %s: %w", key, err)
	}
	return snap, true, nil
}

func (r *RemoteStore) Push(ctx context.Context, snap model.Snapshot) error {
	if err := r.enter(ctx); err != nil {
		return err
	}
	if msgs, ok := snap.(model.Messages); ok {
		for _, m := range msgs {
			if err := r.upsert(m); err != nil {
				return err
			}
		}
		r.mu.Lock()
		r.pushes++
		r.mu.Unlock()
		return nil
	}
	raw, err := model.Encode(snap)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[snap.Key()] = raw
	r.pushes++
	return nil
}

func (r *RemoteStore) UpsertMessage(ctx context.Context, msg model.Message) error {
	if err := r.enter(ctx); err != nil {
		return err
	}
	if err := r.upsert(msg); err != nil {
		return err
	}
	r.mu.Lock()
	r.pushes++
	r.mu.Unlock()
	return nil
}

func (r *RemoteStore) upsert(msg model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var current model.Messages
	if raw, ok := r.data[model.KeyMessages]; ok {
		snap, err := model.Decode(model.KeyMessages, raw)
		if err != nil {
			return err
		}
		current = snap.(model.Messages)
	}
	if i := current.FindMessage(msg.ID); i >= 0 {
		current[i] = msg
	} else {
		current = append(current, msg)
	}
	raw, err := model.Encode(current)
	if err != nil {
		return err
	}
	r.data[model.KeyMessages] = raw
	return nil
}

func (r *RemoteStore) DeleteMessage(ctx context.Context, id string) error {
	if err := r.enter(ctx); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	raw, ok := r.data[model.KeyMessages]
	if !ok {
		return nil
	}
	snap, err := model.Decode(model.KeyMessages, raw)
	if err != nil {
		return err
	}
	msgs := snap.(model.Messages)
	if i := msgs.FindMessage(id); i >= 0 {
		msgs = append(msgs[:i], msgs[i+1:]...)
	}
	raw, err = model.Encode(msgs)
	if err != nil {
		return err
	}
	r.data[model.KeyMessages] = raw
	return nil
}

func (r *RemoteStore) Ping(ctx context.Context) error {
	return r.enter(ctx)
}

// Watch implements repository.RemoteFeed.
func (r *RemoteStore) Watch(ctx context.Context, fn func(key model.CollectionKey)) error {
	ch := make(chan model.CollectionKey, listenerBuffer)
	r.watchMu.Lock()
	id := r.nextID
	r.nextID++
	r.watchers[id] = ch
	r.watchMu.Unlock()

	defer func() {
		r.watchMu.Lock()
		delete(r.watchers, id)
		r.watchMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case key := <-ch:
			fn(key)
		}
	}
}

// Watchers reports how many Watch calls are active.
func (r *RemoteStore) Watchers() int {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	return len(r.watchers)
}

func (r *RemoteStore) notify(key model.CollectionKey) {
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	for _, ch := range r.watchers {
		select {
		case ch <- key:
		default:
		}
	}
}
