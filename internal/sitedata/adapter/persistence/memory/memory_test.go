package memory

import (
	"context"
	"testing"
	"time"

	sharederrors "portfolio-sync/internal/shared/errors"
	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMedium_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	m := NewHub().Attach()

	_, ok, err := m.Get(ctx, model.KeyProjects)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, model.KeyProjects, []byte(`[]`)))
	v, ok, err := m.Get(ctx, model.KeyProjects)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", string(v))

	require.NoError(t, m.Delete(ctx, model.KeyProjects))
	_, ok, _ = m.Get(ctx, model.KeyProjects)
	assert.False(t, ok)
}

func TestMedium_HandlesShareValues(t *testing.T) {
	ctx := context.Background()
	hub := NewHub()
	a, b := hub.Attach(), hub.Attach()
	assert.NotEqual(t, a.Origin(), b.Origin())

	require.NoError(t, a.Set(ctx, model.KeyProfile, []byte(`{"name":"Ada"}`)))
	v, ok, err := b.Get(ctx, model.KeyProfile)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(v), "Ada")
}

func TestMedium_SignalReachesOthersOnly(t *testing.T) {
	hub := NewHub()
	a, b := hub.Attach(), hub.Attach()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gotA := make(chan repository.Signal, 4)
	gotB := make(chan repository.Signal, 4)
	go func() { _ = a.Listen(ctx, func(s repository.Signal) { gotA <- s }) }()
	go func() { _ = b.Listen(ctx, func(s repository.Signal) { gotB <- s }) }()

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return len(hub.listeners) == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Signal(ctx, model.KeyProjects))

	select {
	case sig := <-gotB:
		assert.Equal(t, model.KeyProjects, sig.Key)
		assert.Equal(t, a.Origin(), sig.Origin)
	case <-time.After(time.Second):
		t.Fatal("signal not delivered to other handle")
	}
	select {
	case <-gotA:
		t.Fatal("publisher received its own signal")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMedium_ClosedHandleFails(t *testing.T) {
	m := NewHub().Attach()
	require.NoError(t, m.Close())
	_, _, err := m.Get(context.Background(), model.KeyProfile)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestRemoteStore_PullPush(t *testing.T) {
	ctx := context.Background()
	r := NewRemoteStore()

	_, found, err := r.Pull(ctx, model.KeyProjects)
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, r.Push(ctx, model.Projects{{ID: "a", Title: "A"}}))
	snap, found, err := r.Pull(ctx, model.KeyProjects)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, 1, r.Pushes())
}

func TestRemoteStore_MessagesUpsertOnly(t *testing.T) {
	ctx := context.Background()
	r := NewRemoteStore()
	require.NoError(t, r.UpsertMessage(ctx, model.Message{ID: "m1", Content: "first"}))
	require.NoError(t, r.Push(ctx, model.Messages{{ID: "m2", Content: "second"}}))

	snap, _, err := r.Pull(ctx, model.KeyMessages)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Len())

	require.NoError(t, r.DeleteMessage(ctx, "m1"))
	snap, _, _ = r.Pull(ctx, model.KeyMessages)
	assert.Equal(t, 1, snap.Len())
}

func TestRemoteStore_FailureInjection(t *testing.T) {
	ctx := context.Background()
	r := NewRemoteStore()

	r.FailNext(1)
	err := r.Ping(ctx)
	assert.True(t, sharederrors.IsTransientRemote(err))
	assert.NoError(t, r.Ping(ctx))

	r.SetFailing(true)
	_, _, err = r.Pull(ctx, model.KeyProfile)
	assert.Error(t, err)
	r.SetFailing(false)

	r.SetDelay(50 * time.Millisecond)
	short, cancel := context.WithTimeout(ctx, 5*time.Millisecond)
	defer cancel()
	assert.Error(t, r.Ping(short))
}

func TestRemoteStore_WatchSeesPublish(t *testing.T) {
	r := NewRemoteStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan model.CollectionKey, 1)
	go func() { _ = r.Watch(ctx, func(k model.CollectionKey) { got <- k }) }()
	require.Eventually(t, func() bool { return r.Watchers() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, r.Publish(model.Interviews{{ID: "i1", Title: "Talk"}}))
	select {
	case key := <-got:
		assert.Equal(t, model.KeyInterviews, key)
	case <-time.After(time.Second):
		t.Fatal("watch did not fire")
	}
}
