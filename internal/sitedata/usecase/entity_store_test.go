package usecase_test

import (
	"context"
	"testing"

	sharederrors "portfolio-sync/internal/shared/errors"
	"portfolio-sync/internal/sitedata/adapter/persistence/memory"
	"portfolio-sync/internal/sitedata/domain/model"
	. "portfolio-sync/internal/sitedata/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntityStore_LoadMissingReturnsSeed(t *testing.T) {
	s := newSurface(t, memory.NewHub(), 0)
	ctx := context.Background()

	for _, key := range model.AllKeys() {
		assert.Equal(t, model.Seed(key), s.store.Load(ctx, key), key)
	}
}

func TestEntityStore_IdempotentReload(t *testing.T) {
	hub := memory.NewHub()
	s := newSurface(t, hub, 0)
	ctx := context.Background()

	hub.Corrupt(model.KeyProjects, []byte(`[{"title":"No id"},{"id":"x","title":"Kept","order_index":2},{}]`))
	first := s.store.Load(ctx, model.KeyProjects)
	second := s.store.Load(ctx, model.KeyProjects)
	assert.Equal(t, first, second)
	assert.Len(t, first.(model.Projects), 2)
}

func TestEntityStore_TotalOverwrite(t *testing.T) {
	s := newSurface(t, memory.NewHub(), 0)
	ctx := context.Background()

	require.NoError(t, s.store.Save(ctx, model.KeyProjects, fiveProjects()))
	replacement := model.Projects{{ID: "only", Title: "Only one", OrderIndex: 7}}
	require.NoError(t, s.store.Save(ctx, model.KeyProjects, replacement))

	got := s.store.Load(ctx, model.KeyProjects)
	assert.Equal(t, model.Normalize(replacement), got)
}

func TestEntityStore_OrderIndexIsNotReassigned(t *testing.T) {
	s := newSurface(t, memory.NewHub(), 0)
	ctx := context.Background()

	gappy := model.Categories{{ID: "b", Name: "B", OrderIndex: 10}, {ID: "a", Name: "A", OrderIndex: 3}}
	require.NoError(t, s.store.Save(ctx, model.KeyCategories, gappy))

	got := s.store.Load(ctx, model.KeyCategories).(model.Categories)
	assert.Equal(t, 10, got[0].OrderIndex)
	assert.Equal(t, 3, got[1].OrderIndex)
}

func TestEntityStore_MalformedValueYieldsSeed(t *testing.T) {
	hub := memory.NewHub()
	s := newSurface(t, hub, 0)
	ctx := context.Background()

	hub.Corrupt(model.KeyProfile, []byte(`{"name": "trunc`))
	hub.Corrupt(model.KeyCategories, []byte(`not json at all`))
	hub.Corrupt(model.KeyMessages, []byte(`{"id":"object-not-array"}`))

	assert.Equal(t, model.Seed(model.KeyProfile), s.store.Load(ctx, model.KeyProfile))
	assert.Equal(t, model.Seed(model.KeyCategories), s.store.Load(ctx, model.KeyCategories))
	assert.Equal(t, model.Seed(model.KeyMessages), s.store.Load(ctx, model.KeyMessages))

	raw, ok, err := s.medium.Get(ctx, model.KeyCategories)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "not json at all", string(raw), "a bad value is not rewritten by a load")
}

func TestEntityStore_LoadAfterMediumFailureYieldsSeed(t *testing.T) {
	s := newSurface(t, memory.NewHub(), 0)
	ctx := context.Background()
	require.NoError(t, s.store.Save(ctx, model.KeyCategories, model.Categories{{ID: "x", Name: "X"}}))

	require.NoError(t, s.medium.Close())
	assert.Equal(t, model.Seed(model.KeyCategories), s.store.Load(ctx, model.KeyCategories))
}

func TestEntityStore_SaveRejectsMismatchedSnapshot(t *testing.T) {
	s := newSurface(t, memory.NewHub(), 0)
	ctx := context.Background()

	err := s.store.Save(ctx, model.KeyProjects, model.Categories{})
	require.Error(t, err)
	assert.ErrorIs(t, err, sharederrors.ErrCollectionMismatch)
	assert.True(t, sharederrors.IsValidation(err))

	err = s.store.Save(ctx, model.CollectionKey("NOPE"), model.Projects{})
	assert.ErrorIs(t, err, sharederrors.ErrUnknownCollection)
}

func TestEntityStore_SavePublishesInProcess(t *testing.T) {
	s := newSurface(t, memory.NewHub(), 0)
	rec := newRecorder()
	unsubscribe := s.bus.Subscribe(rec.handle)
	defer unsubscribe()

	require.NoError(t, s.store.Save(context.Background(), model.KeyProjects, fiveProjects()))

	seen := rec.all()
	require.Len(t, seen, 1, "in-process delivery is synchronous")
	assert.Equal(t, model.KeyProjects, seen[0].Key)
	assert.Equal(t, model.SourceLocal, seen[0].Source)
	assert.Equal(t, 5, seen[0].Data.Len())
	assert.Equal(t, s.medium.Origin(), seen[0].Origin)
}

func TestEntityStore_ResetRestoresSeed(t *testing.T) {
	s := newSurface(t, memory.NewHub(), 0)
	ctx := context.Background()
	require.NoError(t, s.store.Save(ctx, model.KeyProjects, fiveProjects()))
	require.NoError(t, s.store.Save(ctx, model.KeyCategories, model.Categories{{ID: "x", Name: "X"}}))

	require.NoError(t, s.store.Reset(ctx, model.KeyProjects))
	assert.Equal(t, model.Seed(model.KeyProjects), s.store.Load(ctx, model.KeyProjects))
	assert.NotEqual(t, model.Seed(model.KeyCategories), s.store.Load(ctx, model.KeyCategories))

	require.NoError(t, s.store.Reset(ctx))
	assert.Equal(t, model.Seed(model.KeyCategories), s.store.Load(ctx, model.KeyCategories))

	assert.Error(t, s.store.Reset(ctx, "BOGUS"))
}

func TestLoadAs(t *testing.T) {
	s := newSurface(t, memory.NewHub(), 0)
	ctx := context.Background()

	profile, err := LoadAs[model.Profile](ctx, s.store, model.KeyProfile)
	require.NoError(t, err)
	assert.Equal(t, "Site Owner", profile.Name)

	_, err = LoadAs[model.Projects](ctx, s.store, model.KeyProfile)
	assert.ErrorIs(t, err, sharederrors.ErrCollectionMismatch)
}

// Two surfaces hold the same five projects. A appends one and saves; B,
// without reloading, appends a different one and saves. B's snapshot wins
// and A's addition is lost: writes are last-writer-wins with no merge.
func TestEntityStore_LostUpdateBetweenSurfaces(t *testing.T) {
	hub := memory.NewHub()
	a := newSurface(t, hub, 0)
	b := newSurface(t, hub, 0)
	ctx := context.Background()

	require.NoError(t, a.store.Save(ctx, model.KeyProjects, fiveProjects()))
	heldByA := a.store.Load(ctx, model.KeyProjects).(model.Projects)
	heldByB := b.store.Load(ctx, model.KeyProjects).(model.Projects)
	require.Len(t, heldByB, 5)

	withA := append(append(model.Projects(nil), heldByA...), model.Project{ID: "six-a", Title: "From A", OrderIndex: 5})
	require.NoError(t, a.store.Save(ctx, model.KeyProjects, withA))

	withB := append(append(model.Projects(nil), heldByB...), model.Project{ID: "six-b", Title: "From B", OrderIndex: 5})
	require.NoError(t, b.store.Save(ctx, model.KeyProjects, withB))

	for _, s := range []*surface{a, b} {
		final := s.store.Load(ctx, model.KeyProjects).(model.Projects)
		require.Len(t, final, 6)
		ids := make([]string, 0, len(final))
		for _, p := range final {
			ids = append(ids, p.ID)
		}
		assert.Contains(t, ids, "six-b")
		assert.NotContains(t, ids, "six-a")
		for i, p := range final {
			assert.Equal(t, i, p.OrderIndex)
		}
	}
}

func TestEntityStore_SaveThenLoadInSameProcess(t *testing.T) {
	s := newSurface(t, memory.NewHub(), 0)
	ctx := context.Background()

	profile := model.Profile{Name: "Ada Lovelace", Title: "Analyst", Skills: []string{"math"}}
	require.NoError(t, s.store.Save(ctx, model.KeyProfile, profile))

	got := s.store.Load(ctx, model.KeyProfile).(model.Profile)
	assert.Equal(t, "Ada Lovelace", got.Name)
	assert.Equal(t, model.ProfileRecordID, got.ID)
	assert.Equal(t, []string{"math"}, got.Skills)
}
