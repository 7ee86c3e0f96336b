package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/domain/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T, path string) *Medium {
	t.Helper()
	m, err := Open(path, Options{PollInterval: 10 * time.Millisecond}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestSQLiteMedium_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	m := openTest(t, filepath.Join(t.TempDir(), "site.db"))

	_, ok, err := m.Get(ctx, model.KeyProfile)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.Set(ctx, model.KeyProfile, []byte(`{"name":"Ada"}`)))
	require.NoError(t, m.Set(ctx, model.KeyProfile, []byte(`{"name":"Grace"}`)))
	val, ok, err := m.Get(ctx, model.KeyProfile)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"name":"Grace"}`, string(val))

	require.NoError(t, m.Delete(ctx, model.KeyProfile))
	_, ok, err = m.Get(ctx, model.KeyProfile)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSQLiteMedium_TwoHandlesShareFileAndSignals(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "site.db")
	a := openTest(t, path)
	b := openTest(t, path)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan repository.Signal, 8)
	own := make(chan repository.Signal, 8)
	listening := make(chan struct{}, 2)
	go func() {
		listening <- struct{}{}
		_ = b.Listen(ctx, func(s repository.Signal) { got <- s })
	}()
	go func() {
		listening <- struct{}{}
		_ = a.Listen(ctx, func(s repository.Signal) { own <- s })
	}()
	<-listening
	<-listening
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, a.Set(ctx, model.KeyProjects, []byte(`[]`)))
	require.NoError(t, a.Signal(ctx, model.KeyProjects))
	require.NoError(t, a.Signal(ctx, ""))

	for _, want := range []model.CollectionKey{model.KeyProjects, ""} {
		select {
		case sig := <-got:
			assert.Equal(t, want, sig.Key)
			assert.Equal(t, a.Origin(), sig.Origin)
		case <-time.After(2 * time.Second):
			t.Fatalf("signal %q not delivered", want)
		}
	}

	val, ok, err := b.Get(ctx, model.KeyProjects)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "[]", string(val))
	assert.Empty(t, own)
}

func TestSQLiteMedium_PrunesOldSignals(t *testing.T) {
	ctx := context.Background()
	m, err := Open(filepath.Join(t.TempDir(), "site.db"), Options{SignalRetention: time.Nanosecond}, nil)
	require.NoError(t, err)
	defer m.Close()

	require.NoError(t, m.Signal(ctx, model.KeyProfile))
	time.Sleep(time.Millisecond)
	require.NoError(t, m.Signal(ctx, model.KeyProfile))

	var n int
	require.NoError(t, m.db.QueryRow(`SELECT COUNT(*) FROM signals`).Scan(&n))
	assert.Equal(t, 1, n)
}
