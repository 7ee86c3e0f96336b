package usecase_test

import (
	"context"
	"strings"
	"testing"

	sharederrors "portfolio-sync/internal/shared/errors"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/shared/utils"
	"portfolio-sync/internal/sitedata/adapter/persistence/memory"
	"portfolio-sync/internal/sitedata/domain/model"
	. "portfolio-sync/internal/sitedata/usecase"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuestbook(t *testing.T) (*Guestbook, *surface, *memory.RemoteStore, *CloudReconciler) {
	t.Helper()
	s := newSurface(t, memory.NewHub(), 0)
	remote := memory.NewRemoteStore()
	r := newReconciler(t, s, remote, false)
	r.Start(context.Background())
	r.Drain()
	return NewGuestbook(s.store, r, logger.NewNoopLogger()), s, remote, r
}

func adminCtx() context.Context {
	return utils.WithAdminSubject(context.Background(), "owner")
}

func TestGuestbook_PostStoresAndMirrors(t *testing.T) {
	gb, s, remote, r := newGuestbook(t)
	ctx := utils.WithVisitorID(context.Background(), "visitor-1")

	msg, err := gb.Post(ctx, PostMessageInput{Author: "  Grace ", Content: " Hello there "})
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "visitor-1", msg.VisitorID)
	assert.Equal(t, "Grace", msg.Author)
	assert.Equal(t, "Hello there", msg.Content)
	assert.False(t, msg.CreatedAt.IsZero())

	stored := s.store.Load(ctx, model.KeyMessages).(model.Messages)
	require.Len(t, stored, 1)
	assert.Equal(t, msg.ID, stored[0].ID)

	r.Drain()
	snap, ok := remote.Snapshot(model.KeyMessages)
	require.True(t, ok)
	assert.Equal(t, msg.ID, snap.(model.Messages)[0].ID)
}

func TestGuestbook_PostDefaultsAnonymous(t *testing.T) {
	gb, _, _, _ := newGuestbook(t)

	msg, err := gb.Post(context.Background(), PostMessageInput{Content: "hi"})
	require.NoError(t, err)
	assert.Equal(t, model.AnonymousVisitorID, msg.VisitorID)
	assert.Equal(t, model.AnonymousAuthor, msg.Author)
}

func TestGuestbook_PostValidation(t *testing.T) {
	gb, _, _, _ := newGuestbook(t)

	_, err := gb.Post(context.Background(), PostMessageInput{Content: "   "})
	assert.True(t, sharederrors.IsValidation(err))

	_, err = gb.Post(context.Background(), PostMessageInput{Content: strings.Repeat("x", MaxMessageLength+1)})
	assert.True(t, sharederrors.IsValidation(err))

	_, err = gb.Post(context.Background(), PostMessageInput{Content: "ok", Author: strings.Repeat("a", MaxAuthorLength+1)})
	assert.True(t, sharederrors.IsValidation(err))
}

func TestGuestbook_PostDoesNotPushWholeCollection(t *testing.T) {
	gb, _, remote, r := newGuestbook(t)
	before := remote.Pushes()

	_, err := gb.Post(context.Background(), PostMessageInput{Content: "one"})
	require.NoError(t, err)
	_, err = gb.Post(context.Background(), PostMessageInput{Content: "two"})
	require.NoError(t, err)
	r.Drain()

	assert.Equal(t, before+2, remote.Pushes(), "one record-level upsert per post")
}

func TestGuestbook_ListMasksSecrets(t *testing.T) {
	gb, _, _, _ := newGuestbook(t)

	_, err := gb.Post(utils.WithVisitorID(context.Background(), "author"), PostMessageInput{Content: "public"})
	require.NoError(t, err)
	secret, err := gb.Post(utils.WithVisitorID(context.Background(), "author"), PostMessageInput{Content: "psst", IsSecret: true})
	require.NoError(t, err)

	find := func(msgs model.Messages, id string) model.Message {
		i := msgs.FindMessage(id)
		require.GreaterOrEqual(t, i, 0)
		return msgs[i]
	}

	stranger, err := gb.List(context.Background(), Viewer{VisitorID: "someone-else"})
	require.NoError(t, err)
	require.Len(t, stranger, 2)
	assert.Equal(t, SecretPlaceholder, find(stranger, secret.ID).Content)

	owner, err := gb.List(context.Background(), Viewer{VisitorID: "author"})
	require.NoError(t, err)
	assert.Equal(t, "psst", find(owner, secret.ID).Content)

	admin, err := gb.List(context.Background(), Viewer{Admin: true})
	require.NoError(t, err)
	assert.Equal(t, "psst", find(admin, secret.ID).Content)
}

func TestMaskMessage_AnonymousAuthorsCannotUnmaskEachOther(t *testing.T) {
	m := model.Message{ID: "m", VisitorID: model.AnonymousVisitorID, Content: "secret", Reply: "answer", IsSecret: true}
	masked := MaskMessage(m, Viewer{VisitorID: model.AnonymousVisitorID})
	assert.Equal(t, SecretPlaceholder, masked.Content)
	assert.Equal(t, SecretPlaceholder, masked.Reply)
}

func TestGuestbook_ReplyAndLock(t *testing.T) {
	gb, s, remote, r := newGuestbook(t)
	msg, err := gb.Post(context.Background(), PostMessageInput{Content: "question?"})
	require.NoError(t, err)

	_, err = gb.Reply(context.Background(), msg.ID, ReplyInput{Reply: "answer"})
	assert.True(t, sharederrors.IsAuthorization(err))

	replied, err := gb.Reply(adminCtx(), msg.ID, ReplyInput{Reply: "answer", Lock: true})
	require.NoError(t, err)
	assert.Equal(t, "answer", replied.Reply)
	assert.True(t, replied.IsReplyLocked)
	require.NotNil(t, replied.RepliedAt)

	_, err = gb.Reply(adminCtx(), msg.ID, ReplyInput{Reply: "changed my mind"})
	assert.True(t, sharederrors.IsConflict(err))
	assert.ErrorIs(t, err, sharederrors.ErrReplyLocked)

	stored := s.store.Load(context.Background(), model.KeyMessages).(model.Messages)
	assert.Equal(t, "answer", stored[0].Reply)

	r.Drain()
	snap, _ := remote.Snapshot(model.KeyMessages)
	assert.Equal(t, "answer", snap.(model.Messages)[0].Reply)

	_, err = gb.Reply(adminCtx(), "missing", ReplyInput{Reply: "x"})
	assert.True(t, sharederrors.IsNotFound(err))
	_, err = gb.Reply(adminCtx(), msg.ID, ReplyInput{Reply: " "})
	assert.True(t, sharederrors.IsValidation(err))
}

func TestGuestbook_Delete(t *testing.T) {
	gb, s, remote, r := newGuestbook(t)
	keep, err := gb.Post(context.Background(), PostMessageInput{Content: "keep"})
	require.NoError(t, err)
	drop, err := gb.Post(context.Background(), PostMessageInput{Content: "drop"})
	require.NoError(t, err)
	r.Drain()

	assert.True(t, sharederrors.IsAuthorization(gb.Delete(context.Background(), drop.ID)))
	require.NoError(t, gb.Delete(adminCtx(), drop.ID))
	assert.True(t, sharederrors.IsNotFound(gb.Delete(adminCtx(), drop.ID)))

	stored := s.store.Load(context.Background(), model.KeyMessages).(model.Messages)
	require.Len(t, stored, 1)
	assert.Equal(t, keep.ID, stored[0].ID)

	r.Drain()
	snap, _ := remote.Snapshot(model.KeyMessages)
	assert.Equal(t, -1, snap.(model.Messages).FindMessage(drop.ID))
}

func TestGuestbook_WorksWithoutRemote(t *testing.T) {
	s := newSurface(t, memory.NewHub(), 0)
	gb := NewGuestbook(s.store, nil, nil)

	msg, err := gb.Post(context.Background(), PostMessageInput{Content: "offline"})
	require.NoError(t, err)
	require.NoError(t, gb.Delete(adminCtx(), msg.ID))
}
