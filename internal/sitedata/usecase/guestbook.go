package usecase

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	sharederrors "portfolio-sync/internal/shared/errors"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/shared/utils"
	"portfolio-sync/internal/sitedata/domain/model"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
)

// Guestbook limits.
const (
	MaxMessageLength = 2000
	MaxAuthorLength  = 80
	MaxReplyLength   = 2000
)

// SecretPlaceholder replaces the content of secret messages for viewers who
// may not read them.
const SecretPlaceholder = "This message is only visible to its author and the site owner."

// PostMessageInput is a visitor's new guestbook entry.
type PostMessageInput struct {
	VisitorID string `json:"-"`
	Author    string `json:"author"`
	Content   string `json:"content"`
	IsSecret  bool   `json:"is_secret"`
}

// ReplyInput is the owner's reply to a message.
type ReplyInput struct {
	Reply string `json:"reply"`
	Lock  bool   `json:"lock"`
}

// Viewer decides which secret messages are shown in full.
type Viewer struct {
	VisitorID string
	Admin     bool
}

// Guestbook edits the MESSAGES collection one record at a time and mirrors
// each edit to the remote store.
type Guestbook struct {
	store      *EntityStore
	reconciler *CloudReconciler
	logger     logger.Logger
	now        func() time.Time
}

// NewGuestbook creates a guestbook. reconciler may be nil.
func NewGuestbook(store *EntityStore, reconciler *CloudReconciler, log logger.Logger) *Guestbook {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &Guestbook{
		store:      store,
		reconciler: reconciler,
		logger:     log.WithComponent("guestbook"),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// List returns the messages newest first, with secret entries masked for
// anyone but their author and the owner.
func (g *Guestbook) List(ctx context.Context, viewer Viewer) (model.Messages, error) {
	msgs, err := LoadAs[model.Messages](ctx, g.store, model.KeyMessages)
	if err != nil {
		return nil, err
	}
	out := model.Sorted(msgs).(model.Messages)
	for i := range out {
		out[i] = MaskMessage(out[i], viewer)
	}
	return out, nil
}

// MaskMessage hides the content and reply of a secret message from viewers
// other than its author and the owner.
func MaskMessage(m model.Message, viewer Viewer) model.Message {
	if !m.IsSecret || viewer.Admin {
		return m
	}
	if viewer.VisitorID != "" && viewer.VisitorID != model.AnonymousVisitorID && viewer.VisitorID == m.VisitorID {
		return m
	}
	m.Content = SecretPlaceholder
	if m.Reply != "" {
		m.Reply = SecretPlaceholder
	}
	return m
}

// Post appends a new message and returns it.
func (g *Guestbook) Post(ctx context.Context, in PostMessageInput) (model.Message, error) {
	content := strings.TrimSpace(in.Content)
	author := strings.TrimSpace(in.Author)

	verrs := sharederrors.NewValidationErrors()
	if content == "" {
		verrs.Add("content", "content is required", nil)
	} else if utf8.RuneCountInString(content) > MaxMessageLength {
		verrs.Add("content", "content is too long", utf8.RuneCountInString(content))
	}
	if utf8.RuneCountInString(author) > MaxAuthorLength {
		verrs.Add("author", "author is too long", utf8.RuneCountInString(author))
	}
	if verrs.HasErrors() {
		return model.Message{}, verrs.ToAppError()
	}

	visitorID := strings.TrimSpace(in.VisitorID)
	if visitorID == "" {
		if id, err := utils.GetVisitorIDFromContext(ctx); err == nil {
			visitorID = id
		}
	}

	msg := model.Message{
		ID:        ulid.Make().String(),
		VisitorID: visitorID,
		Author:    author,
		Content:   content,
		IsSecret:  in.IsSecret,
		CreatedAt: g.now(),
	}

	msgs, err := LoadAs[model.Messages](ctx, g.store, model.KeyMessages)
	if err != nil {
		return model.Message{}, err
	}
	next := append(append(model.Messages(nil), msgs...), msg)
	if err := g.store.save(ctx, model.KeyMessages, next, model.SourceLocalRecord); err != nil {
		return model.Message{}, err
	}
	msg = model.Normalize(model.Messages{msg}).(model.Messages)[0]

	g.logger.WithContext(ctx).Info("Guestbook message posted",
		zap.String("message_id", msg.ID), zap.Bool("secret", msg.IsSecret))
	if g.reconciler != nil {
		g.reconciler.PushMessage(ctx, msg)
	}
	return msg, nil
}

// Reply sets the owner's reply on message id. A locked message keeps its
// existing reply. Only admins may reply.
func (g *Guestbook) Reply(ctx context.Context, id string, in ReplyInput) (model.Message, error) {
	if !utils.IsAdmin(ctx) {
		return model.Message{}, sharederrors.NewAuthorizationError("only the site owner can reply")
	}
	reply := strings.TrimSpace(in.Reply)
	if reply == "" {
		return model.Message{}, sharederrors.NewValidationError("reply is required")
	}
	if utf8.RuneCountInString(reply) > MaxReplyLength {
		return model.Message{}, sharederrors.NewValidationError("reply is too long")
	}

	msgs, err := LoadAs[model.Messages](ctx, g.store, model.KeyMessages)
	if err != nil {
		return model.Message{}, err
	}
	idx := msgs.FindMessage(id)
	if idx < 0 {
		return model.Message{}, sharederrors.NewNotFoundError("message").WithCause(sharederrors.ErrMessageNotFound)
	}
	if msgs[idx].IsReplyLocked && msgs[idx].Reply != "" {
		return model.Message{}, sharederrors.NewConflictError("message replies are locked").WithCause(sharederrors.ErrReplyLocked)
	}

	next := append(model.Messages(nil), msgs...)
	repliedAt := g.now()
	next[idx].Reply = reply
	next[idx].RepliedAt = &repliedAt
	next[idx].IsReplyLocked = in.Lock
	if err := g.store.save(ctx, model.KeyMessages, next, model.SourceLocalRecord); err != nil {
		return model.Message{}, err
	}

	g.logger.WithContext(ctx).Info("Guestbook message answered",
		zap.String("message_id", id), zap.Bool("locked", in.Lock))
	if g.reconciler != nil {
		g.reconciler.PushMessage(ctx, next[idx])
	}
	return next[idx], nil
}

// Delete removes message id locally and from the remote. Only admins may
// delete.
func (g *Guestbook) Delete(ctx context.Context, id string) error {
	if !utils.IsAdmin(ctx) {
		return sharederrors.NewAuthorizationError("only the site owner can delete messages")
	}
	msgs, err := LoadAs[model.Messages](ctx, g.store, model.KeyMessages)
	if err != nil {
		return err
	}
	idx := msgs.FindMessage(id)
	if idx < 0 {
		return sharederrors.NewNotFoundError("message").WithCause(sharederrors.ErrMessageNotFound)
	}

	next := make(model.Messages, 0, len(msgs)-1)
	next = append(next, msgs[:idx]...)
	next = append(next, msgs[idx+1:]...)
	if err := g.store.save(ctx, model.KeyMessages, next, model.SourceLocalRecord); err != nil {
		return err
	}

	g.logger.WithContext(ctx).Info("Guestbook message deleted", zap.String("message_id", id))
	if g.reconciler != nil {
		g.reconciler.DeleteRemoteMessage(ctx, id)
	}
	return nil
}
