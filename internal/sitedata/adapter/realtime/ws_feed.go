// Package realtime contains the websocket client that follows another
// surface's change notifications and turns them into remote change notices.
package realtime

import (
	"context"
	"net/http"
	"time"

	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/domain/repository"

	"github.com/fasthttp/websocket"
	"go.uber.org/zap"
)

// WebSocketFeed dials a peer's listen endpoint and reports every change the
// peer originated. Relayed frames (remote or backup) are ignored so two
// peers following each other do not bounce notices forever.
type WebSocketFeed struct {
	url           string
	header        http.Header
	dialer        *websocket.Dialer
	logger        logger.Logger
	retryDelay    time.Duration
	maxRetryDelay time.Duration
}

var _ repository.RemoteFeed = (*WebSocketFeed)(nil)

// NewWebSocketFeed creates a feed for url. header is sent on every dial.
func NewWebSocketFeed(url string, header http.Header, log logger.Logger) *WebSocketFeed {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &WebSocketFeed{
		url:    url,
		header: header,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger:        log.WithComponent("ws-feed"),
		retryDelay:    500 * time.Millisecond,
		maxRetryDelay: 30 * time.Second,
	}
}

// Watch blocks until ctx is done. Each reconnect reports a wildcard so the
// caller re-pulls whatever changed while the connection was down.
func (f *WebSocketFeed) Watch(ctx context.Context, fn func(key model.CollectionKey)) error {
	delay := f.retryDelay
	connectedBefore := false

	for {
		conn, _, err := f.dialer.DialContext(ctx, f.url, f.header)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			f.logger.Warn("Failed to dial change feed", zap.String("url", f.url), zap.Error(err), zap.Duration("retry_in", delay))
			if !sleep(ctx, delay) {
				return nil
			}
			delay *= 2
			if delay > f.maxRetryDelay {
				delay = f.maxRetryDelay
			}
			continue
		}

		f.logger.Info("Connected to change feed", zap.String("url", f.url))
		delay = f.retryDelay
		if connectedBefore {
			fn("")
		}
		connectedBefore = true

		err = f.read(ctx, conn, fn)
		if ctx.Err() != nil {
			return nil
		}
		f.logger.Warn("Change feed connection lost", zap.String("url", f.url), zap.Error(err))
		if !sleep(ctx, delay) {
			return nil
		}
	}
}

func (f *WebSocketFeed) read(ctx context.Context, conn *websocket.Conn, fn func(key model.CollectionKey)) error {
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			conn.Close()
		case <-done:
			conn.Close()
		}
	}()

	for {
		var frame model.ChangeFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return err
		}
		if frame.Type != model.FrameTypeChange || !frame.Originating() {
			continue
		}
		if frame.Key == nil {
			fn("")
			continue
		}
		if !frame.Key.Valid() {
			f.logger.Debug("Ignoring frame for unknown collection", zap.String("key", string(*frame.Key)))
			continue
		}
		fn(*frame.Key)
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
