package http

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"portfolio-sync/internal/shared/eventbus"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/usecase"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
)

// ChangeStreamHandler pushes change notifications to browser tabs. Every
// connection gets its own bus subscription feeding a bounded queue; when a
// slow client overflows it, the dropped frames are replaced by one reload
// everything frame.
type ChangeStreamHandler struct {
	bus    *usecase.ChangeBus
	buffer int
	logger logger.Logger
	active atomic.Int64
}

// NewChangeStreamHandler creates the websocket handler. buffer bounds the
// frames queued per connection.
func NewChangeStreamHandler(bus *usecase.ChangeBus, buffer int, log logger.Logger) *ChangeStreamHandler {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if buffer <= 0 {
		buffer = 32
	}
	return &ChangeStreamHandler{bus: bus, buffer: buffer, logger: log.WithComponent("ws-listen")}
}

// RegisterRoutes mounts the websocket endpoint at path.
func (h *ChangeStreamHandler) RegisterRoutes(router fiber.Router, path string) {
	router.Use(path, func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get(path, websocket.New(h.handleConnection))
}

// Connections reports the number of open websocket connections.
func (h *ChangeStreamHandler) Connections() int64 {
	return h.active.Load()
}

func (h *ChangeStreamHandler) handleConnection(conn *websocket.Conn) {
	subscriberID := uuid.NewString()
	log := h.logger.WithFields(map[string]interface{}{"subscriber_id": subscriberID})
	h.active.Add(1)
	defer h.active.Add(-1)
	log.Info("Listener connected")

	send := make(chan model.ChangeFrame, h.buffer)
	var lagged atomic.Bool
	enqueue := func(frame model.ChangeFrame) {
		select {
		case send <- frame:
		default:
			lagged.Store(true)
		}
	}

	unsubscribe := h.bus.Subscribe(func(_ context.Context, n model.ChangeNotification) {
		frame, err := model.NewChangeFrame(n, n.Key != model.KeyMessages)
		if err != nil {
			log.Warn("Failed to encode change frame", zap.String("key", string(n.Key)), zap.Error(err))
			frame, _ = model.NewChangeFrame(model.ChangeNotification{Key: n.Key, Source: n.Source, At: n.At}, false)
		}
		enqueue(frame)
	})
	defer unsubscribe()

	unsubscribeSync := h.bus.Events().Subscribe(eventbus.EventTypeSyncStateChanged, func(_ context.Context, e eventbus.Event) error {
		raw, err := json.Marshal(e.Data())
		if err != nil {
			return err
		}
		enqueue(model.ChangeFrame{Type: model.FrameTypeSync, Data: raw, At: e.Timestamp()})
		return nil
	})
	defer unsubscribeSync()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn("Listener read failed", zap.Error(err))
				}
				return
			}
		}
	}()

	write := func(frame model.ChangeFrame) bool {
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(frame); err != nil {
			log.Debug("Listener write failed", zap.Error(err))
			return false
		}
		return true
	}

	if !write(model.ChangeFrame{Type: model.FrameTypeReady, At: time.Now()}) {
		return
	}

	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-closed:
			log.Info("Listener disconnected")
			return
		case frame := <-send:
			if !write(frame) {
				return
			}
			if lagged.Swap(false) {
				if !write(model.ChangeFrame{Type: model.FrameTypeChange, At: time.Now()}) {
					return
				}
			}
		case <-ping.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
