// Package memory holds in-process implementations of the sitedata ports. The
// medium Hub stands in for a shared local store: every handle attached to
// the same Hub behaves like a separate process on one host.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/domain/repository"

	"github.com/google/uuid"
)

const listenerBuffer = 64

var ErrClosed = errors.New("memory medium closed")

// Hub is the shared state behind a set of Medium handles.
type Hub struct {
	mu        sync.RWMutex
	values    map[model.CollectionKey][]byte
	listeners map[string]*listener
}

type listener struct {
	origin string
	ch     chan repository.Signal
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{
		values:    make(map[model.CollectionKey][]byte),
		listeners: make(map[string]*listener),
	}
}

// Attach returns a new handle with its own origin.
func (h *Hub) Attach() *Medium {
	return &Medium{hub: h, origin: uuid.NewString()}
}

// Corrupt stores raw bytes directly, bypassing encoding. Tests use it to
// plant malformed values.
func (h *Hub) Corrupt(key model.CollectionKey, raw []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values[key] = append([]byte(nil), raw...)
}

// Listeners reports how many Listen calls are active.
func (h *Hub) Listeners() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}

func (h *Hub) broadcast(sig repository.Signal) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, l := range h.listeners {
		if l.origin == sig.Origin {
			continue
		}
		select {
		case l.ch <- sig:
		default:
			// Listener is behind; the backup reload covers the dropped signal.
		}
	}
}

// Medium is one process's handle on a Hub.
type Medium struct {
	hub    *Hub
	origin string

	mu     sync.Mutex
	closed bool
}

var _ repository.Medium = (*Medium)(nil)

func (m *Medium) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func (m *Medium) Get(ctx context.Context, key model.CollectionKey) ([]byte, bool, error) {
	if m.isClosed() {
		return nil, false, ErrClosed
	}
	m.hub.mu.RLock()
	defer m.hub.mu.RUnlock()
	v, ok := m.hub.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *Medium) Set(ctx context.Context, key model.CollectionKey, value []byte) error {
	if m.isClosed() {
		return ErrClosed
	}
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	m.hub.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *Medium) Delete(ctx context.Context, key model.CollectionKey) error {
	if m.isClosed() {
		return ErrClosed
	}
	m.hub.mu.Lock()
	defer m.hub.mu.Unlock()
	delete(m.hub.values, key)
	return nil
}

func (m *Medium) Signal(ctx context.Context, key model.CollectionKey) error {
	if m.isClosed() {
		return ErrClosed
	}
	m.hub.broadcast(repository.Signal{Key: key, Origin: m.origin, At: time.Now()})
	return nil
}

func (m *Medium) Listen(ctx context.Context, fn func(repository.Signal)) error {
	if m.isClosed() {
		return ErrClosed
	}
	id := uuid.NewString()
	l := &listener{origin: m.origin, ch: make(chan repository.Signal, listenerBuffer)}

	m.hub.mu.Lock()
	m.hub.listeners[id] = l
	m.hub.mu.Unlock()

	defer func() {
		m.hub.mu.Lock()
		delete(m.hub.listeners, id)
		m.hub.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case sig := <-l.ch:
			fn(sig)
		}
	}
}

func (m *Medium) Origin() string {
	return m.origin
}

func (m *Medium) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
