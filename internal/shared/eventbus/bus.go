package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"portfolio-sync/internal/shared/logger"

	"github.com/google/uuid"
)

// Event types published by the sync layer.
const (
	EventTypeCollectionChanged  = "collection.changed"
	EventTypeCounterIncremented = "counter.incremented"
	EventTypeSyncStateChanged   = "sync.state_changed"

	// AllEvents subscribes a handler to every event type.
	AllEvents = "*"
)

type Event interface {
	Type() string
	Data() interface{}
	Timestamp() time.Time
	Source() string
}

type Handler func(ctx context.Context, event Event) error

// BusConfig controls delivery. The zero value delivers synchronously, once.
type BusConfig struct {
	AsyncProcessing bool
	MaxRetries      int
	RetryDelay      time.Duration
}

type subscription struct {
	id      string
	handler Handler
}

// EventBus is the in-process fan-out behind change notifications, sync
// state updates and counter events. Handlers registered under AllEvents run
// after the type-specific ones.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string][]subscription
	logger   logger.Logger
	config   BusConfig
}

// NewEventBus retries a failing handler three times.
func NewEventBus(log logger.Logger) *EventBus {
	return NewEventBusWithConfig(log, BusConfig{MaxRetries: 3, RetryDelay: 100 * time.Millisecond})
}

func NewEventBusWithConfig(log logger.Logger, config BusConfig) *EventBus {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	return &EventBus{
		handlers: map[string][]subscription{},
		logger:   log.WithComponent("eventbus"),
		config:   config,
	}
}

// Subscribe registers handler and returns the func that removes it again.
// The returned func is idempotent.
func (eb *EventBus) Subscribe(eventType string, handler Handler) func() {
	sub := subscription{id: uuid.NewString(), handler: handler}

	eb.mu.Lock()
	eb.handlers[eventType] = append(eb.handlers[eventType], sub)
	eb.mu.Unlock()
	eb.logger.Debugf("handler %s subscribed to %s", sub.id, eventType)

	var once sync.Once
	return func() { once.Do(func() { eb.remove(eventType, sub.id) }) }
}

func (eb *EventBus) remove(eventType, id string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	kept := eb.handlers[eventType][:0:0]
	for _, sub := range eb.handlers[eventType] {
		if sub.id != id {
			kept = append(kept, sub)
		}
	}
	if len(kept) == 0 {
		delete(eb.handlers, eventType)
	} else {
		eb.handlers[eventType] = kept
	}
	eb.logger.Debugf("handler %s unsubscribed from %s", id, eventType)
}

// SubscriberCount counts the handlers registered for exactly eventType.
func (eb *EventBus) SubscriberCount(eventType string) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.handlers[eventType])
}

// Publish delivers event to every matching handler. A failing or panicking
// handler does not stop the rest; all failures come back joined.
func (eb *EventBus) Publish(ctx context.Context, event Event) error {
	subs := eb.matching(event.Type())
	if len(subs) == 0 {
		return nil
	}

	if !eb.config.AsyncProcessing {
		var errs []error
		for _, sub := range subs {
			errs = append(errs, eb.deliver(ctx, event, sub))
		}
		return errors.Join(errs...)
	}

	errs := make([]error, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub subscription) {
			defer wg.Done()
			errs[i] = eb.deliver(ctx, event, sub)
		}(i, sub)
	}
	wg.Wait()
	return errors.Join(errs...)
}

// PublishAndForget publishes on its own goroutine and only logs failures.
func (eb *EventBus) PublishAndForget(ctx context.Context, event Event) {
	go func() {
		if err := eb.Publish(ctx, event); err != nil {
			eb.logger.Errorf("publish %s: %v", event.Type(), err)
		}
	}()
}

func (eb *EventBus) matching(eventType string) []subscription {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	subs := append([]subscription(nil), eb.handlers[eventType]...)
	if eventType != AllEvents {
		subs = append(subs, eb.handlers[AllEvents]...)
	}
	return subs
}

func (eb *EventBus) deliver(ctx context.Context, event Event, sub subscription) error {
	var err error
	for attempt := 0; attempt <= eb.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(eb.config.RetryDelay):
			}
		}
		if err = call(ctx, event, sub.handler); err == nil {
			return nil
		}
		eb.logger.Warnf("handler %s on %s failed (attempt %d/%d): %v",
			sub.id, event.Type(), attempt+1, eb.config.MaxRetries+1, err)
	}
	return fmt.Errorf("handler %s: %w", sub.id, err)
}

func call(ctx context.Context, event Event, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, event)
}

type basicEvent struct {
	eventType string
	data      interface{}
	at        time.Time
	source    string
}

// NewEvent stamps data with the current time.
func NewEvent(eventType, source string, data interface{}) Event {
	return &basicEvent{eventType: eventType, data: data, at: time.Now(), source: source}
}

func (e *basicEvent) Type() string         { return e.eventType }
func (e *basicEvent) Data() interface{}    { return e.data }
func (e *basicEvent) Timestamp() time.Time { return e.at }
func (e *basicEvent) Source() string       { return e.source }
