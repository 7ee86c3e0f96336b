package usecase

import (
	"context"
	"sync"
	"time"

	"portfolio-sync/internal/shared/eventbus"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/shared/utils"
	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/domain/repository"

	"go.uber.org/zap"
)

// ChangeHandler receives change notifications. It runs on the publisher's
// goroutine and must not block.
type ChangeHandler func(ctx context.Context, n model.ChangeNotification)

// ChangeBus fans change notifications out to in-process subscribers and to
// the other processes sharing the local medium. A backup tick periodically
// tells subscribers to reload everything in case a signal was lost.
type ChangeBus struct {
	events         *eventbus.EventBus
	medium         repository.Medium
	logger         logger.Logger
	backupInterval time.Duration
	listenRetry    time.Duration
	now            func() time.Time

	mu      sync.Mutex
	cancel  context.CancelFunc
	running sync.WaitGroup
}

// NewChangeBus creates a bus over events and medium. A zero backupInterval
// disables the backup tick.
func NewChangeBus(events *eventbus.EventBus, medium repository.Medium, backupInterval time.Duration, log logger.Logger) *ChangeBus {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if events == nil {
		events = eventbus.NewEventBusWithConfig(log, eventbus.BusConfig{})
	}
	return &ChangeBus{
		events:         events,
		medium:         medium,
		logger:         log.WithComponent("change-bus"),
		backupInterval: backupInterval,
		listenRetry:    time.Second,
		now:            time.Now,
	}
}

// Events exposes the underlying in-process bus for non-collection events.
func (b *ChangeBus) Events() *eventbus.EventBus {
	return b.events
}

// Origin identifies this process in cross-process signals.
func (b *ChangeBus) Origin() string {
	return b.medium.Origin()
}

// Publish announces a local write of key. data is advisory.
func (b *ChangeBus) Publish(ctx context.Context, key model.CollectionKey, data model.Snapshot) {
	b.publish(ctx, model.ChangeNotification{Key: key, Data: data, Source: model.SourceLocal})
}

func (b *ChangeBus) publish(ctx context.Context, n model.ChangeNotification) {
	if n.Origin == "" {
		n.Origin = b.medium.Origin()
	}
	if n.At.IsZero() {
		n.At = b.now()
	}
	ctx = utils.WithOriginID(ctx, n.Origin)
	b.dispatch(ctx, n)

	if !n.Source.Signals() {
		return
	}
	if err := b.medium.Signal(ctx, n.Key); err != nil {
		b.logger.WithContext(ctx).Warn("Failed to signal other processes",
			zap.String("key", string(n.Key)), zap.Error(err))
	}
}

// dispatch delivers n to in-process subscribers only.
func (b *ChangeBus) dispatch(ctx context.Context, n model.ChangeNotification) {
	event := eventbus.NewEvent(eventbus.EventTypeCollectionChanged, string(n.Source), n)
	if err := b.events.Publish(ctx, event); err != nil {
		b.logger.WithContext(ctx).Warn("Change subscriber failed",
			zap.String("key", string(n.Key)), zap.String("source", string(n.Source)), zap.Error(err))
	}
}

// Subscribe registers handler for every collection change. The returned func
// removes it.
func (b *ChangeBus) Subscribe(handler ChangeHandler) func() {
	return b.events.Subscribe(eventbus.EventTypeCollectionChanged, func(ctx context.Context, event eventbus.Event) error {
		n, ok := event.Data().(model.ChangeNotification)
		if !ok {
			return nil
		}
		handler(ctx, n)
		return nil
	})
}

// Start begins relaying signals from other processes and, when configured,
// the backup tick. It returns immediately.
func (b *ChangeBus) Start(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.running.Add(1)
	go func() {
		defer b.running.Done()
		b.listen(runCtx)
	}()

	if b.backupInterval > 0 {
		b.running.Add(1)
		go func() {
			defer b.running.Done()
			b.backup(runCtx)
		}()
	}
	b.logger.Info("Change bus started",
		zap.String("origin", b.medium.Origin()), zap.Duration("backup_interval", b.backupInterval))
}

// Stop ends the relay goroutines and waits for them.
func (b *ChangeBus) Stop() {
	b.mu.Lock()
	cancel := b.cancel
	b.cancel = nil
	b.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	b.running.Wait()
}

func (b *ChangeBus) listen(ctx context.Context) {
	for {
		err := b.medium.Listen(ctx, func(sig repository.Signal) {
			if sig.Key != "" && !sig.Key.Valid() {
				b.logger.Debug("Ignoring signal for unknown collection", zap.String("key", string(sig.Key)))
				return
			}
			at := sig.At
			if at.IsZero() {
				at = b.now()
			}
			b.dispatch(utils.WithOriginID(ctx, sig.Origin), model.ChangeNotification{
				Key:    sig.Key,
				Origin: sig.Origin,
				Source: model.SourceCrossProcess,
				At:     at,
			})
		})
		if ctx.Err() != nil {
			return
		}
		b.logger.Warn("Signal listener stopped", zap.Error(err), zap.Duration("retry_in", b.listenRetry))
		select {
		case <-ctx.Done():
			return
		case <-time.After(b.listenRetry):
		}
	}
}

func (b *ChangeBus) backup(ctx context.Context) {
	ticker := time.NewTicker(b.backupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			b.dispatch(ctx, model.ChangeNotification{
				Origin: b.medium.Origin(),
				Source: model.SourceBackup,
				At:     b.now(),
			})
		}
	}
}
