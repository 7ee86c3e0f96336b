package usecase_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"portfolio-sync/internal/shared/eventbus"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/sitedata/adapter/persistence/memory"
	"portfolio-sync/internal/sitedata/domain/model"
	. "portfolio-sync/internal/sitedata/usecase"

	"github.com/stretchr/testify/require"
)

// surface is one process attached to a shared medium.
type surface struct {
	medium *memory.Medium
	bus    *ChangeBus
	store  *EntityStore
}

func newSurface(t *testing.T, hub *memory.Hub, backup time.Duration) *surface {
	t.Helper()
	log := logger.NewNoopLogger()
	medium := hub.Attach()
	bus := NewChangeBus(eventbus.NewEventBusWithConfig(log, eventbus.BusConfig{}), medium, backup, log)
	store := NewEntityStore(medium, bus, log)
	before := hub.Listeners()
	bus.Start(context.Background())
	require.Eventually(t, func() bool { return hub.Listeners() > before }, time.Second, 5*time.Millisecond)
	t.Cleanup(func() {
		bus.Stop()
		_ = medium.Close()
	})
	return &surface{medium: medium, bus: bus, store: store}
}

// recorder collects notifications delivered to a subscriber.
type recorder struct {
	mu   sync.Mutex
	seen []model.ChangeNotification
	ch   chan model.ChangeNotification
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan model.ChangeNotification, 64)}
}

func (r *recorder) handle(_ context.Context, n model.ChangeNotification) {
	r.mu.Lock()
	r.seen = append(r.seen, n)
	r.mu.Unlock()
	select {
	case r.ch <- n:
	default:
	}
}

func (r *recorder) all() []model.ChangeNotification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.ChangeNotification(nil), r.seen...)
}

// await returns the first notification matching pred, failing after timeout.
func (r *recorder) await(t *testing.T, timeout time.Duration, pred func(model.ChangeNotification) bool) model.ChangeNotification {
	t.Helper()
	deadline := time.After(timeout)
	for {
		select {
		case n := <-r.ch:
			if pred(n) {
				return n
			}
		case <-deadline:
			t.Fatalf("no matching notification within %s; saw %d", timeout, len(r.all()))
			return model.ChangeNotification{}
		}
	}
}

func fiveProjects() model.Projects {
	out := make(model.Projects, 0, 6)
	for i, title := range []string{"Alpha", "Beta", "Gamma", "Delta", "Epsilon"} {
		out = append(out, model.Project{ID: model.Slugify(title), Title: title, OrderIndex: i, Tags: []string{}})
	}
	return out
}
