package usecase

import (
	"bytes"
	"context"
	"sync"
	"time"

	sharederrors "portfolio-sync/internal/shared/errors"
	"portfolio-sync/internal/shared/eventbus"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/shared/utils"
	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/domain/repository"

	"go.uber.org/zap"
)

// CloudReconciler keeps the local collections and the optional remote store
// loosely in step. On start the remote wins; afterwards local writes are
// pushed best-effort and remote change notices trigger re-pulls. Remote
// failures never reach local readers or writers, they only degrade the
// reported status.
type CloudReconciler struct {
	store   *EntityStore
	bus     *ChangeBus
	remote  repository.RemoteStore
	feed    repository.RemoteFeed
	timeout time.Duration
	logger  logger.Logger
	now     func() time.Time

	mu        sync.RWMutex
	phase     model.ReconcilerPhase
	states    map[model.CollectionKey]model.SyncState
	lastError string
	updatedAt time.Time

	pullMu  sync.Mutex
	pulling map[model.CollectionKey]*pendingPull

	pushMu  sync.Mutex
	pushing map[model.CollectionKey]*pendingPush

	lifecycle   sync.Mutex
	cancel      context.CancelFunc
	unsubscribe func()
	inflight    sync.WaitGroup
	watching    sync.WaitGroup
}

type pendingPull struct {
	again bool
}

// pendingPush holds the newest snapshot saved while a push for the same key
// was running. Older ones are superseded, never sent.
type pendingPush struct {
	next    model.Snapshot
	waiting bool
}

// NewCloudReconciler creates a reconciler. A nil remote leaves it disabled
// for the life of the process. feed may be nil.
func NewCloudReconciler(store *EntityStore, bus *ChangeBus, remote repository.RemoteStore, feed repository.RemoteFeed, timeout time.Duration, log logger.Logger) *CloudReconciler {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	r := &CloudReconciler{
		store:   store,
		bus:     bus,
		remote:  remote,
		feed:    feed,
		timeout: timeout,
		logger:  log.WithComponent("cloud-reconciler"),
		now:     time.Now,
		states:  make(map[model.CollectionKey]model.SyncState),
		pulling: make(map[model.CollectionKey]*pendingPull),
		pushing: make(map[model.CollectionKey]*pendingPush),
	}

	initial := model.SyncLocalOnly
	r.phase = model.PhaseInitializing
	if remote == nil {
		initial = model.SyncDisabled
		r.phase = model.PhaseDisabled
	}
	for _, key := range model.AllKeys() {
		r.states[key] = initial
	}
	r.updatedAt = r.now()
	return r
}

// Enabled reports whether a remote store is configured.
func (r *CloudReconciler) Enabled() bool {
	return r.remote != nil
}

// Start pulls every collection from the remote, letting the remote win where
// it has data and seeding it from local state where it has none. It then
// follows local writes and, when a feed is set, remote change notices. It
// returns once the initial pass is done; failures only degrade the status.
func (r *CloudReconciler) Start(ctx context.Context) {
	if r.remote == nil {
		r.logger.Info("Remote store not configured, running local-only")
		return
	}

	r.lifecycle.Lock()
	if r.cancel != nil {
		r.lifecycle.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel
	r.unsubscribe = r.bus.Subscribe(r.onLocalChange(runCtx))
	r.lifecycle.Unlock()

	r.setPhase(ctx, model.PhaseInitializing)
	for _, key := range model.AllKeys() {
		r.setState(key, model.SyncSyncing)
	}

	for _, key := range model.AllKeys() {
		r.initialPull(ctx, key)
	}
	r.settlePhase(ctx)

	if r.feed != nil {
		r.watching.Add(1)
		go func() {
			defer r.watching.Done()
			if err := r.feed.Watch(runCtx, func(key model.CollectionKey) {
				r.HandleRemoteChange(runCtx, key)
			}); err != nil {
				r.logger.Warn("Remote change feed stopped", zap.Error(err))
			}
		}()
	}
}

func (r *CloudReconciler) initialPull(ctx context.Context, key model.CollectionKey) {
	log := r.logger.WithContext(ctx)

	pullCtx, cancel := context.WithTimeout(ctx, r.timeout)
	snap, found, err := r.remote.Pull(pullCtx, key)
	cancel()
	if err != nil {
		log.Warn("Initial pull failed, keeping local data", zap.String("key", string(key)), zap.Error(err))
		r.fail(key, err)
		return
	}

	if !found {
		local := r.store.Load(ctx, key)
		pushCtx, cancel := context.WithTimeout(ctx, r.timeout)
		err := r.remote.Push(pushCtx, local)
		cancel()
		if err != nil {
			log.Warn("Seeding remote from local failed", zap.String("key", string(key)), zap.Error(err))
			r.fail(key, err)
			return
		}
		log.Info("Seeded remote from local data", zap.String("key", string(key)), zap.Int("records", local.Len()))
		r.setState(key, model.SyncSynced)
		return
	}

	if err := r.adopt(ctx, key, snap); err != nil {
		log.Error("Failed to store remote snapshot locally", zap.String("key", string(key)), zap.Error(err))
		r.fail(key, err)
		return
	}
	r.setState(key, model.SyncSynced)
}

// adopt stores a pulled snapshot unless it matches what is already held.
func (r *CloudReconciler) adopt(ctx context.Context, key model.CollectionKey, snap model.Snapshot) error {
	if snap == nil || snap.Key() != key {
		return sharederrors.ErrCollectionMismatch
	}
	incoming, err := model.Encode(model.Normalize(snap))
	if err != nil {
		return err
	}
	current, err := model.Encode(r.store.Load(ctx, key))
	if err == nil && bytes.Equal(incoming, current) {
		return nil
	}
	return r.store.save(ctx, key, snap, model.SourceRemote)
}

// onLocalChange pushes locally sourced whole-collection writes. Remote,
// relayed and record-level writes are left alone.
func (r *CloudReconciler) onLocalChange(runCtx context.Context) ChangeHandler {
	return func(ctx context.Context, n model.ChangeNotification) {
		if n.Source != model.SourceLocal || n.IsWildcard() {
			return
		}
		r.schedulePush(runCtx, n.Key, n.Data)
	}
}

// schedulePush runs at most one push per key at a time. Saves made while a
// push is running collapse into one more push of the newest snapshot, so the
// remote always ends on the last local write.
func (r *CloudReconciler) schedulePush(ctx context.Context, key model.CollectionKey, snap model.Snapshot) {
	r.pushMu.Lock()
	if p, ok := r.pushing[key]; ok {
		p.next, p.waiting = snap, true
		r.pushMu.Unlock()
		return
	}
	p := &pendingPush{}
	r.pushing[key] = p
	r.inflight.Add(1)
	r.pushMu.Unlock()

	go func() {
		defer r.inflight.Done()
		for {
			if snap == nil {
				snap = r.store.Load(ctx, key)
			}
			r.push(ctx, key, snap)

			r.pushMu.Lock()
			if !p.waiting {
				delete(r.pushing, key)
				r.pushMu.Unlock()
				return
			}
			snap, p.next, p.waiting = p.next, nil, false
			r.pushMu.Unlock()
		}
	}()
}

func (r *CloudReconciler) push(ctx context.Context, key model.CollectionKey, snap model.Snapshot) {
	ctx = utils.WithOperation(utils.WithCollection(ctx, string(key)), "push")
	pushCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.remote.Push(pushCtx, snap); err != nil {
		r.logger.WithContext(ctx).Warn("Push to remote failed", zap.String("key", string(key)), zap.Error(err))
		r.fail(key, err)
		r.settlePhase(ctx)
		return
	}
	r.setState(key, model.SyncSynced)
	r.settlePhase(ctx)
}

// HandleRemoteChange re-pulls key, or every collection when key is empty.
// Calls for a key that is already being pulled are folded into one more pull.
func (r *CloudReconciler) HandleRemoteChange(ctx context.Context, key model.CollectionKey) {
	if r.remote == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if key == "" {
		for _, k := range model.AllKeys() {
			r.schedulePull(ctx, k)
		}
		return
	}
	if !key.Valid() {
		r.logger.Debug("Ignoring change notice for unknown collection", zap.String("key", string(key)))
		return
	}
	r.schedulePull(ctx, key)
}

func (r *CloudReconciler) schedulePull(ctx context.Context, key model.CollectionKey) {
	r.pullMu.Lock()
	if p, ok := r.pulling[key]; ok {
		p.again = true
		r.pullMu.Unlock()
		return
	}
	p := &pendingPull{}
	r.pulling[key] = p
	r.inflight.Add(1)
	r.pullMu.Unlock()

	go func() {
		defer r.inflight.Done()
		for {
			r.pull(ctx, key)

			r.pullMu.Lock()
			if p.again {
				p.again = false
				r.pullMu.Unlock()
				continue
			}
			delete(r.pulling, key)
			r.pullMu.Unlock()
			return
		}
	}()
}

func (r *CloudReconciler) pull(ctx context.Context, key model.CollectionKey) {
	pullCtx, cancel := context.WithTimeout(ctx, r.timeout)
	snap, found, err := r.remote.Pull(pullCtx, key)
	cancel()
	if err != nil {
		r.logger.WithContext(ctx).Warn("Re-pull failed", zap.String("key", string(key)), zap.Error(err))
		r.fail(key, err)
		r.settlePhase(ctx)
		return
	}
	if found {
		if err := r.adopt(ctx, key, snap); err != nil {
			r.logger.WithContext(ctx).Error("Failed to store remote snapshot locally", zap.String("key", string(key)), zap.Error(err))
			r.fail(key, err)
			r.settlePhase(ctx)
			return
		}
	}
	r.setState(key, model.SyncSynced)
	r.settlePhase(ctx)
}

// PushMessage upserts one guestbook message in the background.
func (r *CloudReconciler) PushMessage(ctx context.Context, msg model.Message) {
	r.recordOp(ctx, "upsert message", func(opCtx context.Context) error {
		return r.remote.UpsertMessage(opCtx, msg)
	})
}

// DeleteRemoteMessage removes one guestbook message from the remote in the
// background. Whole-collection pushes never delete messages.
func (r *CloudReconciler) DeleteRemoteMessage(ctx context.Context, id string) {
	r.recordOp(ctx, "delete message", func(opCtx context.Context) error {
		return r.remote.DeleteMessage(opCtx, id)
	})
}

func (r *CloudReconciler) recordOp(ctx context.Context, op string, fn func(context.Context) error) {
	if r.remote == nil {
		return
	}
	runCtx := context.WithoutCancel(ctx)
	r.inflight.Add(1)
	go func() {
		defer r.inflight.Done()
		opCtx, cancel := context.WithTimeout(runCtx, r.timeout)
		defer cancel()
		if err := fn(opCtx); err != nil {
			r.logger.WithContext(runCtx).Warn("Remote "+op+" failed", zap.Error(err))
			r.fail(model.KeyMessages, err)
		} else {
			r.setState(model.KeyMessages, model.SyncSynced)
		}
		r.settlePhase(runCtx)
	}()
}

// Drain waits for every background push and pull started so far. The feed
// watcher is not waited for; it runs until Stop.
func (r *CloudReconciler) Drain() {
	r.inflight.Wait()
}

// Stop detaches from the bus and the feed, waits for the watcher to exit,
// then drains.
func (r *CloudReconciler) Stop() {
	r.lifecycle.Lock()
	cancel, unsubscribe := r.cancel, r.unsubscribe
	r.cancel, r.unsubscribe = nil, nil
	r.lifecycle.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	if cancel != nil {
		cancel()
	}
	r.watching.Wait()
	r.Drain()
}

// Phase returns the process-wide state.
func (r *CloudReconciler) Phase() model.ReconcilerPhase {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.phase
}

// Status returns a copy of the current sync report.
func (r *CloudReconciler) Status() model.SyncStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	collections := make(map[model.CollectionKey]model.SyncState, len(r.states))
	for k, v := range r.states {
		collections[k] = v
	}
	return model.SyncStatus{
		Phase:       r.phase,
		Collections: collections,
		LastError:   r.lastError,
		UpdatedAt:   r.updatedAt,
	}
}

func (r *CloudReconciler) setState(key model.CollectionKey, state model.SyncState) {
	r.mu.Lock()
	r.states[key] = state
	r.updatedAt = r.now()
	r.mu.Unlock()
}

func (r *CloudReconciler) fail(key model.CollectionKey, err error) {
	r.mu.Lock()
	r.states[key] = model.SyncDegraded
	r.lastError = err.Error()
	r.updatedAt = r.now()
	r.mu.Unlock()
}

// settlePhase derives the phase from the per-collection states: degraded if
// any collection is, synced otherwise.
func (r *CloudReconciler) settlePhase(ctx context.Context) {
	r.mu.RLock()
	phase := model.PhaseSynced
	for _, state := range r.states {
		if state == model.SyncDegraded {
			phase = model.PhaseDegraded
			break
		}
	}
	r.mu.RUnlock()
	r.setPhase(ctx, phase)
}

func (r *CloudReconciler) setPhase(ctx context.Context, phase model.ReconcilerPhase) {
	r.mu.Lock()
	if r.phase == phase {
		r.mu.Unlock()
		return
	}
	prev := r.phase
	r.phase = phase
	r.updatedAt = r.now()
	r.mu.Unlock()

	r.logger.WithContext(ctx).Info("Sync phase changed",
		zap.String("from", string(prev)), zap.String("to", string(phase)))
	if r.bus != nil {
		r.bus.Events().PublishAndForget(context.WithoutCancel(ctx),
			eventbus.NewEvent(eventbus.EventTypeSyncStateChanged, "cloud-reconciler", r.Status()))
	}
}
