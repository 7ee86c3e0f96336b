// Package usecase implements the visitor counter service.
package usecase

import (
	"context"
	"errors"
	"sync"
	"time"

	sharederrors "portfolio-sync/internal/shared/errors"
	"portfolio-sync/internal/shared/eventbus"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/shared/retry"
	"portfolio-sync/internal/visitor/domain/model"
	"portfolio-sync/internal/visitor/domain/repository"

	"go.uber.org/zap"
)

// Backends are the counter paths a store offers. Atomic, Prober and Gate
// may be nil.
type Backends struct {
	Reader   repository.CounterReader
	Atomic   repository.AtomicIncrement
	Fallback repository.AtomicIncrement
	Prober   repository.Prober
	Gate     repository.VisitorGate
}

// Options tune retries, probing and dedup.
type Options struct {
	Retry         retry.Policy
	ProbeInterval time.Duration
	DedupTTL      time.Duration
}

// CounterService serves the visitor count. It prefers the atomic increment,
// falls back to read-modify-write, and when both fail returns the highest
// value it has seen, so callers never observe the count going down.
type CounterService struct {
	reader   repository.CounterReader
	atomic   repository.AtomicIncrement
	fallback repository.AtomicIncrement
	prober   repository.Prober
	gate     repository.VisitorGate
	events   *eventbus.EventBus
	opts     Options
	logger   logger.Logger
	now      func() time.Time

	mu             sync.Mutex
	last           model.CounterRecord
	atomicOffUntil time.Time
}

// NewCounterService creates the service. events may be nil.
func NewCounterService(b Backends, opts Options, events *eventbus.EventBus, log logger.Logger) *CounterService {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if opts.Retry.MaxAttempts < 1 {
		opts.Retry = retry.DefaultPolicy()
	}
	if opts.ProbeInterval <= 0 {
		opts.ProbeInterval = time.Minute
	}
	return &CounterService{
		reader:   b.Reader,
		atomic:   b.Atomic,
		fallback: b.Fallback,
		prober:   b.Prober,
		gate:     b.Gate,
		events:   events,
		opts:     opts,
		logger:   log.WithComponent("visitor-counter"),
		now:      time.Now,
		last:     model.CounterRecord{ID: model.GlobalCounterID},
	}
}

// Probe checks the atomic path now and turns it off until the next probe
// when the backend does not support it.
func (s *CounterService) Probe(ctx context.Context) {
	if s.atomic == nil || s.prober == nil {
		return
	}
	if err := s.probe(ctx); err != nil {
		s.disableAtomic(ctx, err)
		return
	}
	s.enableAtomic(ctx)
}

// AtomicAvailable reports whether the next increment will try the atomic path
// without probing first.
func (s *CounterService) AtomicAvailable() bool {
	if s.atomic == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.atomicOffUntil.IsZero()
}

// LastKnown returns the highest count this process has seen.
func (s *CounterService) LastKnown() model.CounterRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRecord(s.last)
}

// Read returns the current count, or the last known one if the backend
// cannot be reached.
func (s *CounterService) Read(ctx context.Context) model.CounterResult {
	var rec model.CounterRecord
	err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		r, _, err := s.reader.Read(ctx)
		if err != nil {
			return err
		}
		rec = r
		return nil
	}, s.onRetry(ctx, "read"))
	if err != nil {
		s.logger.WithContext(ctx).Warn("Counter read failed, serving last known value", zap.Error(err))
		return s.cached()
	}
	return s.result(s.observe(rec), model.PathRead)
}

// IncrementOnce adds one visit and returns the new count. It never fails:
// when both paths give up the last known count comes back with Success
// false.
func (s *CounterService) IncrementOnce(ctx context.Context) model.CounterResult {
	log := s.logger.WithContext(ctx)

	if s.useAtomic(ctx) {
		rec, err := s.increment(ctx, "atomic", s.atomic)
		if err == nil {
			return s.incremented(ctx, rec, model.PathAtomic)
		}
		if errors.Is(err, sharederrors.ErrAtomicUnsupported) {
			s.disableAtomic(ctx, err)
		} else {
			log.Warn("Atomic increment failed, falling back to read-modify-write", zap.Error(err))
		}
	}

	rec, err := s.increment(ctx, "fallback", s.fallback)
	if err == nil {
		return s.incremented(ctx, rec, model.PathFallback)
	}
	log.Error("Counter increment failed, serving last known value", zap.Error(err))
	return s.cached()
}

// CountVisit increments once per visitor per dedup window. A repeat visit
// only reads. If the gate cannot answer the visit is counted.
func (s *CounterService) CountVisit(ctx context.Context, visitorID string) model.CounterResult {
	if s.gate != nil && visitorID != "" && s.opts.DedupTTL > 0 {
		gctx, cancel := s.bounded(ctx)
		first, err := s.gate.FirstVisit(gctx, visitorID, s.opts.DedupTTL)
		cancel()
		switch {
		case err != nil:
			s.logger.WithContext(ctx).Warn("Visitor gate failed, counting the visit", zap.Error(err))
		case !first:
			res := s.Read(ctx)
			if res.Success {
				res.Path = model.PathDeduped
			}
			return res
		}
	}
	return s.IncrementOnce(ctx)
}

func (s *CounterService) increment(ctx context.Context, path string, inc repository.AtomicIncrement) (model.CounterRecord, error) {
	var rec model.CounterRecord
	err := retry.Do(ctx, s.opts.Retry, func(ctx context.Context) error {
		r, err := inc.Increment(ctx)
		if err != nil {
			if errors.Is(err, sharederrors.ErrAtomicUnsupported) {
				return retry.Permanent(err)
			}
			return err
		}
		rec = r
		return nil
	}, s.onRetry(ctx, path))
	return rec, err
}

func (s *CounterService) incremented(ctx context.Context, rec model.CounterRecord, path model.IncrementPath) model.CounterResult {
	res := s.result(s.observe(rec), path)
	s.logger.WithContext(ctx).Debug("Visitor counted",
		zap.Int64("count", res.Count), zap.String("path", string(path)))
	if s.events != nil {
		s.events.PublishAndForget(context.WithoutCancel(ctx),
			eventbus.NewEvent(eventbus.EventTypeCounterIncremented, string(path), res))
	}
	return res
}

func (s *CounterService) onRetry(ctx context.Context, op string) func(int, error) {
	return func(attempt int, err error) {
		s.logger.WithContext(ctx).Debug("Retrying counter call",
			zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
	}
}

// observe folds rec into the cache and returns the cached record.
func (s *CounterService) observe(rec model.CounterRecord) model.CounterRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Count > s.last.Count {
		s.last.Count = rec.Count
	}
	if s.last.CreatedAt == nil && rec.CreatedAt != nil {
		t := *rec.CreatedAt
		s.last.CreatedAt = &t
	}
	return copyRecord(s.last)
}

func (s *CounterService) cached() model.CounterResult {
	res := s.result(s.LastKnown(), model.PathCached)
	res.Success = false
	return res
}

func (s *CounterService) result(rec model.CounterRecord, path model.IncrementPath) model.CounterResult {
	return model.CounterResult{Success: true, Count: rec.Count, StartDate: rec.CreatedAt, Path: path}
}

func (s *CounterService) useAtomic(ctx context.Context) bool {
	if s.atomic == nil {
		return false
	}
	s.mu.Lock()
	until := s.atomicOffUntil
	s.mu.Unlock()
	if until.IsZero() {
		return true
	}
	if s.now().Before(until) {
		return false
	}
	if s.prober != nil {
		if err := s.probe(ctx); err != nil {
			s.disableAtomic(ctx, err)
			return false
		}
	}
	s.enableAtomic(ctx)
	return true
}

func (s *CounterService) probe(ctx context.Context) error {
	pctx, cancel := s.bounded(ctx)
	defer cancel()
	return s.prober.Probe(pctx)
}

func (s *CounterService) disableAtomic(ctx context.Context, err error) {
	s.mu.Lock()
	s.atomicOffUntil = s.now().Add(s.opts.ProbeInterval)
	s.mu.Unlock()
	s.logger.WithContext(ctx).Warn("Atomic counter path unavailable, using read-modify-write",
		zap.Duration("reprobe_in", s.opts.ProbeInterval), zap.Error(err))
}

func (s *CounterService) enableAtomic(ctx context.Context) {
	s.mu.Lock()
	wasOff := !s.atomicOffUntil.IsZero()
	s.atomicOffUntil = time.Time{}
	s.mu.Unlock()
	if wasOff {
		s.logger.WithContext(ctx).Info("Atomic counter path available again")
	}
}

func (s *CounterService) bounded(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.Retry.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.opts.Retry.Timeout)
}

func copyRecord(r model.CounterRecord) model.CounterRecord {
	if r.CreatedAt != nil {
		t := *r.CreatedAt
		r.CreatedAt = &t
	}
	return r
}
