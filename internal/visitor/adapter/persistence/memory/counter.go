// Package memory is an in-process counter backend for tests and local
// development. Its fallback path reads and writes in two steps, like the
// remote read-modify-write path it stands in for.
package memory

import (
	"context"
	"sync"
	"time"

	sharederrors "portfolio-sync/internal/shared/errors"
	"portfolio-sync/internal/visitor/domain/model"
	"portfolio-sync/internal/visitor/domain/repository"
)

// Counter holds one counter record.
type Counter struct {
	mu        sync.Mutex
	rec       model.CounterRecord
	exists    bool
	atomicOff bool
	failAll   bool
	failRead  int
	failInc   int
	// between runs after the fallback read and before its write.
	between func()
	now     func() time.Time
	atomics int
	rmws    int
}

var (
	_ repository.CounterReader = (*Counter)(nil)
	_ repository.Prober        = (*Counter)(nil)
)

// NewCounter creates an empty counter.
func NewCounter() *Counter {
	return &Counter{
		rec: model.CounterRecord{ID: model.GlobalCounterID},
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Seed sets the stored record as if earlier increments had happened.
func (c *Counter) Seed(count int64, createdAt *time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rec.Count = count
	c.rec.CreatedAt = createdAt
	c.exists = true
}

// SetAtomicSupported toggles the atomic path.
func (c *Counter) SetAtomicSupported(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.atomicOff = !ok
}

// SetFailing makes every call fail until cleared.
func (c *Counter) SetFailing(failing bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAll = failing
}

// FailReads makes the next n reads fail.
func (c *Counter) FailReads(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failRead = n
}

// FailIncrements makes the next n increments on either path fail.
func (c *Counter) FailIncrements(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failInc = n
}

// SetBetween installs a hook that runs inside the fallback path between
// its read and its write.
func (c *Counter) SetBetween(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.between = fn
}

// Calls reports how many increments each path applied.
func (c *Counter) Calls() (atomic, fallback int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.atomics, c.rmws
}

// Stored returns the record as stored.
func (c *Counter) Stored() model.CounterRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return copyRecord(c.rec)
}

func (c *Counter) Read(ctx context.Context) (model.CounterRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return model.CounterRecord{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failAll || c.failRead > 0 {
		if c.failRead > 0 {
			c.failRead--
		}
		return model.CounterRecord{}, false, sharederrors.NewTransientRemoteError("counter read failed").WithCause(sharederrors.ErrCounterUnavailable)
	}
	return copyRecord(c.rec), c.exists, nil
}

func (c *Counter) Probe(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.atomicOff {
		return sharederrors.ErrAtomicUnsupported
	}
	return nil
}

// incFailure consumes one injected failure. Callers hold mu.
func (c *Counter) incFailure() error {
	if c.failAll || c.failInc > 0 {
		if c.failInc > 0 {
			c.failInc--
		}
		return sharederrors.NewTransientRemoteError("counter write failed").WithCause(sharederrors.ErrCounterUnavailable)
	}
	return nil
}

// Atomic returns the single-step increment path.
func (c *Counter) Atomic() repository.AtomicIncrement {
	return atomicPath{c}
}

// Fallback returns the read-then-write increment path.
func (c *Counter) Fallback() repository.AtomicIncrement {
	return fallbackPath{c}
}

type atomicPath struct{ c *Counter }

func (p atomicPath) Increment(ctx context.Context) (model.CounterRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.CounterRecord{}, err
	}
	c := p.c
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.atomicOff {
		return model.CounterRecord{}, sharederrors.ErrAtomicUnsupported
	}
	if err := c.incFailure(); err != nil {
		return model.CounterRecord{}, err
	}
	c.rec.Count++
	if c.rec.CreatedAt == nil {
		now := c.now()
		c.rec.CreatedAt = &now
	}
	c.exists = true
	c.atomics++
	return copyRecord(c.rec), nil
}

type fallbackPath struct{ c *Counter }

func (p fallbackPath) Increment(ctx context.Context) (model.CounterRecord, error) {
	c := p.c
	current, _, err := c.Read(ctx)
	if err != nil {
		return model.CounterRecord{}, err
	}

	c.mu.Lock()
	between := c.between
	c.mu.Unlock()
	if between != nil {
		between()
	}

	next := current.Count + 1
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.incFailure(); err != nil {
		return model.CounterRecord{}, err
	}
	if next > c.rec.Count {
		c.rec.Count = next
	}
	if c.rec.CreatedAt == nil {
		now := c.now()
		c.rec.CreatedAt = &now
	}
	c.exists = true
	c.rmws++
	out := copyRecord(c.rec)
	out.Count = next
	return out, nil
}

func copyRecord(r model.CounterRecord) model.CounterRecord {
	if r.CreatedAt != nil {
		t := *r.CreatedAt
		r.CreatedAt = &t
	}
	return r
}

// Gate is an in-process VisitorGate.
type Gate struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	now     func() time.Time
	failing bool
}

var _ repository.VisitorGate = (*Gate)(nil)

// NewGate creates an empty gate.
func NewGate() *Gate {
	return &Gate{seen: make(map[string]time.Time), now: time.Now}
}

// SetFailing makes FirstVisit fail until cleared.
func (g *Gate) SetFailing(failing bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failing = failing
}

func (g *Gate) FirstVisit(ctx context.Context, visitorID string, ttl time.Duration) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failing {
		return false, sharederrors.NewUnavailableError("visitor gate unavailable")
	}
	now := g.now()
	if until, ok := g.seen[visitorID]; ok && now.Before(until) {
		return false, nil
	}
	g.seen[visitorID] = now.Add(ttl)
	return true, nil
}
