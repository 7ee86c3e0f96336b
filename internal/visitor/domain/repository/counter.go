package repository

import (
	"context"
	"time"

	"portfolio-sync/internal/visitor/domain/model"
)

// AtomicIncrement adds one to the global counter and returns the record
// after the write. Implementations differ in how strongly they guarantee
// that concurrent callers each get their own increment.
type AtomicIncrement interface {
	Increment(ctx context.Context) (model.CounterRecord, error)
}

// CounterReader fetches the global counter. found is false when no
// increment has ever been recorded.
type CounterReader interface {
	Read(ctx context.Context) (rec model.CounterRecord, found bool, err error)
}

// Prober reports whether a backend currently supports its atomic path.
// It returns an error wrapping ErrAtomicUnsupported when it does not.
type Prober interface {
	Probe(ctx context.Context) error
}

// VisitorGate remembers visitors for a while so each is counted once.
type VisitorGate interface {
	// FirstVisit records visitorID and reports whether it was unseen within ttl.
	FirstVisit(ctx context.Context, visitorID string, ttl time.Duration) (bool, error)
}
