// Package redisstore keeps the visitor counter and the visitor dedup gate
// in Redis.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	sharederrors "portfolio-sync/internal/shared/errors"
	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/visitor/domain/model"
	"portfolio-sync/internal/visitor/domain/repository"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// maxSet writes ARGV[1] to KEYS[1] only if it is larger than the stored
// value, and sets KEYS[2] to ARGV[2] if absent.
var maxSet = redis.NewScript(`
local current = tonumber(redis.call("GET", KEYS[1]) or "0")
local next = tonumber(ARGV[1])
if next > current then
	redis.call("SET", KEYS[1], next)
	current = next
end
redis.call("SETNX", KEYS[2], ARGV[2])
return current
`)

// CounterStore implements the counter paths on Redis.
type CounterStore struct {
	client *redis.Client
	prefix string
	logger logger.Logger
	now    func() time.Time
}

var (
	_ repository.CounterReader = (*CounterStore)(nil)
	_ repository.Prober        = (*CounterStore)(nil)
	_ repository.VisitorGate   = (*CounterStore)(nil)
)

// NewCounterStore creates a store whose keys start with prefix.
func NewCounterStore(client *redis.Client, prefix string, log logger.Logger) *CounterStore {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if prefix == "" {
		prefix = "portfolio"
	}
	return &CounterStore{
		client: client,
		prefix: prefix,
		logger: log.WithComponent("counter-redis"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *CounterStore) countKey() string {
	return fmt.Sprintf("%s:counter:%s:count", s.prefix, model.GlobalCounterID)
}

func (s *CounterStore) createdKey() string {
	return fmt.Sprintf("%s:counter:%s:created_at", s.prefix, model.GlobalCounterID)
}

func (s *CounterStore) visitorKey(id string) string {
	return fmt.Sprintf("%s:visitor:%s", s.prefix, id)
}

func classify(op string, err error) error {
	if strings.Contains(strings.ToLower(err.Error()), "unknown command") {
		return fmt.Errorf("%s: %w: %v", op, sharederrors.ErrAtomicUnsupported, err)
	}
	return sharederrors.NewTransientRemoteError("counter " + op + " failed").WithCause(err)
}

func parseCreated(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	return &t
}

func (s *CounterStore) Read(ctx context.Context) (model.CounterRecord, bool, error) {
	vals, err := s.client.MGet(ctx, s.countKey(), s.createdKey()).Result()
	if err != nil {
		return model.CounterRecord{}, false, classify("read", err)
	}
	rec := model.CounterRecord{ID: model.GlobalCounterID}
	countRaw, _ := vals[0].(string)
	if countRaw == "" {
		return rec, false, nil
	}
	rec.Count, err = strconv.ParseInt(countRaw, 10, 64)
	if err != nil {
		return model.CounterRecord{}, false, sharederrors.NewMalformedLocalError("counter value is not a number").WithCause(err)
	}
	createdRaw, _ := vals[1].(string)
	rec.CreatedAt = parseCreated(createdRaw)
	return rec, true, nil
}

func (s *CounterStore) Probe(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return classify("probe", err)
	}
	return nil
}

// Atomic returns the INCR path.
func (s *CounterStore) Atomic() repository.AtomicIncrement {
	return atomicIncrement{s}
}

// Fallback returns the GET then compare-and-set path.
func (s *CounterStore) Fallback() repository.AtomicIncrement {
	return fallbackIncrement{s}
}

type atomicIncrement struct{ s *CounterStore }

func (a atomicIncrement) Increment(ctx context.Context) (model.CounterRecord, error) {
	s := a.s
	var (
		incr    *redis.IntCmd
		created *redis.StringCmd
	)
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, s.countKey())
		pipe.SetNX(ctx, s.createdKey(), s.now().Format(time.RFC3339Nano), 0)
		created = pipe.Get(ctx, s.createdKey())
		return nil
	})
	if err != nil {
		return model.CounterRecord{}, classify("atomic increment", err)
	}
	return model.CounterRecord{
		ID:        model.GlobalCounterID,
		Count:     incr.Val(),
		CreatedAt: parseCreated(created.Val()),
	}, nil
}

type fallbackIncrement struct{ s *CounterStore }

// Increment reads the count and writes count+1 unless a larger value is
// already stored. Concurrent callers reading the same value lose increments.
func (f fallbackIncrement) Increment(ctx context.Context) (model.CounterRecord, error) {
	s := f.s
	current, _, err := s.Read(ctx)
	if err != nil {
		return model.CounterRecord{}, err
	}
	next := current.Count + 1
	now := s.now().Format(time.RFC3339Nano)

	if err := maxSet.Run(ctx, s.client, []string{s.countKey(), s.createdKey()}, next, now).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return model.CounterRecord{}, classify("fallback increment", err)
	}

	rec := model.CounterRecord{ID: model.GlobalCounterID, Count: next, CreatedAt: current.CreatedAt}
	if rec.CreatedAt == nil {
		rec.CreatedAt = parseCreated(now)
	}
	s.logger.Debug("Counter incremented by read-modify-write", zap.Int64("count", next))
	return rec, nil
}

func (s *CounterStore) FirstVisit(ctx context.Context, visitorID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.visitorKey(visitorID), s.now().Unix(), ttl).Result()
	if err != nil {
		return false, sharederrors.NewUnavailableError("visitor gate unavailable").WithCause(err)
	}
	return ok, nil
}
