// Package redisstore implements the local medium on Redis: one string key
// per collection and a stream carrying change signals between surfaces.
package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/domain/repository"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Options controls key layout and stream behaviour.
type Options struct {
	KeyPrefix       string
	SignalStream    string
	StreamMaxLength int64
	// Block is how long one XREAD waits before looping.
	Block time.Duration
	// RetryDelay is the pause after a failed read.
	RetryDelay time.Duration
}

// Medium implements repository.Medium using Redis.
type Medium struct {
	client *redis.Client
	opts   Options
	origin string
	logger logger.Logger
}

var _ repository.Medium = (*Medium)(nil)

// NewMedium creates a Redis-backed medium with a fresh origin.
func NewMedium(client *redis.Client, opts Options, log logger.Logger) *Medium {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if opts.KeyPrefix == "" {
		opts.KeyPrefix = "portfolio"
	}
	if opts.SignalStream == "" {
		opts.SignalStream = "signals"
	}
	if opts.Block <= 0 {
		opts.Block = 2 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Medium{
		client: client,
		opts:   opts,
		origin: uuid.NewString(),
		logger: log.WithComponent("redis-medium"),
	}
}

func (m *Medium) valueKey(key model.CollectionKey) string {
	return m.opts.KeyPrefix + ":" + key.StorageKey()
}

func (m *Medium) streamKey() string {
	return m.opts.KeyPrefix + ":" + m.opts.SignalStream
}

func (m *Medium) Get(ctx context.Context, key model.CollectionKey) ([]byte, bool, error) {
	val, err := m.client.Get(ctx, m.valueKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		m.logger.Error("Failed to read collection from Redis", zap.String("key", key.String()), zap.Error(err))
		return nil, false, err
	}
	return val, true, nil
}

func (m *Medium) Set(ctx context.Context, key model.CollectionKey, value []byte) error {
	if err := m.client.Set(ctx, m.valueKey(key), value, 0).Err(); err != nil {
		m.logger.Error("Failed to write collection to Redis", zap.String("key", key.String()), zap.Error(err))
		return err
	}
	return nil
}

func (m *Medium) Delete(ctx context.Context, key model.CollectionKey) error {
	return m.client.Del(ctx, m.valueKey(key)).Err()
}

// Signal appends {key, origin, at} to the signal stream, trimming it to
// roughly StreamMaxLength entries.
func (m *Medium) Signal(ctx context.Context, key model.CollectionKey) error {
	args := &redis.XAddArgs{
		Stream: m.streamKey(),
		Values: map[string]interface{}{
			"key":    string(key),
			"origin": m.origin,
			"at":     time.Now().UnixNano(),
		},
	}
	if m.opts.StreamMaxLength > 0 {
		args.MaxLen = m.opts.StreamMaxLength
		args.Approx = true
	}
	if _, err := m.client.XAdd(ctx, args).Result(); err != nil {
		m.logger.Error("Failed to append change signal", zap.String("stream", args.Stream), zap.String("key", key.String()), zap.Error(err))
		return err
	}
	return nil
}

// Listen tails the signal stream from its current end.
func (m *Medium) Listen(ctx context.Context, fn func(repository.Signal)) error {
	stream := m.streamKey()
	lastID, err := m.tailID(ctx, stream)
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	for {
		if ctx.Err() != nil {
			return nil
		}

		res, err := m.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{stream, lastID},
			Count:   100,
			Block:   m.opts.Block,
		}).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			m.logger.Warn("Failed to read change signals, retrying", zap.String("stream", stream), zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(m.opts.RetryDelay):
			}
			continue
		}

		for _, streamRes := range res {
			for _, msg := range streamRes.Messages {
				lastID = msg.ID
				sig := parseSignal(msg)
				if sig.Origin == m.origin {
					continue
				}
				fn(sig)
			}
		}
	}
}

// tailID returns the id of the newest entry, or "0-0" for an empty stream.
func (m *Medium) tailID(ctx context.Context, stream string) (string, error) {
	msgs, err := m.client.XRevRangeN(ctx, stream, "+", "-", 1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	if len(msgs) == 0 {
		return "0-0", nil
	}
	return msgs[0].ID, nil
}

func parseSignal(msg redis.XMessage) repository.Signal {
	sig := repository.Signal{}
	if key, ok := msg.Values["key"].(string); ok {
		sig.Key = model.CollectionKey(key)
	}
	if origin, ok := msg.Values["origin"].(string); ok {
		sig.Origin = origin
	}
	if atStr, ok := msg.Values["at"].(string); ok {
		if at, err := strconv.ParseInt(atStr, 10, 64); err == nil {
			sig.At = time.Unix(0, at)
		}
	}
	return sig
}

func (m *Medium) Origin() string {
	return m.origin
}

// Close is a no-op; the client is owned by whoever created it.
func (m *Medium) Close() error {
	return nil
}
