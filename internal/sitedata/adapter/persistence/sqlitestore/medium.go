// Package sqlitestore implements the local medium on a SQLite file. Every
// process that opens the same file shares the collections; change signals
// are rows in a log table that listeners poll.
package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"portfolio-sync/internal/shared/logger"
	"portfolio-sync/internal/sitedata/domain/model"
	"portfolio-sync/internal/sitedata/domain/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Options controls polling and signal retention.
type Options struct {
	PollInterval    time.Duration
	SignalRetention time.Duration
}

// Medium implements repository.Medium using SQLite.
type Medium struct {
	db     *sql.DB
	opts   Options
	origin string
	logger logger.Logger
}

var _ repository.Medium = (*Medium)(nil)

// Open opens or creates the database at path.
func Open(path string, opts Options, log logger.Logger) (*Medium, error) {
	if log == nil {
		log = logger.NewNoopLogger()
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 500 * time.Millisecond
	}
	if opts.SignalRetention <= 0 {
		opts.SignalRetention = 10 * time.Minute
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	m := &Medium{
		db:     db,
		opts:   opts,
		origin: uuid.NewString(),
		logger: log.WithComponent("sqlite-medium"),
	}
	if err := m.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return m, nil
}

func (m *Medium) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entries (
		key        TEXT PRIMARY KEY,
		value      BLOB NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS signals (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		key        TEXT,
		origin     TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_signals_created ON signals(created_at);
	`
	_, err := m.db.Exec(schema)
	return err
}

func (m *Medium) Get(ctx context.Context, key model.CollectionKey) ([]byte, bool, error) {
	var value []byte
	err := m.db.QueryRowContext(ctx, `SELECT value FROM entries WHERE key = ?`, key.StorageKey()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %s: %w", key, err)
	}
	return value, true, nil
}

func (m *Medium) Set(ctx context.Context, key model.CollectionKey, value []byte) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO entries (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key.StorageKey(), value, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (m *Medium) Delete(ctx context.Context, key model.CollectionKey) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM entries WHERE key = ?`, key.StorageKey()); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// Signal appends a row to the signal log and prunes rows past retention.
func (m *Medium) Signal(ctx context.Context, key model.CollectionKey) error {
	var k sql.NullString
	if key != "" {
		k = sql.NullString{String: string(key), Valid: true}
	}
	now := time.Now()
	if _, err := m.db.ExecContext(ctx,
		`INSERT INTO signals (key, origin, created_at) VALUES (?, ?, ?)`,
		k, m.origin, now.UnixNano()); err != nil {
		return fmt.Errorf("signal %s: %w", key, err)
	}
	cutoff := now.Add(-m.opts.SignalRetention).UnixNano()
	if _, err := m.db.ExecContext(ctx, `DELETE FROM signals WHERE created_at < ?`, cutoff); err != nil {
		m.logger.Warn("Failed to prune signal log", zap.Error(err))
	}
	return nil
}

// Listen polls the signal log for rows written after the call started.
func (m *Medium) Listen(ctx context.Context, fn func(repository.Signal)) error {
	var last int64
	if err := m.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM signals`).Scan(&last); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("read signal tail: %w", err)
	}

	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		next, err := m.poll(ctx, last, fn)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			m.logger.Warn("Failed to poll signal log", zap.Error(err))
			continue
		}
		last = next
	}
}

func (m *Medium) poll(ctx context.Context, after int64, fn func(repository.Signal)) (int64, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT seq, key, origin, created_at FROM signals WHERE seq > ? ORDER BY seq`, after)
	if err != nil {
		return after, err
	}
	defer rows.Close()

	var batch []repository.Signal
	last := after
	for rows.Next() {
		var (
			seq    int64
			key    sql.NullString
			origin string
			at     int64
		)
		if err := rows.Scan(&seq, &key, &origin, &at); err != nil {
			return after, err
		}
		last = seq
		if origin == m.origin {
			continue
		}
		batch = append(batch, repository.Signal{
			Key:    model.CollectionKey(key.String),
			Origin: origin,
			At:     time.Unix(0, at),
		})
	}
	if err := rows.Err(); err != nil {
		return after, err
	}
	rows.Close()

	for _, sig := range batch {
		fn(sig)
	}
	return last, nil
}

func (m *Medium) Origin() string {
	return m.origin
}

func (m *Medium) Close() error {
	return m.db.Close()
}
