package db

import (
	"clipstash/cfg"
	"clipstash/pkg/domain"
	"clipstash/svc/util"
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var ErrCircuitOpen = errors.New("database circuit breaker open")

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
	maxFailures     = 5
	cooldownSeconds = 30
)

const (
	defaultMaxOpenConns = 8
	defaultMaxIdleConns = 4
	defaultQueryTimeout = 2 * time.Second
	purgeInterval       = time.Minute
	purgeBatch          = 500
)

// SQLite is a file-backed durable tier. SQLite has no native key expiry, so
// every row carries expires_at: reads and counts ignore rows past it and a
// background purge deletes them.
type SQLite struct {
	db            *sql.DB
	failures      int32
	circuitState  int32
	circuitOpened int64
	queryTimeout  time.Duration
	closed        atomic.Bool
	quit          chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
	now           func() time.Time
}

func NewSQLite(path string, c *cfg.Cfg) (*SQLite, error) {
	timeout := c.DurableTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	s, err := openSQLite(path, defaultMaxOpenConns, defaultMaxIdleConns, timeout)
	if err != nil {
		return nil, err
	}
	s.wg.Add(2)
	go s.purgeLoop(purgeInterval)
	go s.walLoop(checkpointInterval)
	return s, nil
}
func openSQLite(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	if path == "" {
		return nil, errors.New("sqlite path is empty")
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping db")
	}
	s := &SQLite{
		db:           db,
		queryTimeout: queryTimeout,
		quit:         make(chan struct{}),
		now:          time.Now,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}
func (s *SQLite) migrate() error {
	if _, err := s.db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return errors.Wrap(err, "enable WAL mode")
	}
	if _, err := s.db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return errors.Wrap(err, "set busy timeout")
	}
	query := `
	CREATE TABLE IF NOT EXISTS clips (
		id TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_clips_expires_at ON clips(expires_at);
	`
	_, err := s.db.Exec(query)
	return err
}
func (s *SQLite) checkCircuit() error {
	if s.closed.Load() {
		return sql.ErrConnDone
	}
	state := atomic.LoadInt32(&s.circuitState)
	switch state {
	case circuitOpen:
		opened := atomic.LoadInt64(&s.circuitOpened)
		if time.Now().Unix()-opened >= cooldownSeconds {
			if atomic.CompareAndSwapInt32(&s.circuitState, circuitOpen, circuitHalfOpen) {
				return nil
			}
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}
func (s *SQLite) recordError(err error) {
	if err == nil {
		atomic.StoreInt32(&s.failures, 0)
		atomic.StoreInt32(&s.circuitState, circuitClosed)
		return
	}
	if errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled) {
		return
	}
	failures := atomic.AddInt32(&s.failures, 1)
	if atomic.LoadInt32(&s.circuitState) == circuitHalfOpen {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
		atomic.StoreInt32(&s.failures, 0)
		return
	}
	if failures >= maxFailures && atomic.LoadInt32(&s.circuitState) == circuitClosed {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
	}
}
func (s *SQLite) Name() string { return "sqlite" }

// Connected is false once closed or while the circuit breaker is open.
func (s *SQLite) Connected() bool {
	if s.closed.Load() {
		return false
	}
	if atomic.LoadInt32(&s.circuitState) != circuitOpen {
		return true
	}
	return time.Now().Unix()-atomic.LoadInt64(&s.circuitOpened) >= cooldownSeconds
}
func (s *SQLite) Put(ctx context.Context, clip *domain.Clip, ttl time.Duration) error {
	if err := s.checkCircuit(); err != nil {
		return err
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	data, err := json.Marshal(clip)
	if err != nil {
		return errors.Wrap(err, "marshal clip")
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO clips (id, data, expires_at) VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET data = excluded.data, expires_at = excluded.expires_at
	`
	_, err = s.db.ExecContext(queryCtx, q, clip.ID, string(data), s.now().Add(ttl).UnixMilli())
	s.recordError(err)
	return errors.Wrap(err, "db put")
}
func (s *SQLite) Get(ctx context.Context, id string) (*domain.Clip, error) {
	if err := s.checkCircuit(); err != nil {
		return nil, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var data string
	err := s.db.QueryRowContext(queryCtx,
		`SELECT data FROM clips WHERE id = ? AND expires_at > ?`, id, s.now().UnixMilli(),
	).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	s.recordError(err)
	if err != nil {
		return nil, errors.Wrap(err, "db get")
	}
	var clip domain.Clip
	if err := json.Unmarshal([]byte(data), &clip); err != nil {
		return nil, errors.Wrap(err, "unmarshal clip")
	}
	return &clip, nil
}

// Delete reports true only for a live row, matching a TTL store where an
// expired key is already gone.
func (s *SQLite) Delete(ctx context.Context, id string) (bool, error) {
	if err := s.checkCircuit(); err != nil {
		return false, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	res, err := s.db.ExecContext(queryCtx,
		`DELETE FROM clips WHERE id = ? AND expires_at > ?`, id, s.now().UnixMilli())
	s.recordError(err)
	if err != nil {
		return false, errors.Wrap(err, "delete clip")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		if err := s.purgeStale(ctx, id); err != nil {
			return false, err
		}
	}
	return n > 0, nil
}

// purgeStale drops an expired row for id that the purge loop has not reached.
func (s *SQLite) purgeStale(ctx context.Context, id string) error {
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	_, err := s.db.ExecContext(queryCtx, `DELETE FROM clips WHERE id = ?`, id)
	s.recordError(err)
	return errors.Wrap(err, "delete stale clip")
}
func (s *SQLite) Count(ctx context.Context) (int, error) {
	if err := s.checkCircuit(); err != nil {
		return 0, err
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	var n int
	err := s.db.QueryRowContext(queryCtx,
		`SELECT COUNT(*) FROM clips WHERE expires_at > ?`, s.now().UnixMilli()).Scan(&n)
	s.recordError(err)
	return n, errors.Wrap(err, "count clips")
}
func (s *SQLite) Ping(ctx context.Context) error {
	if s.closed.Load() {
		return sql.ErrConnDone
	}
	var result int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&result)
}

// PurgeExpired deletes rows past their expiry in batches.
func (s *SQLite) PurgeExpired(ctx context.Context) (int, error) {
	if err := s.checkCircuit(); err != nil {
		return 0, err
	}
	total := 0
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}
		queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
		res, err := s.db.ExecContext(queryCtx, `
			DELETE FROM clips WHERE id IN (
				SELECT id FROM clips WHERE expires_at <= ? LIMIT ?
			)`, s.now().UnixMilli(), purgeBatch)
		cancel()
		s.recordError(err)
		if err != nil {
			return total, errors.Wrap(err, "purge batch failed")
		}
		n, _ := res.RowsAffected()
		total += int(n)
		if n < purgeBatch {
			return total, nil
		}
	}
}
func (s *SQLite) purgeLoop(interval time.Duration) {
	defer s.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			n, err := s.PurgeExpired(ctx)
			cancel()
			if err != nil {
				util.Warn().Err(err).Msg("sqlite purge failed")
			} else if n > 0 {
				util.Debug().Int("purged", n).Msg("sqlite purge completed")
			}
		}
	}
}

// Close stops the purge and WAL workers, runs a final checkpoint and closes
// the handle. Safe to call more than once.
func (s *SQLite) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.quit)
		s.wg.Wait()
		if cerr := performWALCheckpoint(s.db); cerr != nil {
			util.Warn().Err(cerr).Msg("final WAL checkpoint failed")
		}
		err = s.db.Close()
	})
	return err
}
