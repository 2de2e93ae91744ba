// Package cache persists merged aircraft records in a local SQLite
// database keyed by aircraft identifier, with per-source fetch timestamps.
// If the database cannot be opened or a write fails, the store degrades to
// an in-memory session cache and keeps serving requests.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"airtrack-mcp/internal/record"
)

// Entry is one cached aircraft: the merged record snapshot plus the time
// and outcome of the most recent fetch from each source.
type Entry struct {
	Key     string
	Record  record.Aircraft
	Fetches map[record.Source]record.Fetch
}

// Store is the durable cache. All writes go through Put, which performs a
// single merge-and-persist step under a store-wide lock, so concurrent
// lookups for the same identifier cannot lose an update.
type Store struct {
	log *zap.SugaredLogger

	mu       sync.Mutex
	db       *sql.DB        // nil once degraded
	mem      *gocache.Cache // session fallback, also overlay after degrade
	degraded bool
}

// Open opens (or creates) the cache database at path. Open never fails the
// caller: if the database is unusable the store starts degraded, in memory
// only, and logs a warning.
func Open(path string, log *zap.SugaredLogger) *Store {
	s := &Store{
		log: log,
		mem: gocache.New(gocache.NoExpiration, 10*time.Minute),
	}
	db, err := openDB(path)
	if err != nil {
		log.Warnw("cache store unavailable, falling back to in-memory session cache",
			"path", path, "error", err)
		s.degraded = true
		return s
	}
	s.db = db
	return s
}

func openDB(path string) (*sql.DB, error) {
	if path == "" {
		return nil, fmt.Errorf("no cache path configured")
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS aircraft (
		key        TEXT PRIMARY KEY,
		record     TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS fetches (
		key        TEXT NOT NULL,
		source     TEXT NOT NULL,
		fetched_at INTEGER NOT NULL,
		outcome    TEXT NOT NULL,
		PRIMARY KEY (key, source)
	);

	CREATE INDEX IF NOT EXISTS idx_aircraft_updated_at ON aircraft(updated_at);
	`)
	return err
}

// Degraded reports whether the store is running without persistence.
func (s *Store) Degraded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Get returns the cached entry for key, or ok=false when absent. Read
// failures are treated as a miss; they must never fail the lookup.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, key)
}

func (s *Store) getLocked(ctx context.Context, key string) (Entry, bool) {
	if s.degraded {
		if v, ok := s.mem.Get(key); ok {
			return v.(Entry), true
		}
		return Entry{}, false
	}

	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT record FROM aircraft WHERE key = ?1`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return Entry{}, false
	}
	if err != nil {
		s.log.Warnw("cache read failed", "key", key, "error", err)
		return Entry{}, false
	}

	e := Entry{Key: key, Fetches: make(map[record.Source]record.Fetch)}
	if err := json.Unmarshal([]byte(raw), &e.Record); err != nil {
		s.log.Warnw("cache entry corrupt, ignoring", "key", key, "error", err)
		return Entry{}, false
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT source, fetched_at, outcome FROM fetches WHERE key = ?1`, key)
	if err != nil {
		s.log.Warnw("cache read failed", "key", key, "error", err)
		return Entry{}, false
	}
	defer rows.Close()
	for rows.Next() {
		var src, outcome string
		var at int64
		if err := rows.Scan(&src, &at, &outcome); err != nil {
			s.log.Warnw("cache read failed", "key", key, "error", err)
			return Entry{}, false
		}
		f := record.Fetch{At: time.Unix(at, 0).UTC(), Outcome: record.Set}
		if outcome == record.Missing.String() {
			f.Outcome = record.Missing
		}
		e.Fetches[record.Source(src)] = f
	}
	if err := rows.Err(); err != nil {
		s.log.Warnw("cache read failed", "key", key, "error", err)
		return Entry{}, false
	}
	return e, true
}

// Put merges a partial fetch from one source into the stored record for
// the identifier and stamps that source's fetch time, all as one atomic
// step. It returns the merged entry. A storage failure degrades the store
// to in-memory mode and still returns the merged result; the caller's
// request always succeeds.
func (s *Store) Put(ctx context.Context, id record.Identifier, p record.Partial, fetchedAt time.Time) Entry {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := id.Key()
	prev, ok := s.getLocked(ctx, key)
	var cached *record.Aircraft
	if ok {
		cached = &prev.Record
	}

	merged := record.Merge(cached, id.ICAO, p)
	outcome := record.Set
	if p.NotFound {
		outcome = record.Missing
	}

	e := Entry{Key: key, Record: merged, Fetches: make(map[record.Source]record.Fetch, len(prev.Fetches)+1)}
	for src, f := range prev.Fetches {
		e.Fetches[src] = f
	}
	e.Fetches[p.Source] = record.Fetch{At: fetchedAt.UTC(), Outcome: outcome}

	if s.degraded {
		s.mem.Set(key, e, gocache.NoExpiration)
		return e
	}
	if err := s.persist(ctx, e, p.Source); err != nil {
		s.log.Warnw("cache write failed, degrading to in-memory session cache",
			"key", key, "error", err)
		s.degraded = true
		s.mem.Set(key, e, gocache.NoExpiration)
	}
	return e
}

func (s *Store) persist(ctx context.Context, e Entry, src record.Source) error {
	raw, err := json.Marshal(e.Record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	f := e.Fetches[src]

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO aircraft (key, record, updated_at) VALUES (?1, ?2, ?3)
		ON CONFLICT(key) DO UPDATE SET record = excluded.record, updated_at = excluded.updated_at`,
		e.Key, string(raw), f.At.Unix()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO fetches (key, source, fetched_at, outcome) VALUES (?1, ?2, ?3, ?4)
		ON CONFLICT(key, source) DO UPDATE SET fetched_at = excluded.fetched_at, outcome = excluded.outcome`,
		e.Key, string(src), f.At.Unix(), f.Outcome.String()); err != nil {
		return err
	}
	return tx.Commit()
}

// EvictOlderThan deletes entries whose most recent update is older than
// age. Returns the number of evicted aircraft.
func (s *Store) EvictOlderThan(ctx context.Context, age time.Duration, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.degraded {
		return 0, nil
	}
	cutoff := now.Add(-age).Unix()
	res, err := s.db.ExecContext(ctx, `DELETE FROM aircraft WHERE updated_at < ?1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("evict: %w", err)
	}
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM fetches WHERE key NOT IN (SELECT key FROM aircraft)`); err != nil {
		return 0, fmt.Errorf("evict fetches: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close releases the database. The store must not be used afterwards.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	s.degraded = true
	return err
}
