// Package indexcache persists the derived indexes of image.Reader in a
// SQLite database so that reopening a large image skips the index builds.
//
// Entries are keyed by the xxh3 hash of the metadata root bytes. Each entry
// is a canonical CBOR envelope holding the snapshot version, the table row
// counts it was taken against and the snapshot itself.
package indexcache

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/xxh3"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/wippyai/clrmeta/errors"
	"github.com/wippyai/clrmeta/image"
	"github.com/wippyai/clrmeta/metadata"
)

// SchemaVersion is the version of the database layout.
const SchemaVersion = 1

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("indexcache: CBOR enc mode: %v", err))
	}
	encMode = em
}

// Options configures a Store.
type Options struct {
	// MaxEntries bounds the number of cached images; the least recently
	// used entries are evicted on Put. Zero means unbounded.
	MaxEntries int
}

// DefaultOptions returns the default store configuration.
func DefaultOptions() Options {
	return Options{MaxEntries: 256}
}

// envelope is the stored form of one snapshot.
type envelope struct {
	Version   uint32   `cbor:"1,keyasint"`
	Location  string   `cbor:"2,keyasint,omitempty"`
	RowCounts []uint32 `cbor:"3,keyasint"`
	Payload   []byte   `cbor:"4,keyasint"`
}

// Entry describes a cached image.
type Entry struct {
	Key      string
	Location string
	Size     int
	Hits     int64
	Created  time.Time
	Accessed time.Time
}

// Store is a SQLite backed snapshot cache. It is safe for concurrent use.
type Store struct {
	db      *sql.DB
	options Options
	log     *zap.Logger
}

// Open opens or creates the cache database at path. Use ":memory:" for a
// private in-memory cache.
func Open(ctx context.Context, path string, opts Options) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidInput, err, "open "+path)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own database
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, options: opts, log: Logger()}
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	s.log.Debug("index cache opened", zap.String("path", path))
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		location TEXT NOT NULL,
		envelope BLOB NOT NULL,
		hits INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		accessed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_snapshots_accessed ON snapshots(accessed_at);
	CREATE TABLE IF NOT EXISTS schema_info (version INTEGER NOT NULL);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "create schema")
	}

	var version int
	err := s.db.QueryRowContext(ctx, `SELECT version FROM schema_info LIMIT 1`).Scan(&version)
	switch {
	case err == sql.ErrNoRows:
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_info (version) VALUES (?)`, SchemaVersion); err != nil {
			return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "record schema version")
		}
	case err != nil:
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "read schema version")
	case version != SchemaVersion:
		return errors.New(errors.PhaseCache, errors.KindUnsupported).
			Detail("cache schema version %d, want %d", version, SchemaVersion).Build()
	}
	return nil
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Key returns the cache key of a metadata root.
func Key(metadataRoot []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(metadataRoot))
}

func rowCounts(r *image.Reader) []uint32 {
	counts := make([]uint32, metadata.NumTables)
	for t := metadata.Table(0); t < metadata.NumTables; t++ {
		counts[t] = r.RowCount(t)
	}
	return counts
}

// Put snapshots every index of r and stores it under the key of
// metadataRoot, which must be the bytes r was opened from.
func (s *Store) Put(ctx context.Context, metadataRoot []byte, r *image.Reader) error {
	payload, err := r.Snapshot(ctx)
	if err != nil {
		return err
	}
	data, err := encMode.Marshal(&envelope{
		Version:   image.SnapshotVersion,
		Location:  r.Location(),
		RowCounts: rowCounts(r),
		Payload:   payload,
	})
	if err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "encode envelope")
	}

	key := Key(metadataRoot)
	now := time.Now().UnixNano()
	_, err = s.db.ExecContext(ctx, `
	INSERT INTO snapshots (key, location, envelope, hits, created_at, accessed_at)
	VALUES (?, ?, ?, 0, ?, ?)
	ON CONFLICT(key) DO UPDATE SET
		location = excluded.location,
		envelope = excluded.envelope,
		accessed_at = excluded.accessed_at
	`, key, r.Location(), data, now, now)
	if err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "store snapshot "+key)
	}
	s.log.Debug("snapshot stored",
		zap.String("key", key),
		zap.String("location", r.Location()),
		zap.Int("bytes", len(data)))

	if s.options.MaxEntries > 0 {
		if _, err := s.Evict(ctx, s.options.MaxEntries); err != nil {
			return err
		}
	}
	return nil
}

// Restore installs the cached indexes for metadataRoot into r. It reports
// false without error when nothing is cached. An entry that no longer
// matches the image is dropped and reported as a miss.
func (s *Store) Restore(ctx context.Context, metadataRoot []byte, r *image.Reader) (bool, error) {
	key := Key(metadataRoot)
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT envelope FROM snapshots WHERE key = ?`, key).Scan(&data)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "load snapshot "+key)
	}

	var env envelope
	if err := cbor.Unmarshal(data, &env); err != nil {
		s.log.Warn("dropping undecodable snapshot", zap.String("key", key), zap.Error(err))
		return false, s.delete(ctx, key)
	}
	if reason := stale(&env, r); reason != "" {
		s.log.Info("dropping stale snapshot", zap.String("key", key), zap.String("reason", reason))
		return false, s.delete(ctx, key)
	}
	if err := r.Restore(env.Payload); err != nil {
		return false, err
	}

	_, err = s.db.ExecContext(ctx, `UPDATE snapshots SET hits = hits + 1, accessed_at = ? WHERE key = ?`,
		time.Now().UnixNano(), key)
	if err != nil {
		return true, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "touch snapshot "+key)
	}
	s.log.Debug("snapshot restored", zap.String("key", key), zap.String("location", r.Location()))
	return true, nil
}

func stale(env *envelope, r *image.Reader) string {
	if env.Version != image.SnapshotVersion {
		return fmt.Sprintf("snapshot version %d, want %d", env.Version, image.SnapshotVersion)
	}
	if len(env.RowCounts) != int(metadata.NumTables) {
		return fmt.Sprintf("%d row counts", len(env.RowCounts))
	}
	for t, n := range rowCounts(r) {
		if env.RowCounts[t] != n {
			return fmt.Sprintf("%s has %d rows, cached %d", metadata.Table(t), n, env.RowCounts[t])
		}
	}
	return ""
}

// Warm restores r from the cache, or builds its indexes and stores them.
// It reports whether the cache was hit.
func (s *Store) Warm(ctx context.Context, metadataRoot []byte, r *image.Reader) (bool, error) {
	hit, err := s.Restore(ctx, metadataRoot, r)
	if err != nil || hit {
		return hit, err
	}
	return false, s.Put(ctx, metadataRoot, r)
}

func (s *Store) delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key); err != nil {
		return errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "delete snapshot "+key)
	}
	return nil
}

// Evict removes the least recently used entries beyond keep and returns
// how many were removed.
func (s *Store) Evict(ctx context.Context, keep int) (int, error) {
	res, err := s.db.ExecContext(ctx, `
	DELETE FROM snapshots WHERE key IN (
		SELECT key FROM snapshots ORDER BY accessed_at DESC, key LIMIT -1 OFFSET ?
	)`, keep)
	if err != nil {
		return 0, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "evict snapshots")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "evict snapshots")
	}
	if n > 0 {
		s.log.Debug("snapshots evicted", zap.Int64("count", n), zap.Int("kept", keep))
	}
	return int(n), nil
}

// Entries lists the cached images, most recently used first.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
	SELECT key, location, length(envelope), hits, created_at, accessed_at
	FROM snapshots ORDER BY accessed_at DESC, key`)
	if err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "list snapshots")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var created, accessed int64
		if err := rows.Scan(&e.Key, &e.Location, &e.Size, &e.Hits, &created, &accessed); err != nil {
			return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "scan snapshot")
		}
		e.Created = time.Unix(0, created)
		e.Accessed = time.Unix(0, accessed)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseCache, errors.KindInvalidData, err, "list snapshots")
	}
	return out, nil
}
