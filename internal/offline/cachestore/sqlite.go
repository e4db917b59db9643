package cachestore

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/GriffinCanCode/poolkeeper/internal/offline"
)

//go:embed schema.sql
var schemaSQL string

// SQLite persists cache buckets in a SQLite database file. Bodies are
// stored zstd-compressed.
type SQLite struct {
	// mu is held for reading by every call; Close takes it for writing.
	mu      sync.RWMutex
	closed  bool
	sqlDB   *sql.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// OpenSQLite opens (creating if needed) the cache database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("cache path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	sqlDB, err := sql.Open("sqlite", filepath.Clean(path)+
		"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		_ = encoder.Close()
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &SQLite{sqlDB: sqlDB, encoder: encoder, decoder: decoder}, nil
}

// Open returns the named bucket, creating it if needed.
func (s *SQLite) Open(ctx context.Context, name string) (offline.Cache, error) {
	release, err := s.hold()
	if err != nil {
		return nil, err
	}
	defer release()

	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO buckets (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return nil, fmt.Errorf("open bucket %q: %w", name, err)
	}
	id, err := s.bucketID(ctx, name)
	if err != nil {
		return nil, err
	}
	return &sqliteBucket{store: s, id: id, name: name}, nil
}

// Has reports whether the named bucket exists.
func (s *SQLite) Has(ctx context.Context, name string) (bool, error) {
	release, err := s.hold()
	if err != nil {
		return false, err
	}
	defer release()

	_, err = s.bucketID(ctx, name)
	if errors.Is(err, ErrBucketDeleted) {
		return false, nil
	}
	return err == nil, err
}

// Delete removes the named bucket and its entries.
func (s *SQLite) Delete(ctx context.Context, name string) (bool, error) {
	release, err := s.hold()
	if err != nil {
		return false, err
	}
	defer release()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entries WHERE bucket_id IN (SELECT id FROM buckets WHERE name = ?)`, name); err != nil {
		return false, fmt.Errorf("delete entries of %q: %w", name, err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM buckets WHERE name = ?`, name)
	if err != nil {
		return false, fmt.Errorf("delete bucket %q: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Keys lists bucket names in creation order.
func (s *SQLite) Keys(ctx context.Context) ([]string, error) {
	release, err := s.hold()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM buckets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list buckets: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Match looks req up in every bucket, oldest first.
func (s *SQLite) Match(ctx context.Context, req *http.Request) (*offline.Response, bool, error) {
	if !offline.Cacheable(req) {
		return nil, false, nil
	}
	release, err := s.hold()
	if err != nil {
		return nil, false, err
	}
	defer release()

	return s.scanEntry(ctx,
		`SELECT e.url, e.status, e.header, e.body FROM entries e
		 JOIN buckets b ON b.id = e.bucket_id
		 WHERE e.cache_key = ? ORDER BY b.id LIMIT 1`,
		offline.CacheKey(req),
	)
}

// Close waits for in-flight calls, then releases the database handle and
// codecs. Later calls fail with sql.ErrConnDone.
func (s *SQLite) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.decoder.Close()
	return errors.Join(s.encoder.Close(), s.sqlDB.Close())
}

// hold takes the read side of mu for one call. bucketID and scanEntry
// expect it to be held already.
func (s *SQLite) hold() (func(), error) {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return nil, sql.ErrConnDone
	}
	return s.mu.RUnlock, nil
}

func (s *SQLite) bucketID(ctx context.Context, name string) (int64, error) {
	var id int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT id FROM buckets WHERE name = ?`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrBucketDeleted
	}
	if err != nil {
		return 0, fmt.Errorf("look up bucket %q: %w", name, err)
	}
	return id, nil
}

func (s *SQLite) scanEntry(ctx context.Context, query string, args ...any) (*offline.Response, bool, error) {
	var (
		resp       offline.Response
		header     []byte
		compressed []byte
	)
	err := s.sqlDB.QueryRowContext(ctx, query, args...).Scan(&resp.URL, &resp.Status, &header, &compressed)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("match entry: %w", err)
	}

	if err := sonic.ConfigStd.Unmarshal(header, &resp.Header); err != nil {
		return nil, false, fmt.Errorf("decode header: %w", err)
	}
	if resp.Header == nil {
		resp.Header = make(http.Header)
	}
	if resp.Body, err = s.decoder.DecodeAll(compressed, nil); err != nil {
		return nil, false, fmt.Errorf("decompress body: %w", err)
	}
	return &resp, true, nil
}

type sqliteBucket struct {
	store *SQLite
	id    int64
	name  string
}

func (b *sqliteBucket) Match(ctx context.Context, req *http.Request) (*offline.Response, bool, error) {
	if !offline.Cacheable(req) {
		return nil, false, nil
	}
	release, err := b.store.hold()
	if err != nil {
		return nil, false, err
	}
	defer release()

	return b.store.scanEntry(ctx,
		`SELECT url, status, header, body FROM entries WHERE bucket_id = ? AND cache_key = ?`,
		b.id, offline.CacheKey(req),
	)
}

func (b *sqliteBucket) Put(ctx context.Context, req *http.Request, resp *offline.Response) error {
	if !offline.Cacheable(req) {
		return offline.ErrNotCacheable
	}
	release, err := b.store.hold()
	if err != nil {
		return err
	}
	defer release()

	header, err := sonic.ConfigStd.Marshal(resp.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	body := b.store.encoder.EncodeAll(resp.Body, nil)

	// The bucket row is checked in the same statement so a put racing a
	// delete cannot leave orphaned entries.
	res, err := b.store.sqlDB.ExecContext(ctx,
		`INSERT INTO entries (bucket_id, cache_key, url, status, header, body, stored_at)
		 SELECT id, ?, ?, ?, ?, ?, ? FROM buckets WHERE id = ?
		 ON CONFLICT(bucket_id, cache_key) DO UPDATE SET
		   url = excluded.url, status = excluded.status, header = excluded.header,
		   body = excluded.body, stored_at = excluded.stored_at`,
		offline.CacheKey(req), resp.URL, resp.Status, header, body, time.Now().UTC().UnixMilli(), b.id,
	)
	if err != nil {
		return fmt.Errorf("put %s in %q: %w", offline.CacheKey(req), b.name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrBucketDeleted
	}
	return nil
}

func (b *sqliteBucket) Keys(ctx context.Context) ([]string, error) {
	release, err := b.store.hold()
	if err != nil {
		return nil, err
	}
	defer release()

	rows, err := b.store.sqlDB.QueryContext(ctx,
		`SELECT cache_key FROM entries WHERE bucket_id = ? ORDER BY rowid`, b.id)
	if err != nil {
		return nil, fmt.Errorf("list entries of %q: %w", b.name, err)
	}
	defer rows.Close()

	keys := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}
