//go:build cgo

package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultCacheSize  = -20000 // 20MB
	busyTimeout       = 5000   // ms
	walAutoCheckpoint = 1000   // pages
	maxOpenConns      = 5
	maxIdleConns      = 2
)

// SQLiteStore is the persistent backing shared by SQLiteRequestCache and
// SQLiteMetadataStore. SQLite's WAL mode gives single-writer,
// multiple-reader semantics; no application-level locking is added.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time

	getReqPS  *sql.Stmt
	putReqPS  *sql.Stmt
	prunePS   *sql.Stmt
	getMetaPS *sql.Stmt
	setMetaPS *sql.Stmt
}

// OpenSQLite opens (creating if needed) the cache database at dbPath.
func OpenSQLite(dbPath string, opts ...Option) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	path := dbPath
	if runtime.GOOS == "windows" {
		path = strings.ReplaceAll(dbPath, "\\", "/")
	}
	dsn := fmt.Sprintf(
		"file:%s?_journal_mode=WAL&_synchronous=NORMAL&_wal_autocheckpoint=%d&_busy_timeout=%d&_cache_size=%d",
		path, walAutoCheckpoint, busyTimeout, defaultCacheSize,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)

	if err := initializeDatabase(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, now: buildOptions(opts).now}
	if err := s.prepareStatements(); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func initializeDatabase(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS request_cache (
			url       TEXT    PRIMARY KEY,
			body      TEXT    NOT NULL,
			stored_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS provider_metadata (
			provider   TEXT    NOT NULL,
			key        TEXT    NOT NULL,
			value      TEXT    NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (provider, key)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_request_cache_stored_at ON request_cache(stored_at)`,
	}
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("schema creation failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error
	prep := func(dst **sql.Stmt, name, query string) {
		if err != nil {
			return
		}
		*dst, err = s.db.Prepare(query)
		if err != nil {
			err = fmt.Errorf("%s preparation failed: %w", name, err)
		}
	}

	prep(&s.getReqPS, "get request", `SELECT body, stored_at FROM request_cache WHERE url = ?`)
	prep(&s.putReqPS, "put request", `INSERT INTO request_cache (url, body, stored_at) VALUES (?,?,?)
		ON CONFLICT(url) DO UPDATE SET body = excluded.body, stored_at = excluded.stored_at`)
	prep(&s.prunePS, "prune", `DELETE FROM request_cache WHERE ? - stored_at > ?`)
	prep(&s.getMetaPS, "get metadata", `SELECT value FROM provider_metadata WHERE provider = ? AND key = ?`)
	prep(&s.setMetaPS, "set metadata", `INSERT INTO provider_metadata (provider, key, value, updated_at) VALUES (?,?,?,?)
		ON CONFLICT(provider, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	return err
}

// RequestCache returns a RequestCache view with the given lifetime.
func (s *SQLiteStore) RequestCache(maxLifetime time.Duration) *SQLiteRequestCache {
	return &SQLiteRequestCache{store: s, maxLifetime: lifetimeSeconds(maxLifetime)}
}

// MetadataStore returns the metadata view.
func (s *SQLiteStore) MetadataStore() *SQLiteMetadataStore {
	return &SQLiteMetadataStore{store: s}
}

// Close releases statements and the database handle.
func (s *SQLiteStore) Close() error {
	var finalErr error
	for _, stmt := range []*sql.Stmt{s.getReqPS, s.putReqPS, s.prunePS, s.getMetaPS, s.setMetaPS} {
		if stmt == nil {
			continue
		}
		if err := stmt.Close(); err != nil {
			finalErr = fmt.Errorf("statement close error: %w", err)
		}
	}
	if err := s.db.Close(); err != nil {
		finalErr = fmt.Errorf("database close error: %w", err)
	}
	return finalErr
}

// SQLiteRequestCache implements RequestCache on SQLiteStore.
type SQLiteRequestCache struct {
	store       *SQLiteStore
	maxLifetime int64
}

func (c *SQLiteRequestCache) Get(ctx context.Context, url string) (string, bool, error) {
	var body string
	var storedAt int64
	err := c.store.getReqPS.QueryRowContext(ctx, url).Scan(&body, &storedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("query failed: %w", err)
	}
	e := Entry{Key: url, Value: body, Timestamp: storedAt}
	if e.Expired(c.store.now().Unix(), c.maxLifetime) {
		return "", false, nil
	}
	return body, true, nil
}

func (c *SQLiteRequestCache) Put(ctx context.Context, url, body string) error {
	_, err := c.store.putReqPS.ExecContext(ctx, url, body, c.store.now().Unix())
	return err
}

// Prune deletes expired rows and returns how many were removed.
func (c *SQLiteRequestCache) Prune(ctx context.Context) (int, error) {
	res, err := c.store.prunePS.ExecContext(ctx, c.store.now().Unix(), c.maxLifetime)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// SQLiteMetadataStore implements MetadataStore on SQLiteStore, partitioned by
// the (provider, key) primary key.
type SQLiteMetadataStore struct {
	store *SQLiteStore
}

func (m *SQLiteMetadataStore) Get(ctx context.Context, provider, key, def string) (string, error) {
	var value string
	err := m.store.getMetaPS.QueryRowContext(ctx, provider, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return def, nil
		}
		return def, fmt.Errorf("query failed: %w", err)
	}
	return value, nil
}

func (m *SQLiteMetadataStore) Set(ctx context.Context, provider, key, value string) error {
	_, err := m.store.setMetaPS.ExecContext(ctx, provider, key, value, m.store.now().Unix())
	return err
}
