package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
)

// FileRequestCache stores one JSON file per URL under dir. Writes go to a
// temporary file first and are renamed into place, so readers never see a
// partial entry.
type FileRequestCache struct {
	fs          afero.Fs
	dir         string
	maxLifetime int64
	now         func() time.Time
}

// NewFileRequestCache creates dir on fs if needed.
func NewFileRequestCache(fs afero.Fs, dir string, maxLifetime time.Duration, opts ...Option) (*FileRequestCache, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	o := buildOptions(opts)
	return &FileRequestCache{
		fs:          fs,
		dir:         dir,
		maxLifetime: lifetimeSeconds(maxLifetime),
		now:         o.now,
	}, nil
}

func (c *FileRequestCache) path(url string) string {
	sum := sha256.Sum256([]byte(url))
	return filepath.Join(c.dir, hex.EncodeToString(sum[:])+".json")
}

// Get reads the entry for url. Unreadable or corrupt files count as misses.
func (c *FileRequestCache) Get(ctx context.Context, url string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	data, err := afero.ReadFile(c.fs, c.path(url))
	if err != nil {
		return "", false, nil
	}
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil || e.Key != url {
		return "", false, nil
	}
	if e.Expired(c.now().Unix(), c.maxLifetime) {
		return "", false, nil
	}
	return e.Value, true, nil
}

// Put writes the entry for url.
func (c *FileRequestCache) Put(ctx context.Context, url, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(Entry{Key: url, Value: body, Timestamp: c.now().Unix()})
	if err != nil {
		return err
	}
	path := c.path(url)
	tmp := path + ".tmp"
	if err := afero.WriteFile(c.fs, tmp, data, 0o644); err != nil {
		_ = c.fs.Remove(tmp)
		return err
	}
	return c.fs.Rename(tmp, path)
}

// Prune deletes expired entries and returns how many were removed.
func (c *FileRequestCache) Prune(ctx context.Context) (int, error) {
	infos, err := afero.ReadDir(c.fs, c.dir)
	if err != nil {
		return 0, err
	}
	now := c.now().Unix()
	removed := 0
	for _, fi := range infos {
		if err := ctx.Err(); err != nil {
			return removed, err
		}
		if fi.IsDir() || !strings.HasSuffix(fi.Name(), ".json") {
			continue
		}
		p := filepath.Join(c.dir, fi.Name())
		data, err := afero.ReadFile(c.fs, p)
		if err != nil {
			continue
		}
		var e Entry
		if json.Unmarshal(data, &e) == nil && !e.Expired(now, c.maxLifetime) {
			continue
		}
		if err := c.fs.Remove(p); err == nil {
			removed++
		}
	}
	return removed, nil
}
