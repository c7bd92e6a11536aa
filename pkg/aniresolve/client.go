// Package aniresolve is the public entry point of the resolution engine.
// It wires the HTTP transport, the caches and the provider clients together
// and exposes the provider façade. This package can be used as a library in
// other Go projects.
package aniresolve

import (
	"context"
	"errors"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/alvarorichard/aniresolve/internal/cache"
	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/scraper"
	"github.com/alvarorichard/aniresolve/internal/transport"
	"github.com/alvarorichard/aniresolve/internal/util"
)

// Client is the main client for resolving shows into streams.
type Client struct {
	manager  *scraper.ScraperManager
	store    *cache.SQLiteStore
	requests cache.RequestCache
}

// Option customizes NewClient.
type Option func(*clientOptions)

type clientOptions struct {
	transport Transport
	headers   map[string]string
	fs        afero.Fs
}

// WithTransport replaces the HTTP transport. Responses are still cached.
func WithTransport(t Transport) Option {
	return func(o *clientOptions) { o.transport = t }
}

// WithHeaders adds headers (cookies, a custom Accept-Language) to every
// request. Headers set by a provider for a single call take precedence.
func WithHeaders(headers map[string]string) Option {
	return func(o *clientOptions) { o.headers = headers }
}

// WithFs sets the filesystem used by the file cache fallback.
func WithFs(fs afero.Fs) Option {
	return func(o *clientOptions) { o.fs = fs }
}

// NewClient validates cfg and builds a client with every provider.
//
// With cfg.CachePath empty, responses and metadata live in memory. Otherwise
// they are persisted to an SQLite database at CachePath; builds without CGO
// keep responses as files next to it instead, and metadata in memory.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := clientOptions{fs: afero.NewOsFs()}
	for _, fn := range opts {
		fn(&o)
	}

	util.SetDebugMode(cfg.Debug)
	util.InitLogger(util.LogOptions{File: cfg.LogFile})

	base := o.transport
	if base == nil {
		base = transport.NewHTTPTransport(cfg, nil)
	}
	if len(o.headers) > 0 {
		base = transport.WithHeaders(base, o.headers)
	}

	c := &Client{}
	requests, metadata, err := c.openCaches(cfg, o.fs)
	if err != nil {
		return nil, err
	}
	c.requests = requests

	c.manager = scraper.NewScraperManager(scraper.Deps{
		Config:    cfg,
		Transport: transport.NewCachingTransport(base, requests),
		Metadata:  metadata,
	})
	return c, nil
}

func (c *Client) openCaches(cfg Config, fs afero.Fs) (cache.RequestCache, cache.MetadataStore, error) {
	if cfg.CachePath == "" {
		requests, err := cache.NewMemoryRequestCache(cfg.CacheSize, cfg.CacheLifetime)
		if err != nil {
			return nil, nil, err
		}
		return requests, cache.NewMemoryMetadataStore(), nil
	}

	store, err := cache.OpenSQLite(cfg.CachePath)
	switch {
	case err == nil:
		c.store = store
		return store.RequestCache(cfg.CacheLifetime), store.MetadataStore(), nil
	case errors.Is(err, cache.ErrCgoDisabled):
		dir := filepath.Join(filepath.Dir(cfg.CachePath), "responses")
		util.Debug("sqlite unavailable, using file cache", "dir", dir)
		requests, err := cache.NewFileRequestCache(fs, dir, cfg.CacheLifetime)
		if err != nil {
			return nil, nil, err
		}
		return requests, cache.NewMemoryMetadataStore(), nil
	default:
		return nil, nil, err
	}
}

// Close releases the persistent cache, if any.
func (c *Client) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// Prune deletes expired responses from a persistent cache and reports how
// many were removed. Memory caches evict on their own and report zero.
func (c *Client) Prune(ctx context.Context) (int, error) {
	p, ok := c.requests.(interface {
		Prune(context.Context) (int, error)
	})
	if !ok {
		return 0, nil
	}
	return p.Prune(ctx)
}

// Providers lists the registered provider names in merge order.
func (c *Client) Providers() []string {
	return c.manager.Providers()
}

// Search queries the given providers, or all of them when none are given.
// An error is returned only when every queried provider failed.
func (c *Client) Search(ctx context.Context, query string, page int, providers ...string) ([]ShowReference, error) {
	return c.manager.Search(ctx, query, page, providers...)
}

// GetDetails fetches one show from provider.
func (c *Client) GetDetails(ctx context.Context, provider, id string) (ShowReference, error) {
	return c.manager.GetDetails(ctx, provider, id)
}

// ListEpisodes lists episodes (chapters for MangaDex) numbered within
// [start, end] inclusive. Pass OpenEnd as end for no upper bound.
func (c *Client) ListEpisodes(ctx context.Context, provider, id string, start, end float64) ([]EpisodeDescriptor, error) {
	return c.manager.ListEpisodes(ctx, provider, id, start, end)
}

// GetStreams resolves the playable servers of one episode. An empty slice
// with a nil error means the episode exists but nothing could be extracted.
func (c *Client) GetStreams(ctx context.Context, provider, id string, episode float64, opts StreamOptions) ([]StreamServer, error) {
	return c.manager.GetStreams(ctx, provider, id, episode, opts)
}

// GetChapterPages returns the page images of a MangaDex chapter.
func (c *Client) GetChapterPages(ctx context.Context, chapterID string) (ChapterPages, error) {
	p, err := c.manager.GetProvider(ProviderMangaDex)
	if err != nil {
		return ChapterPages{}, err
	}
	md, ok := p.(*scraper.MangaDex)
	if !ok {
		return ChapterPages{}, errs.NotFound("client.pages", "mangadex provider unavailable")
	}
	return md.GetChapterPages(ctx, chapterID)
}
