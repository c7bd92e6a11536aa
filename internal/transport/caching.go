package transport

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/alvarorichard/aniresolve/internal/cache"
	"github.com/alvarorichard/aniresolve/internal/util"
)

type noCacheKey struct{}

// WithoutCache marks ctx so a CachingTransport neither reads nor stores the
// response. Use it for bodies carrying signed or short-lived URLs.
func WithoutCache(ctx context.Context) context.Context {
	return context.WithValue(ctx, noCacheKey{}, true)
}

func cacheDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noCacheKey{}).(bool)
	return v
}

// CachingTransport serves GET requests from a RequestCache and stores
// successful responses in it. Concurrent misses for the same key share one
// upstream request. POST requests pass straight through.
type CachingTransport struct {
	next  Transport
	cache cache.RequestCache
	group singleflight.Group
}

// NewCachingTransport wraps next with c.
func NewCachingTransport(next Transport, c cache.RequestCache) *CachingTransport {
	return &CachingTransport{next: next, cache: c}
}

// Get returns the cached body for url or fetches it. The shared fetch is
// detached from the caller that started it; each caller stops waiting when
// its own ctx ends.
func (t *CachingTransport) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	if cacheDisabled(ctx) {
		return t.next.Get(ctx, url, headers)
	}

	key := cacheKey(url, headers)
	if body, ok, err := t.cache.Get(ctx, key); err != nil {
		util.Debugf("request cache read failed for %s: %v", url, err)
	} else if ok {
		return []byte(body), nil
	}

	shared := context.WithoutCancel(ctx)
	ch := t.group.DoChan(key, func() (any, error) {
		data, err := t.next.Get(shared, url, headers)
		if err != nil {
			return nil, err
		}
		if err := t.cache.Put(shared, key, string(data)); err != nil {
			util.Debugf("request cache write failed for %s: %v", url, err)
		}
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (t *CachingTransport) Post(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error) {
	return t.next.Post(ctx, url, body, headers)
}

// cacheKey is the URL alone unless an Authorization header is present, in
// which case a digest of the header value is folded in so users never share
// bodies and tokens never reach the cache.
func cacheKey(url string, headers map[string]string) string {
	var auth []string
	for k, v := range headers {
		if strings.EqualFold(k, "Authorization") {
			auth = append(auth, v)
		}
	}
	if len(auth) == 0 {
		return url
	}
	sort.Strings(auth)
	sum := sha256.Sum256([]byte(strings.Join(auth, "\n")))
	return url + "#auth=" + hex.EncodeToString(sum[:])
}
