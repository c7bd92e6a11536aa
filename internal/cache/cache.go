// Package cache provides the request cache (URL -> response body) and the
// provider-scoped metadata store, each with in-memory and persistent
// backings. Expiry is lazy: an entry older than the lifetime is reported as a
// miss on read and is only removed when overwritten or pruned.
package cache

import (
	"context"
	"errors"
	"time"
)

// ErrCgoDisabled is returned by OpenSQLite in CGO-less builds.
var ErrCgoDisabled = errors.New("CGO disabled: sqlite cache not available")

// Entry is one cached value with the unix second it was stored at.
type Entry struct {
	Key       string
	Value     string
	Timestamp int64
}

// Expired reports whether the entry is unusable at now.
func (e Entry) Expired(now int64, maxLifetimeSeconds int64) bool {
	return now-e.Timestamp > maxLifetimeSeconds
}

// RequestCache maps request URLs to response bodies.
type RequestCache interface {
	Get(ctx context.Context, url string) (body string, ok bool, err error)
	Put(ctx context.Context, url, body string) error
}

// MetadataStore keeps small provider-scoped values, such as a show's title
// keyed by its provider id.
type MetadataStore interface {
	Get(ctx context.Context, provider, key, def string) (string, error)
	Set(ctx context.Context, provider, key, value string) error
}

// Option configures a cache backing.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

func lifetimeSeconds(d time.Duration) int64 {
	return int64(d / time.Second)
}
