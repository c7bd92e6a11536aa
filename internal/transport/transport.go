// Package transport is the HTTP abstraction every provider client is built
// on. Clients receive a Transport at construction so tests can substitute a
// scripted fake and hosts can stack caching or extra headers on top.
package transport

import (
	"context"
)

// Transport performs GET and POST requests and returns the raw body.
// Implementations must be safe for concurrent use. A non-2xx response is an
// error of kind errs.KindTransport carrying the status code.
type Transport interface {
	Get(ctx context.Context, url string, headers map[string]string) ([]byte, error)
	Post(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error)
}

// Func adapts a pair of functions to Transport.
type Func struct {
	GetFunc  func(ctx context.Context, url string, headers map[string]string) ([]byte, error)
	PostFunc func(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error)
}

func (f Func) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return f.GetFunc(ctx, url, headers)
}

func (f Func) Post(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error) {
	return f.PostFunc(ctx, url, body, headers)
}

// mergeHeaders returns base overlaid with extra. Neither input is modified.
func mergeHeaders(base, extra map[string]string) map[string]string {
	out := make(map[string]string, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
