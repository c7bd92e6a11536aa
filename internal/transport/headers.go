package transport

import "context"

// HeaderTransport adds a fixed set of headers to every request. Per-call
// headers win on conflict.
type HeaderTransport struct {
	next    Transport
	headers map[string]string
}

// WithHeaders wraps next so each request carries headers.
func WithHeaders(next Transport, headers map[string]string) *HeaderTransport {
	return &HeaderTransport{next: next, headers: mergeHeaders(nil, headers)}
}

func (t *HeaderTransport) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return t.next.Get(ctx, url, mergeHeaders(t.headers, headers))
}

func (t *HeaderTransport) Post(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error) {
	return t.next.Post(ctx, url, body, mergeHeaders(t.headers, headers))
}
