package transport

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/avast/retry-go/v4"

	"github.com/alvarorichard/aniresolve/internal/config"
	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/util"
)

// maxBodySize caps how much of a response body is read.
const maxBodySize = 32 << 20

// HTTPTransport is the production Transport. Each request gets its own
// timeout; network errors and 5xx/429 responses are retried with backoff.
type HTTPTransport struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
	attempts  uint
	delay     time.Duration
}

// NewHTTPTransport builds a transport from cfg. A nil client selects a pooled
// client sized for cfg.Timeout.
func NewHTTPTransport(cfg config.Config, client *http.Client) *HTTPTransport {
	if client == nil {
		client = util.NewHTTPClient(cfg.Timeout)
	}
	attempts := cfg.RetryAttempts
	if attempts == 0 {
		attempts = 1
	}
	return &HTTPTransport{
		client:    client,
		userAgent: cfg.UserAgent,
		timeout:   cfg.Timeout,
		attempts:  attempts,
		delay:     cfg.RetryDelay,
	}
}

func (t *HTTPTransport) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return t.do(ctx, http.MethodGet, url, nil, headers)
}

func (t *HTTPTransport) Post(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error) {
	return t.do(ctx, http.MethodPost, url, body, headers)
}

func (t *HTTPTransport) do(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, error) {
	op := "http." + strings.ToLower(method)
	data, err := retry.DoWithData(
		func() ([]byte, error) {
			return t.once(ctx, method, url, body, headers)
		},
		retry.Context(ctx),
		retry.Attempts(t.attempts),
		retry.Delay(t.delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(retryable),
		retry.OnRetry(func(n uint, err error) {
			util.Debugf("retrying %s %s (attempt %d): %v", method, url, n+1, err)
		}),
	)
	if err != nil {
		var e *errs.Error
		if errors.As(err, &e) {
			return nil, err
		}
		return nil, errs.Transport(op, err)
	}
	return data, nil
}

func (t *HTTPTransport) once(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, retry.Unrecoverable(errs.Transport("http.request", err))
	}
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}
	req.Header.Set("Accept-Encoding", "gzip, br")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, errs.Transport("http.do", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, errs.Status("http.do", resp.StatusCode)
	}

	data, err := readBody(resp)
	if err != nil {
		return nil, errs.Transport("http.read", err)
	}
	return data, nil
}

// readBody decodes the body according to Content-Encoding. Go's transport
// only decompresses gzip transparently when it set Accept-Encoding itself,
// which it does not once the header is set explicitly.
func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "br":
		r = brotli.NewReader(resp.Body)
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, err
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return io.ReadAll(io.LimitReader(r, maxBodySize))
}

// retryable reports whether a failed attempt is worth repeating. Client
// errors other than 429 are final.
func retryable(err error) bool {
	var e *errs.Error
	if !errors.As(err, &e) {
		return false
	}
	if e.StatusCode == 0 {
		return !errors.Is(e.Err, context.Canceled)
	}
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}
