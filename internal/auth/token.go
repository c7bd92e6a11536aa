// Package auth manages the MangaDex OAuth token lifecycle. A Manager owns one
// credential set; concurrent callers share a single in-flight refresh.
package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/models"
	"github.com/alvarorichard/aniresolve/internal/util"
)

// TokenResponse is what a refresh call returns.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// RefreshFunc exchanges a refresh token for a new token pair.
type RefreshFunc func(ctx context.Context, refreshToken string) (TokenResponse, error)

// Manager holds the token state for one credential set.
type Manager struct {
	mu      sync.RWMutex
	token   models.AuthToken
	refresh RefreshFunc
	group   singleflight.Group
	now     func() time.Time
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithToken seeds the manager with an existing token.
func WithToken(tok models.AuthToken) Option {
	return func(m *Manager) { m.token = tok }
}

// NewManager starts unauthenticated with only a refresh token.
func NewManager(refreshToken string, refresh RefreshFunc, opts ...Option) *Manager {
	m := &Manager{
		token:   models.AuthToken{RefreshToken: refreshToken},
		refresh: refresh,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsAuthenticated reports whether a non-empty, unexpired access token exists.
func (m *Manager) IsAuthenticated() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token.Valid(m.now())
}

// Token returns a copy of the current state.
func (m *Manager) Token() models.AuthToken {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.token
}

// Refresh obtains a new token pair. Callers arriving while a refresh is in
// flight wait for it and observe its outcome instead of starting another.
// On failure the previous state is kept and false is returned.
func (m *Manager) Refresh(ctx context.Context) bool {
	ch := m.group.DoChan("refresh", func() (any, error) {
		m.mu.RLock()
		rt := m.token.RefreshToken
		m.mu.RUnlock()
		if rt == "" {
			return nil, errs.Auth("auth.refresh", "no refresh token configured")
		}

		resp, err := m.refresh(context.WithoutCancel(ctx), rt)
		if err != nil {
			return nil, err
		}
		if resp.AccessToken == "" {
			return nil, errs.Shape("auth.refresh", "token response without access_token")
		}

		m.mu.Lock()
		defer m.mu.Unlock()
		m.token.AccessToken = resp.AccessToken
		if resp.RefreshToken != "" {
			m.token.RefreshToken = resp.RefreshToken
		}
		m.token.Expiry = m.now().Add(time.Duration(resp.ExpiresIn) * time.Second)
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			util.Warnf("MangaDex token refresh failed: %v", res.Err)
			return false
		}
		return true
	case <-ctx.Done():
		return false
	}
}

// ExecuteWithRefresh calls fn with the current access token. An expired
// token is refreshed first. If fn reports 401 the token is refreshed and fn
// is retried exactly once; a second 401 is returned to the caller as is.
func ExecuteWithRefresh[T any](ctx context.Context, m *Manager, fn func(ctx context.Context, accessToken string) (T, error)) (T, error) {
	var zero T
	if !m.IsAuthenticated() && !m.Refresh(ctx) {
		return zero, errs.Auth("auth.execute", "no valid access token and refresh failed")
	}

	v, err := fn(ctx, m.Token().AccessToken)
	if err == nil || !errs.IsUnauthorized(err) {
		return v, err
	}

	util.Debug("MangaDex request unauthorized, refreshing token")
	if !m.Refresh(ctx) {
		return zero, errs.Auth("auth.execute", "refresh after unauthorized response failed: %w", err)
	}
	return fn(ctx, m.Token().AccessToken)
}
