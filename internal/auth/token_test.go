package auth

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/models"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func clock() time.Time { return fixedNow }

func TestManager_IsAuthenticated(t *testing.T) {
	t.Parallel()

	m := NewManager("rt", nil, WithClock(clock))
	assert.False(t, m.IsAuthenticated())

	m = NewManager("rt", nil, WithClock(clock), WithToken(models.AuthToken{
		AccessToken: "at", RefreshToken: "rt", Expiry: fixedNow.Add(time.Minute),
	}))
	assert.True(t, m.IsAuthenticated())

	m = NewManager("rt", nil, WithClock(clock), WithToken(models.AuthToken{
		AccessToken: "at", Expiry: fixedNow,
	}))
	assert.False(t, m.IsAuthenticated(), "expiry instant itself is not valid")
}

func TestManager_RefreshStoresTokens(t *testing.T) {
	t.Parallel()

	m := NewManager("rt-1", func(_ context.Context, rt string) (TokenResponse, error) {
		assert.Equal(t, "rt-1", rt)
		return TokenResponse{AccessToken: "at-2", RefreshToken: "rt-2", ExpiresIn: 900}, nil
	}, WithClock(clock))

	require.True(t, m.Refresh(context.Background()))
	tok := m.Token()
	assert.Equal(t, "at-2", tok.AccessToken)
	assert.Equal(t, "rt-2", tok.RefreshToken)
	assert.Equal(t, fixedNow.Add(900*time.Second), tok.Expiry)
	assert.True(t, m.IsAuthenticated())
}

func TestManager_RefreshFailureKeepsState(t *testing.T) {
	t.Parallel()

	prior := models.AuthToken{AccessToken: "old", RefreshToken: "rt", Expiry: fixedNow.Add(-time.Second)}
	m := NewManager("", func(context.Context, string) (TokenResponse, error) {
		return TokenResponse{}, errs.Status("mangadex.auth", 400)
	}, WithClock(clock), WithToken(prior))

	assert.False(t, m.Refresh(context.Background()))
	assert.Equal(t, prior, m.Token())
}

func TestManager_RefreshWithoutRefreshToken(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	m := NewManager("", func(context.Context, string) (TokenResponse, error) {
		calls.Add(1)
		return TokenResponse{AccessToken: "x", ExpiresIn: 1}, nil
	})
	assert.False(t, m.Refresh(context.Background()))
	assert.Zero(t, calls.Load())
}

func TestManager_ConcurrentRefreshIsSingleFlight(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	m := NewManager("rt", func(context.Context, string) (TokenResponse, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		<-release
		return TokenResponse{AccessToken: "shared", RefreshToken: "rt2", ExpiresIn: 60}, nil
	}, WithClock(clock))

	var wg sync.WaitGroup
	results := make([]bool, 2)
	tokens := make([]string, 2)
	run := func(i int) {
		defer wg.Done()
		results[i] = m.Refresh(context.Background())
		tokens[i] = m.Token().AccessToken
	}

	wg.Add(2)
	go run(0)
	<-started
	go run(1)
	// Give the second caller time to join the in-flight refresh.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, []bool{true, true}, results)
	assert.Equal(t, []string{"shared", "shared"}, tokens)
}

func TestExecuteWithRefresh_RetriesOnceOnUnauthorized(t *testing.T) {
	t.Parallel()

	var refreshes atomic.Int32
	m := NewManager("rt", func(context.Context, string) (TokenResponse, error) {
		n := refreshes.Add(1)
		return TokenResponse{AccessToken: []string{"", "a1", "a2"}[n], ExpiresIn: 60}, nil
	}, WithClock(clock))

	var seen []string
	out, err := ExecuteWithRefresh(context.Background(), m, func(_ context.Context, token string) (string, error) {
		seen = append(seen, token)
		if token == "a1" {
			return "", errs.Status("mangadex.get", 401)
		}
		return "payload", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "payload", out)
	assert.Equal(t, []string{"a1", "a2"}, seen)
	assert.Equal(t, int32(2), refreshes.Load())
}

func TestExecuteWithRefresh_DoesNotRetryTwice(t *testing.T) {
	t.Parallel()

	m := NewManager("rt", func(context.Context, string) (TokenResponse, error) {
		return TokenResponse{AccessToken: "tok", ExpiresIn: 60}, nil
	}, WithClock(clock))

	var calls int
	_, err := ExecuteWithRefresh(context.Background(), m, func(context.Context, string) (int, error) {
		calls++
		return 0, errs.Status("mangadex.get", 401)
	})
	require.Error(t, err)
	assert.True(t, errs.IsUnauthorized(err))
	assert.Equal(t, 2, calls)
}

func TestExecuteWithRefresh_AuthFailure(t *testing.T) {
	t.Parallel()

	m := NewManager("rt", func(context.Context, string) (TokenResponse, error) {
		return TokenResponse{}, errors.New("boom")
	}, WithClock(clock))

	called := false
	_, err := ExecuteWithRefresh(context.Background(), m, func(context.Context, string) (int, error) {
		called = true
		return 1, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errs.ErrAuthFailure))
	assert.False(t, called)
}

func TestExecuteWithRefresh_PassesOtherErrors(t *testing.T) {
	t.Parallel()

	m := NewManager("rt", nil, WithClock(clock), WithToken(models.AuthToken{
		AccessToken: "ok", Expiry: fixedNow.Add(time.Hour),
	}))
	_, err := ExecuteWithRefresh(context.Background(), m, func(context.Context, string) (int, error) {
		return 0, errs.Status("mangadex.get", 500)
	})
	require.Error(t, err)
	assert.False(t, errs.IsUnauthorized(err))
	assert.Equal(t, errs.KindTransport, errs.KindOf(err))
}
