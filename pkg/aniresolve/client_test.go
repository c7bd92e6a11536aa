package aniresolve_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/transport"
	"github.com/alvarorichard/aniresolve/pkg/aniresolve"
)

const filmJSON = `{"status":"success","movie":{"name":"Conan","slug":"conan","original_name":"Detective Conan",
 "episodes":[{"server_name":"Vietsub #1","items":[{"name":"1","m3u8":"https://cdn.test/1.m3u8"}]}]}}`

// newUpstream serves the NguonC endpoints and 404s everything else.
func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/films/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"success","items":[{"name":"Conan","slug":"conan","original_name":"Detective Conan"}]}`))
	})
	mux.HandleFunc("/api/film/conan", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(filmJSON))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(base string) aniresolve.Config {
	cfg := aniresolve.DefaultConfig()
	cfg.Timeout = 2 * time.Second
	cfg.RetryDelay = time.Millisecond
	cfg.AllAnimeAPI = base + "/allanime/api"
	cfg.AllAnimeBase = base + "/allanime"
	cfg.HiAnimeBase = base + "/hianime"
	cfg.MegaCloudBase = base + "/megacloud"
	cfg.NguonCBase = base
	cfg.MangaDexAPI = base + "/mangadex"
	return cfg
}

func TestNewClient_RejectsInvalidConfig(t *testing.T) {
	cfg := aniresolve.DefaultConfig()
	cfg.CacheLifetime = 0

	_, err := aniresolve.NewClient(cfg)
	assert.Error(t, err)
}

func TestClient_Providers(t *testing.T) {
	client, err := aniresolve.NewClient(aniresolve.DefaultConfig())
	require.NoError(t, err)
	defer client.Close()

	assert.Equal(t, []string{
		aniresolve.ProviderAllAnime,
		aniresolve.ProviderHiAnime,
		aniresolve.ProviderNguonC,
		aniresolve.ProviderMangaDex,
	}, client.Providers())
}

func TestClient_EndToEnd(t *testing.T) {
	srv := newUpstream(t)
	client, err := aniresolve.NewClient(testConfig(srv.URL))
	require.NoError(t, err)
	defer client.Close()
	ctx := context.Background()

	results, err := client.Search(ctx, "conan", 1)
	require.NoError(t, err, "failing providers are skipped")
	require.Len(t, results, 1)
	assert.Equal(t, aniresolve.ProviderNguonC, results[0].Provider)

	eps, err := client.ListEpisodes(ctx, aniresolve.ProviderNguonC, "conan", 1, aniresolve.OpenEnd)
	require.NoError(t, err)
	require.Len(t, eps, 1)

	servers, err := client.GetStreams(ctx, aniresolve.ProviderNguonC, "conan", 1, aniresolve.StreamOptions{})
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, "Conan - Episode 1", servers[0].EpisodeTitle)
	assert.Equal(t, "https://cdn.test/1.m3u8", servers[0].Links[0].URL)

	_, err = client.GetDetails(ctx, "nope", "conan")
	assert.ErrorIs(t, err, aniresolve.ErrNotFound)
}

func TestClient_CachesResponses(t *testing.T) {
	var gets atomic.Int32
	tr := transport.Func{
		GetFunc: func(_ context.Context, url string, headers map[string]string) ([]byte, error) {
			gets.Add(1)
			if headers["Accept-Language"] != "vi" {
				return nil, errs.Status("test", http.StatusBadRequest)
			}
			if strings.Contains(url, "/api/film/conan") {
				return []byte(filmJSON), nil
			}
			return nil, errs.Status("test", http.StatusNotFound)
		},
		PostFunc: func(context.Context, string, []byte, map[string]string) ([]byte, error) {
			return nil, errs.Status("test", http.StatusNotFound)
		},
	}

	client, err := aniresolve.NewClient(testConfig("https://upstream.test"), aniresolve.WithTransport(tr),
		aniresolve.WithHeaders(map[string]string{"Accept-Language": "vi"}))
	require.NoError(t, err)
	defer client.Close()

	for i := 0; i < 3; i++ {
		ref, err := client.GetDetails(context.Background(), aniresolve.ProviderNguonC, "conan")
		require.NoError(t, err)
		assert.Equal(t, "Conan", ref.CanonicalTitle)
	}
	assert.Equal(t, int32(1), gets.Load())
}

func TestClient_PersistentCache(t *testing.T) {
	srv := newUpstream(t)
	cfg := testConfig(srv.URL)
	cfg.CachePath = filepath.Join(t.TempDir(), "cache", "aniresolve.db")

	client, err := aniresolve.NewClient(cfg, aniresolve.WithFs(afero.NewMemMapFs()))
	require.NoError(t, err)

	ref, err := client.GetDetails(context.Background(), aniresolve.ProviderNguonC, "conan")
	require.NoError(t, err)
	assert.Equal(t, []string{"Detective Conan"}, ref.AlternateTitles)

	removed, err := client.Prune(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed, "nothing has expired yet")
	assert.NoError(t, client.Close())
}

func TestParseProvider(t *testing.T) {
	tests := []struct {
		input    string
		expected string
		hasError bool
	}{
		{"AllAnime", aniresolve.ProviderAllAnime, false},
		{"all", aniresolve.ProviderAllAnime, false},
		{"hi", aniresolve.ProviderHiAnime, false},
		{"NguonC", aniresolve.ProviderNguonC, false},
		{" md ", aniresolve.ProviderMangaDex, false},
		{"animefire", "", true},
	}

	for _, tt := range tests {
		got, err := aniresolve.ParseProvider(tt.input)
		if tt.hasError {
			assert.Error(t, err, tt.input)
			continue
		}
		require.NoError(t, err, tt.input)
		assert.Equal(t, tt.expected, got)
	}
}

func TestParseTranslation(t *testing.T) {
	tt, err := aniresolve.ParseTranslation("DUB")
	require.NoError(t, err)
	assert.Equal(t, aniresolve.TranslationDub, tt)

	_, err = aniresolve.ParseTranslation("raw")
	assert.Error(t, err)
}
