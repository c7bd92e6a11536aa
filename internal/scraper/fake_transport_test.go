package scraper

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/alvarorichard/aniresolve/internal/cache"
	"github.com/alvarorichard/aniresolve/internal/config"
	"github.com/alvarorichard/aniresolve/internal/errs"
)

// route answers requests whose URL contains urlPart (and whose body contains
// bodyPart, when set). A handler, when set, answers instead of status/body.
type route struct {
	method   string
	urlPart  string
	bodyPart string
	status   int
	body     string
	handler  func(call recordedCall) (int, string)
}

type recordedCall struct {
	method  string
	url     string
	body    string
	headers map[string]string
}

// fakeTransport is a scripted transport.Transport. Unmatched requests
// get a 404.
type fakeTransport struct {
	mu     sync.Mutex
	routes []route
	calls  []recordedCall
}

func newFakeTransport(routes ...route) *fakeTransport {
	return &fakeTransport{routes: routes}
}

func (f *fakeTransport) Get(ctx context.Context, url string, headers map[string]string) ([]byte, error) {
	return f.handle(ctx, http.MethodGet, url, nil, headers)
}

func (f *fakeTransport) Post(ctx context.Context, url string, body []byte, headers map[string]string) ([]byte, error) {
	return f.handle(ctx, http.MethodPost, url, body, headers)
}

func (f *fakeTransport) handle(ctx context.Context, method, url string, body []byte, headers map[string]string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Transport("fake", err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, recordedCall{method: method, url: url, body: string(body), headers: headers})
	for _, r := range f.routes {
		if r.method != "" && r.method != method {
			continue
		}
		if !strings.Contains(url, r.urlPart) {
			continue
		}
		if r.bodyPart != "" && !strings.Contains(string(body), r.bodyPart) {
			continue
		}
		status, respBody := r.status, r.body
		if r.handler != nil {
			status, respBody = r.handler(f.calls[len(f.calls)-1])
		}
		if status != 0 && status != http.StatusOK {
			return nil, errs.Status("fake", status)
		}
		return []byte(respBody), nil
	}
	return nil, errs.Status("fake", http.StatusNotFound)
}

// count returns how many calls hit a URL containing part.
func (f *fakeTransport) count(part string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.Contains(c.url, part) {
			n++
		}
	}
	return n
}

func (f *fakeTransport) last(part string) recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.calls) - 1; i >= 0; i-- {
		if strings.Contains(f.calls[i].url, part) {
			return f.calls[i]
		}
	}
	return recordedCall{}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.AllAnimeAPI = "https://api.test/api"
	cfg.AllAnimeBase = "https://allanime.test"
	cfg.AllAnimeReferer = "https://allmanga.test"
	cfg.HiAnimeBase = "https://hianime.test"
	cfg.MegaCloudBase = "https://megacloud.test"
	cfg.NguonCBase = "https://nguonc.test"
	cfg.MangaDexAPI = "https://mangadex.test"
	cfg.MangaDexAuthURL = "https://auth.mangadex.test/token"
	cfg.MaxConcurrentEmbeds = 2
	return cfg
}

func testDeps(t *testing.T, tr *fakeTransport) Deps {
	t.Helper()
	return Deps{
		Config:    testConfig(),
		Transport: tr,
		Metadata:  cache.NewMemoryMetadataStore(),
	}
}
