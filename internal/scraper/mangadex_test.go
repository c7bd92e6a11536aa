package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/aniresolve/internal/cache"
	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/models"
	"github.com/alvarorichard/aniresolve/internal/transport"
)

const (
	testMangaID   = "a1c7c817-4e59-43b7-9365-09675a149a6f"
	testChapterID = "0b8f5a2e-7c1d-4c3e-9f0a-2d6b1e4c8a77"
)

const mangaDexMangaJSON = `{
 "id":"a1c7c817-4e59-43b7-9365-09675a149a6f",
 "attributes":{
  "title":{"en":"One Piece"},
  "altTitles":[{"ja":"ワンピース"},{"ja-ro":"One Piece"},{"fr":"One Piece (FR)"}],
  "tags":[
   {"attributes":{"name":{"en":"Adventure"},"group":"genre"}},
   {"attributes":{"name":{"en":"Pirates"},"group":"theme"}},
   {"attributes":{"name":{"en":"Long Strip"},"group":"format"}}
  ]
 }}`

const mangaDexFeedJSON = `{"result":"ok","total":4,"data":[
 {"id":"0b8f5a2e-7c1d-4c3e-9f0a-2d6b1e4c8a77","attributes":{"chapter":"1","title":"Romance Dawn","publishAt":"2018-01-19T00:00:00+00:00"}},
 {"id":"dup","attributes":{"chapter":"1","title":"Romance Dawn (other group)"}},
 {"id":"oneshot","attributes":{"chapter":null,"title":"Oneshot"}},
 {"id":"c2","attributes":{"chapter":"2.5","title":null}}
]}`

const mangaDexAtHomeJSON = `{"result":"ok","baseUrl":"https://uploads.test/",
 "chapter":{"hash":"h4sh","data":["1.png","2.png"],"dataSaver":["1.jpg","2.jpg"]}}`

func mangaDexRoutes() []route {
	return []route{
		{urlPart: "/manga?", body: `{"result":"ok","data":[` + mangaDexMangaJSON + `,{"id":""}]}`},
		{urlPart: "/feed?", body: mangaDexFeedJSON},
		{urlPart: "/at-home/server/" + testChapterID, body: mangaDexAtHomeJSON},
		{urlPart: "/manga/" + testMangaID, body: `{"result":"ok","data":` + mangaDexMangaJSON + `}`},
	}
}

func TestMangaDex_Search(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(mangaDexRoutes()...)
	c := NewMangaDex(testDeps(t, tr))

	results, err := c.Search(context.Background(), "one piece", 2)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, testMangaID, results[0].ProviderID)
	assert.Equal(t, "One Piece", results[0].CanonicalTitle)
	assert.ElementsMatch(t, []string{"ワンピース", "One Piece (FR)"}, results[0].AlternateTitles)
	assert.Equal(t, []string{"Adventure", "Pirates"}, results[0].Genres)

	call := tr.last("/manga?")
	assert.Contains(t, call.url, "offset=20")
	assert.Empty(t, call.headers["Authorization"], "anonymous requests carry no token")
}

func TestMangaDex_Search_BadResult(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(route{urlPart: "/manga?", body: `{"result":"error","errors":[]}`})
	c := NewMangaDex(testDeps(t, tr))

	_, err := c.Search(context.Background(), "x", 1)
	require.Error(t, err)
	assert.Equal(t, errs.KindShape, errs.KindOf(err))
}

func TestMangaDex_GetShowDetails(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(mangaDexRoutes()...)
	c := NewMangaDex(testDeps(t, tr))

	ref, err := c.GetShowDetails(context.Background(), testMangaID)
	require.NoError(t, err)
	assert.Equal(t, "One Piece", ref.CanonicalTitle)

	_, err = c.GetShowDetails(context.Background(), "not-a-uuid")
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
	assert.Zero(t, tr.count("not-a-uuid"), "invalid ids never reach the network")
}

func TestMangaDex_ListEpisodes(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(mangaDexRoutes()...)
	c := NewMangaDex(testDeps(t, tr))

	eps, err := c.ListEpisodes(context.Background(), testMangaID, 0, models.OpenEnd)
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, 1.0, eps[0].Number)
	assert.Equal(t, "Romance Dawn", eps[0].Notes)
	assert.Equal(t, 2018, eps[0].UploadDates[models.TranslationSub].Year())
	assert.Equal(t, 2.5, eps[1].Number)
	assert.Empty(t, eps[1].Notes)

	feed := tr.last("/feed?")
	q, err := url.ParseQuery(feed.url[len("https://mangadex.test/manga/"+testMangaID+"/feed?"):])
	require.NoError(t, err)
	assert.Equal(t, "en", q.Get("translatedLanguage[]"))
	assert.Equal(t, "asc", q.Get("order[chapter]"))
}

func TestMangaDex_FeedPagination(t *testing.T) {
	t.Parallel()

	var chapters []string
	for i := 1; i <= 500; i++ {
		chapters = append(chapters, fmt.Sprintf(`{"id":"p1-%d","attributes":{"chapter":"%d"}}`, i, i))
	}
	first := `{"result":"ok","total":501,"data":[` + strings.Join(chapters, ",") + `]}`
	second := `{"result":"ok","total":501,"data":[{"id":"p2","attributes":{"chapter":"501"}}]}`

	tr := newFakeTransport(
		route{urlPart: "offset=0", body: first},
		route{urlPart: "offset=500", body: second},
	)
	c := NewMangaDex(testDeps(t, tr))

	eps, err := c.ListEpisodes(context.Background(), testMangaID, 499, models.OpenEnd)
	require.NoError(t, err)
	require.Len(t, eps, 3)
	assert.Equal(t, 501.0, eps[2].Number)
	assert.Equal(t, 2, tr.count("/feed?"))
}

func TestMangaDex_GetStreams(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(mangaDexRoutes()...)
	c := NewMangaDex(testDeps(t, tr))

	servers, err := c.GetStreams(context.Background(), testMangaID, 1, "")
	require.NoError(t, err)
	require.Len(t, servers, 2)

	assert.Equal(t, MangaDexServer, servers[0].ServerName)
	assert.Equal(t, "One Piece - Chapter 1", servers[0].EpisodeTitle)
	require.Len(t, servers[0].Links, 2)
	assert.Equal(t, "https://uploads.test/data/h4sh/1.png", servers[0].Links[0].URL)
	assert.Equal(t, models.QualityUnknown, servers[0].Links[0].Quality)

	assert.Equal(t, MangaDexDataSaverServer, servers[1].ServerName)
	assert.Equal(t, "https://uploads.test/data-saver/h4sh/2.jpg", servers[1].Links[1].URL)

	_, err = c.GetStreams(context.Background(), testMangaID, 7, "")
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestMangaDex_GetChapterPages_MissingHash(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(route{urlPart: "/at-home/server/", body: `{"result":"ok","baseUrl":"https://uploads.test","chapter":{}}`})
	c := NewMangaDex(testDeps(t, tr))

	_, err := c.GetChapterPages(context.Background(), testChapterID)
	assert.Equal(t, errs.KindShape, errs.KindOf(err))
}

func TestMangaDex_RefreshesExpiredToken(t *testing.T) {
	t.Parallel()

	issued := 0
	tr := newFakeTransport(
		route{method: http.MethodPost, urlPart: "auth.mangadex.test/token", handler: func(call recordedCall) (int, string) {
			form, _ := url.ParseQuery(call.body)
			if form.Get("grant_type") != "refresh_token" || form.Get("refresh_token") != "refresh-1" || form.Get("client_id") != "client" {
				return http.StatusBadRequest, ""
			}
			issued++
			return http.StatusOK, fmt.Sprintf(`{"access_token":"tok%d","refresh_token":"refresh-1","expires_in":900}`, issued)
		}},
		route{urlPart: "/manga?", handler: func(call recordedCall) (int, string) {
			switch call.headers["Authorization"] {
			case "Bearer tok1":
				return http.StatusUnauthorized, ""
			case "Bearer tok2":
				return http.StatusOK, `{"result":"ok","data":[]}`
			}
			return http.StatusForbidden, ""
		}},
	)

	deps := testDeps(t, tr)
	deps.Config.MangaDexClientID = "client"
	deps.Config.MangaDexClientSecret = "secret"
	deps.Config.MangaDexRefreshToken = "refresh-1"
	c := NewMangaDex(deps)

	results, err := c.Search(context.Background(), "x", 1)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.Equal(t, 2, issued)
	assert.Equal(t, 2, tr.count("/manga?"))
}

func TestMangaDex_RefreshFailureIsAuthError(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(
		route{method: http.MethodPost, urlPart: "/token", status: http.StatusBadRequest},
		route{urlPart: "/manga?", body: `{"result":"ok","data":[]}`},
	)
	deps := testDeps(t, tr)
	deps.Config.MangaDexClientID = "client"
	deps.Config.MangaDexClientSecret = "secret"
	deps.Config.MangaDexRefreshToken = "revoked"
	c := NewMangaDex(deps)

	_, err := c.Search(context.Background(), "x", 1)
	require.Error(t, err)
	assert.Equal(t, errs.KindAuth, errs.KindOf(err))
	assert.Zero(t, tr.count("/manga?"))
}

func TestMangaDex_GetChapterPages_BypassesResponseCache(t *testing.T) {
	t.Parallel()

	node := 0
	tr := newFakeTransport(route{urlPart: "/at-home/server/", handler: func(recordedCall) (int, string) {
		node++
		return http.StatusOK, fmt.Sprintf(`{"result":"ok","baseUrl":"https://node-%d.test","chapter":{"hash":"h","data":["1.png"]}}`, node)
	}})
	requests, err := cache.NewMemoryRequestCache(8, time.Hour)
	require.NoError(t, err)
	deps := testDeps(t, tr)
	deps.Transport = transport.NewCachingTransport(tr, requests)
	c := NewMangaDex(deps)

	first, err := c.GetChapterPages(context.Background(), testChapterID)
	require.NoError(t, err)
	second, err := c.GetChapterPages(context.Background(), testChapterID)
	require.NoError(t, err)

	assert.Equal(t, []string{"https://node-1.test/data/h/1.png"}, first.Full)
	assert.Equal(t, []string{"https://node-2.test/data/h/1.png"}, second.Full)
}
