package scraper

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/models"
)

const nguonCSearchJSON = `{"status":"success","items":[
 {"name":"Thám Tử Lừng Danh Conan","slug":"tham-tu-lung-danh-conan","original_name":"Detective Conan"},
 {"name":"Không slug","slug":""}
]}`

const nguonCFilmJSON = `{"status":"success","movie":{
 "name":"Thám Tử Lừng Danh Conan","slug":"tham-tu-lung-danh-conan","original_name":"Detective Conan",
 "category":{
  "1":{"group":{"id":"1","name":"Định dạng"},"list":[{"name":"Phim bộ"}]},
  "2":{"group":{"id":"2","name":"Thể loại"},"list":[{"name":"Hoạt Hình"},{"name":"Hình Sự"}]}
 },
 "episodes":[
  {"server_name":"Vietsub #1","items":[
   {"name":"1","slug":"tap-1","m3u8":"https://cdn.test/vs1/1.m3u8"},
   {"name":"Tập 2","slug":"tap-2","m3u8":"https://cdn.test/vs1/2.m3u8"},
   {"name":"Full","slug":"full","m3u8":"https://cdn.test/vs1/full.m3u8"}
  ]},
  {"server_name":"Lồng Tiếng #1","items":[
   {"name":"2","slug":"tap-2","m3u8":"https://cdn.test/lt1/2.m3u8"}
  ]},
  {"server_name":"Thuyết Minh #1","items":[
   {"name":"1","slug":"tap-1","m3u8":"https://cdn.test/tm1/1.m3u8"}
  ]}
 ]
}}`

func nguonCRoutes() []route {
	return []route{
		{urlPart: "/api/films/search?", body: nguonCSearchJSON},
		{urlPart: "/api/film/tham-tu-lung-danh-conan", body: nguonCFilmJSON},
		{urlPart: "/api/film/missing", body: `{"status":"error","message":"not found"}`},
	}
}

func TestNguonC_Search(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(nguonCRoutes()...)
	c := NewNguonC(testDeps(t, tr))

	results, err := c.Search(context.Background(), "conan", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tham-tu-lung-danh-conan", results[0].ProviderID)
	assert.Equal(t, []string{"Detective Conan"}, results[0].AlternateTitles)
	assert.Contains(t, tr.last("search").url, "page=1")
}

func TestNguonC_Search_NonSuccessStatus(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(route{urlPart: "/api/films/search?", body: `{"status":"error"}`})
	c := NewNguonC(testDeps(t, tr))

	results, err := c.Search(context.Background(), "conan", 1)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestNguonC_GetShowDetails(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(nguonCRoutes()...)
	c := NewNguonC(testDeps(t, tr))

	ref, err := c.GetShowDetails(context.Background(), "tham-tu-lung-danh-conan")
	require.NoError(t, err)
	assert.Equal(t, "Thám Tử Lừng Danh Conan", ref.CanonicalTitle)
	assert.ElementsMatch(t, []string{"Hoạt Hình", "Hình Sự"}, ref.Genres)

	_, err = c.GetShowDetails(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestNguonC_ListEpisodes(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(nguonCRoutes()...)
	c := NewNguonC(testDeps(t, tr))

	eps, err := c.ListEpisodes(context.Background(), "tham-tu-lung-danh-conan", 1, models.OpenEnd)
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, 1.0, eps[0].Number)
	assert.Equal(t, 2.0, eps[1].Number)
}

func TestNguonC_GetStreams(t *testing.T) {
	t.Parallel()

	tr := newFakeTransport(nguonCRoutes()...)
	c := NewNguonC(testDeps(t, tr))
	ctx := context.Background()

	sub, err := c.GetStreams(ctx, "tham-tu-lung-danh-conan", 1, models.TranslationSub)
	require.NoError(t, err)
	require.Len(t, sub, 1)
	assert.Equal(t, "Vietsub #1", sub[0].ServerName)
	assert.Equal(t, "Thám Tử Lừng Danh Conan - Episode 1", sub[0].EpisodeTitle)
	require.Len(t, sub[0].Links, 1)
	assert.Equal(t, "https://cdn.test/vs1/1.m3u8", sub[0].Links[0].URL)
	assert.Equal(t, models.Quality1080, sub[0].Links[0].Quality)
	assert.Equal(t, "https://nguonc.test/", sub[0].RequiredHeaders["Referer"])

	dub, err := c.GetStreams(ctx, "tham-tu-lung-danh-conan", 2, models.TranslationDub)
	require.NoError(t, err)
	require.Len(t, dub, 1, "the voice-over server has no episode 2")
	assert.Equal(t, "Lồng Tiếng #1", dub[0].ServerName)
	assert.Equal(t, models.TranslationDub, dub[0].Links[0].TranslationType)

	none, err := c.GetStreams(ctx, "tham-tu-lung-danh-conan", 9, models.TranslationSub)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = c.GetStreams(ctx, "missing", 1, models.TranslationSub)
	assert.Equal(t, errs.KindNotFound, errs.KindOf(err))
}

func TestServerTranslation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		label string
		want  models.TranslationType
	}{
		{"Vietsub #1", models.TranslationSub},
		{"Thuyết Minh #2", models.TranslationDub},
		{"LỒNG TIẾNG", models.TranslationDub},
		{"", models.TranslationSub},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, serverTranslation(tt.label))
		})
	}
}
