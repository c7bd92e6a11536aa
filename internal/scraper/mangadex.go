package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/alvarorichard/aniresolve/internal/auth"
	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/models"
	"github.com/alvarorichard/aniresolve/internal/transport"
	"github.com/alvarorichard/aniresolve/internal/util"
)

const (
	mangaDexResultOK   = "ok"
	mangaDexSearchSize = 20
	mangaDexFeedSize   = 500
	mangaDexMaxPages   = 20

	// Server names for the two at-home page sets.
	MangaDexServer          = "MangaDex"
	MangaDexDataSaverServer = "MangaDex Data Saver"
)

// MangaDex is the REST client for api.mangadex.org. Chapters play the role
// of episodes and chapter pages the role of stream links.
type MangaDex struct {
	deps Deps
	auth *auth.Manager
}

// NewMangaDex creates a MangaDex client. When the config carries client
// credentials and a refresh token every request is authenticated.
func NewMangaDex(deps Deps) *MangaDex {
	c := &MangaDex{deps: deps.withDefaults()}
	if c.deps.Config.MangaDexAuthEnabled() {
		c.auth = auth.NewManager(c.deps.Config.MangaDexRefreshToken, c.refreshToken)
	}
	return c
}

// NewMangaDexWithAuth uses an existing token manager.
func NewMangaDexWithAuth(deps Deps, m *auth.Manager) *MangaDex {
	return &MangaDex{deps: deps.withDefaults(), auth: m}
}

func (c *MangaDex) Name() string { return MangaDexName }

func (c *MangaDex) api() string { return strings.TrimRight(c.deps.Config.MangaDexAPI, "/") }

// refreshToken performs the OAuth refresh_token grant.
func (c *MangaDex) refreshToken(ctx context.Context, refreshToken string) (auth.TokenResponse, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.deps.Config.MangaDexClientID)
	form.Set("client_secret", c.deps.Config.MangaDexClientSecret)

	body, err := c.deps.Transport.Post(ctx, c.deps.Config.MangaDexAuthURL, []byte(form.Encode()),
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"})
	if err != nil {
		return auth.TokenResponse{}, errors.Wrap(err, "token refresh failed")
	}
	var tok auth.TokenResponse
	if err := decodeJSON("mangadex.auth", body, &tok); err != nil {
		return auth.TokenResponse{}, err
	}
	return tok, nil
}

// get decodes a JSON endpoint, going through the token manager when
// authentication is configured.
func (c *MangaDex) get(ctx context.Context, op, u string, v any) error {
	if c.auth == nil {
		return getJSON(ctx, c.deps.Transport, op, u, nil, v)
	}
	_, err := auth.ExecuteWithRefresh(ctx, c.auth, func(ctx context.Context, token string) (struct{}, error) {
		return struct{}{}, getJSON(ctx, c.deps.Transport, op, u, map[string]string{"Authorization": "Bearer " + token}, v)
	})
	return err
}

func checkResult(op, result string) error {
	if result != mangaDexResultOK {
		return errs.Shape(op, "result %q", result)
	}
	return nil
}

func validMangaDexID(op, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return errs.NotFound(op, "invalid id %q", id)
	}
	return nil
}

type localized map[string]string

// pick prefers English, then romanized Japanese, then any value.
func (l localized) pick() string {
	for _, k := range []string{"en", "ja-ro", "ja"} {
		if v := strings.TrimSpace(l[k]); v != "" {
			return v
		}
	}
	for _, v := range l {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

type mangaDexManga struct {
	ID         string `json:"id"`
	Attributes struct {
		Title     localized   `json:"title"`
		AltTitles []localized `json:"altTitles"`
		Tags      []struct {
			Attributes struct {
				Name  localized `json:"name"`
				Group string    `json:"group"`
			} `json:"attributes"`
		} `json:"tags"`
	} `json:"attributes"`
}

func (m mangaDexManga) reference() models.ShowReference {
	ref := models.ShowReference{
		Provider:       MangaDexName,
		ProviderID:     m.ID,
		CanonicalTitle: m.Attributes.Title.pick(),
	}
	for _, alt := range m.Attributes.AltTitles {
		for _, v := range alt {
			if v = strings.TrimSpace(v); v != "" && v != ref.CanonicalTitle {
				ref.AlternateTitles = append(ref.AlternateTitles, v)
			}
		}
	}
	var genres []string
	for _, t := range m.Attributes.Tags {
		if t.Attributes.Group == "genre" || t.Attributes.Group == "theme" {
			genres = append(genres, t.Attributes.Name.pick())
		}
	}
	ref.Genres = models.GenreSet(genres...)
	return ref
}

// Search queries /manga by title.
func (c *MangaDex) Search(ctx context.Context, query string, page int) ([]models.ShowReference, error) {
	if page < 1 {
		page = 1
	}
	q := url.Values{}
	q.Set("title", query)
	q.Set("limit", fmt.Sprint(mangaDexSearchSize))
	q.Set("offset", fmt.Sprint((page-1)*mangaDexSearchSize))

	var resp struct {
		Result string          `json:"result"`
		Data   []mangaDexManga `json:"data"`
	}
	if err := c.get(ctx, "mangadex.search", c.api()+"/manga?"+q.Encode(), &resp); err != nil {
		return nil, errors.Wrap(err, "failed to search manga")
	}
	if err := checkResult("mangadex.search", resp.Result); err != nil {
		return nil, err
	}
	results := make([]models.ShowReference, 0, len(resp.Data))
	for _, m := range resp.Data {
		if m.ID != "" {
			results = append(results, m.reference())
		}
	}
	return results, nil
}

// GetShowDetails fetches /manga/{id}.
func (c *MangaDex) GetShowDetails(ctx context.Context, id string) (models.ShowReference, error) {
	if err := validMangaDexID("mangadex.manga", id); err != nil {
		return models.ShowReference{}, err
	}
	var resp struct {
		Result string         `json:"result"`
		Data   *mangaDexManga `json:"data"`
	}
	if err := c.get(ctx, "mangadex.manga", c.api()+"/manga/"+id, &resp); err != nil {
		return models.ShowReference{}, errors.Wrap(err, "failed to get manga")
	}
	if err := checkResult("mangadex.manga", resp.Result); err != nil {
		return models.ShowReference{}, err
	}
	if resp.Data == nil {
		return models.ShowReference{}, errs.NotFound("mangadex.manga", "manga %s not found", id)
	}
	ref := resp.Data.reference()
	if err := c.deps.Metadata.Set(ctx, MangaDexName, id, ref.CanonicalTitle); err != nil {
		util.Debug("failed to store show title", "provider", MangaDexName, "error", err)
	}
	return ref, nil
}

type mangaDexChapter struct {
	ID         string `json:"id"`
	Attributes struct {
		Chapter   *string `json:"chapter"`
		Title     *string `json:"title"`
		PublishAt string  `json:"publishAt"`
		Pages     int     `json:"pages"`
	} `json:"attributes"`
}

type feedChapter struct {
	models.EpisodeDescriptor
	id string
}

// feed walks the chapter feed, keeping the first chapter per number.
func (c *MangaDex) feed(ctx context.Context, mangaID string) ([]feedChapter, error) {
	if err := validMangaDexID("mangadex.feed", mangaID); err != nil {
		return nil, err
	}
	var out []feedChapter
	seen := make(map[float64]struct{})
	for page := 0; page < mangaDexMaxPages; page++ {
		q := url.Values{}
		q.Set("limit", fmt.Sprint(mangaDexFeedSize))
		q.Set("offset", fmt.Sprint(page*mangaDexFeedSize))
		q.Set("translatedLanguage[]", "en")
		q.Set("order[chapter]", "asc")

		var resp struct {
			Result string            `json:"result"`
			Data   []mangaDexChapter `json:"data"`
			Total  int               `json:"total"`
		}
		if err := c.get(ctx, "mangadex.feed", c.api()+"/manga/"+mangaID+"/feed?"+q.Encode(), &resp); err != nil {
			return nil, errors.Wrap(err, "failed to list chapters")
		}
		if err := checkResult("mangadex.feed", resp.Result); err != nil {
			return nil, err
		}

		for _, ch := range resp.Data {
			if ch.Attributes.Chapter == nil {
				continue
			}
			n, ok := models.ParseEpisodeNumber(*ch.Attributes.Chapter)
			if !ok {
				continue
			}
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			ep := models.EpisodeDescriptor{Number: n}
			if ch.Attributes.Title != nil {
				ep.Notes = *ch.Attributes.Title
			}
			if ts, err := time.Parse(time.RFC3339, ch.Attributes.PublishAt); err == nil {
				ep.UploadDates = map[models.TranslationType]time.Time{models.TranslationSub: ts}
			}
			out = append(out, feedChapter{EpisodeDescriptor: ep, id: ch.ID})
		}
		if len(resp.Data) == 0 || (page+1)*mangaDexFeedSize >= resp.Total {
			break
		}
	}
	return out, nil
}

// ListEpisodes lists chapters.
func (c *MangaDex) ListEpisodes(ctx context.Context, showID string, start, end float64) ([]models.EpisodeDescriptor, error) {
	chapters, err := c.feed(ctx, showID)
	if err != nil {
		return nil, err
	}
	out := make([]models.EpisodeDescriptor, len(chapters))
	for i, ch := range chapters {
		out[i] = ch.EpisodeDescriptor
	}
	return models.FilterEpisodes(out, start, end), nil
}

// ChapterPages are the page URLs of one chapter.
type ChapterPages struct {
	Full      []string
	DataSaver []string
}

// GetChapterPages resolves the at-home server for chapterID.
func (c *MangaDex) GetChapterPages(ctx context.Context, chapterID string) (ChapterPages, error) {
	if err := validMangaDexID("mangadex.athome", chapterID); err != nil {
		return ChapterPages{}, err
	}
	var resp struct {
		Result  string `json:"result"`
		BaseURL string `json:"baseUrl"`
		Chapter struct {
			Hash      string   `json:"hash"`
			Data      []string `json:"data"`
			DataSaver []string `json:"dataSaver"`
		} `json:"chapter"`
	}
	// baseUrl is only valid for a few minutes.
	if err := c.get(transport.WithoutCache(ctx), "mangadex.athome", c.api()+"/at-home/server/"+chapterID, &resp); err != nil {
		return ChapterPages{}, errors.Wrap(err, "failed to get chapter server")
	}
	if err := checkResult("mangadex.athome", resp.Result); err != nil {
		return ChapterPages{}, err
	}
	if resp.BaseURL == "" || resp.Chapter.Hash == "" {
		return ChapterPages{}, errs.Shape("mangadex.athome", "missing baseUrl or hash")
	}

	base := strings.TrimRight(resp.BaseURL, "/")
	var pages ChapterPages
	for _, f := range resp.Chapter.Data {
		pages.Full = append(pages.Full, base+"/data/"+resp.Chapter.Hash+"/"+f)
	}
	for _, f := range resp.Chapter.DataSaver {
		pages.DataSaver = append(pages.DataSaver, base+"/data-saver/"+resp.Chapter.Hash+"/"+f)
	}
	return pages, nil
}

// GetStreams maps a chapter to two servers whose links are page images.
func (c *MangaDex) GetStreams(ctx context.Context, showID string, episode float64, tt models.TranslationType) ([]models.StreamServer, error) {
	if tt == "" {
		tt = models.TranslationSub
	}
	chapters, err := c.feed(ctx, showID)
	if err != nil {
		return nil, err
	}
	var chapterID string
	for _, ch := range chapters {
		if ch.Number == episode {
			chapterID = ch.id
			break
		}
	}
	if chapterID == "" {
		return nil, errs.NotFound("mangadex.streams", "chapter %s of %s not found", models.FormatEpisodeNumber(episode), showID)
	}

	pages, err := c.GetChapterPages(ctx, chapterID)
	if err != nil {
		return nil, err
	}

	title := cachedTitle(ctx, c, c.deps.Metadata, showID)
	label := "Chapter " + models.FormatEpisodeNumber(episode)
	if title != "" {
		label = title + " - " + label
	}
	toLinks := func(urls []string) []models.StreamLink {
		links := make([]models.StreamLink, len(urls))
		for i, u := range urls {
			links[i] = models.StreamLink{URL: u, Quality: models.QualityUnknown, TranslationType: tt}
		}
		return links
	}
	return models.CompactServers([]models.StreamServer{
		{ServerName: MangaDexServer, EpisodeTitle: label, Links: toLinks(pages.Full)},
		{ServerName: MangaDexDataSaverServer, EpisodeTitle: label, Links: toLinks(pages.DataSaver)},
	}), nil
}
