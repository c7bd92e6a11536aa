package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/pkg/errors"
	"github.com/sourcegraph/conc/iter"

	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/models"
	"github.com/alvarorichard/aniresolve/internal/transport"
	"github.com/alvarorichard/aniresolve/internal/util"
)

// HiAnime scrapes hianime HTML pages and resolves MegaCloud embeds.
type HiAnime struct {
	deps    Deps
	scripts transport.Transport
}

// NewHiAnime creates a HiAnime client. Player scripts are fetched through
// deps.Scripts so the key-extraction script is downloaded once per lifetime,
// unless deps.Transport already caches every GET.
func NewHiAnime(deps Deps) *HiAnime {
	deps = deps.withDefaults()
	scripts := transport.Transport(deps.Transport)
	if _, cached := deps.Transport.(*transport.CachingTransport); !cached && deps.Scripts != nil {
		scripts = transport.NewCachingTransport(deps.Transport, deps.Scripts)
	}
	return &HiAnime{deps: deps, scripts: scripts}
}

func (c *HiAnime) Name() string { return HiAnimeName }

// ajaxResponse is the envelope of the /ajax/v2 endpoints.
type ajaxResponse struct {
	Status bool   `json:"status"`
	HTML   string `json:"html"`
}

func (c *HiAnime) base() string { return strings.TrimRight(c.deps.Config.HiAnimeBase, "/") }

func (c *HiAnime) document(ctx context.Context, op, u string) (*goquery.Document, error) {
	body, err := c.deps.Transport.Get(ctx, u, map[string]string{"Referer": c.base() + "/"})
	if err != nil {
		return nil, errors.Wrapf(err, "%s: request failed", op)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errs.Shape(op, "failed to parse HTML: %v", err)
	}
	return doc, nil
}

func (c *HiAnime) ajax(ctx context.Context, op, u string) (*goquery.Document, error) {
	var resp ajaxResponse
	headers := map[string]string{
		"Referer":          c.base() + "/",
		"X-Requested-With": "XMLHttpRequest",
	}
	if err := getJSON(ctx, c.deps.Transport, op, u, headers, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, errs.Shape(op, "status false")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.HTML))
	if err != nil {
		return nil, errs.Shape(op, "failed to parse HTML fragment: %v", err)
	}
	return doc, nil
}

// slugFromHref turns "/one-piece-100?ref=search" into "one-piece-100".
func slugFromHref(href string) string {
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	href = strings.TrimPrefix(href, "/watch/")
	return strings.Trim(href, "/")
}

// numericID returns the trailing number of a slug, which the ajax
// endpoints key on.
func numericID(slug string) (string, error) {
	i := strings.LastIndex(slug, "-")
	id := slug[i+1:]
	if _, err := strconv.Atoi(id); err != nil {
		return "", errs.Shape("hianime.id", "no numeric id in %q", slug)
	}
	return id, nil
}

// Search scrapes the search results page.
func (c *HiAnime) Search(ctx context.Context, query string, page int) ([]models.ShowReference, error) {
	if page < 1 {
		page = 1
	}
	u := fmt.Sprintf("%s/search?keyword=%s&page=%d", c.base(), url.QueryEscape(query), page)
	doc, err := c.document(ctx, "hianime.search", u)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search anime")
	}

	results := make([]models.ShowReference, 0)
	doc.Find(".flw-item").Each(func(_ int, s *goquery.Selection) {
		a := s.Find(".film-name a").First()
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		title := strings.TrimSpace(a.Text())
		if t, ok := a.Attr("title"); ok && strings.TrimSpace(t) != "" {
			title = strings.TrimSpace(t)
		}
		ref := models.ShowReference{
			Provider:       HiAnimeName,
			ProviderID:     slugFromHref(href),
			CanonicalTitle: title,
		}
		if jname, ok := a.Attr("data-jname"); ok && jname != "" && jname != title {
			ref.AlternateTitles = []string{jname}
		}
		if ref.ProviderID != "" && ref.CanonicalTitle != "" {
			results = append(results, ref)
		}
	})
	util.Debug("HiAnime search", "query", query, "page", page, "results", len(results))
	return results, nil
}

// GetShowDetails scrapes the show page.
func (c *HiAnime) GetShowDetails(ctx context.Context, id string) (models.ShowReference, error) {
	doc, err := c.document(ctx, "hianime.details", c.base()+"/"+id)
	if err != nil {
		return models.ShowReference{}, errors.Wrap(err, "failed to get show details")
	}

	name := doc.Find(".anisc-detail .film-name").First()
	title := strings.TrimSpace(name.Text())
	if title == "" {
		return models.ShowReference{}, errs.NotFound("hianime.details", "show %q not found", id)
	}

	ref := models.ShowReference{
		Provider:       HiAnimeName,
		ProviderID:     id,
		CanonicalTitle: title,
	}
	if jname, ok := name.Attr("data-jname"); ok && jname != "" && jname != title {
		ref.AlternateTitles = append(ref.AlternateTitles, jname)
	}

	var genres []string
	doc.Find(".anisc-info .item").Each(func(_ int, item *goquery.Selection) {
		head := strings.ToLower(strings.TrimSpace(item.Find(".item-head").Text()))
		switch {
		case strings.HasPrefix(head, "genres"):
			item.Find("a").Each(func(_ int, a *goquery.Selection) {
				genres = append(genres, strings.TrimSpace(a.Text()))
			})
		case strings.HasPrefix(head, "synonyms"), strings.HasPrefix(head, "japanese"):
			for _, alt := range strings.Split(item.Find(".name").Text(), ",") {
				if alt = strings.TrimSpace(alt); alt != "" {
					ref.AlternateTitles = append(ref.AlternateTitles, alt)
				}
			}
		}
	})
	ref.Genres = models.GenreSet(genres...)

	if err := c.deps.Metadata.Set(ctx, HiAnimeName, id, title); err != nil {
		util.Debug("failed to store show title", "provider", HiAnimeName, "error", err)
	}
	return ref, nil
}

type hiAnimeEpisode struct {
	models.EpisodeDescriptor
	id string
}

func (c *HiAnime) episodes(ctx context.Context, showID string) ([]hiAnimeEpisode, error) {
	num, err := numericID(showID)
	if err != nil {
		return nil, err
	}
	doc, err := c.ajax(ctx, "hianime.episodes", c.base()+"/ajax/v2/episode/list/"+num)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list episodes")
	}

	var out []hiAnimeEpisode
	doc.Find(".ep-item").Each(func(_ int, s *goquery.Selection) {
		n, ok := models.ParseEpisodeNumber(s.AttrOr("data-number", ""))
		if !ok {
			return
		}
		out = append(out, hiAnimeEpisode{
			EpisodeDescriptor: models.EpisodeDescriptor{
				Number: n,
				Notes:  strings.TrimSpace(s.AttrOr("title", "")),
			},
			id: s.AttrOr("data-id", ""),
		})
	})
	return out, nil
}

// ListEpisodes reads the ajax episode list.
func (c *HiAnime) ListEpisodes(ctx context.Context, showID string, start, end float64) ([]models.EpisodeDescriptor, error) {
	eps, err := c.episodes(ctx, showID)
	if err != nil {
		return nil, err
	}
	out := make([]models.EpisodeDescriptor, len(eps))
	for i, ep := range eps {
		out[i] = ep.EpisodeDescriptor
	}
	return models.FilterEpisodes(out, start, end), nil
}

type hiAnimeServer struct {
	name string
	id   string
}

// GetStreams resolves every server of the requested translation type.
func (c *HiAnime) GetStreams(ctx context.Context, showID string, episode float64, tt models.TranslationType) ([]models.StreamServer, error) {
	if tt == "" {
		tt = models.TranslationSub
	}
	eps, err := c.episodes(ctx, showID)
	if err != nil {
		return nil, err
	}
	var episodeID string
	for _, ep := range eps {
		if ep.Number == episode {
			episodeID = ep.id
			break
		}
	}
	if episodeID == "" {
		return nil, errs.NotFound("hianime.streams", "episode %s of %q not found", models.FormatEpisodeNumber(episode), showID)
	}

	doc, err := c.ajax(ctx, "hianime.servers", c.base()+"/ajax/v2/episode/servers?episodeId="+url.QueryEscape(episodeID))
	if err != nil {
		return nil, errors.Wrap(err, "failed to list servers")
	}
	var servers []hiAnimeServer
	doc.Find(".server-item").Each(func(_ int, s *goquery.Selection) {
		if !strings.EqualFold(s.AttrOr("data-type", ""), string(tt)) {
			return
		}
		id := s.AttrOr("data-id", "")
		if id == "" {
			return
		}
		name := strings.TrimSpace(s.Find("a").Text())
		if name == "" {
			name = strings.TrimSpace(s.Text())
		}
		servers = append(servers, hiAnimeServer{name: name, id: id})
	})

	title := episodeTitle(cachedTitle(ctx, c, c.deps.Metadata, showID), episode)
	mapper := iter.Mapper[hiAnimeServer, models.StreamServer]{MaxGoroutines: c.deps.Config.MaxConcurrentEmbeds}
	resolved := mapper.Map(servers, func(s *hiAnimeServer) models.StreamServer {
		srv, err := c.resolveServer(ctx, *s, tt)
		if err != nil {
			util.Debug("embed extraction failed",
				"provider", HiAnimeName,
				"source", s.name,
				"scoped", errs.IsEmbedScoped(err),
				"error", err)
			return models.StreamServer{}
		}
		srv.EpisodeTitle = title
		return srv
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return models.CompactServers(resolved), nil
}

func (c *HiAnime) resolveServer(ctx context.Context, s hiAnimeServer, tt models.TranslationType) (models.StreamServer, error) {
	var src struct {
		Type string `json:"type"`
		Link string `json:"link"`
	}
	u := c.base() + "/ajax/v2/episode/sources?id=" + url.QueryEscape(s.id)
	if err := getJSON(ctx, c.deps.Transport, "hianime.sources", u, map[string]string{"X-Requested-With": "XMLHttpRequest"}, &src); err != nil {
		return models.StreamServer{}, err
	}
	if src.Link == "" {
		return models.StreamServer{}, errs.Shape("hianime.sources", "empty embed link for server %s", s.name)
	}
	srv, err := c.megaCloud(ctx, src.Link, tt)
	if err != nil {
		return models.StreamServer{}, err
	}
	srv.ServerName = s.name
	return srv, nil
}
