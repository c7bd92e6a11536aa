package scraper

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/mozillazg/go-unidecode"
	"github.com/pkg/errors"

	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/models"
	"github.com/alvarorichard/aniresolve/internal/util"
)

const nguonCStatusOK = "success"

// NguonC is the REST client for phim.nguonc.com. Server labels and titles
// are Vietnamese; they are folded to ASCII before matching.
type NguonC struct {
	deps Deps
}

// NewNguonC creates a NguonC client.
func NewNguonC(deps Deps) *NguonC {
	return &NguonC{deps: deps.withDefaults()}
}

func (c *NguonC) Name() string { return NguonCName }

func (c *NguonC) base() string { return strings.TrimRight(c.deps.Config.NguonCBase, "/") }

type nguonCItem struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	OriginalName string `json:"original_name"`
}

type nguonCCategory struct {
	Group struct {
		Name string `json:"name"`
	} `json:"group"`
	List []struct {
		Name string `json:"name"`
	} `json:"list"`
}

type nguonCEpisode struct {
	Name  string `json:"name"`
	Slug  string `json:"slug"`
	Embed string `json:"embed"`
	M3U8  string `json:"m3u8"`
}

type nguonCServer struct {
	ServerName string          `json:"server_name"`
	Items      []nguonCEpisode `json:"items"`
}

type nguonCMovie struct {
	nguonCItem
	Category map[string]nguonCCategory `json:"category"`
	Episodes []nguonCServer            `json:"episodes"`
}

// fold lowercases s and strips diacritics.
func fold(s string) string {
	return strings.ToLower(strings.TrimSpace(unidecode.Unidecode(s)))
}

// serverTranslation classifies a server label. Vietsub servers are
// subtitled; Thuyết Minh (voice-over) and Lồng Tiếng (dubbed) count as dub.
func serverTranslation(label string) models.TranslationType {
	l := fold(label)
	if strings.Contains(l, "thuyet minh") || strings.Contains(l, "long tieng") {
		return models.TranslationDub
	}
	return models.TranslationSub
}

func (i nguonCItem) reference() models.ShowReference {
	ref := models.ShowReference{
		Provider:       NguonCName,
		ProviderID:     i.Slug,
		CanonicalTitle: strings.TrimSpace(i.Name),
	}
	if o := strings.TrimSpace(i.OriginalName); o != "" && o != ref.CanonicalTitle {
		ref.AlternateTitles = append(ref.AlternateTitles, o)
	}
	return ref
}

// Search calls the films search endpoint.
func (c *NguonC) Search(ctx context.Context, query string, page int) ([]models.ShowReference, error) {
	if page < 1 {
		page = 1
	}
	var resp struct {
		Status string       `json:"status"`
		Items  []nguonCItem `json:"items"`
	}
	u := fmt.Sprintf("%s/api/films/search?keyword=%s&page=%d", c.base(), url.QueryEscape(query), page)
	if err := getJSON(ctx, c.deps.Transport, "nguonc.search", u, nil, &resp); err != nil {
		return nil, errors.Wrap(err, "failed to search films")
	}
	results := make([]models.ShowReference, 0, len(resp.Items))
	if resp.Status != nguonCStatusOK {
		util.Debug("NguonC search returned non-success status", "status", resp.Status)
		return results, nil
	}
	for _, it := range resp.Items {
		if it.Slug == "" {
			continue
		}
		results = append(results, it.reference())
	}
	return results, nil
}

func (c *NguonC) movie(ctx context.Context, slug string) (nguonCMovie, error) {
	var resp struct {
		Status string       `json:"status"`
		Movie  *nguonCMovie `json:"movie"`
	}
	u := c.base() + "/api/film/" + url.PathEscape(slug)
	if err := getJSON(ctx, c.deps.Transport, "nguonc.film", u, nil, &resp); err != nil {
		return nguonCMovie{}, errors.Wrap(err, "failed to get film")
	}
	if resp.Status != nguonCStatusOK || resp.Movie == nil {
		return nguonCMovie{}, errs.NotFound("nguonc.film", "film %q not found (status %q)", slug, resp.Status)
	}
	return *resp.Movie, nil
}

// GetShowDetails fetches the film record.
func (c *NguonC) GetShowDetails(ctx context.Context, id string) (models.ShowReference, error) {
	m, err := c.movie(ctx, id)
	if err != nil {
		return models.ShowReference{}, err
	}
	if m.Slug == "" {
		m.Slug = id
	}
	ref := m.reference()

	var genres []string
	for _, cat := range m.Category {
		if fold(cat.Group.Name) != "the loai" {
			continue
		}
		for _, g := range cat.List {
			genres = append(genres, g.Name)
		}
	}
	ref.Genres = models.GenreSet(genres...)

	if err := c.deps.Metadata.Set(ctx, NguonCName, id, ref.CanonicalTitle); err != nil {
		util.Debug("failed to store show title", "provider", NguonCName, "error", err)
	}
	return ref, nil
}

// episodeNumber reads "Tập 12", "12" or "12.5"; "Full" and trailers return false.
func episodeNumber(name string) (float64, bool) {
	l := fold(name)
	l = strings.TrimPrefix(l, "tap")
	return models.ParseEpisodeNumber(l)
}

// ListEpisodes merges the episode lists of every server.
func (c *NguonC) ListEpisodes(ctx context.Context, showID string, start, end float64) ([]models.EpisodeDescriptor, error) {
	m, err := c.movie(ctx, showID)
	if err != nil {
		return nil, err
	}
	seen := make(map[float64]struct{})
	var eps []models.EpisodeDescriptor
	for _, srv := range m.Episodes {
		for _, it := range srv.Items {
			n, ok := episodeNumber(it.Name)
			if !ok {
				continue
			}
			if _, dup := seen[n]; dup {
				continue
			}
			seen[n] = struct{}{}
			eps = append(eps, models.EpisodeDescriptor{Number: n})
		}
	}
	return models.FilterEpisodes(eps, start, end), nil
}

// GetStreams returns one server per upstream server label carrying the
// episode in the requested translation.
func (c *NguonC) GetStreams(ctx context.Context, showID string, episode float64, tt models.TranslationType) ([]models.StreamServer, error) {
	if tt == "" {
		tt = models.TranslationSub
	}
	m, err := c.movie(ctx, showID)
	if err != nil {
		return nil, err
	}
	if err := c.deps.Metadata.Set(ctx, NguonCName, showID, strings.TrimSpace(m.Name)); err != nil {
		util.Debug("failed to store show title", "provider", NguonCName, "error", err)
	}
	title := episodeTitle(strings.TrimSpace(m.Name), episode)

	var servers []models.StreamServer
	for _, srv := range m.Episodes {
		if serverTranslation(srv.ServerName) != tt {
			util.Debug("skipping server for other translation", "provider", NguonCName, "server", srv.ServerName)
			continue
		}
		var urls []string
		for _, it := range srv.Items {
			if n, ok := episodeNumber(it.Name); ok && n == episode && it.M3U8 != "" {
				urls = append(urls, it.M3U8)
			}
		}
		qualities := models.AssignQualities(make([]string, len(urls)))
		s := models.StreamServer{
			ServerName:      strings.TrimSpace(srv.ServerName),
			EpisodeTitle:    title,
			RequiredHeaders: map[string]string{"Referer": c.base() + "/"},
		}
		for i, u := range urls {
			s.Links = append(s.Links, models.StreamLink{URL: u, Quality: qualities[i], TranslationType: tt})
		}
		servers = append(servers, s)
	}
	return models.CompactServers(servers), nil
}
