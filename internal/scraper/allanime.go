package scraper

import (
	"context"
	"encoding/json"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/models"
	"github.com/alvarorichard/aniresolve/internal/util"
)

const (
	searchGQL = `query( $search: SearchInput $limit: Int $page: Int $translationType: VaildTranslationTypeEnumType $countryOrigin: VaildCountryOriginEnumType ) { shows( search: $search limit: $limit page: $page translationType: $translationType countryOrigin: $countryOrigin ) { edges { _id name englishName nativeName altNames genres availableEpisodes __typename } }}`

	showGQL = `query ($showId: String!) { show( _id: $showId ) { _id name englishName nativeName altNames genres availableEpisodesDetail }}`

	episodeInfosGQL = `query ($showId: String!, $episodeNumStart: Float!, $episodeNumEnd: Float!) { episodeInfos( showId: $showId episodeNumStart: $episodeNumStart episodeNumEnd: $episodeNumEnd ) { episodeIdNum notes thumbnails uploadDates }}`

	episodeEmbedGQL = `query ($showId: String!, $translationType: VaildTranslationTypeEnumType!, $episodeString: String!) { episode( showId: $showId translationType: $translationType episodeString: $episodeString ) { episodeString sourceUrls }}`

	searchPageSize = 40
)

// AllAnime is the GraphQL client for allanime.day.
type AllAnime struct {
	deps    Deps
	allowed map[string]struct{}
}

// NewAllAnime creates an AllAnime client.
func NewAllAnime(deps Deps) *AllAnime {
	deps = deps.withDefaults()
	allowed := make(map[string]struct{}, len(deps.Config.AllowedSources))
	for _, s := range deps.Config.AllowedSources {
		allowed[s] = struct{}{}
	}
	return &AllAnime{deps: deps, allowed: allowed}
}

func (c *AllAnime) Name() string { return AllAnimeName }

type gqlRequest struct {
	Query     string `json:"query"`
	Variables any    `json:"variables"`
}

type gqlResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

func (c *AllAnime) headers() map[string]string {
	return map[string]string{"Referer": c.deps.Config.AllAnimeReferer}
}

// graphql sends query as a JSON POST and falls back to a GET with
// URL-encoded parameters when the POST fails at the transport level.
func (c *AllAnime) graphql(ctx context.Context, op, query string, variables any, out any) error {
	payload, err := json.Marshal(gqlRequest{Query: query, Variables: variables})
	if err != nil {
		return errors.Wrap(err, "failed to encode GraphQL request")
	}

	postHeaders := c.headers()
	postHeaders["Content-Type"] = "application/json"
	body, err := c.deps.Transport.Post(ctx, c.deps.Config.AllAnimeAPI, payload, postHeaders)
	if err != nil {
		if errs.KindOf(err) != errs.KindTransport || ctx.Err() != nil {
			return errors.Wrapf(err, "%s: request failed", op)
		}
		util.Debug("GraphQL POST failed, retrying as GET", "op", op, "error", err)

		vars, err := json.Marshal(variables)
		if err != nil {
			return errors.Wrap(err, "failed to encode GraphQL variables")
		}
		q := url.Values{}
		q.Set("variables", string(vars))
		q.Set("query", query)
		body, err = c.deps.Transport.Get(ctx, c.deps.Config.AllAnimeAPI+"?"+q.Encode(), c.headers())
		if err != nil {
			return errors.Wrapf(err, "%s: request failed", op)
		}
	}

	var resp gqlResponse
	if err := decodeJSON(op, body, &resp); err != nil {
		return err
	}
	if len(resp.Data) == 0 || string(resp.Data) == "null" {
		if len(resp.Errors) > 0 {
			return errs.Shape(op, "GraphQL error: %s", resp.Errors[0].Message)
		}
		return errs.Shape(op, "response without data")
	}
	return decodeJSON(op, resp.Data, out)
}

type allAnimeShow struct {
	ID          string   `json:"_id"`
	Name        string   `json:"name"`
	EnglishName string   `json:"englishName"`
	NativeName  string   `json:"nativeName"`
	AltNames    []string `json:"altNames"`
	Genres      []string `json:"genres"`
}

func (s allAnimeShow) reference() models.ShowReference {
	alts := make([]string, 0, len(s.AltNames)+2)
	for _, n := range append([]string{s.EnglishName, s.NativeName}, s.AltNames...) {
		if n = strings.TrimSpace(n); n != "" && n != s.Name {
			alts = append(alts, n)
		}
	}
	return models.ShowReference{
		Provider:        AllAnimeName,
		ProviderID:      s.ID,
		CanonicalTitle:  s.Name,
		AlternateTitles: alts,
		Genres:          models.GenreSet(s.Genres...),
	}
}

// Search queries the shows endpoint.
func (c *AllAnime) Search(ctx context.Context, query string, page int) ([]models.ShowReference, error) {
	if page < 1 {
		page = 1
	}
	variables := map[string]any{
		"search": map[string]any{
			"allowAdult":   false,
			"allowUnknown": false,
			"query":        query,
		},
		"limit":           searchPageSize,
		"page":            page,
		"translationType": models.TranslationSub,
		"countryOrigin":   "ALL",
	}

	var data struct {
		Shows struct {
			Edges []allAnimeShow `json:"edges"`
		} `json:"shows"`
	}
	if err := c.graphql(ctx, "allanime.search", searchGQL, variables, &data); err != nil {
		return nil, errors.Wrap(err, "failed to search anime")
	}

	results := make([]models.ShowReference, 0, len(data.Shows.Edges))
	for _, edge := range data.Shows.Edges {
		if edge.ID == "" {
			continue
		}
		results = append(results, edge.reference())
	}
	util.Debug("AllAnime search", "query", query, "page", page, "results", len(results))
	return results, nil
}

// GetShowDetails fetches one show and remembers its title.
func (c *AllAnime) GetShowDetails(ctx context.Context, id string) (models.ShowReference, error) {
	var data struct {
		Show *allAnimeShow `json:"show"`
	}
	if err := c.graphql(ctx, "allanime.show", showGQL, map[string]any{"showId": id}, &data); err != nil {
		return models.ShowReference{}, errors.Wrap(err, "failed to get show details")
	}
	if data.Show == nil || data.Show.ID == "" {
		return models.ShowReference{}, errs.NotFound("allanime.show", "show %q not found", id)
	}

	ref := data.Show.reference()
	if err := c.deps.Metadata.Set(ctx, AllAnimeName, id, ref.CanonicalTitle); err != nil {
		util.Debug("failed to store show title", "provider", AllAnimeName, "error", err)
	}
	return ref, nil
}

type allAnimeEpisodeInfo struct {
	EpisodeIDNum flexNumber        `json:"episodeIdNum"`
	Notes        *string           `json:"notes"`
	Thumbnails   []string          `json:"thumbnails"`
	UploadDates  map[string]string `json:"uploadDates"`
}

// ListEpisodes uses episodeInfos, which already accepts a numeric range.
func (c *AllAnime) ListEpisodes(ctx context.Context, showID string, start, end float64) ([]models.EpisodeDescriptor, error) {
	upper := end
	if math.IsInf(upper, 1) || upper > math.MaxInt32 {
		upper = math.MaxInt32
	}
	variables := map[string]any{
		"showId":          showID,
		"episodeNumStart": start,
		"episodeNumEnd":   upper,
	}

	var data struct {
		EpisodeInfos []allAnimeEpisodeInfo `json:"episodeInfos"`
	}
	if err := c.graphql(ctx, "allanime.episodes", episodeInfosGQL, variables, &data); err != nil {
		return nil, errors.Wrap(err, "failed to list episodes")
	}

	episodes := make([]models.EpisodeDescriptor, 0, len(data.EpisodeInfos))
	for _, info := range data.EpisodeInfos {
		if !info.EpisodeIDNum.Valid {
			continue
		}
		ep := models.EpisodeDescriptor{
			Number:     info.EpisodeIDNum.Value,
			Thumbnails: info.Thumbnails,
		}
		if info.Notes != nil {
			ep.Notes = *info.Notes
		}
		for tt, raw := range info.UploadDates {
			parsed, err := models.ParseTranslationType(tt)
			if err != nil {
				continue
			}
			ts, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				continue
			}
			if ep.UploadDates == nil {
				ep.UploadDates = make(map[models.TranslationType]time.Time, 2)
			}
			ep.UploadDates[parsed] = ts
		}
		episodes = append(episodes, ep)
	}
	return models.FilterEpisodes(episodes, start, end), nil
}

// GetStreams resolves every allowed embed of one episode.
func (c *AllAnime) GetStreams(ctx context.Context, showID string, episode float64, tt models.TranslationType) ([]models.StreamServer, error) {
	if tt == "" {
		tt = models.TranslationSub
	}
	variables := map[string]any{
		"showId":          showID,
		"translationType": tt,
		"episodeString":   models.FormatEpisodeNumber(episode),
	}

	var data struct {
		Episode *struct {
			EpisodeString string          `json:"episodeString"`
			SourceURLs    []allAnimeEmbed `json:"sourceUrls"`
		} `json:"episode"`
	}
	if err := c.graphql(ctx, "allanime.episode", episodeEmbedGQL, variables, &data); err != nil {
		return nil, errors.Wrap(err, "failed to get episode sources")
	}
	if data.Episode == nil {
		return nil, errs.NotFound("allanime.episode", "episode %s of %q not found", models.FormatEpisodeNumber(episode), showID)
	}

	title := episodeTitle(cachedTitle(ctx, c, c.deps.Metadata, showID), episode)
	embeds := c.selectEmbeds(data.Episode.SourceURLs)
	servers := c.extractAll(ctx, embeds, tt, title)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return servers, nil
}
