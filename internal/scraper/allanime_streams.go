package scraper

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"github.com/alvarorichard/aniresolve/internal/cipher"
	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/models"
	"github.com/alvarorichard/aniresolve/internal/transport"
	"github.com/alvarorichard/aniresolve/internal/util"
)

const mp4UploadReferer = "https://www.mp4upload.com/"

var mp4SrcRe = regexp.MustCompile(`src:\s*"([^"]+\.mp4)"`)

// allAnimeEmbed is one entry of an episode's sourceUrls.
type allAnimeEmbed struct {
	SourceURL  string     `json:"sourceUrl"`
	SourceName string     `json:"sourceName"`
	Priority   flexNumber `json:"priority"`
	Type       string     `json:"type"`
}

// clockResponse is the payload of the clock.json endpoint.
type clockResponse struct {
	Links []struct {
		Link          string            `json:"link"`
		ResolutionStr string            `json:"resolutionStr"`
		HLS           bool              `json:"hls"`
		Headers       map[string]string `json:"headers"`
		Subtitles     []struct {
			Lang  string `json:"lang"`
			Label string `json:"label"`
			Src   string `json:"src"`
		} `json:"subtitles"`
	} `json:"links"`
}

// selectEmbeds orders embeds by descending priority, keeping upstream order
// among equals, and drops source names outside the allow-list.
func (c *AllAnime) selectEmbeds(embeds []allAnimeEmbed) []allAnimeEmbed {
	sorted := append([]allAnimeEmbed(nil), embeds...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority.Value > sorted[j].Priority.Value
	})

	out := sorted[:0]
	for _, e := range sorted {
		if _, ok := c.allowed[e.SourceName]; !ok {
			util.Debug("skipping unsupported source", "provider", AllAnimeName, "source", e.SourceName)
			continue
		}
		out = append(out, e)
	}
	return out
}

// extractAll runs the per-embed routines concurrently and returns the
// servers in input order. Failures are logged and skipped.
func (c *AllAnime) extractAll(ctx context.Context, embeds []allAnimeEmbed, tt models.TranslationType, title string) []models.StreamServer {
	mapper := iter.Mapper[allAnimeEmbed, models.StreamServer]{MaxGoroutines: c.deps.Config.MaxConcurrentEmbeds}
	servers := mapper.Map(embeds, func(e *allAnimeEmbed) models.StreamServer {
		srv, err := c.extractEmbed(ctx, *e, tt)
		if err != nil {
			util.Debug("embed extraction failed",
				"provider", AllAnimeName,
				"source", e.SourceName,
				"scoped", errs.IsEmbedScoped(err),
				"error", err)
			return models.StreamServer{}
		}
		srv.EpisodeTitle = title
		return srv
	})
	return models.CompactServers(servers)
}

func (c *AllAnime) extractEmbed(ctx context.Context, e allAnimeEmbed, tt models.TranslationType) (models.StreamServer, error) {
	if err := ctx.Err(); err != nil {
		return models.StreamServer{}, err
	}
	decoded := c.decodeSourceURL(e.SourceURL)
	switch e.SourceName {
	case "Yt-mp4":
		return c.directServer(e, decoded, tt)
	case "Mp4":
		return c.mp4UploadServer(ctx, e, decoded, tt)
	default:
		if !strings.Contains(decoded, "clock.json") {
			return c.directServer(e, decoded, tt)
		}
		return c.clockServer(ctx, e, decoded, tt)
	}
}

// decodeSourceURL turns an obfuscated "--" source URL into an absolute URL.
// The substitution table is tried first; pairs it does not know fall back to
// the XOR form of the same cipher.
func (c *AllAnime) decodeSourceURL(raw string) string {
	if !strings.HasPrefix(raw, cipher.ObfuscatedPrefix) {
		return raw
	}
	payload := strings.TrimPrefix(raw, cipher.ObfuscatedPrefix)
	var decoded string
	if cipher.HexTableCovers(payload) {
		decoded = cipher.HexTableDecode(payload)
	} else {
		decoded = cipher.XORDecode(cipher.DefaultXORKey, raw)
	}
	if strings.Contains(decoded, "/clock") && !strings.Contains(decoded, "/clock.json") {
		decoded = strings.Replace(decoded, "/clock", "/clock.json", 1)
	}
	if strings.HasPrefix(decoded, "/") {
		decoded = strings.TrimRight(c.deps.Config.AllAnimeBase, "/") + decoded
	}
	return decoded
}

func validURL(u string) bool {
	return strings.HasPrefix(u, "https://") || strings.HasPrefix(u, "http://")
}

func (c *AllAnime) directServer(e allAnimeEmbed, link string, tt models.TranslationType) (models.StreamServer, error) {
	if !validURL(link) {
		return models.StreamServer{}, errs.Decode("allanime.direct", "decoded url %q is not absolute", util.Truncate(link, 60))
	}
	return models.StreamServer{
		ServerName:      serverNameFor(e.SourceName),
		RequiredHeaders: map[string]string{"Referer": c.deps.Config.AllAnimeReferer},
		Links: []models.StreamLink{{
			URL:             link,
			Quality:         models.DefaultQuality(0),
			TranslationType: tt,
		}},
	}, nil
}

// mp4UploadServer scrapes the player page for its mp4 source.
func (c *AllAnime) mp4UploadServer(ctx context.Context, e allAnimeEmbed, page string, tt models.TranslationType) (models.StreamServer, error) {
	if !validURL(page) {
		return models.StreamServer{}, errs.Decode("allanime.mp4", "decoded url %q is not absolute", util.Truncate(page, 60))
	}
	body, err := c.deps.Transport.Get(ctx, page, map[string]string{"Referer": c.deps.Config.AllAnimeReferer})
	if err != nil {
		return models.StreamServer{}, err
	}
	m := mp4SrcRe.FindSubmatch(body)
	if m == nil {
		return models.StreamServer{}, errs.Decode("allanime.mp4", "no mp4 source in player page")
	}
	return models.StreamServer{
		ServerName:      serverNameFor(e.SourceName),
		RequiredHeaders: map[string]string{"Referer": mp4UploadReferer},
		Links: []models.StreamLink{{
			URL:             string(m[1]),
			Quality:         models.DefaultQuality(0),
			TranslationType: tt,
		}},
	}, nil
}

// clockServer fetches the clock.json endpoint and maps its links.
func (c *AllAnime) clockServer(ctx context.Context, e allAnimeEmbed, endpoint string, tt models.TranslationType) (models.StreamServer, error) {
	if !validURL(endpoint) {
		return models.StreamServer{}, errs.Decode("allanime.clock", "decoded url %q is not absolute", util.Truncate(endpoint, 60))
	}
	var resp clockResponse
	if err := getJSON(transport.WithoutCache(ctx), c.deps.Transport, "allanime.clock", endpoint, c.headers(), &resp); err != nil {
		return models.StreamServer{}, err
	}
	if len(resp.Links) == 0 {
		return models.StreamServer{}, errs.Shape("allanime.clock", "no links for %s", e.SourceName)
	}

	labels := make([]string, len(resp.Links))
	for i, l := range resp.Links {
		labels[i] = l.ResolutionStr
		if labels[i] == "" && l.HLS {
			labels[i] = "hls"
		}
	}
	qualities := models.AssignQualities(labels)

	srv := models.StreamServer{
		ServerName:      serverNameFor(e.SourceName),
		RequiredHeaders: map[string]string{"Referer": c.deps.Config.AllAnimeReferer},
	}
	seenSubs := make(map[string]struct{})
	for i, l := range resp.Links {
		link := strings.ReplaceAll(l.Link, `\`, "")
		if link == "" {
			continue
		}
		srv.Links = append(srv.Links, models.StreamLink{URL: link, Quality: qualities[i], TranslationType: tt})
		for k, v := range l.Headers {
			srv.RequiredHeaders[k] = v
		}
		for _, s := range l.Subtitles {
			if s.Src == "" {
				continue
			}
			if _, dup := seenSubs[s.Src]; dup {
				continue
			}
			seenSubs[s.Src] = struct{}{}
			label := s.Label
			if label == "" {
				label = s.Lang
			}
			srv.SubtitleTracks = append(srv.SubtitleTracks, models.SubtitleTrack{URL: s.Src, Label: label})
		}
	}
	return srv, nil
}
