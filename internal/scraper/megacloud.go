package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"path"
	"strings"

	"github.com/alvarorichard/aniresolve/internal/cipher"
	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/models"
	"github.com/alvarorichard/aniresolve/internal/transport"
)

const megaCloudScriptPath = "/js/player/a/prod/e1-player.min.js"

// megaCloudMirrors are the domains MegaCloud serves the same embeds from.
var megaCloudMirrors = []string{"megacloud.tv", "megacloud.blog", "megacloud.club"}

// megaCloudHost reports whether host is the configured base host, a known
// mirror, or a subdomain of either.
func megaCloudHost(base, host string) bool {
	host = strings.ToLower(host)
	allowed := megaCloudMirrors
	if b, err := url.Parse(base); err == nil && b.Hostname() != "" {
		allowed = append([]string{strings.ToLower(b.Hostname())}, allowed...)
	}
	for _, a := range allowed {
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

type megaCloudSource struct {
	File string `json:"file"`
	Type string `json:"type"`
}

type megaCloudTrack struct {
	File  string `json:"file"`
	Label string `json:"label"`
	Kind  string `json:"kind"`
}

// megaCloudSources keeps sources raw: it is an encrypted string when
// Encrypted is set and a plain array otherwise.
type megaCloudSources struct {
	Sources   json.RawMessage  `json:"sources"`
	Tracks    []megaCloudTrack `json:"tracks"`
	Encrypted bool             `json:"encrypted"`
}

// megaCloud resolves an embed link such as
// https://megacloud.tv/embed-2/e-1/AbCd?k=1 into a server.
func (c *HiAnime) megaCloud(ctx context.Context, embed string, tt models.TranslationType) (models.StreamServer, error) {
	u, err := url.Parse(embed)
	if err != nil || u.Host == "" {
		return models.StreamServer{}, errs.Decode("megacloud.embed", "bad embed url %q", embed)
	}
	mcBase := strings.TrimRight(c.deps.Config.MegaCloudBase, "/")
	if !megaCloudHost(mcBase, u.Hostname()) {
		return models.StreamServer{}, errs.Decode("megacloud.embed", "unsupported host %s", u.Host)
	}
	id := path.Base(u.Path)
	if id == "" || id == "/" || id == "." {
		return models.StreamServer{}, errs.Decode("megacloud.embed", "no id in %q", embed)
	}

	var payload megaCloudSources
	headers := map[string]string{
		"Referer":          embed,
		"X-Requested-With": "XMLHttpRequest",
	}
	src := mcBase + "/embed-2/ajax/e-1/getSources?id=" + url.QueryEscape(id)
	if err := getJSON(transport.WithoutCache(ctx), c.deps.Transport, "megacloud.sources", src, headers, &payload); err != nil {
		return models.StreamServer{}, err
	}

	sources, err := c.megaCloudDecode(ctx, payload)
	if err != nil {
		return models.StreamServer{}, err
	}
	if len(sources) == 0 {
		return models.StreamServer{}, errs.Shape("megacloud.sources", "no sources")
	}

	labels := make([]string, len(sources))
	qualities := models.AssignQualities(labels)
	srv := models.StreamServer{
		RequiredHeaders: map[string]string{"Referer": mcBase + "/"},
	}
	for i, s := range sources {
		if s.File == "" {
			continue
		}
		srv.Links = append(srv.Links, models.StreamLink{URL: s.File, Quality: qualities[i], TranslationType: tt})
	}
	for _, t := range payload.Tracks {
		if t.File == "" || (t.Kind != "" && t.Kind != "captions" && t.Kind != "subtitles") {
			continue
		}
		srv.SubtitleTracks = append(srv.SubtitleTracks, models.SubtitleTrack{URL: t.File, Label: t.Label})
	}
	return srv, nil
}

func (c *HiAnime) megaCloudDecode(ctx context.Context, payload megaCloudSources) ([]megaCloudSource, error) {
	raw := bytes.TrimSpace(payload.Sources)
	if len(raw) == 0 {
		return nil, errs.Shape("megacloud.sources", "missing sources field")
	}

	if raw[0] == '[' {
		var plain []megaCloudSource
		if err := json.Unmarshal(raw, &plain); err != nil {
			return nil, errs.Shape("megacloud.sources", "bad sources array: %v", err)
		}
		return plain, nil
	}

	var blob string
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, errs.Shape("megacloud.sources", "sources neither array nor string")
	}
	script, err := c.scripts.Get(ctx, strings.TrimRight(c.deps.Config.MegaCloudBase, "/")+megaCloudScriptPath, nil)
	if err != nil {
		return nil, err
	}
	plain, err := cipher.DecryptSources(string(script), blob)
	if err != nil {
		return nil, err
	}
	var decoded []megaCloudSource
	if err := json.Unmarshal([]byte(plain), &decoded); err != nil {
		return nil, errs.Decode("megacloud.sources", "decrypted sources are not JSON: %v", err)
	}
	return decoded, nil
}
