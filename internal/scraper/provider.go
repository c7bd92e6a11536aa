// Package scraper implements the provider clients (AllAnime, HiAnime,
// NguonC, MangaDex) and the ScraperManager façade that routes between them.
package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/alvarorichard/aniresolve/internal/cache"
	"github.com/alvarorichard/aniresolve/internal/config"
	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/models"
	"github.com/alvarorichard/aniresolve/internal/transport"
)

// Provider names, also used as the metadata store partition.
const (
	AllAnimeName = "allanime"
	HiAnimeName  = "hianime"
	NguonCName   = "nguonc"
	MangaDexName = "mangadex"
)

// Provider is the contract every source client implements.
type Provider interface {
	Name() string
	// Search returns an empty slice, not an error, when nothing matches.
	Search(ctx context.Context, query string, page int) ([]models.ShowReference, error)
	// GetShowDetails also records the title in the metadata store.
	GetShowDetails(ctx context.Context, id string) (models.ShowReference, error)
	// ListEpisodes filters to [start, end] inclusive and sorts ascending.
	// models.OpenEnd as end means no upper bound.
	ListEpisodes(ctx context.Context, showID string, start, end float64) ([]models.EpisodeDescriptor, error)
	// GetStreams returns servers in upstream priority order. No extractable
	// stream is an empty result, not an error.
	GetStreams(ctx context.Context, showID string, episode float64, tt models.TranslationType) ([]models.StreamServer, error)
}

// Deps are the collaborators injected into every provider client.
type Deps struct {
	Config    config.Config
	Transport transport.Transport
	Metadata  cache.MetadataStore
	// Scripts caches player scripts; nil selects an in-memory cache.
	Scripts cache.RequestCache
}

func (d Deps) withDefaults() Deps {
	if d.Metadata == nil {
		d.Metadata = cache.NewMemoryMetadataStore()
	}
	if d.Scripts == nil {
		size := d.Config.CacheSize
		if size <= 0 {
			size = 64
		}
		if c, err := cache.NewMemoryRequestCache(size, d.Config.CacheLifetime); err == nil {
			d.Scripts = c
		}
	}
	return d
}

// getJSON fetches url and decodes the body into v. A body that does not
// decode is reported as an upstream shape change.
func getJSON(ctx context.Context, tr transport.Transport, op, url string, headers map[string]string, v any) error {
	body, err := tr.Get(ctx, url, headers)
	if err != nil {
		return errors.Wrapf(err, "%s: request failed", op)
	}
	return decodeJSON(op, body, v)
}

func decodeJSON(op string, body []byte, v any) error {
	if err := json.Unmarshal(body, v); err != nil {
		return errs.Shape(op, "unexpected payload: %v", err)
	}
	return nil
}

// flexNumber decodes a JSON number, a numeric string, or null.
type flexNumber struct {
	Value float64
	Valid bool
}

func (n *flexNumber) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*n = flexNumber{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, ok := models.ParseEpisodeNumber(s)
		*n = flexNumber{Value: v, Valid: ok}
		return nil
	}
	v, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		*n = flexNumber{}
		return nil
	}
	*n = flexNumber{Value: v, Valid: true}
	return nil
}

// serverNameFor strips the "-mp4" suffix upstream appends to source names.
func serverNameFor(sourceName string) string {
	return strings.TrimSuffix(sourceName, "-mp4")
}

// episodeTitle builds the label shown next to a resolved server.
func episodeTitle(show string, episode float64) string {
	label := "Episode " + models.FormatEpisodeNumber(episode)
	if show == "" {
		return label
	}
	return show + " - " + label
}

// cachedTitle returns the title recorded for id, fetching details when the
// metadata store has nothing. Failures fall back to an empty title.
func cachedTitle(ctx context.Context, p Provider, store cache.MetadataStore, id string) string {
	title, err := store.Get(ctx, p.Name(), id, "")
	if err == nil && title != "" {
		return title
	}
	ref, err := p.GetShowDetails(ctx, id)
	if err != nil {
		return ""
	}
	return ref.CanonicalTitle
}
