package scraper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/models"
	"github.com/alvarorichard/aniresolve/internal/util"
)

// searchTimeout is the maximum time to wait for all providers
const searchTimeout = 15 * time.Second

// StreamOptions tunes GetStreams on the manager.
type StreamOptions struct {
	Translation models.TranslationType
	// PreferredServers are moved to the front, in this order. Matching
	// ignores case. Other servers keep upstream priority order.
	PreferredServers []string
}

// ScraperManager routes calls to the provider clients and merges their
// search results.
type ScraperManager struct {
	providers     map[string]Provider
	order         []string
	maxConcurrent int
}

// NewScraperManager creates a manager with every built-in provider.
func NewScraperManager(deps Deps) *ScraperManager {
	deps = deps.withDefaults()
	return NewScraperManagerWith(deps.Config.MaxConcurrentSearches,
		NewAllAnime(deps),
		NewHiAnime(deps),
		NewNguonC(deps),
		NewMangaDex(deps),
	)
}

// NewScraperManagerWith creates a manager over the given providers. The
// argument order is the order search results are merged in.
func NewScraperManagerWith(maxConcurrent int, providers ...Provider) *ScraperManager {
	if maxConcurrent <= 0 {
		maxConcurrent = len(providers)
	}
	sm := &ScraperManager{
		providers:     make(map[string]Provider, len(providers)),
		maxConcurrent: maxConcurrent,
	}
	for _, p := range providers {
		if _, dup := sm.providers[p.Name()]; dup {
			continue
		}
		sm.providers[p.Name()] = p
		sm.order = append(sm.order, p.Name())
	}
	return sm
}

// Providers lists provider names in merge order.
func (sm *ScraperManager) Providers() []string {
	return append([]string(nil), sm.order...)
}

// GetProvider returns a provider by name.
func (sm *ScraperManager) GetProvider(name string) (Provider, error) {
	if p, ok := sm.providers[strings.ToLower(name)]; ok {
		return p, nil
	}
	return nil, errs.NotFound("manager", "provider %q not registered", name)
}

type searchResult struct {
	provider string
	results  []models.ShowReference
	err      error
}

// Search queries the named providers (all when none are given)
// concurrently. Results from failing providers are skipped; an error is
// returned only when every queried provider failed.
func (sm *ScraperManager) Search(ctx context.Context, query string, page int, providers ...string) ([]models.ShowReference, error) {
	names := providers
	if len(names) == 0 {
		names = sm.order
	}
	targets := make([]Provider, 0, len(names))
	for _, n := range names {
		p, err := sm.GetProvider(n)
		if err != nil {
			return nil, err
		}
		targets = append(targets, p)
	}

	ctx, cancel := context.WithTimeout(ctx, searchTimeout)
	defer cancel()

	util.Debug("Starting concurrent search", "query", query, "providers", len(targets))
	timer := util.StartTimer("search")
	p := pool.NewWithResults[searchResult]().WithMaxGoroutines(sm.maxConcurrent)
	for _, target := range targets {
		p.Go(func() searchResult {
			results, err := target.Search(ctx, query, page)
			return searchResult{provider: target.Name(), results: results, err: err}
		})
	}
	collected := p.Wait()
	timer.StopAndLog("query", query)

	rank := make(map[string]int, len(sm.order))
	for i, n := range sm.order {
		rank[n] = i
	}
	sort.SliceStable(collected, func(i, j int) bool {
		return rank[collected[i].provider] < rank[collected[j].provider]
	})

	var all []models.ShowReference
	var failures []string
	for _, res := range collected {
		if res.err != nil {
			util.Debug("Search error", "provider", res.provider, "error", res.err)
			failures = append(failures, fmt.Sprintf("%s: %v", res.provider, res.err))
			continue
		}
		util.Debug("Search results", "provider", res.provider, "count", len(res.results))
		for _, ref := range res.results {
			all = append(all, normalizeReference(ref, res.provider))
		}
	}

	for _, f := range failures {
		util.Warn("Search source unavailable", "details", f)
	}
	if len(failures) == len(collected) && len(collected) > 0 {
		return nil, errs.Transport("manager.search", fmt.Errorf("all providers failed: %s", strings.Join(failures, "; ")))
	}
	if all == nil {
		all = []models.ShowReference{}
	}
	return all, nil
}

// GetDetails fetches details from one provider.
func (sm *ScraperManager) GetDetails(ctx context.Context, provider, id string) (models.ShowReference, error) {
	p, err := sm.GetProvider(provider)
	if err != nil {
		return models.ShowReference{}, err
	}
	ref, err := p.GetShowDetails(ctx, id)
	if err != nil {
		return models.ShowReference{}, err
	}
	return normalizeReference(ref, p.Name()), nil
}

// ListEpisodes lists episodes (or chapters) from one provider.
func (sm *ScraperManager) ListEpisodes(ctx context.Context, provider, id string, start, end float64) ([]models.EpisodeDescriptor, error) {
	p, err := sm.GetProvider(provider)
	if err != nil {
		return nil, err
	}
	return p.ListEpisodes(ctx, id, start, end)
}

// GetStreams resolves servers from one provider and applies opts.
func (sm *ScraperManager) GetStreams(ctx context.Context, provider, id string, episode float64, opts StreamOptions) ([]models.StreamServer, error) {
	p, err := sm.GetProvider(provider)
	if err != nil {
		return nil, err
	}
	tt := opts.Translation
	if tt == "" {
		tt = models.TranslationSub
	}
	timer := util.StartTimer("streams." + p.Name())
	servers, err := p.GetStreams(ctx, id, episode, tt)
	timer.StopAndLog("id", id, "episode", episode)
	if err != nil {
		return nil, err
	}
	servers = filterTranslation(servers, tt)
	return preferServers(servers, opts.PreferredServers), nil
}

// filterTranslation keeps links of tt and drops servers left empty.
func filterTranslation(servers []models.StreamServer, tt models.TranslationType) []models.StreamServer {
	out := make([]models.StreamServer, 0, len(servers))
	for _, s := range servers {
		links := make([]models.StreamLink, 0, len(s.Links))
		for _, l := range s.Links {
			if l.TranslationType == "" || l.TranslationType == tt {
				links = append(links, l)
			}
		}
		s.Links = links
		out = append(out, s)
	}
	return models.CompactServers(out)
}

// preferServers stable-sorts servers so preferred names come first.
func preferServers(servers []models.StreamServer, preferred []string) []models.StreamServer {
	if len(preferred) == 0 {
		return servers
	}
	rank := make(map[string]int, len(preferred))
	for i, name := range preferred {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, ok := rank[key]; !ok {
			rank[key] = i
		}
	}
	pos := func(s models.StreamServer) int {
		if r, ok := rank[strings.ToLower(s.ServerName)]; ok {
			return r
		}
		return len(preferred)
	}
	out := append([]models.StreamServer(nil), servers...)
	sort.SliceStable(out, func(i, j int) bool { return pos(out[i]) < pos(out[j]) })
	return out
}

// normalizeReference trims the title, tags the provider and removes empty
// or duplicate alternate titles. Duplicates are detected ignoring case and
// diacritics.
func normalizeReference(ref models.ShowReference, provider string) models.ShowReference {
	ref.Provider = provider
	ref.CanonicalTitle = strings.TrimSpace(ref.CanonicalTitle)

	seen := map[string]struct{}{fold(ref.CanonicalTitle): {}}
	alts := make([]string, 0, len(ref.AlternateTitles))
	for _, alt := range ref.AlternateTitles {
		alt = strings.TrimSpace(alt)
		key := fold(alt)
		if alt == "" {
			continue
		}
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		alts = append(alts, alt)
	}
	ref.AlternateTitles = alts
	return ref
}
