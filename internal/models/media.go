// Package models contains the value objects produced by the provider clients
package models

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// TranslationType selects subtitled or dubbed audio
type TranslationType string

const (
	TranslationSub TranslationType = "sub"
	TranslationDub TranslationType = "dub"
)

// ParseTranslationType accepts "sub" or "dub" (case-insensitive). An empty
// string defaults to sub.
func ParseTranslationType(s string) (TranslationType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sub":
		return TranslationSub, nil
	case "dub":
		return TranslationDub, nil
	default:
		return "", fmt.Errorf("unknown translation type %q", s)
	}
}

// ShowReference identifies a show (or manga) on one provider.
// Values are never mutated after a provider returns them.
type ShowReference struct {
	Provider        string
	ProviderID      string
	AlternativeID   string
	CanonicalTitle  string
	AlternateTitles []string
	Genres          []string
}

// HasGenre reports whether the show is tagged with genre, ignoring case.
func (s ShowReference) HasGenre(genre string) bool {
	for _, g := range s.Genres {
		if strings.EqualFold(g, genre) {
			return true
		}
	}
	return false
}

// GenreSet deduplicates genres case-insensitively, keeping the first spelling,
// and returns them sorted.
func GenreSet(genres ...string) []string {
	seen := make(map[string]struct{}, len(genres))
	out := make([]string, 0, len(genres))
	for _, g := range genres {
		g = strings.TrimSpace(g)
		if g == "" {
			continue
		}
		key := strings.ToLower(g)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, g)
	}
	sort.Strings(out)
	return out
}

// EpisodeDescriptor describes one episode (or chapter) of a show.
type EpisodeDescriptor struct {
	Number      float64
	Notes       string
	Thumbnails  []string
	UploadDates map[TranslationType]time.Time
}

// Label formats the episode number the way upstreams spell it: "12" or "12.5".
func (e EpisodeDescriptor) Label() string {
	return FormatEpisodeNumber(e.Number)
}

// FormatEpisodeNumber renders n without a trailing ".0".
func FormatEpisodeNumber(n float64) string {
	return strconv.FormatFloat(n, 'f', -1, 64)
}

// ParseEpisodeNumber parses an upstream episode label. Labels such as "bonus"
// or "SP" return ok=false and must be skipped by callers.
func ParseEpisodeNumber(label string) (float64, bool) {
	n, err := strconv.ParseFloat(strings.TrimSpace(label), 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}

// OpenEnd is the end of an episode range with no upper bound.
var OpenEnd = math.Inf(1)

// FilterEpisodes keeps descriptors within [start, end] inclusive and sorts them
// ascending by number. Pass OpenEnd for no upper bound.
func FilterEpisodes(episodes []EpisodeDescriptor, start, end float64) []EpisodeDescriptor {
	out := make([]EpisodeDescriptor, 0, len(episodes))
	for _, ep := range episodes {
		if ep.Number < start {
			continue
		}
		if ep.Number > end {
			continue
		}
		out = append(out, ep)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}
