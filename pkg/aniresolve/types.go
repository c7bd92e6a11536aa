package aniresolve

import (
	"fmt"
	"strings"

	"github.com/alvarorichard/aniresolve/internal/config"
	"github.com/alvarorichard/aniresolve/internal/errs"
	"github.com/alvarorichard/aniresolve/internal/models"
	"github.com/alvarorichard/aniresolve/internal/scraper"
	"github.com/alvarorichard/aniresolve/internal/transport"
)

// Public aliases of the engine's value objects.
type (
	Config            = config.Config
	ShowReference     = models.ShowReference
	EpisodeDescriptor = models.EpisodeDescriptor
	StreamServer      = models.StreamServer
	StreamLink        = models.StreamLink
	SubtitleTrack     = models.SubtitleTrack
	Quality           = models.Quality
	TranslationType   = models.TranslationType
	StreamOptions     = scraper.StreamOptions
	ChapterPages      = scraper.ChapterPages

	// Transport is what the client sends requests through. Tests and hosts
	// with their own HTTP stack can supply one with WithTransport.
	Transport = transport.Transport

	// ErrorKind classifies a failure; see KindOf.
	ErrorKind = errs.Kind
)

const (
	TranslationSub = models.TranslationSub
	TranslationDub = models.TranslationDub
)

// Provider names.
const (
	ProviderAllAnime = scraper.AllAnimeName
	ProviderHiAnime  = scraper.HiAnimeName
	ProviderNguonC   = scraper.NguonCName
	ProviderMangaDex = scraper.MangaDexName
)

// Sentinel errors for errors.Is.
var (
	ErrTransportFailure     = errs.ErrTransportFailure
	ErrDecodeFailure        = errs.ErrDecodeFailure
	ErrUpstreamShapeChanged = errs.ErrUpstreamShapeChanged
	ErrAuthFailure          = errs.ErrAuthFailure
	ErrNotFound             = errs.ErrNotFound
)

// OpenEnd passed as the end of ListEpisodes means no upper bound.
var OpenEnd = models.OpenEnd

// KindOf returns the kind of the first classified error in err's chain.
func KindOf(err error) ErrorKind { return errs.KindOf(err) }

// DefaultConfig returns the production defaults.
func DefaultConfig() Config { return config.Default() }

// ParseProvider accepts a provider name or one of its short forms.
func ParseProvider(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "allanime", "all":
		return ProviderAllAnime, nil
	case "hianime", "hi":
		return ProviderHiAnime, nil
	case "nguonc", "phim":
		return ProviderNguonC, nil
	case "mangadex", "md", "manga":
		return ProviderMangaDex, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", s)
	}
}

// ParseTranslation accepts "sub" or "dub"; empty means sub.
func ParseTranslation(s string) (TranslationType, error) {
	return models.ParseTranslationType(s)
}
