// Package config holds the engine configuration as an explicit struct.
// Hosts build a Config (usually from Default plus ApplyEnv) and pass it to
// the constructors; nothing in the engine reads global state.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config is the full set of tunables for the resolution engine.
type Config struct {
	// HTTP
	Timeout       time.Duration
	RetryAttempts uint
	RetryDelay    time.Duration
	UserAgent     string

	// Upstream endpoints
	AllAnimeAPI     string
	AllAnimeBase    string
	AllAnimeReferer string
	HiAnimeBase     string
	MegaCloudBase   string
	NguonCBase      string
	MangaDexAPI     string
	MangaDexAuthURL string

	// Caching
	CacheLifetime time.Duration
	CacheSize     int
	CachePath     string

	// Stream resolution
	AllowedSources        []string
	MaxConcurrentEmbeds   int
	MaxConcurrentSearches int

	// MangaDex credentials; empty means anonymous access
	MangaDexClientID     string
	MangaDexClientSecret string
	MangaDexRefreshToken string

	// Logging
	LogFile string
	Debug   bool
}

// DefaultAllowedSources are the AllAnime source names known to decode reliably.
var DefaultAllowedSources = []string{"Sak", "S-mp4", "Luf-mp4", "Default", "Yt-mp4", "Kir", "Mp4"}

// Default returns a Config with production defaults.
func Default() Config {
	return Config{
		Timeout:       20 * time.Second,
		RetryAttempts: 2,
		RetryDelay:    300 * time.Millisecond,
		UserAgent:     "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:109.0) Gecko/20100101 Firefox/121.0",

		AllAnimeAPI:     "https://api.allanime.day/api",
		AllAnimeBase:    "https://allanime.day",
		AllAnimeReferer: "https://allmanga.to",
		HiAnimeBase:     "https://hianime.to",
		MegaCloudBase:   "https://megacloud.tv",
		NguonCBase:      "https://phim.nguonc.com",
		MangaDexAPI:     "https://api.mangadex.org",
		MangaDexAuthURL: "https://auth.mangadex.org/realms/mangadex/protocol/openid-connect/token",

		CacheLifetime: 30 * time.Minute,
		CacheSize:     512,

		AllowedSources:        append([]string(nil), DefaultAllowedSources...),
		MaxConcurrentEmbeds:   4,
		MaxConcurrentSearches: 4,
	}
}

// envVars enumerates every environment variable ApplyEnv understands.
var envVars = []struct {
	name  string
	apply func(c *Config, v string) error
}{
	{"ANIRESOLVE_TIMEOUT", func(c *Config, v string) error { return setDuration(&c.Timeout, v) }},
	{"ANIRESOLVE_RETRY_ATTEMPTS", func(c *Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return err
		}
		c.RetryAttempts = uint(n)
		return nil
	}},
	{"ANIRESOLVE_RETRY_DELAY", func(c *Config, v string) error { return setDuration(&c.RetryDelay, v) }},
	{"ANIRESOLVE_USER_AGENT", func(c *Config, v string) error { c.UserAgent = v; return nil }},
	{"ANIRESOLVE_ALLANIME_API", func(c *Config, v string) error { c.AllAnimeAPI = v; return nil }},
	{"ANIRESOLVE_ALLANIME_BASE", func(c *Config, v string) error { c.AllAnimeBase = v; return nil }},
	{"ANIRESOLVE_HIANIME_BASE", func(c *Config, v string) error { c.HiAnimeBase = v; return nil }},
	{"ANIRESOLVE_MEGACLOUD_BASE", func(c *Config, v string) error { c.MegaCloudBase = v; return nil }},
	{"ANIRESOLVE_NGUONC_BASE", func(c *Config, v string) error { c.NguonCBase = v; return nil }},
	{"ANIRESOLVE_MANGADEX_API", func(c *Config, v string) error { c.MangaDexAPI = v; return nil }},
	{"ANIRESOLVE_CACHE_LIFETIME", func(c *Config, v string) error { return setDuration(&c.CacheLifetime, v) }},
	{"ANIRESOLVE_CACHE_SIZE", func(c *Config, v string) error { return setInt(&c.CacheSize, v) }},
	{"ANIRESOLVE_CACHE_PATH", func(c *Config, v string) error { c.CachePath = v; return nil }},
	{"ANIRESOLVE_ALLOWED_SOURCES", func(c *Config, v string) error {
		c.AllowedSources = splitList(v)
		return nil
	}},
	{"ANIRESOLVE_MAX_CONCURRENT_EMBEDS", func(c *Config, v string) error { return setInt(&c.MaxConcurrentEmbeds, v) }},
	{"ANIRESOLVE_MANGADEX_CLIENT_ID", func(c *Config, v string) error { c.MangaDexClientID = v; return nil }},
	{"ANIRESOLVE_MANGADEX_CLIENT_SECRET", func(c *Config, v string) error { c.MangaDexClientSecret = v; return nil }},
	{"ANIRESOLVE_MANGADEX_REFRESH_TOKEN", func(c *Config, v string) error { c.MangaDexRefreshToken = v; return nil }},
	{"ANIRESOLVE_LOG_FILE", func(c *Config, v string) error { c.LogFile = v; return nil }},
	{"ANIRESOLVE_DEBUG", func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		c.Debug = b
		return nil
	}},
}

// ApplyEnv overrides fields from the variables returned by lookup
// (typically os.LookupEnv).
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	for _, ev := range envVars {
		v, ok := lookup(ev.name)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := ev.apply(c, strings.TrimSpace(v)); err != nil {
			return fmt.Errorf("%s: %w", ev.name, err)
		}
	}
	return nil
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %v", c.Timeout)
	}
	if c.CacheLifetime <= 0 {
		return fmt.Errorf("cache lifetime must be positive, got %v", c.CacheLifetime)
	}
	if c.CacheSize <= 0 {
		return fmt.Errorf("cache size must be positive, got %d", c.CacheSize)
	}
	if c.MaxConcurrentEmbeds <= 0 || c.MaxConcurrentSearches <= 0 {
		return fmt.Errorf("concurrency limits must be positive")
	}
	if (c.MangaDexClientID == "") != (c.MangaDexClientSecret == "") {
		return fmt.Errorf("mangadex client id and secret must be set together")
	}
	return nil
}

// MangaDexAuthEnabled reports whether a refresh token flow is configured.
func (c Config) MangaDexAuthEnabled() bool {
	return c.MangaDexClientID != "" && c.MangaDexRefreshToken != ""
}

func setDuration(dst *time.Duration, v string) error {
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
