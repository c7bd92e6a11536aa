// Example: resolve the playable servers of an episode
package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/alvarorichard/aniresolve/pkg/aniresolve"
)

func main() {
	cfg := aniresolve.DefaultConfig()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		log.Fatal(err)
	}
	client, err := aniresolve.NewClient(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()
	ctx := context.Background()

	animeName := "Frieren"
	fmt.Printf("Searching for '%s'...\n", animeName)
	results, err := client.Search(ctx, animeName, 1, aniresolve.ProviderAllAnime, aniresolve.ProviderHiAnime)
	if err != nil {
		log.Fatal(err)
	}
	if len(results) == 0 {
		log.Fatal("No anime found")
	}

	show := results[0]
	fmt.Printf("Selected: %s [%s]\n", show.CanonicalTitle, show.Provider)

	episodes, err := client.ListEpisodes(ctx, show.Provider, show.ProviderID, 1, aniresolve.OpenEnd)
	if err != nil {
		log.Fatal(err)
	}
	if len(episodes) == 0 {
		log.Fatal("No episodes found")
	}

	episode := episodes[0]
	fmt.Printf("\nResolving Episode %s...\n", episode.Label())
	servers, err := client.GetStreams(ctx, show.Provider, show.ProviderID, episode.Number, aniresolve.StreamOptions{
		Translation:      aniresolve.TranslationSub,
		PreferredServers: []string{"Yt", "HD-1"},
	})
	if err != nil {
		log.Fatalf("Error resolving streams: %v", err)
	}
	if len(servers) == 0 {
		log.Fatal("No playable servers")
	}

	for _, s := range servers {
		fmt.Printf("\n=== %s ===\n", s.ServerName)
		for _, l := range s.Links {
			fmt.Printf("  [%s] %s\n", l.Quality, l.URL)
		}
		for k, v := range s.RequiredHeaders {
			fmt.Printf("  header %s: %s\n", k, v)
		}
		for _, sub := range s.SubtitleTracks {
			fmt.Printf("  subtitle %s: %s\n", sub.Label, sub.URL)
		}
	}

	best := servers[0].Links[0]
	fmt.Println("\nYou can use this URL with video players like mpv, vlc, or ffmpeg")
	fmt.Printf("Example: mpv --referrer=%q %q\n", servers[0].RequiredHeaders["Referer"], best.URL)
}
