// Example: list manga chapters and print the pages of the first one
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/alvarorichard/aniresolve/pkg/aniresolve"
)

func main() {
	client, err := aniresolve.NewClient(aniresolve.DefaultConfig())
	if err != nil {
		log.Fatal(err)
	}
	defer client.Close()
	ctx := context.Background()

	results, err := client.Search(ctx, "Chainsaw Man", 1, aniresolve.ProviderMangaDex)
	if err != nil {
		log.Fatal(err)
	}
	if len(results) == 0 {
		log.Fatal("No manga found")
	}
	manga := results[0]
	fmt.Printf("Selected: %s\n", manga.CanonicalTitle)

	chapters, err := client.ListEpisodes(ctx, manga.Provider, manga.ProviderID, 1, 3)
	if err != nil {
		log.Fatal(err)
	}
	for _, ch := range chapters {
		fmt.Printf("  Chapter %s %s\n", ch.Label(), ch.Notes)
	}
	if len(chapters) == 0 {
		return
	}

	servers, err := client.GetStreams(ctx, manga.Provider, manga.ProviderID, chapters[0].Number, aniresolve.StreamOptions{
		PreferredServers: []string{"MangaDex Data Saver"},
	})
	if err != nil {
		log.Fatal(err)
	}
	for _, s := range servers {
		fmt.Printf("\n%s (%d pages)\n", s.ServerName, len(s.Links))
		for _, l := range s.Links {
			fmt.Println("  " + l.URL)
		}
	}
}
