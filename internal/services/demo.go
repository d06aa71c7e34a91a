package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/desertthunder/soulmate/internal/affinity"
	"github.com/desertthunder/soulmate/internal/shared"
)

// DemoProvider implements [ArtistProvider] over a fixed catalog of demo
// listeners. It exists so the compare flow can be exercised without a second
// authenticated Spotify account; selection is always explicit (configuration
// or the demo: prefix).
type DemoProvider struct {
	catalog map[string][]affinity.Artist
}

// NewDemoProvider creates a provider with the built-in demo catalog.
func NewDemoProvider() *DemoProvider {
	return &DemoProvider{catalog: demoCatalog()}
}

func (d *DemoProvider) Name() string {
	return "Demo"
}

// TopArtists is unsupported: the demo catalog has no authenticated listener.
func (d *DemoProvider) TopArtists(ctx context.Context, limit int) ([]affinity.Artist, error) {
	return nil, fmt.Errorf("%w: demo provider has no authenticated listener", shared.ErrNoListeningData)
}

// ArtistsForUser returns the demo list for a known listener name.
func (d *DemoProvider) ArtistsForUser(ctx context.Context, userID string) ([]affinity.Artist, error) {
	artists, ok := d.catalog[strings.ToLower(strings.TrimSpace(userID))]
	if !ok {
		return nil, fmt.Errorf("%w: unknown demo user %q (try %s)", shared.ErrUserNotFound, userID, strings.Join(d.Users(), ", "))
	}
	return artists, nil
}

// Users lists the available demo listener names, sorted.
func (d *DemoProvider) Users() []string {
	names := make([]string, 0, len(d.catalog))
	for name := range d.catalog {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// demoCatalog builds the fixed demo listeners. Each list is ranked, ids are
// real Spotify catalog ids so results look plausible next to live data.
func demoCatalog() map[string][]affinity.Artist {
	return map[string][]affinity.Artist{
		"john": {
			{ID: "3WrFJ7ztbogyGnTHbHJFl2", Name: "The Beatles", Popularity: 85, Genres: []string{"rock", "pop", "british invasion"}},
			{ID: "0k17h0D3J5VfsdmQ1iZtE9", Name: "Pink Floyd", Popularity: 80, Genres: []string{"progressive rock", "rock", "psychedelic rock"}},
			{ID: "36QJpDe2go2KgaRleHCDTp", Name: "Led Zeppelin", Popularity: 83, Genres: []string{"hard rock", "rock", "blues rock"}},
			{ID: "4Z8W4fKeB5YxbusRsdQVPb", Name: "Radiohead", Popularity: 82, Genres: []string{"alternative rock", "art rock", "rock"}},
			{ID: "22bE4uQ6baNwSHPVcDxLCe", Name: "The Rolling Stones", Popularity: 79, Genres: []string{"rock", "british invasion", "blues rock"}},
		},
		"sarah": {
			{ID: "06HL4z0CvFAxyc27GXpf02", Name: "Taylor Swift", Popularity: 100, Genres: []string{"pop", "country"}},
			{ID: "66CXWjxzNUsdJxJ2JdwvnR", Name: "Ariana Grande", Popularity: 93, Genres: []string{"pop", "r&b"}},
			{ID: "6qqNVTkY8uBg9cP3Jd7DAH", Name: "Billie Eilish", Popularity: 95, Genres: []string{"pop", "electropop"}},
			{ID: "1uNFoZAHBGtllmzznpCI3s", Name: "Justin Bieber", Popularity: 90, Genres: []string{"pop", "canadian pop"}},
			{ID: "0C8ZW7ezQVs4URX5aX7Kqx", Name: "Selena Gomez", Popularity: 87, Genres: []string{"pop", "dance pop"}},
		},
		"mike": {
			{ID: "2YZyLoL8N0Wb9xBt1NhZWg", Name: "Kendrick Lamar", Popularity: 92, Genres: []string{"hip hop", "west coast rap", "conscious hip hop"}},
			{ID: "3TVXtAsR1Inumwj472S9r4", Name: "Drake", Popularity: 96, Genres: []string{"hip hop", "rap", "toronto rap"}},
			{ID: "5K4W6rqBFWDnAN6FQUkS6x", Name: "Kanye West", Popularity: 91, Genres: []string{"hip hop", "rap", "chicago rap"}},
			{ID: "0Y5tJX1MQlPlqiwlOH1tJY", Name: "Travis Scott", Popularity: 94, Genres: []string{"rap", "hip hop", "trap"}},
			{ID: "7dGJo4pcD2V6oG8kP0tJRR", Name: "Eminem", Popularity: 90, Genres: []string{"hip hop", "rap", "detroit hip hop"}},
		},
		"alex": {
			{ID: "7jy3rLJdDQY21OgRLCZ9sD", Name: "Foo Fighters", Popularity: 78, Genres: []string{"alternative rock", "post-grunge", "rock"}},
			{ID: "53XhwfbYqKCa1cC15pYq2q", Name: "Imagine Dragons", Popularity: 85, Genres: []string{"modern rock", "pop", "rock"}},
			{ID: "5INjqkS1o8h1imAzPqGZBb", Name: "Tame Impala", Popularity: 81, Genres: []string{"psychedelic rock", "indie rock", "neo-psychedelic"}},
			{ID: "3YQKmKGau1PzlVlkL1iodx", Name: "Twenty One Pilots", Popularity: 83, Genres: []string{"modern rock", "pop", "rock"}},
			{ID: "26T3LtbuGT1Fu9m0eRq5X3", Name: "Cage The Elephant", Popularity: 76, Genres: []string{"alternative rock", "modern rock", "indie rock"}},
		},
	}
}
