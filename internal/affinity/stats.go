package affinity

import (
	"math"
	"sort"
)

// Stats summarizes a single listener's top-artist list for the stats
// endpoint and CLI command. These figures are informational and never feed
// the affinity blend.
type Stats struct {
	ArtistCount int     `json:"top_artists_count"`
	GenreCount  int     `json:"top_genres_count"`
	Variety     string  `json:"music_variety"`
	Diversity   float64 `json:"genre_diversity"`
}

// Summarize computes listener statistics for one ranked artist list.
func Summarize(artists []Artist) Stats {
	genres := UniqueGenres(artists)
	return Stats{
		ArtistCount: len(artists),
		GenreCount:  len(genres),
		Variety:     varietyFor(len(genres)),
		Diversity:   GenreDiversity(artists),
	}
}

// UniqueGenres returns the sorted distinct genres across an artist list.
func UniqueGenres(artists []Artist) []string {
	set := genreSet(artists)
	genres := make([]string, 0, len(set))
	for genre := range set {
		genres = append(genres, genre)
	}
	sort.Strings(genres)
	return genres
}

// GenreDiversity computes the normalized Shannon diversity index over genre
// frequencies, in [0,1]. A listener whose artists span many genres evenly
// scores near 1; a single-genre listener scores 0.
func GenreDiversity(artists []Artist) float64 {
	counts := make(map[string]int)
	total := 0
	for _, artist := range artists {
		for _, genre := range artist.Genres {
			counts[genre]++
			total++
		}
	}

	if total == 0 || len(counts) < 2 {
		return 0
	}

	diversity := 0.0
	for _, count := range counts {
		p := float64(count) / float64(total)
		diversity -= p * math.Log2(p)
	}

	return diversity / math.Log2(float64(len(counts)))
}

// varietyFor buckets a distinct-genre count into a coarse label.
func varietyFor(genreCount int) string {
	switch {
	case genreCount >= 10:
		return "Very High"
	case genreCount >= 7:
		return "High"
	case genreCount >= 4:
		return "Medium"
	case genreCount >= 2:
		return "Low"
	default:
		return "Very Low"
	}
}
