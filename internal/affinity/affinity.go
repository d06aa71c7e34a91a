// package affinity implements the compatibility scoring engine.
//
// All functions are pure: a result is a deterministic function of the two
// input lists alone, with no I/O and no hidden state.
package affinity

import (
	"fmt"
	"math"
	"sort"

	"github.com/desertthunder/soulmate/internal/shared"
)

// Artist is a single entry in a ranked top-artist list. Rank is the slice
// index: position 0 is the listener's most played artist.
type Artist struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Popularity int      `json:"popularity"`
	Genres     []string `json:"genres"`
}

// Metrics holds the three component similarities, each on a 0-100 scale.
type Metrics struct {
	ArtistSimilarity     float64 `json:"artist_similarity"`
	GenreSimilarity      float64 `json:"genre_similarity"`
	PopularitySimilarity float64 `json:"popularity_similarity"`
}

// Result is the outcome of a single affinity calculation.
type Result struct {
	Score         int      `json:"score"`
	CommonArtists []Artist `json:"common_artists"`
	CommonGenres  []string `json:"common_genres"`
	Metrics       Metrics  `json:"metrics"`
	Analysis      string   `json:"analysis"`
}

// Weights controls the blend of component similarities in the overall score.
//
// The values are design choices, not derived constants, so they live in
// configuration rather than being buried in the arithmetic.
type Weights struct {
	ArtistOverlap        float64
	GenreSimilarity      float64
	PopularitySimilarity float64
}

// Default blend weights. Artist overlap dominates because a shared favorite
// artist is the strongest taste signal.
const (
	DefaultArtistWeight     = 0.5
	DefaultGenreWeight      = 0.35
	DefaultPopularityWeight = 0.15
)

// DefaultWeights returns the standard scoring blend.
func DefaultWeights() Weights {
	return Weights{
		ArtistOverlap:        DefaultArtistWeight,
		GenreSimilarity:      DefaultGenreWeight,
		PopularitySimilarity: DefaultPopularityWeight,
	}
}

// Analysis tier boundaries against the overall score.
const (
	TierSoulmates    = 80
	TierGreat        = 60
	TierCommonGround = 40
	TierDifferent    = 20
)

// Engine computes affinity between two ranked artist lists.
type Engine struct {
	weights Weights
}

// NewEngine creates an Engine with the given blend weights. Zero-valued
// weights fall back to the defaults.
func NewEngine(weights Weights) *Engine {
	if weights.ArtistOverlap == 0 && weights.GenreSimilarity == 0 && weights.PopularitySimilarity == 0 {
		weights = DefaultWeights()
	}
	return &Engine{weights: weights}
}

// Weights returns the engine's blend weights.
func (e *Engine) Weights() Weights {
	return e.weights
}

// Calculate produces the full affinity result for two ranked artist lists.
//
// Either list may be empty; the component metrics degrade to their
// documented zero defaults. Malformed records are rejected, never coerced.
func (e *Engine) Calculate(a, b []Artist) (*Result, error) {
	if err := validateList(a); err != nil {
		return nil, fmt.Errorf("list a: %w", err)
	}
	if err := validateList(b); err != nil {
		return nil, fmt.Errorf("list b: %w", err)
	}

	common := CommonArtists(a, b)

	metrics := Metrics{
		ArtistSimilarity:     artistOverlap(a, b),
		GenreSimilarity:      GenreSimilarity(a, b),
		PopularitySimilarity: PopularitySimilarity(a, b),
	}

	blended := e.weights.ArtistOverlap*metrics.ArtistSimilarity +
		e.weights.GenreSimilarity*metrics.GenreSimilarity +
		e.weights.PopularitySimilarity*metrics.PopularitySimilarity

	score := int(math.Round(clamp(blended)))

	return &Result{
		Score:         score,
		CommonArtists: common,
		CommonGenres:  CommonGenres(a, b),
		Metrics:       metrics,
		Analysis:      analysisFor(score),
	}, nil
}

// CommonArtists computes the intersection of two artist lists by ID.
//
// Names are never used for matching since distinct catalog entries can share
// a name. The result is ordered by rank in list a so output is deterministic.
func CommonArtists(a, b []Artist) []Artist {
	inB := make(map[string]struct{}, len(b))
	for _, artist := range b {
		inB[artist.ID] = struct{}{}
	}

	common := []Artist{}
	for _, artist := range a {
		if _, ok := inB[artist.ID]; ok {
			common = append(common, artist)
		}
	}

	return common
}

// CommonGenres returns the sorted intersection of the two lists' genre sets.
func CommonGenres(a, b []Artist) []string {
	genresA := genreSet(a)
	genresB := genreSet(b)

	common := []string{}
	for genre := range genresA {
		if _, ok := genresB[genre]; ok {
			common = append(common, genre)
		}
	}

	sort.Strings(common)
	return common
}

// GenreSimilarity computes the Jaccard index of the two lists' genre sets,
// scaled to 0-100. An empty union yields 0 rather than a division fault.
func GenreSimilarity(a, b []Artist) float64 {
	genresA := genreSet(a)
	genresB := genreSet(b)

	intersection := 0
	for genre := range genresA {
		if _, ok := genresB[genre]; ok {
			intersection++
		}
	}

	union := len(genresA) + len(genresB) - intersection
	if union == 0 {
		return 0
	}

	return 100 * float64(intersection) / float64(union)
}

// PopularitySimilarity compares the mean popularity of the two lists:
// 100 minus the absolute difference of means, clamped to [0,100].
//
// An empty list contributes a mean of 0.
func PopularitySimilarity(a, b []Artist) float64 {
	return clamp(100 - math.Abs(meanPopularity(a)-meanPopularity(b)))
}

// artistOverlap scores the shared artists of the two lists weighted by rank.
//
// An artist at 0-indexed rank i carries weight 1/(1+i), so a match on a
// listener's top artist counts far more than a match deep in the list. Each
// common artist contributes the smaller of its two rank weights, normalized
// against list a's total weight.
func artistOverlap(a, b []Artist) float64 {
	if len(a) == 0 {
		return 0
	}

	rankB := make(map[string]int, len(b))
	for i, artist := range b {
		rankB[artist.ID] = i
	}

	total := 0.0
	matched := 0.0
	for i, artist := range a {
		wa := rankWeight(i)
		total += wa
		if j, ok := rankB[artist.ID]; ok {
			matched += math.Min(wa, rankWeight(j))
		}
	}

	return clamp(100 * matched / total)
}

// rankWeight is the inverse-rank decay 1/(1+i) for a 0-indexed rank.
func rankWeight(i int) float64 {
	return 1 / float64(1+i)
}

func analysisFor(score int) string {
	switch {
	case score >= TierSoulmates:
		return "You're musical soulmates! Your listening profiles are nearly inseparable."
	case score >= TierGreat:
		return "Great compatibility. You have a lot in common musically."
	case score >= TierCommonGround:
		return "Some common ground. You share overlapping tastes alongside your own favorites."
	case score >= TierDifferent:
		return "Different tastes. Your libraries mostly diverge, with a few touchpoints."
	default:
		return "Opposite tastes. You each bring an entirely different soundtrack."
	}
}

// validateList rejects malformed artist records: empty IDs, popularity
// outside [0,100], and duplicate IDs within one list.
func validateList(artists []Artist) error {
	seen := make(map[string]struct{}, len(artists))
	for i, artist := range artists {
		if artist.ID == "" {
			return fmt.Errorf("%w: artist at rank %d has no id", shared.ErrInvalidInput, i)
		}
		if artist.Popularity < 0 || artist.Popularity > 100 {
			return fmt.Errorf("%w: artist %q popularity %d out of range", shared.ErrInvalidInput, artist.ID, artist.Popularity)
		}
		if _, ok := seen[artist.ID]; ok {
			return fmt.Errorf("%w: duplicate artist id %q", shared.ErrInvalidInput, artist.ID)
		}
		seen[artist.ID] = struct{}{}
	}
	return nil
}

func genreSet(artists []Artist) map[string]struct{} {
	genres := make(map[string]struct{})
	for _, artist := range artists {
		for _, genre := range artist.Genres {
			genres[genre] = struct{}{}
		}
	}
	return genres
}

func meanPopularity(artists []Artist) float64 {
	if len(artists) == 0 {
		return 0
	}
	sum := 0
	for _, artist := range artists {
		sum += artist.Popularity
	}
	return float64(sum) / float64(len(artists))
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
