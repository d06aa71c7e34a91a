// package services defines ArtistProvider implementations for fetching
// ranked top-artist lists
//
// Spotify (OAuth2), built-in demo catalog
package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/desertthunder/soulmate/internal/affinity"
	"github.com/desertthunder/soulmate/internal/shared"
)

// ArtistProvider is a source of ranked artist lists. The affinity engine is
// a pure function of its inputs; providers are the only place listening data
// enters the system.
type ArtistProvider interface {
	// TopArtists retrieves the authenticated listener's ranked top artists.
	TopArtists(ctx context.Context, limit int) ([]affinity.Artist, error)

	// ArtistsForUser retrieves a ranked artist list for another user by
	// identifier. Returns [shared.ErrUserNotFound] when the user cannot be
	// resolved or exposes no public listening data.
	ArtistsForUser(ctx context.Context, userID string) ([]affinity.Artist, error)

	// Name returns the provider name (e.g. "Spotify", "Demo")
	Name() string
}

// demoPrefix marks a compare target as a demo-catalog lookup regardless of
// the configured provider.
const demoPrefix = "demo:"

// TargetResolver routes a compare target to the right provider.
//
// Demo data is an explicit alternate source selected by configuration or the
// "demo:" target prefix, never a fallback for provider errors.
type TargetResolver struct {
	spotify  ArtistProvider
	demo     ArtistProvider
	demoOnly bool
}

// NewTargetResolver creates a resolver over the real and demo providers.
// When demoOnly is set every target resolves against the demo catalog.
func NewTargetResolver(spotify, demo ArtistProvider, demoOnly bool) *TargetResolver {
	return &TargetResolver{spotify: spotify, demo: demo, demoOnly: demoOnly}
}

// ArtistsFor resolves a target identifier to a ranked artist list.
func (r *TargetResolver) ArtistsFor(ctx context.Context, target string) ([]affinity.Artist, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("%w: empty target user", shared.ErrInvalidArgument)
	}

	if r.demoOnly {
		return r.demo.ArtistsForUser(ctx, strings.TrimPrefix(target, demoPrefix))
	}

	if name, ok := strings.CutPrefix(target, demoPrefix); ok {
		return r.demo.ArtistsForUser(ctx, name)
	}

	if r.spotify == nil {
		return nil, fmt.Errorf("%w: Spotify provider not configured", shared.ErrServiceUnavailable)
	}

	return r.spotify.ArtistsForUser(ctx, target)
}

// Provider returns the provider a target would resolve against.
func (r *TargetResolver) Provider(target string) ArtistProvider {
	if r.demoOnly || strings.HasPrefix(strings.TrimSpace(target), demoPrefix) {
		return r.demo
	}
	return r.spotify
}
