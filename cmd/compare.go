package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/desertthunder/soulmate/internal/affinity"
	"github.com/desertthunder/soulmate/internal/cache"
	"github.com/desertthunder/soulmate/internal/server"
	"github.com/desertthunder/soulmate/internal/shared"
	"github.com/desertthunder/soulmate/internal/ui"
	"github.com/urfave/cli/v3"
)

// Compare calculates affinity between the authenticated listener (or a demo
// stand-in) and a target user, rendering the score breakdown.
func (r *Runner) Compare(ctx context.Context, cmd *cli.Command) error {
	target := strings.TrimSpace(cmd.StringArg("target"))
	if target == "" {
		return fmt.Errorf("%w: target user (demo:NAME, Spotify user ID, or profile URL)", shared.ErrMissingArgument)
	}

	selfTarget := cmd.String("self")
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")
	save := cmd.Bool("save")

	resolver := r.resolver()

	store, closeStore, err := r.openStore()
	if err != nil {
		r.logger.Warn("cache unavailable, continuing without it", "error", err)
		store, closeStore = nil, func() {}
	}
	defer closeStore()

	self, selfLabel, err := r.selfArtists(ctx, selfTarget, store)
	if err != nil {
		return err
	}

	r.logger.Infof("comparing %s against %s", selfLabel, target)

	other, err := resolver.ArtistsFor(ctx, target)
	if err != nil {
		return fmt.Errorf("failed to resolve target %q: %w", target, err)
	}

	response, err := r.scoreWithCache(store, selfLabel, target, self, other)
	if err != nil {
		return err
	}

	if save {
		saveFile := fmt.Sprintf("affinity_%s.json", sanitize(target))
		data, err := shared.MarshalJSON(response, true)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
		if err := os.WriteFile(saveFile, data, 0644); err != nil {
			r.logger.Warn("failed to save result", "error", err)
		} else {
			r.logger.Info("result saved", "file", saveFile)
		}
	}

	if useJSON {
		return r.writeJSON(response, pretty)
	}

	return r.writePlain("%s", ui.RenderResult(target, &response.Result))
}

// Stats summarizes the authenticated listener's top artists.
func (r *Runner) Stats(ctx context.Context, cmd *cli.Command) error {
	useJSON := cmd.Bool("json")
	pretty := cmd.Bool("pretty")

	store, closeStore, err := r.openStore()
	if err != nil {
		r.logger.Warn("cache unavailable, continuing without it", "error", err)
		store, closeStore = nil, func() {}
	}
	defer closeStore()

	artists, _, err := r.selfArtists(ctx, "", store)
	if err != nil {
		return err
	}

	stats := affinity.Summarize(artists)

	if useJSON {
		return r.writeJSON(stats, pretty)
	}

	return r.writePlain("%s", ui.RenderStats(stats))
}

// selfArtists fetches the caller's own ranked list: a demo stand-in when
// selfTarget is set, otherwise the authenticated Spotify listener (read
// through the cache).
func (r *Runner) selfArtists(ctx context.Context, selfTarget string, store *cache.Store) ([]affinity.Artist, string, error) {
	if selfTarget != "" {
		artists, err := r.resolver().ArtistsFor(ctx, selfTarget)
		if err != nil {
			return nil, "", fmt.Errorf("failed to resolve --self target %q: %w", selfTarget, err)
		}
		return artists, selfTarget, nil
	}

	if r.spotify == nil {
		return nil, "", fmt.Errorf("%w: configure Spotify credentials and run: soulmate auth login", shared.ErrNotAuthenticated)
	}
	if !r.spotify.TokenValid() && r.spotify.Token() == nil {
		return nil, "", fmt.Errorf("%w: run: soulmate auth login", shared.ErrNotAuthenticated)
	}

	const label = "you"
	key := cache.Key("top_artists", label)

	if store != nil {
		var cached []affinity.Artist
		if hit, err := store.Get(key, &cached); err == nil && hit {
			return cached, label, nil
		}
	}

	artists, err := r.spotify.TopArtists(ctx, r.config.Affinity.ArtistLimit)
	if err != nil {
		return nil, "", fmt.Errorf("failed to fetch your top artists: %w", err)
	}

	if store != nil {
		if err := store.Set(key, artists, cache.TTLTopArtists); err != nil {
			r.logger.Warn("failed to cache top artists", "error", err)
		}
	}

	return artists, label, nil
}

// scoreWithCache runs the engine, reading and writing the affinity cache.
func (r *Runner) scoreWithCache(store *cache.Store, selfLabel, target string, self, other []affinity.Artist) (*server.AffinityResponse, error) {
	key := cache.Key("affinity", selfLabel, target)

	if store != nil {
		var cached server.AffinityResponse
		if hit, err := store.Get(key, &cached); err == nil && hit {
			return &cached, nil
		}
	}

	result, err := r.engine.Calculate(self, other)
	if err != nil {
		return nil, fmt.Errorf("affinity calculation failed: %w", err)
	}

	response := &server.AffinityResponse{Result: *result, TargetUser: target}

	if store != nil {
		if err := store.Set(key, response, cache.TTLAffinity); err != nil {
			r.logger.Warn("failed to cache affinity result", "error", err)
		}
	}

	return response, nil
}

func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
