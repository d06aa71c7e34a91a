package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/soulmate/internal/affinity"
	"github.com/desertthunder/soulmate/internal/cache"
	"github.com/desertthunder/soulmate/internal/services"
	"github.com/desertthunder/soulmate/internal/shared"
)

// TargetSource resolves a compare target to a ranked artist list.
// Satisfied by [services.TargetResolver].
type TargetSource interface {
	ArtistsFor(ctx context.Context, target string) ([]affinity.Artist, error)
}

// AffinityResponse is the calculation payload: the engine result plus the
// echoed target identifier.
type AffinityResponse struct {
	affinity.Result
	TargetUser string `json:"target_user"`
}

// APIHandler serves the affinity API: /api/user, /api/user/stats,
// /api/calculate-affinity, /api/cache/warm, /api/cache/clear.
type APIHandler struct {
	clients     ClientFactory
	targets     TargetSource
	engine      *affinity.Engine
	store       *cache.Store
	sessions    *SessionStore
	logger      *log.Logger
	artistLimit int
}

// APIHandlerOpts contains dependencies for creating an APIHandler.
type APIHandlerOpts struct {
	Clients     ClientFactory
	Targets     TargetSource
	Engine      *affinity.Engine
	Store       *cache.Store
	Sessions    *SessionStore
	Logger      *log.Logger
	ArtistLimit int
}

// NewAPIHandler creates the affinity endpoint group.
func NewAPIHandler(opts APIHandlerOpts) *APIHandler {
	if opts.Engine == nil {
		opts.Engine = affinity.NewEngine(affinity.DefaultWeights())
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.ArtistLimit <= 0 {
		opts.ArtistLimit = 50
	}

	return &APIHandler{
		clients:     opts.Clients,
		targets:     opts.Targets,
		engine:      opts.Engine,
		store:       opts.Store,
		sessions:    opts.Sessions,
		logger:      opts.Logger,
		artistLimit: opts.ArtistLimit,
	}
}

// Routes returns the HTTP routes this handler serves.
func (h *APIHandler) Routes() []string {
	return []string{"/api/user", "/api/user/stats", "/api/calculate-affinity", "/api/cache/warm", "/api/cache/clear"}
}

func (h *APIHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.FromRequest(r)
	if !session.Authenticated() {
		writeError(w, http.StatusUnauthorized, shared.ErrNotAuthenticated)
		return
	}

	// Request-scoped binding: the session's token never touches shared state.
	client := h.clients(session.Token)

	switch r.URL.Path {
	case "/api/user":
		h.user(w, r, session, client)
	case "/api/user/stats":
		h.userStats(w, r, session, client)
	case "/api/calculate-affinity":
		h.calculateAffinity(w, r, session, client)
	case "/api/cache/warm":
		h.cacheWarm(w, r, session, client)
	case "/api/cache/clear":
		h.cacheClear(w, r)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown api route"))
	}
}

// user returns the authenticated listener's profile, memoized on the session
// and read through the store.
func (h *APIHandler) user(w http.ResponseWriter, r *http.Request, session *Session, client Client) {
	profile, err := h.profileFor(r.Context(), session, client)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, profile)
}

// userStats summarizes the listener's top artists.
func (h *APIHandler) userStats(w http.ResponseWriter, r *http.Request, session *Session, client Client) {
	artists, err := h.selfArtists(r.Context(), session, client)
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, affinity.Summarize(artists))
}

// calculateAffinity scores the authenticated listener against a target user.
func (h *APIHandler) calculateAffinity(w http.ResponseWriter, r *http.Request, session *Session, client Client) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("use POST"))
		return
	}

	var body struct {
		TargetUser string `json:"target_user"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid request body"))
		return
	}

	target := strings.TrimSpace(body.TargetUser)
	if target == "" {
		writeError(w, http.StatusBadRequest, errors.New("target user cannot be empty"))
		return
	}

	cacheKey := cache.Key("affinity", session.ID, target)
	if h.store != nil {
		var cached AffinityResponse
		if hit, err := h.store.Get(cacheKey, &cached); err == nil && hit {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	self, err := h.selfArtists(r.Context(), session, client)
	if err != nil {
		h.fail(w, err)
		return
	}

	other, err := h.targets.ArtistsFor(r.Context(), target)
	if err != nil {
		h.fail(w, err)
		return
	}

	result, err := h.engine.Calculate(self, other)
	if err != nil {
		h.fail(w, err)
		return
	}

	response := AffinityResponse{Result: *result, TargetUser: target}

	if h.store != nil {
		if err := h.store.Set(cacheKey, response, cache.TTLAffinity); err != nil {
			h.logger.Warn("failed to cache affinity result", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// cacheWarm pre-fetches the listener's profile and top artists into the store
// so the first compare of a session doesn't pay the API round trips.
func (h *APIHandler) cacheWarm(w http.ResponseWriter, r *http.Request, session *Session, client Client) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("use POST"))
		return
	}

	warmed := []string{}

	if _, err := h.profileFor(r.Context(), session, client); err != nil {
		h.logger.Warn("failed to warm profile", "error", err)
	} else {
		warmed = append(warmed, "profile")
	}

	if _, err := h.selfArtists(r.Context(), session, client); err != nil {
		h.fail(w, err)
		return
	}
	warmed = append(warmed, "top_artists")

	writeJSON(w, http.StatusOK, map[string]any{"warmed": warmed})
}

// cacheClear drops cached responses for the service.
func (h *APIHandler) cacheClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("use POST"))
		return
	}

	if h.store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"cleared": 0})
		return
	}

	cleared, err := h.store.Clear("")
	if err != nil {
		h.fail(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"cleared": cleared})
}

// profileFor loads the listener's profile through the store, memoizing it on
// the session.
func (h *APIHandler) profileFor(ctx context.Context, session *Session, client Client) (*services.SpotifyUser, error) {
	if profile := session.Profile(); profile != nil {
		return profile, nil
	}

	key := cache.Key("profile", session.ID)

	if h.store != nil {
		var cached services.SpotifyUser
		if hit, err := h.store.Get(key, &cached); err == nil && hit {
			session.SetProfile(&cached)
			return &cached, nil
		}
	}

	profile, err := client.Profile(ctx)
	if err != nil {
		return nil, err
	}

	session.SetProfile(profile)

	if h.store != nil {
		if err := h.store.Set(key, profile, cache.TTLProfile); err != nil {
			h.logger.Warn("failed to cache profile", "error", err)
		}
	}

	return profile, nil
}

// selfArtists loads the listener's top artists through the cache.
func (h *APIHandler) selfArtists(ctx context.Context, session *Session, client Client) ([]affinity.Artist, error) {
	key := cache.Key("top_artists", session.ID)

	if h.store != nil {
		var cached []affinity.Artist
		if hit, err := h.store.Get(key, &cached); err == nil && hit {
			return cached, nil
		}
	}

	artists, err := client.TopArtists(ctx, h.artistLimit)
	if err != nil {
		return nil, err
	}

	if h.store != nil {
		if err := h.store.Set(key, artists, cache.TTLTopArtists); err != nil {
			h.logger.Warn("failed to cache top artists", "error", err)
		}
	}

	return artists, nil
}

// fail maps service errors to HTTP status codes.
func (h *APIHandler) fail(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, err)
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidArgument):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, shared.ErrUserNotFound), errors.Is(err, shared.ErrNoListeningData):
		writeError(w, http.StatusNotFound, err)
	default:
		h.logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}
