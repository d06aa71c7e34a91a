package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/soulmate/internal/affinity"
	"github.com/desertthunder/soulmate/internal/services"
	"github.com/desertthunder/soulmate/internal/shared"
	"golang.org/x/oauth2"
)

// Authenticator drives the OAuth2 authorization flow for the web handlers.
// Satisfied by [services.SpotifyService].
type Authenticator interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*oauth2.Token, error)
}

// Client is a token-bound API client. Every request derives its own Client
// from the session's token, so one listener's token never serves another
// listener's request.
type Client interface {
	TokenValid() bool
	Profile(ctx context.Context) (*services.SpotifyUser, error)
	TopArtists(ctx context.Context, limit int) ([]affinity.Artist, error)
}

// ClientFactory binds a session token to a request-scoped [Client].
// Satisfied by [services.SpotifyService.WithToken].
type ClientFactory func(token *oauth2.Token) Client

// AuthHandler serves the web login flow: /auth/login, /auth/callback,
// /auth/logout, /auth/status. All responses are JSON.
type AuthHandler struct {
	spotify  Authenticator
	clients  ClientFactory
	sessions *SessionStore
	logger   *log.Logger
}

// NewAuthHandler creates the auth endpoint group.
func NewAuthHandler(spotify Authenticator, clients ClientFactory, sessions *SessionStore, logger *log.Logger) *AuthHandler {
	return &AuthHandler{spotify: spotify, clients: clients, sessions: sessions, logger: logger}
}

// Routes returns the HTTP routes this handler serves.
func (h *AuthHandler) Routes() []string {
	return []string{"/auth/login", "/auth/callback", "/auth/logout", "/auth/status"}
}

func (h *AuthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/auth/login":
		h.login(w, r)
	case "/auth/callback":
		h.callback(w, r)
	case "/auth/logout":
		h.logout(w, r)
	case "/auth/status":
		h.status(w, r)
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown auth route"))
	}
}

// login starts the OAuth flow: creates a session, stores a fresh state
// token on it, and returns the authorization URL.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	state, err := shared.GenerateState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	session := h.sessions.FromRequest(r)
	if session == nil {
		session = h.sessions.Create()
	}
	session.State = state
	h.sessions.Attach(w, session)

	writeJSON(w, http.StatusOK, map[string]string{"auth_url": h.spotify.AuthURL(state)})
}

// callback completes the flow: validates state, exchanges the code, stores
// the token and profile on the session.
func (h *AuthHandler) callback(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.FromRequest(r)
	if session == nil || session.State == "" {
		writeError(w, http.StatusBadRequest, errors.New("no login in progress"))
		return
	}

	query := r.URL.Query()
	if errParam := query.Get("error"); errParam != "" {
		writeError(w, http.StatusBadRequest, errors.New("authorization denied: "+errParam))
		return
	}

	if query.Get("state") != session.State {
		writeError(w, http.StatusBadRequest, errors.New("invalid state parameter"))
		return
	}

	code := query.Get("code")
	if code == "" {
		writeError(w, http.StatusBadRequest, errors.New("no authorization code provided"))
		return
	}

	token, err := h.spotify.Exchange(r.Context(), code)
	if err != nil {
		h.logger.Error("token exchange failed", "error", err)
		writeError(w, http.StatusBadGateway, err)
		return
	}

	session.Token = token
	session.State = ""

	profile, err := h.clients(token).Profile(r.Context())
	if err != nil {
		h.logger.Warn("failed to fetch profile after login", "error", err)
	} else {
		session.SetProfile(profile)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"user":          session.Profile(),
	})
}

// logout clears the session.
func (h *AuthHandler) logout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, errors.New("use POST"))
		return
	}

	if session := h.sessions.FromRequest(r); session != nil {
		h.sessions.Delete(session.ID)
	}
	h.sessions.Expire(w)

	writeJSON(w, http.StatusOK, map[string]string{"message": "successfully logged out"})
}

// status reports whether the session holds a usable token.
func (h *AuthHandler) status(w http.ResponseWriter, r *http.Request) {
	session := h.sessions.FromRequest(r)
	if !session.Authenticated() {
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": false,
			"token_valid":   false,
			"message":       "not authenticated",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"token_valid":   h.clients(session.Token).TokenValid(),
		"user":          session.Profile(),
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
