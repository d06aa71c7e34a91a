package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/desertthunder/soulmate/internal/services"
	"github.com/desertthunder/soulmate/internal/shared"
	"golang.org/x/oauth2"
)

// SessionCookie is the cookie name carrying the session ID.
const SessionCookie = "soulmate_session"

// DefaultSessionTTL bounds how long an idle session survives.
const DefaultSessionTTL = 24 * time.Hour

// Session holds per-browser authentication state: the pending OAuth state
// token during login, then the exchanged token and profile.
type Session struct {
	ID        string
	State     string
	Token     *oauth2.Token
	ExpiresAt time.Time

	// profile is memoized by concurrent requests, so it stays behind mu.
	mu      sync.RWMutex
	profile *services.SpotifyUser
}

// Authenticated reports whether the session has completed the OAuth flow.
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != nil && s.Token.AccessToken != ""
}

// Profile returns the memoized listener profile, if any.
func (s *Session) Profile() *services.SpotifyUser {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// SetProfile memoizes the listener profile on the session.
func (s *Session) SetProfile(profile *services.SpotifyUser) {
	s.mu.Lock()
	s.profile = profile
	s.mu.Unlock()
}

// SessionStore is an in-memory session registry keyed by uuid.
//
// Sessions are request-scoped context for the calling layer; the affinity
// engine itself never reads them.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	ttl      time.Duration
}

// NewSessionStore creates a store with the given session TTL. A zero ttl
// uses [DefaultSessionTTL].
func NewSessionStore(ttl time.Duration) *SessionStore {
	if ttl == 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionStore{
		sessions: make(map[string]*Session),
		ttl:      ttl,
	}
}

// Create registers a new session and returns it.
func (s *SessionStore) Create() *Session {
	session := &Session{
		ID:        shared.GenerateID(),
		ExpiresAt: time.Now().Add(s.ttl),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	return session
}

// Get returns the session for an ID, or nil when unknown or expired.
func (s *SessionStore) Get(id string) *Session {
	s.mu.RLock()
	session, ok := s.sessions[id]
	s.mu.RUnlock()

	if !ok {
		return nil
	}

	if time.Now().After(session.ExpiresAt) {
		s.Delete(id)
		return nil
	}

	return session
}

// Delete removes a session.
func (s *SessionStore) Delete(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

// FromRequest resolves the session referenced by the request cookie.
func (s *SessionStore) FromRequest(r *http.Request) *Session {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil
	}
	return s.Get(cookie.Value)
}

// Attach sets the session cookie on the response.
func (s *SessionStore) Attach(w http.ResponseWriter, session *Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    session.ID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  session.ExpiresAt,
	})
}

// Expire clears the session cookie.
func (s *SessionStore) Expire(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}
