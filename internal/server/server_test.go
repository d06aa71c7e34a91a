package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/soulmate/internal/affinity"
	"github.com/desertthunder/soulmate/internal/cache"
	"github.com/desertthunder/soulmate/internal/services"
	"github.com/desertthunder/soulmate/internal/shared"
	"golang.org/x/oauth2"
)

type mockAuthenticator struct {
	exchangeToken *oauth2.Token
	exchangeErr   error
}

func (m *mockAuthenticator) AuthURL(state string) string {
	return "https://accounts.spotify.com/authorize?state=" + state
}

func (m *mockAuthenticator) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	return m.exchangeToken, m.exchangeErr
}

type mockClient struct {
	token      *oauth2.Token
	profile    *services.SpotifyUser
	profileErr error
	topArtists []affinity.Artist
	topErr     error
	calls      int
}

func (m *mockClient) TokenValid() bool {
	return m.token != nil && m.token.AccessToken != ""
}

func (m *mockClient) Profile(ctx context.Context) (*services.SpotifyUser, error) {
	m.calls++
	return m.profile, m.profileErr
}

func (m *mockClient) TopArtists(ctx context.Context, limit int) ([]affinity.Artist, error) {
	return m.topArtists, m.topErr
}

// clientsFor binds every issued token onto a single shared mock client.
func clientsFor(c *mockClient) ClientFactory {
	return func(token *oauth2.Token) Client {
		c.token = token
		return c
	}
}

type mockTargets struct {
	artists []affinity.Artist
	err     error
	lastID  string
}

func (m *mockTargets) ArtistsFor(ctx context.Context, target string) ([]affinity.Artist, error) {
	m.lastID = target
	return m.artists, m.err
}

func withSession(r *http.Request, session *Session) *http.Request {
	r.AddCookie(&http.Cookie{Name: SessionCookie, Value: session.ID})
	return r
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func newTestStore(t *testing.T) *cache.Store {
	t.Helper()

	db, err := shared.NewDatabase(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := shared.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}

	return cache.NewStore(db)
}

func TestSessionStore(t *testing.T) {
	t.Run("Create And Get", func(t *testing.T) {
		store := NewSessionStore(0)

		session := store.Create()
		if session.ID == "" {
			t.Fatal("expected session to have an ID")
		}

		if got := store.Get(session.ID); got != session {
			t.Error("expected Get to return the created session")
		}
	})

	t.Run("Unknown ID", func(t *testing.T) {
		store := NewSessionStore(0)

		if store.Get("nope") != nil {
			t.Error("expected nil for unknown session")
		}
	})

	t.Run("Expired Session", func(t *testing.T) {
		store := NewSessionStore(time.Millisecond)

		session := store.Create()
		session.ExpiresAt = time.Now().Add(-time.Second)

		if store.Get(session.ID) != nil {
			t.Error("expected expired session to be dropped")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		store := NewSessionStore(0)

		session := store.Create()
		store.Delete(session.ID)

		if store.Get(session.ID) != nil {
			t.Error("expected deleted session to be gone")
		}
	})

	t.Run("Cookie Round Trip", func(t *testing.T) {
		store := NewSessionStore(0)
		session := store.Create()

		rec := httptest.NewRecorder()
		store.Attach(rec, session)

		cookies := rec.Result().Cookies()
		if len(cookies) != 1 || cookies[0].Name != SessionCookie {
			t.Fatalf("expected one session cookie, got %v", cookies)
		}

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.AddCookie(cookies[0])

		if got := store.FromRequest(req); got != session {
			t.Error("expected cookie to resolve the session")
		}
	})

	t.Run("Authenticated", func(t *testing.T) {
		var nilSession *Session
		if nilSession.Authenticated() {
			t.Error("nil session should not be authenticated")
		}

		session := &Session{}
		if session.Authenticated() {
			t.Error("session without token should not be authenticated")
		}

		session.Token = &oauth2.Token{AccessToken: "tok"}
		if !session.Authenticated() {
			t.Error("session with token should be authenticated")
		}
	})
}

func TestBasicRouter(t *testing.T) {
	t.Run("Method Enforcement", func(t *testing.T) {
		router := NewBasicRouter()
		router.Handle(http.MethodPost, "/only-post", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		}))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/only-post", nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("expected 405, got %d", rec.Code)
		}

		rec = httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/only-post", nil))
		if rec.Code != http.StatusNoContent {
			t.Errorf("expected 204, got %d", rec.Code)
		}
	})

	t.Run("Middleware Order", func(t *testing.T) {
		router := NewBasicRouter()

		var order []string
		tag := func(name string) Middleware {
			return func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					order = append(order, name)
					next.ServeHTTP(w, r)
				})
			}
		}

		router.Use(tag("first"), tag("second"))
		router.Handle(http.MethodGet, "/ordered", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "handler")
		}))

		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ordered", nil))

		if strings.Join(order, ",") != "first,second,handler" {
			t.Errorf("unexpected middleware order: %v", order)
		}
	})

	t.Run("Handler Registration", func(t *testing.T) {
		router := NewBasicRouter()
		sessions := NewSessionStore(0)
		router.Handler(NewAuthHandler(&mockAuthenticator{}, clientsFor(&mockClient{}), sessions, shared.NewLogger(nil)))

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/status", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("expected registered route to respond, got %d", rec.Code)
		}
	})

	t.Run("Logging Middleware Passthrough", func(t *testing.T) {
		handler := Logging(shared.NewLogger(nil))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTeapot)
		}))

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		if rec.Code != http.StatusTeapot {
			t.Errorf("expected status to pass through, got %d", rec.Code)
		}
	})
}

func TestAuthHandler(t *testing.T) {
	logger := shared.NewLogger(nil)

	t.Run("Login", func(t *testing.T) {
		sessions := NewSessionStore(0)
		handler := NewAuthHandler(&mockAuthenticator{}, clientsFor(&mockClient{}), sessions, logger)

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/login", nil))

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		body := decodeBody(t, rec)
		authURL, _ := body["auth_url"].(string)
		if !strings.Contains(authURL, "accounts.spotify.com") {
			t.Errorf("expected an authorization URL, got %q", authURL)
		}

		cookies := rec.Result().Cookies()
		if len(cookies) != 1 {
			t.Fatal("expected a session cookie")
		}

		session := sessions.Get(cookies[0].Value)
		if session == nil || session.State == "" {
			t.Error("expected session with pending state")
		}
		if !strings.Contains(authURL, session.State) {
			t.Error("expected auth URL to carry the session state")
		}
	})

	t.Run("Callback", func(t *testing.T) {
		t.Run("Success", func(t *testing.T) {
			sessions := NewSessionStore(0)
			spotify := &mockAuthenticator{exchangeToken: &oauth2.Token{AccessToken: "fresh"}}
			client := &mockClient{profile: &services.SpotifyUser{ID: "listener", DisplayName: "Listener"}}
			handler := NewAuthHandler(spotify, clientsFor(client), sessions, logger)

			session := sessions.Create()
			session.State = "expected_state"

			req := withSession(httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=expected_state", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}
			if session.Token == nil || session.Token.AccessToken != "fresh" {
				t.Error("expected token stored on session")
			}
			if session.State != "" {
				t.Error("expected state to be cleared after use")
			}
			if profile := session.Profile(); profile == nil || profile.ID != "listener" {
				t.Error("expected profile stored on session")
			}
			if client.token == nil || client.token.AccessToken != "fresh" {
				t.Error("expected the profile fetch to use the exchanged token")
			}
		})

		t.Run("State Mismatch", func(t *testing.T) {
			sessions := NewSessionStore(0)
			handler := NewAuthHandler(&mockAuthenticator{}, clientsFor(&mockClient{}), sessions, logger)

			session := sessions.Create()
			session.State = "expected_state"

			req := withSession(httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=wrong", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400 for state mismatch, got %d", rec.Code)
			}
			if session.Token != nil {
				t.Error("expected no token on state mismatch")
			}
		})

		t.Run("No Login In Progress", func(t *testing.T) {
			sessions := NewSessionStore(0)
			handler := NewAuthHandler(&mockAuthenticator{}, clientsFor(&mockClient{}), sessions, logger)

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=s", nil))

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400 without a session, got %d", rec.Code)
			}
		})

		t.Run("Provider Denied", func(t *testing.T) {
			sessions := NewSessionStore(0)
			handler := NewAuthHandler(&mockAuthenticator{}, clientsFor(&mockClient{}), sessions, logger)

			session := sessions.Create()
			session.State = "expected_state"

			req := withSession(httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400 on denial, got %d", rec.Code)
			}
		})

		t.Run("Exchange Failure", func(t *testing.T) {
			sessions := NewSessionStore(0)
			spotify := &mockAuthenticator{exchangeErr: shared.ErrAuthFailed}
			handler := NewAuthHandler(spotify, clientsFor(&mockClient{}), sessions, logger)

			session := sessions.Create()
			session.State = "expected_state"

			req := withSession(httptest.NewRequest(http.MethodGet, "/auth/callback?code=abc&state=expected_state", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadGateway {
				t.Errorf("expected 502 on exchange failure, got %d", rec.Code)
			}
		})
	})

	t.Run("Logout", func(t *testing.T) {
		sessions := NewSessionStore(0)
		handler := NewAuthHandler(&mockAuthenticator{}, clientsFor(&mockClient{}), sessions, logger)

		session := sessions.Create()
		session.Token = &oauth2.Token{AccessToken: "tok"}

		t.Run("Requires POST", func(t *testing.T) {
			req := withSession(httptest.NewRequest(http.MethodGet, "/auth/logout", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("expected 405, got %d", rec.Code)
			}
		})

		t.Run("Clears Session", func(t *testing.T) {
			req := withSession(httptest.NewRequest(http.MethodPost, "/auth/logout", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}
			if sessions.Get(session.ID) != nil {
				t.Error("expected session to be deleted")
			}
		})
	})

	t.Run("Status", func(t *testing.T) {
		sessions := NewSessionStore(0)
		handler := NewAuthHandler(&mockAuthenticator{}, clientsFor(&mockClient{}), sessions, logger)

		t.Run("Unauthenticated", func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/status", nil))

			body := decodeBody(t, rec)
			if body["authenticated"] != false {
				t.Error("expected authenticated=false without a session")
			}
		})

		t.Run("Authenticated", func(t *testing.T) {
			session := sessions.Create()
			session.Token = &oauth2.Token{AccessToken: "tok"}

			req := withSession(httptest.NewRequest(http.MethodGet, "/auth/status", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			body := decodeBody(t, rec)
			if body["authenticated"] != true {
				t.Error("expected authenticated=true")
			}
			if body["token_valid"] != true {
				t.Error("expected token_valid=true")
			}
		})
	})
}

func TestAPIHandler(t *testing.T) {
	logger := shared.NewLogger(nil)

	sampleArtists := []affinity.Artist{
		{ID: "a1", Name: "One", Popularity: 80, Genres: []string{"rock", "pop"}},
		{ID: "a2", Name: "Two", Popularity: 60, Genres: []string{"rock"}},
	}

	newAuthedHandler := func(client *mockClient, targets TargetSource) (*APIHandler, *SessionStore, *Session) {
		sessions := NewSessionStore(0)
		session := sessions.Create()
		session.Token = &oauth2.Token{AccessToken: "tok"}

		handler := NewAPIHandler(APIHandlerOpts{
			Clients:  clientsFor(client),
			Targets:  targets,
			Sessions: sessions,
			Logger:   logger,
		})

		return handler, sessions, session
	}

	t.Run("Rejects Unauthenticated Requests", func(t *testing.T) {
		handler, _, _ := newAuthedHandler(&mockClient{}, &mockTargets{})

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/user", nil))

		if rec.Code != http.StatusUnauthorized {
			t.Errorf("expected 401, got %d", rec.Code)
		}
	})

	t.Run("Sessions Use Their Own Tokens", func(t *testing.T) {
		// Each request must be served by a client bound to its own
		// session's token, even under concurrency.
		sessions := NewSessionStore(0)
		handler := NewAPIHandler(APIHandlerOpts{
			Clients: func(token *oauth2.Token) Client {
				return &mockClient{
					token:   token,
					profile: &services.SpotifyUser{ID: token.AccessToken},
				}
			},
			Targets:  &mockTargets{},
			Sessions: sessions,
			Logger:   logger,
		})

		const perSession = 8
		tokens := []string{"listener_a", "listener_b"}

		var wg sync.WaitGroup
		errs := make(chan error, len(tokens)*perSession)

		for _, tok := range tokens {
			session := sessions.Create()
			session.Token = &oauth2.Token{AccessToken: tok}

			for i := 0; i < perSession; i++ {
				wg.Add(1)
				go func(tok string, session *Session) {
					defer wg.Done()

					req := withSession(httptest.NewRequest(http.MethodGet, "/api/user", nil), session)
					rec := httptest.NewRecorder()
					handler.ServeHTTP(rec, req)

					var profile services.SpotifyUser
					if err := json.Unmarshal(rec.Body.Bytes(), &profile); err != nil {
						errs <- err
						return
					}
					if profile.ID != tok {
						errs <- fmt.Errorf("session %q served profile %q", tok, profile.ID)
					}
				}(tok, session)
			}
		}

		wg.Wait()
		close(errs)

		for err := range errs {
			t.Error(err)
		}
	})

	t.Run("User", func(t *testing.T) {
		t.Run("Fetches Profile", func(t *testing.T) {
			client := &mockClient{profile: &services.SpotifyUser{ID: "listener"}}
			handler, _, session := newAuthedHandler(client, &mockTargets{})

			req := withSession(httptest.NewRequest(http.MethodGet, "/api/user", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}

			body := decodeBody(t, rec)
			if body["id"] != "listener" {
				t.Errorf("expected profile in response, got %v", body)
			}
			if session.Profile() == nil {
				t.Error("expected profile cached on session")
			}
		})

		t.Run("Serves Session Profile", func(t *testing.T) {
			client := &mockClient{profileErr: shared.ErrAPIRequest}
			handler, _, session := newAuthedHandler(client, &mockTargets{})
			session.SetProfile(&services.SpotifyUser{ID: "cached"})

			req := withSession(httptest.NewRequest(http.MethodGet, "/api/user", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			body := decodeBody(t, rec)
			if body["id"] != "cached" {
				t.Error("expected the session profile without a provider call")
			}
		})

		t.Run("Serves Stored Profile", func(t *testing.T) {
			store := newTestStore(t)
			sessions := NewSessionStore(0)
			session := sessions.Create()
			session.Token = &oauth2.Token{AccessToken: "tok"}

			if err := store.Set(cache.Key("profile", session.ID), &services.SpotifyUser{ID: "stored"}, cache.TTLProfile); err != nil {
				t.Fatalf("failed to seed store: %v", err)
			}

			client := &mockClient{profileErr: shared.ErrAPIRequest}
			handler := NewAPIHandler(APIHandlerOpts{
				Clients:  clientsFor(client),
				Targets:  &mockTargets{},
				Store:    store,
				Sessions: sessions,
				Logger:   logger,
			})

			req := withSession(httptest.NewRequest(http.MethodGet, "/api/user", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}

			body := decodeBody(t, rec)
			if body["id"] != "stored" {
				t.Errorf("expected the stored profile, got %v", body)
			}
			if client.calls != 0 {
				t.Errorf("expected no provider calls, got %d", client.calls)
			}
		})

		t.Run("Stores Fetched Profile", func(t *testing.T) {
			store := newTestStore(t)
			sessions := NewSessionStore(0)
			session := sessions.Create()
			session.Token = &oauth2.Token{AccessToken: "tok"}

			client := &mockClient{profile: &services.SpotifyUser{ID: "listener"}}
			handler := NewAPIHandler(APIHandlerOpts{
				Clients:  clientsFor(client),
				Targets:  &mockTargets{},
				Store:    store,
				Sessions: sessions,
				Logger:   logger,
			})

			req := withSession(httptest.NewRequest(http.MethodGet, "/api/user", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d", rec.Code)
			}

			var stored services.SpotifyUser
			hit, err := store.Get(cache.Key("profile", session.ID), &stored)
			if err != nil || !hit {
				t.Fatalf("expected profile in the store, hit=%v err=%v", hit, err)
			}
			if stored.ID != "listener" {
				t.Errorf("expected stored profile, got %q", stored.ID)
			}
		})
	})

	t.Run("User Stats", func(t *testing.T) {
		client := &mockClient{topArtists: sampleArtists}
		handler, _, session := newAuthedHandler(client, &mockTargets{})

		req := withSession(httptest.NewRequest(http.MethodGet, "/api/user/stats", nil), session)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
		}

		body := decodeBody(t, rec)
		if body["top_artists_count"] != float64(2) {
			t.Errorf("expected 2 top artists, got %v", body["top_artists_count"])
		}
		if body["top_genres_count"] != float64(2) {
			t.Errorf("expected 2 genres, got %v", body["top_genres_count"])
		}
	})

	t.Run("Calculate Affinity", func(t *testing.T) {
		t.Run("Requires POST", func(t *testing.T) {
			handler, _, session := newAuthedHandler(&mockClient{}, &mockTargets{})

			req := withSession(httptest.NewRequest(http.MethodGet, "/api/calculate-affinity", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("expected 405, got %d", rec.Code)
			}
		})

		t.Run("Empty Target", func(t *testing.T) {
			handler, _, session := newAuthedHandler(&mockClient{}, &mockTargets{})

			req := withSession(httptest.NewRequest(http.MethodPost, "/api/calculate-affinity", strings.NewReader(`{"target_user": " "}`)), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})

		t.Run("Scores Target", func(t *testing.T) {
			client := &mockClient{topArtists: sampleArtists}
			targets := &mockTargets{artists: sampleArtists}
			handler, _, session := newAuthedHandler(client, targets)

			req := withSession(httptest.NewRequest(http.MethodPost, "/api/calculate-affinity", strings.NewReader(`{"target_user": "demo:john"}`)), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}

			body := decodeBody(t, rec)
			if body["score"] != float64(100) {
				t.Errorf("expected identical lists to score 100, got %v", body["score"])
			}
			if body["target_user"] != "demo:john" {
				t.Errorf("expected echoed target, got %v", body["target_user"])
			}
			if targets.lastID != "demo:john" {
				t.Errorf("expected target resolution, got %q", targets.lastID)
			}
		})

		t.Run("Unknown Target", func(t *testing.T) {
			client := &mockClient{topArtists: sampleArtists}
			targets := &mockTargets{err: shared.ErrUserNotFound}
			handler, _, session := newAuthedHandler(client, targets)

			req := withSession(httptest.NewRequest(http.MethodPost, "/api/calculate-affinity", strings.NewReader(`{"target_user": "nobody"}`)), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusNotFound {
				t.Errorf("expected 404, got %d", rec.Code)
			}
		})

		t.Run("No Listening Data", func(t *testing.T) {
			client := &mockClient{topErr: shared.ErrNoListeningData}
			handler, _, session := newAuthedHandler(client, &mockTargets{artists: sampleArtists})

			req := withSession(httptest.NewRequest(http.MethodPost, "/api/calculate-affinity", strings.NewReader(`{"target_user": "someone"}`)), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusNotFound {
				t.Errorf("expected 404, got %d", rec.Code)
			}
		})
	})

	t.Run("Cache Warm", func(t *testing.T) {
		t.Run("Requires POST", func(t *testing.T) {
			handler, _, session := newAuthedHandler(&mockClient{}, &mockTargets{})

			req := withSession(httptest.NewRequest(http.MethodGet, "/api/cache/warm", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusMethodNotAllowed {
				t.Errorf("expected 405, got %d", rec.Code)
			}
		})

		t.Run("Fills The Store", func(t *testing.T) {
			store := newTestStore(t)
			sessions := NewSessionStore(0)
			session := sessions.Create()
			session.Token = &oauth2.Token{AccessToken: "tok"}

			client := &mockClient{
				profile:    &services.SpotifyUser{ID: "listener"},
				topArtists: sampleArtists,
			}
			handler := NewAPIHandler(APIHandlerOpts{
				Clients:  clientsFor(client),
				Targets:  &mockTargets{},
				Store:    store,
				Sessions: sessions,
				Logger:   logger,
			})

			req := withSession(httptest.NewRequest(http.MethodPost, "/api/cache/warm", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
			}

			var profile services.SpotifyUser
			if hit, err := store.Get(cache.Key("profile", session.ID), &profile); err != nil || !hit {
				t.Errorf("expected warmed profile, hit=%v err=%v", hit, err)
			}

			var artists []affinity.Artist
			if hit, err := store.Get(cache.Key("top_artists", session.ID), &artists); err != nil || !hit {
				t.Fatalf("expected warmed top artists, hit=%v err=%v", hit, err)
			}
			if len(artists) != len(sampleArtists) {
				t.Errorf("expected %d warmed artists, got %d", len(sampleArtists), len(artists))
			}
		})

		t.Run("No Listening Data", func(t *testing.T) {
			store := newTestStore(t)
			sessions := NewSessionStore(0)
			session := sessions.Create()
			session.Token = &oauth2.Token{AccessToken: "tok"}

			client := &mockClient{
				profile: &services.SpotifyUser{ID: "listener"},
				topErr:  shared.ErrNoListeningData,
			}
			handler := NewAPIHandler(APIHandlerOpts{
				Clients:  clientsFor(client),
				Targets:  &mockTargets{},
				Store:    store,
				Sessions: sessions,
				Logger:   logger,
			})

			req := withSession(httptest.NewRequest(http.MethodPost, "/api/cache/warm", nil), session)
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusNotFound {
				t.Errorf("expected 404 when top artists fail, got %d", rec.Code)
			}
		})
	})

	t.Run("Cache Clear Without Store", func(t *testing.T) {
		handler, _, session := newAuthedHandler(&mockClient{}, &mockTargets{})

		req := withSession(httptest.NewRequest(http.MethodPost, "/api/cache/clear", nil), session)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rec.Code)
		}

		body := decodeBody(t, rec)
		if body["cleared"] != float64(0) {
			t.Errorf("expected cleared=0 without a store, got %v", body["cleared"])
		}
	})
}
