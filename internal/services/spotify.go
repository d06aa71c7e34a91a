// Spotify API implementation of [ArtistProvider]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/soulmate/internal/affinity"
	"github.com/desertthunder/soulmate/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	spotifyAuthURL  = "https://accounts.spotify.com/authorize"
	spotifyTokenURL = "https://accounts.spotify.com/api/token"
	spotifyBaseURL  = "https://api.spotify.com/v1"

	// Spotify caps artist and track page sizes at 50.
	maxPageSize = 50

	// Fallback profiling looks at this many public playlists and keeps this
	// many artists.
	fallbackPlaylists = 5
	fallbackArtists   = 20
)

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyArtist represents a Spotify artist.
type SpotifyArtist struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Genres     []string       `json:"genres"`
	Popularity int            `json:"popularity"`
	Images     []SpotifyImage `json:"images"`
	URI        string         `json:"uri"`
}

// SpotifyPaginatedArtists represents a paginated response of full artist objects.
type SpotifyPaginatedArtists struct {
	Items  []SpotifyArtist `json:"items"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
	Next   *string         `json:"next"`
}

type simpleArtist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type simpleTrack struct {
	ID      string         `json:"id"`
	Name    string         `json:"name"`
	Artists []simpleArtist `json:"artists"`
}

type playlistTrackItem struct {
	Track *simpleTrack `json:"track"`
}

type paginatedPlaylistTracks struct {
	Items []playlistTrackItem `json:"items"`
	Total int                 `json:"total"`
}

type simplePlaylist struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Public bool   `json:"public"`
}

type paginatedPlaylists struct {
	Items []simplePlaylist `json:"items"`
	Total int              `json:"total"`
}

// SpotifyService implements [ArtistProvider] against the Spotify Web API.
// Uses [oauth2] for authentication and a [rate.Limiter] in front of every call.
//
// A service carries at most one installed token. Callers serving multiple
// listeners concurrently must not share one instance's token; they derive a
// bound copy per token with [SpotifyService.WithToken] instead.
type SpotifyService struct {
	mu         sync.RWMutex
	config     *oauth2.Config
	token      *oauth2.Token
	httpClient *http.Client
	limiter    *rate.Limiter
	baseURL    string
}

// NewSpotifyService creates a new Spotify service with the given OAuth2 credentials.
func NewSpotifyService(credentials map[string]string) (*SpotifyService, error) {
	clientID, ok := credentials["client_id"]
	if !ok || clientID == "" {
		return nil, fmt.Errorf("%w: missing client_id", shared.ErrMissingCredentials)
	}

	clientSecret, ok := credentials["client_secret"]
	if !ok || clientSecret == "" {
		return nil, fmt.Errorf("%w: missing client_secret", shared.ErrMissingCredentials)
	}

	redirectURI, ok := credentials["redirect_uri"]
	if !ok || redirectURI == "" {
		redirectURI = "http://localhost:3000/callback"
	}

	config := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes: []string{
			"user-top-read",
			"user-read-private",
			"user-read-email",
		},
		Endpoint: oauth2.Endpoint{
			AuthURL:  spotifyAuthURL,
			TokenURL: spotifyTokenURL,
		},
	}

	return &SpotifyService{
		config:     config,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Limit(10), 5),
		baseURL:    spotifyBaseURL,
	}, nil
}

func (s *SpotifyService) Name() string {
	return "Spotify"
}

// AuthURL returns the OAuth2 authorization URL for user login.
func (s *SpotifyService) AuthURL(state string) string {
	return s.config.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// OAuthConfig exposes the underlying OAuth2 config for callback handlers.
func (s *SpotifyService) OAuthConfig() *oauth2.Config {
	return s.config
}

// Authenticate performs OAuth2 authentication. Expects either an
// "access_token" or "auth_code" in credentials.
func (s *SpotifyService) Authenticate(ctx context.Context, credentials map[string]string) error {
	if accessToken, ok := credentials["access_token"]; ok && accessToken != "" {
		s.SetToken(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"})
		return nil
	}

	if authCode, ok := credentials["auth_code"]; ok && authCode != "" {
		token, err := s.config.Exchange(ctx, authCode)
		if err != nil {
			return fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
		}
		s.SetToken(token)
		return nil
	}

	return fmt.Errorf("%w: missing access_token or auth_code", shared.ErrMissingCredentials)
}

// Exchange trades an authorization code for a token without installing it,
// for callers that manage tokens per session.
func (s *SpotifyService) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrAuthFailed, err)
	}
	return token, nil
}

// SetToken installs an OAuth2 token. The HTTP client is rebuilt around the
// config's token source so refresh happens transparently when a refresh
// token is present.
func (s *SpotifyService) SetToken(token *oauth2.Token) {
	client := s.config.Client(context.Background(), token)

	s.mu.Lock()
	s.token = token
	s.httpClient = client
	s.mu.Unlock()
}

// WithToken returns a copy of the service bound to the given token, with its
// own HTTP client. The receiver is left untouched, so concurrent callers can
// each hold a binding for a different listener. The rate limiter is shared:
// every binding draws from the same upstream budget.
func (s *SpotifyService) WithToken(token *oauth2.Token) *SpotifyService {
	return &SpotifyService{
		config:     s.config,
		token:      token,
		httpClient: s.config.Client(context.Background(), token),
		limiter:    s.limiter,
		baseURL:    s.baseURL,
	}
}

// Token returns the current OAuth2 token, nil before authentication.
func (s *SpotifyService) Token() *oauth2.Token {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

// TokenValid reports whether the current token exists and has not expired.
// A five minute buffer is applied before the recorded expiry.
func (s *SpotifyService) TokenValid() bool {
	token := s.Token()
	if token == nil || token.AccessToken == "" {
		return false
	}
	if token.Expiry.IsZero() {
		return true
	}
	return time.Now().Before(token.Expiry.Add(-5 * time.Minute))
}

// doRequest performs an authenticated, rate-limited GET against the Spotify API.
func (s *SpotifyService) doRequest(ctx context.Context, endpoint string, result any) error {
	s.mu.RLock()
	token, client := s.token, s.httpClient
	s.mu.RUnlock()

	if token == nil {
		return fmt.Errorf("%w: call Authenticate first", shared.ErrNotAuthenticated)
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: status %d", shared.ErrTokenExpired, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: status %d", shared.ErrUserNotFound, resp.StatusCode)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: status %d", shared.ErrAPIRequest, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

// Profile retrieves the current authenticated user's profile.
func (s *SpotifyService) Profile(ctx context.Context) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := s.doRequest(ctx, "/me", &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// ProfileByID retrieves a public user profile.
func (s *SpotifyService) ProfileByID(ctx context.Context, userID string) (*SpotifyUser, error) {
	var user SpotifyUser
	endpoint := fmt.Sprintf("/users/%s", url.PathEscape(userID))
	if err := s.doRequest(ctx, endpoint, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// TopArtists retrieves the authenticated listener's ranked top artists.
//
// Rank order from the API is preserved; it is the weight signal for the
// affinity engine.
func (s *SpotifyService) TopArtists(ctx context.Context, limit int) ([]affinity.Artist, error) {
	if limit <= 0 || limit > maxPageSize {
		limit = maxPageSize
	}

	endpoint := fmt.Sprintf("/me/top/artists?limit=%d&time_range=medium_term", limit)

	var response SpotifyPaginatedArtists
	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	if len(response.Items) == 0 {
		return nil, fmt.Errorf("%w: no top artists for the current listener", shared.ErrNoListeningData)
	}

	return toArtists(response.Items), nil
}

// ArtistsForUser builds a ranked artist list for another Spotify user.
//
// The Web API exposes no top-artist endpoint for other users, so the list is
// reconstructed from their public playlists: collect track artists, fetch
// full artist records, rank by popularity.
func (s *SpotifyService) ArtistsForUser(ctx context.Context, target string) ([]affinity.Artist, error) {
	userID := ExtractUserID(target)
	if userID == "" {
		return nil, fmt.Errorf("%w: could not parse user from %q", shared.ErrInvalidArgument, target)
	}

	if _, err := s.ProfileByID(ctx, userID); err != nil {
		return nil, err
	}

	playlists, err := s.publicPlaylists(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(playlists.Items) == 0 {
		return nil, fmt.Errorf("%w: user %s has no public playlists", shared.ErrNoListeningData, userID)
	}

	ids := []string{}
	seen := map[string]struct{}{}
	for i, playlist := range playlists.Items {
		if i >= fallbackPlaylists {
			break
		}

		tracks, err := s.playlistTracks(ctx, playlist.ID)
		if err != nil {
			// A deleted or restricted playlist should not sink the whole lookup.
			continue
		}

		for _, item := range tracks.Items {
			if item.Track == nil {
				continue
			}
			for _, artist := range item.Track.Artists {
				if artist.ID == "" {
					continue
				}
				if _, ok := seen[artist.ID]; ok {
					continue
				}
				seen[artist.ID] = struct{}{}
				ids = append(ids, artist.ID)
			}
		}
	}

	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no artists found in public playlists of %s", shared.ErrNoListeningData, userID)
	}

	artists, err := s.severalArtists(ctx, ids)
	if err != nil {
		return nil, err
	}

	rankByPopularity(artists)
	if len(artists) > fallbackArtists {
		artists = artists[:fallbackArtists]
	}

	return toArtists(artists), nil
}

func (s *SpotifyService) publicPlaylists(ctx context.Context, userID string) (*paginatedPlaylists, error) {
	endpoint := fmt.Sprintf("/users/%s/playlists?limit=%d", url.PathEscape(userID), maxPageSize)

	var response paginatedPlaylists
	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

func (s *SpotifyService) playlistTracks(ctx context.Context, playlistID string) (*paginatedPlaylistTracks, error) {
	endpoint := fmt.Sprintf("/playlists/%s/tracks?limit=%d", url.PathEscape(playlistID), maxPageSize)

	var response paginatedPlaylistTracks
	if err := s.doRequest(ctx, endpoint, &response); err != nil {
		return nil, err
	}

	return &response, nil
}

// severalArtists retrieves full artist records in batches of up to 50 IDs.
func (s *SpotifyService) severalArtists(ctx context.Context, ids []string) ([]SpotifyArtist, error) {
	artists := make([]SpotifyArtist, 0, len(ids))

	for start := 0; start < len(ids); start += maxPageSize {
		end := min(start+maxPageSize, len(ids))
		endpoint := fmt.Sprintf("/artists?ids=%s", url.QueryEscape(strings.Join(ids[start:end], ",")))

		var response struct {
			Artists []SpotifyArtist `json:"artists"`
		}
		if err := s.doRequest(ctx, endpoint, &response); err != nil {
			return nil, err
		}

		artists = append(artists, response.Artists...)
	}

	return artists, nil
}

// ExtractUserID parses a Spotify user ID from a profile URL or returns the
// input unchanged when it is already a bare ID.
//
// Accepted forms: USERNAME, https://open.spotify.com/user/USERNAME,
// https://open.spotify.com/user/USERNAME?si=...
func ExtractUserID(target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return ""
	}

	if !strings.HasPrefix(target, "http") {
		return target
	}

	const marker = "open.spotify.com/user/"
	idx := strings.Index(target, marker)
	if idx < 0 {
		return ""
	}

	id := target[idx+len(marker):]
	if q := strings.IndexAny(id, "?/"); q >= 0 {
		id = id[:q]
	}

	return strings.TrimSpace(id)
}

func rankByPopularity(artists []SpotifyArtist) {
	sort.SliceStable(artists, func(i, j int) bool {
		return artists[i].Popularity > artists[j].Popularity
	})
}

func toArtists(items []SpotifyArtist) []affinity.Artist {
	artists := make([]affinity.Artist, 0, len(items))
	for _, item := range items {
		artists = append(artists, affinity.Artist{
			ID:         item.ID,
			Name:       item.Name,
			Popularity: item.Popularity,
			Genres:     item.Genres,
		})
	}
	return artists
}
