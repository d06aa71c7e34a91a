// Package server provides HTTP routing, middleware, sessions, and the JSON
// API for the affinity service.
//
// # Router Infrastructure
//
// The [Router] interface defines HTTP routing with middleware support.
//
// [Middleware] wraps handlers in reverse order (last added executes first),
// following the standard Go pattern. The [BasicRouter] implementation uses
// [http.ServeMux] internally with method filtering.
//
// # OAuth
//
// Two flows share the same Spotify OAuth2 config:
//
// [OAuthHandler] serves the CLI flow: a temporary local server receives the
// callback, validates the state parameter (CSRF protection), exchanges the
// authorization code, and delivers the token over a one-shot channel. It
// only processes one callback to prevent replay.
//
// [AuthHandler] serves the web flow: /auth/login hands out the authorization
// URL and parks the state token on the caller's session; /auth/callback
// validates state and stores the exchanged token on the session.
//
// # Sessions
//
// [SessionStore] keeps per-browser state in memory, keyed by a uuid cookie.
// Token and profile live on the session so the affinity engine stays a pure
// function of its two artist lists.
//
// # API
//
// [APIHandler] exposes the affinity surface: the listener profile, listening
// statistics, and the POST /api/calculate-affinity operation returning the
// score payload (score, common_artists, common_genres, metrics, analysis).
// Artist lists and results are read through the sqlite cache when one is
// configured.
package server
