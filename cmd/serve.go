package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/desertthunder/soulmate/internal/server"
	"github.com/desertthunder/soulmate/internal/shared"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"
)

// Serve runs the affinity web service: OAuth session endpoints under /auth
// and the scoring API under /api. It blocks until interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if r.spotify == nil {
		return fmt.Errorf("%w: Spotify client credentials are required to serve", shared.ErrMissingCredentials)
	}

	port := r.config.Server.Port
	if override := cmd.Int("port"); override > 0 {
		port = override
	}

	store, closeStore, err := r.openStore()
	if err != nil {
		r.logger.Warn("cache unavailable, serving without it", "error", err)
		store, closeStore = nil, func() {}
	}
	defer closeStore()

	sessions := server.NewSessionStore(server.DefaultSessionTTL)
	clients := func(token *oauth2.Token) server.Client {
		return r.spotify.WithToken(token)
	}

	router := server.NewBasicRouter()
	router.Use(server.Logging(r.logger))
	router.Handler(server.NewAuthHandler(r.spotify, clients, sessions, r.logger))
	router.Handler(server.NewAPIHandler(server.APIHandlerOpts{
		Clients:     clients,
		Targets:     r.resolver(),
		Engine:      r.engine,
		Store:       store,
		Sessions:    sessions,
		Logger:      r.logger,
		ArtistLimit: r.config.Affinity.ArtistLimit,
	}))

	addr := fmt.Sprintf("%s:%d", r.config.Server.Host, port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		r.logger.Info("serving", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	r.logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}

	return nil
}
