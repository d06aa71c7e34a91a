package main

import (
	"context"
	"os"

	"github.com/desertthunder/soulmate/internal/services"
	"github.com/desertthunder/soulmate/internal/shared"
	"github.com/urfave/cli/v3"
)

func main() {
	logger := shared.NewLogger(nil)

	config := shared.DefaultConfig()
	if _, err := os.Stat("config.toml"); err == nil {
		if loadedConfig, err := shared.LoadConfig("config.toml"); err == nil {
			config = loadedConfig
		}
	}

	var spotifyService *services.SpotifyService
	if config.Credentials.Spotify.ClientID != "" && config.Credentials.Spotify.ClientSecret != "" {
		if svc, err := services.NewSpotifyService(config.Credentials.Spotify.Map()); err == nil {
			spotifyService = svc
			if token := config.Credentials.Spotify.Token(); token != nil {
				spotifyService.SetToken(token)
			}
		}
	}

	runner := NewRunner(RunnerOpts{
		Config:  config,
		Spotify: spotifyService,
		Demo:    services.NewDemoProvider(),
		Logger:  logger,
	})

	app := &cli.Command{
		Name:     "soulmate",
		Usage:    "Score musical compatibility between Spotify listeners",
		Version:  "0.3.0",
		Commands: runner.register(),
	}

	if err := app.Run(context.Background(), os.Args); err != nil {
		logger.Fatalf("application error: %v", err)
	}
}
