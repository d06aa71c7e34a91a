// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to configuration file",
		Value:   "config.toml",
	}
}

// setupCommand initializes configuration and the cache database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:   "setup",
		Usage:  "Create a config file and initialize the cache database",
		Flags:  []cli.Flag{configFlag()},
		Action: r.Setup,
	}
}

// authCommand handles Spotify authentication.
func authCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "auth",
		Usage: "Manage Spotify authentication",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Authenticate with Spotify using OAuth2",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthLogin,
			},
			{
				Name:   "status",
				Usage:  "Check the stored token's validity",
				Flags:  []cli.Flag{configFlag()},
				Action: r.AuthStatus,
			},
		},
	}
}

// compareCommand scores the authenticated listener against a target user.
func compareCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "compare",
		Aliases: []string{"affinity"},
		Usage:   "Calculate musical affinity with another listener",
		Arguments: []cli.Argument{
			&cli.StringArg{
				Name: "target",
			},
		},
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{
				Name:  "self",
				Usage: "Use a demo listener (demo:NAME) as your own profile instead of Spotify data",
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
			&cli.BoolFlag{
				Name:  "save",
				Usage: "Save the result locally",
			},
		},
		Action: r.Compare,
	}
}

// statsCommand summarizes the authenticated listener's profile.
func statsCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show your listening statistics",
		Flags: []cli.Flag{
			configFlag(),
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Output raw JSON",
			},
			&cli.BoolFlag{
				Name:  "pretty",
				Usage: "Pretty-print output",
				Value: true,
			},
		},
		Action: r.Stats,
	}
}

// serveCommand runs the affinity web service.
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the affinity web service",
		Flags: []cli.Flag{
			configFlag(),
			&cli.IntFlag{
				Name:  "port",
				Usage: "Override the configured listen port",
			},
		},
		Action: r.Serve,
	}
}

// cacheCommand manages cached API responses.
func cacheCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Manage cached API responses",
		Commands: []*cli.Command{
			{
				Name:  "clear",
				Usage: "Drop cached responses",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:  "namespace",
						Usage: "Only clear one namespace (top_artists, profile, affinity)",
					},
				},
				Action: r.CacheClear,
			},
			{
				Name:   "purge",
				Usage:  "Drop only expired entries",
				Flags:  []cli.Flag{configFlag()},
				Action: r.CachePurge,
			},
		},
	}
}
