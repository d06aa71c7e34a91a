package main

import (
	"context"
	"fmt"
	"os"

	"github.com/desertthunder/soulmate/internal/shared"
	"github.com/urfave/cli/v3"
)

// Setup creates a starter config file and initializes the cache database.
func (r *Runner) Setup(ctx context.Context, cmd *cli.Command) error {
	configPath := cmd.String("config")

	if _, err := os.Stat(configPath); err == nil {
		r.writePlain("✓ Config file already exists: %s\n", configPath)

		config, err := shared.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		r.config = config
	} else {
		if err := shared.CreateConfigFile(configPath); err != nil {
			return fmt.Errorf("failed to create config file: %w", err)
		}
		r.writePlain("✓ Created config file: %s\n", configPath)
	}

	db, err := r.openDatabase()
	if err != nil {
		return err
	}
	defer db.Close()

	if err := shared.RunMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	r.writePlain("✓ Cache database ready: %s\n", r.config.Database.Path)
	r.writePlainln("Next steps:")
	r.writePlain("  1. Add your Spotify client_id and client_secret to %s\n", configPath)
	r.writePlain("  2. Run: soulmate auth login\n")
	r.writePlain("  3. Run: soulmate compare <target>\n")

	return nil
}
