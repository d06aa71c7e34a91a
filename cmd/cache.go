package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/soulmate/internal/shared"
	"github.com/urfave/cli/v3"
)

// CacheClear drops cached responses, optionally scoped to one namespace.
func (r *Runner) CacheClear(ctx context.Context, cmd *cli.Command) error {
	store, closeStore, err := r.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if store == nil {
		return fmt.Errorf("%w: database path not configured", shared.ErrInvalidConfig)
	}

	namespace := cmd.String("namespace")

	removed, err := store.Clear(namespace)
	if err != nil {
		return fmt.Errorf("failed to clear cache: %w", err)
	}

	if namespace != "" {
		r.writePlain("✓ Cleared %d cached entries in %q\n", removed, namespace)
	} else {
		r.writePlain("✓ Cleared %d cached entries\n", removed)
	}

	return nil
}

// CachePurge drops only entries past their expiry.
func (r *Runner) CachePurge(ctx context.Context, cmd *cli.Command) error {
	store, closeStore, err := r.openStore()
	if err != nil {
		return err
	}
	defer closeStore()

	if store == nil {
		return fmt.Errorf("%w: database path not configured", shared.ErrInvalidConfig)
	}

	removed, err := store.Purge()
	if err != nil {
		return fmt.Errorf("failed to purge cache: %w", err)
	}

	r.writePlain("✓ Purged %d expired entries\n", removed)
	return nil
}
