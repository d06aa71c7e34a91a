package main

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/soulmate/internal/affinity"
	"github.com/desertthunder/soulmate/internal/cache"
	"github.com/desertthunder/soulmate/internal/services"
	"github.com/desertthunder/soulmate/internal/shared"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	spotify    *services.SpotifyService
	demo       *services.DemoProvider
	engine     *affinity.Engine
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	Spotify    *services.SpotifyService
	Demo       *services.DemoProvider
	Engine     *affinity.Engine
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.Demo == nil {
		opts.Demo = services.NewDemoProvider()
	}
	if opts.Engine == nil {
		opts.Engine = affinity.NewEngine(weightsFrom(opts.Config))
	}

	return &Runner{
		config:     opts.Config,
		spotify:    opts.Spotify,
		demo:       opts.Demo,
		engine:     opts.Engine,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

// weightsFrom maps the config blend onto engine weights. All-zero values
// fall through to the engine defaults.
func weightsFrom(config *shared.Config) affinity.Weights {
	return affinity.Weights{
		ArtistOverlap:        config.Affinity.ArtistWeight,
		GenreSimilarity:      config.Affinity.GenreWeight,
		PopularitySimilarity: config.Affinity.PopularityWeight,
	}
}

// resolver builds the target resolver for the configured provider mode.
func (r *Runner) resolver() *services.TargetResolver {
	var spotify services.ArtistProvider
	if r.spotify != nil {
		spotify = r.spotify
	}
	return services.NewTargetResolver(spotify, r.demo, r.config.Providers.Demo)
}

// openStore opens the cache database when one is configured. Callers must
// invoke the returned closer. A missing path yields a nil store, which every
// consumer treats as "no caching".
func (r *Runner) openStore() (*cache.Store, func(), error) {
	if r.config.Database.Path == "" {
		return nil, func() {}, nil
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open cache database: %w", err)
	}

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate cache database: %w", err)
	}

	return cache.NewStore(db), func() { db.Close() }, nil
}

// openDatabase opens the configured database without wrapping it in a store.
func (r *Runner) openDatabase() (*sql.DB, error) {
	if r.config.Database.Path == "" {
		return nil, fmt.Errorf("%w: database path not configured", shared.ErrInvalidConfig)
	}

	db, err := shared.NewDatabase(r.config.Database.Path)
	if err != nil {
		return nil, err
	}

	shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)
	return db, nil
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, compareCommand, statsCommand, serveCommand, cacheCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
