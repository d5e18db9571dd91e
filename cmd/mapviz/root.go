package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"

	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/couchcryptid/mapviz/internal/adapter/github"
	kafkaadapter "github.com/couchcryptid/mapviz/internal/adapter/kafka"
	"github.com/couchcryptid/mapviz/internal/adapter/socrata"
	"github.com/couchcryptid/mapviz/internal/adapter/sqlite"
	"github.com/couchcryptid/mapviz/internal/config"
	"github.com/couchcryptid/mapviz/internal/geo"
	"github.com/couchcryptid/mapviz/internal/observability"
	"github.com/couchcryptid/mapviz/internal/pipeline"
	"github.com/couchcryptid/mapviz/internal/refresh"
)

// app holds the wired components shared by every subcommand.
type app struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *observability.Metrics
	catalog   *config.Catalog
	history   *sqlite.History
	publisher *kafkaadapter.Publisher
	runner    *pipeline.Runner
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "mapviz",
		Short:         "Render public datasets as interactive web maps",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return a.setup()
		},
	}

	root.AddCommand(
		newServeCmd(a),
		newRunCmd(a),
		newRefreshCmd(a),
		newCatalogCmd(a),
	)
	return root
}

func (a *app) setup() error {
	// A missing .env is normal outside development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return err
	}

	a.cfg = cfg
	a.catalog = catalog
	a.logger = sharedobs.NewLogger(cfg.LogLevel, cfg.LogFormat)
	a.metrics = observability.NewMetrics()

	a.history, err = sqlite.Open(cfg.HistoryDB)
	if err != nil {
		return err
	}

	opts := pipeline.Options{
		Catalog: catalog,
		DataDir: cfg.DataDir,
		MapsDir: cfg.MapsDir,
		Refresher: refresh.NewController(
			cfg.DataDir,
			github.NewClient(cfg.GitHubAPIURL, cfg.GitHubRawURL, cfg.GitHubToken, cfg.HTTPTimeout, a.metrics, a.logger),
			socrata.NewClient(cfg.SocrataAppToken, cfg.HTTPTimeout, a.metrics, a.logger),
			a.logger,
		),
		Boundaries: geo.NewLoader(cfg.BoundaryCacheSize, a.metrics, a.logger),
		History:    a.history,
		Logger:     a.logger,
		Metrics:    a.metrics,
	}
	if cfg.KafkaEnabled() {
		a.publisher = kafkaadapter.NewPublisher(cfg, a.metrics, a.logger)
		opts.Events = a.publisher
		a.logger.Info("artifact events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}
	a.runner = pipeline.New(opts)
	return nil
}

// teardown closes whatever setup opened. It is safe to call more than once.
func (a *app) teardown() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
		a.publisher = nil
	}
	if a.history != nil {
		errs = append(errs, a.history.Close())
		a.history = nil
	}
	return errors.Join(errs...)
}

// historyReadiness reports ready when the history database answers and at
// least one map can be served.
type historyReadiness struct {
	runner  *pipeline.Runner
	history *sqlite.History
}

func (r historyReadiness) CheckReadiness(ctx context.Context) error {
	if err := r.history.CheckReadiness(ctx); err != nil {
		return err
	}
	return r.runner.CheckReadiness(ctx)
}
