package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/afero"

	"github.com/schaermu/prezsyncd/internal/changelog"
	"github.com/schaermu/prezsyncd/internal/config"
	"github.com/schaermu/prezsyncd/internal/event"
	"github.com/schaermu/prezsyncd/internal/git"
	"github.com/schaermu/prezsyncd/internal/loader"
	"github.com/schaermu/prezsyncd/internal/manifest"
	"github.com/schaermu/prezsyncd/internal/metrics"
	"github.com/schaermu/prezsyncd/internal/pipeline"
	"github.com/schaermu/prezsyncd/internal/sparql"
	"github.com/schaermu/prezsyncd/internal/sync"
)

// local bundles what the endpoint-free commands need
type local struct {
	fs       afero.Fs
	store    *manifest.Store
	resolver *manifest.Resolver
}

func newLocal(logger *slog.Logger) *local {
	fs := afero.NewOsFs()
	return &local{
		fs:       fs,
		store:    manifest.NewStore(fs),
		resolver: manifest.NewResolver(fs, manifest.NewHTTPFetcher(nil), logger),
	}
}

// app wires the components of the endpoint commands
type app struct {
	*local
	cfg     *config.Config
	remote  *sparql.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	password, err := cfg.EndpointPassword()
	if err != nil {
		return nil, err
	}
	return &app{
		local: newLocal(logger),
		cfg:   cfg,
		remote: sparql.New(cfg.Endpoint.URL, sparql.Options{
			Username: cfg.Endpoint.Username,
			Password: password,
			Timeout:  cfg.Endpoint.Timeout,
		}, logger),
		metrics: metrics.New(),
		logger:  logger,
	}, nil
}

func (a *app) syncEngine(dryRun bool) *sync.Engine {
	return sync.NewEngine(a.cfg, a.store, a.resolver, a.remote, a.metrics, a.logger, dryRun)
}

// changelogEngine builds the change-log engine. With printOnly the patch
// goes to stdout instead of the configured publisher.
func (a *app) changelogEngine(revisions git.Revisions, printOnly bool) (*changelog.Engine, func(), error) {
	publisher, closer, err := newPublisher(a.cfg, printOnly, os.Stdout, a.logger)
	if err != nil {
		return nil, nil, err
	}
	ld := loader.New(a.store, a.resolver, a.logger)
	return changelog.NewEngine(a.fs, ld, a.remote, revisions, publisher, a.metrics, a.logger), closer, nil
}

// pipelineChangelog returns the change-log step of a pipeline, or nil when
// the change log is disabled.
func (a *app) pipelineChangelog(revisions git.Revisions) (pipeline.Changelogger, func(), error) {
	if !a.cfg.Changelog.Enabled {
		return nil, func() {}, nil
	}
	engine, closer, err := a.changelogEngine(revisions, false)
	if err != nil {
		return nil, nil, err
	}
	return engine, closer, nil
}

// newPublisher selects the patch transport from the configuration. The
// returned func releases its connection.
func newPublisher(cfg *config.Config, printOnly bool, stdout io.Writer, logger *slog.Logger) (event.Publisher, func(), error) {
	noop := func() {}
	if printOnly {
		return event.NewWriter(stdout), noop, nil
	}

	switch cfg.Changelog.Publisher {
	case config.PublisherDelta:
		client := &http.Client{Timeout: cfg.Endpoint.Timeout}
		return event.NewDelta(cfg.Changelog.Delta.URL, cfg.Changelog.Delta.Datasource, client, logger), noop, nil
	case config.PublisherNATS:
		nc, err := event.DialNATS(cfg.Changelog.NATS.URL, "prezsyncd")
		if err != nil {
			return nil, nil, err
		}
		closer := func() {
			if err := nc.Drain(); err != nil {
				logger.Warn("failed to drain nats connection", "error", err)
			}
		}
		return event.NewNATS(nc, cfg.Changelog.NATS.Subject, cfg.Changelog.NATS.Creator, logger), closer, nil
	case config.PublisherFile:
		if cfg.Changelog.File.Path == "-" {
			return event.NewWriter(stdout), noop, nil
		}
		return event.NewFile(afero.NewOsFs(), cfg.Changelog.File.Path), noop, nil
	default:
		return nil, nil, fmt.Errorf("unknown changelog publisher %q", cfg.Changelog.Publisher)
	}
}
