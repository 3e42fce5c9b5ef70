// Package pipeline chains the steps of one unattended update cycle, as run
// by the webhook server and the file watcher.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/multierr"

	"github.com/schaermu/prezsyncd/internal/changelog"
	"github.com/schaermu/prezsyncd/internal/config"
	"github.com/schaermu/prezsyncd/internal/git"
	"github.com/schaermu/prezsyncd/internal/sync"
)

// Syncer runs a sync
type Syncer interface {
	Run(ctx context.Context) (sync.Report, error)
}

// Changelogger publishes the change log of a manifest
type Changelogger interface {
	Run(ctx context.Context, manifestPath string) (changelog.Result, error)
}

// Pipeline refreshes the manifest checkout, syncs it and publishes its
// change log
type Pipeline struct {
	cfg       *config.Config
	git       git.Client
	syncer    Syncer
	changelog Changelogger
	logger    *slog.Logger
}

// New creates a pipeline. gitClient is only used when a repository is
// configured and may be nil to work on the manifest in place; changelog
// may be nil.
func New(cfg *config.Config, gitClient git.Client, syncer Syncer, cl Changelogger, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		cfg:       cfg,
		git:       gitClient,
		syncer:    syncer,
		changelog: cl,
		logger:    logger,
	}
}

// Run executes one cycle. A failed checkout aborts it; change-log and sync
// failures are independent and returned together. The change log runs
// first so it always reads the tree as committed.
func (p *Pipeline) Run(ctx context.Context) error {
	if p.git != nil && p.cfg.Repo.URL != "" {
		p.logger.Info("updating manifest checkout", "repo", p.cfg.Repo.URL, "ref", p.cfg.Repo.Ref)
		commit, err := p.git.EnsureCheckout(ctx, p.cfg.Repo.URL, p.cfg.Repo.Ref, p.cfg.RepoDir())
		if err != nil {
			return fmt.Errorf("failed to checkout repository: %w", err)
		}
		p.logger.Info("repository checked out", "commit", commit)
	}

	var errs error
	if p.changelog != nil {
		res, err := p.changelog.Run(ctx, p.cfg.ManifestPath())
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("changelog: %w", err))
		} else if res.Patch != nil {
			p.logger.Info("change log published", "patch_id", res.Patch.ID, "commit", res.Commit)
		}
	}

	if report, err := p.syncer.Run(ctx); err != nil {
		errs = multierr.Append(errs, fmt.Errorf("sync: %w", err))
	} else {
		p.logger.Info("sync finished", "artifacts", len(report))
	}
	return errs
}
