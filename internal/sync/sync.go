package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.uber.org/multierr"

	"github.com/schaermu/prezsyncd/internal/config"
	"github.com/schaermu/prezsyncd/internal/manifest"
	"github.com/schaermu/prezsyncd/internal/metrics"
	"github.com/schaermu/prezsyncd/internal/vocab"
)

// Engine orchestrates the sync process
type Engine struct {
	cfg      *config.Config
	store    *manifest.Store
	resolver *manifest.Resolver
	remote   Remote
	metrics  *metrics.Metrics
	logger   *slog.Logger
	dryRun   bool
}

// NewEngine creates a new sync engine
func NewEngine(cfg *config.Config, store *manifest.Store, resolver *manifest.Resolver, remote Remote, m *metrics.Metrics, logger *slog.Logger, dryRun bool) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    store,
		resolver: resolver,
		remote:   remote,
		metrics:  m,
		logger:   logger,
		dryRun:   dryRun,
	}
}

// Options derives the write-phase gates from the configuration
func (e *Engine) Options() Options {
	return Options{
		UpdateRemote: config.Flag(e.cfg.Sync.UpdateRemote),
		UpdateLocal:  config.Flag(e.cfg.Sync.UpdateLocal),
		AddRemote:    config.Flag(e.cfg.Sync.AddRemote),
		AddLocal:     config.Flag(e.cfg.Sync.AddLocal),
	}
}

// Run executes the complete sync process and returns the status report.
// Artifact-level failures are returned alongside a usable report.
func (e *Engine) Run(ctx context.Context) (report Report, err error) {
	started := time.Now()
	defer func() { e.metrics.ObserveRun("sync", started, err) }()

	manifestPath := e.cfg.ManifestPath()
	e.logger.Info("starting sync",
		"manifest", manifestPath,
		"endpoint", e.cfg.Endpoint.URL,
		"dry_run", e.dryRun)

	// Load manifest
	m, err := e.store.Load(manifestPath)
	if err != nil {
		return nil, err
	}

	// Resolve artifacts
	descs, resolveErr := e.resolver.Resolve(ctx, m)
	e.metrics.ObserveArtifactErrors(len(multierr.Errors(resolveErr)))
	if err := requireCatalogue(m, descs); err != nil {
		return nil, multierr.Append(err, resolveErr)
	}
	e.logger.Info("resolved artifacts", "count", len(descs), "failed", len(multierr.Errors(resolveErr)))

	// Build plan
	planner := NewPlanner(e.remote, e.resolver, e.cfg.Sync.Incomparable, e.logger)
	plan, err := planner.Plan(ctx, descs)
	if err != nil {
		return nil, fmt.Errorf("failed to build sync plan: %w", err)
	}

	// A remote-only entity may be the twin of an artifact that failed to
	// resolve, so nothing is written locally for it in this run.
	if unresolvedIdentity(resolveErr) {
		if n := plan.holdAddLocally(); n > 0 {
			e.logger.Warn("holding remote-only entities until all artifacts resolve", "entities", n)
		}
	}

	// Log plan
	counts := plan.Count()
	e.logger.Info("sync plan",
		"upload", counts[DirectionUpload],
		"download", counts[DirectionDownload],
		"same", counts[DirectionSame],
		"add_remotely", counts[DirectionAddRemotely],
		"add_locally", counts[DirectionAddLocally])
	e.metrics.ObservePlan(countLabels(counts))

	// check for dry-run mode
	if e.dryRun {
		e.logPlanDetails(plan)
		e.logger.Info("dry-run complete, no changes applied")
		return plan.Report(), resolveErr
	}

	// Apply plan
	executor := NewExecutor(e.remote, e.store, e.resolver, e.logger)
	if _, applyErr := executor.Apply(ctx, m, plan, e.Options()); applyErr != nil {
		e.metrics.ObserveArtifactErrors(len(multierr.Errors(applyErr)))
		if errors.Is(applyErr, ErrCatalogueRefresh) {
			return plan.Report(), multierr.Append(resolveErr, applyErr)
		}
		resolveErr = multierr.Append(resolveErr, applyErr)
	}

	if resolveErr != nil {
		e.logger.Warn("sync completed with errors", "errors", len(multierr.Errors(resolveErr)))
		return plan.Report(), resolveErr
	}
	e.logger.Info("sync completed successfully")
	return plan.Report(), nil
}

// requireCatalogue fails the run when the manifest declares a catalogue
// whose identity could not be resolved.
func requireCatalogue(m *manifest.Manifest, descs []manifest.Descriptor) error {
	_, declared, err := m.CatalogueResource()
	if err != nil {
		return err
	}
	if !declared {
		return nil
	}
	for _, d := range descs {
		if d.Role == vocab.RoleCatalogueData {
			return nil
		}
	}
	return fmt.Errorf("%s: %w: catalogue artifact did not resolve", m.Path, manifest.ErrNoCatalogue)
}

// unresolvedIdentity reports whether err holds a failure for an artifact
// that would have had a main entity.
func unresolvedIdentity(err error) bool {
	for _, e := range multierr.Errors(err) {
		var re *manifest.ResolutionError
		if !errors.As(e, &re) || re.Role.RequiresIdentity() {
			return true
		}
	}
	return false
}

// logPlanDetails logs detailed plan information for dry-run
func (e *Engine) logPlanDetails(plan *Plan) {
	for _, entry := range plan.Entries {
		if !entry.Sync {
			e.logger.Info("[dry-run] excluded from sync", "artifact", entry.Key, "direction", entry.Direction)
			continue
		}
		if entry.Direction == DirectionSame {
			continue
		}
		e.logger.Info("[dry-run] would "+string(entry.Direction),
			"artifact", entry.Key,
			"main_entity", entry.MainEntity,
			"graph", entry.Graph)
	}
}

func countLabels(counts map[Direction]int) map[string]int {
	out := make(map[string]int, len(counts))
	for d, n := range counts {
		out[string(d)] = n
	}
	return out
}

// Keys returns the report keys in a stable order
func (r Report) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
