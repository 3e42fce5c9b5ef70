// Package changelog produces the RDF patch log of a manifest repository:
// every run diffs the dataset of the current commit against the commit
// last recorded in the remote system graph and publishes the difference.
package changelog

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/schaermu/prezsyncd/internal/event"
	"github.com/schaermu/prezsyncd/internal/git"
	"github.com/schaermu/prezsyncd/internal/metrics"
	"github.com/schaermu/prezsyncd/internal/rdf"
	"github.com/schaermu/prezsyncd/internal/vocab"
)

// Patch kinds
const (
	KindAdd  = "add"
	KindDiff = "diff"
)

// DatasetLoader builds the dataset of the manifest at a path.
type DatasetLoader interface {
	LoadPath(ctx context.Context, manifestPath string) (*rdf.Dataset, error)
}

// Remote reads the remote system graph.
type Remote interface {
	GetGraph(ctx context.Context, graph string) (*rdf.Graph, error)
}

// Result describes one change-log run.
type Result struct {
	Kind           string
	Commit         string
	PreviousCommit string
	// Patch is nil when nothing changed since the recorded commit.
	Patch *event.Patch
}

// Engine runs the change-log process
type Engine struct {
	fs        afero.Fs
	loader    DatasetLoader
	remote    Remote
	revisions git.Revisions
	publisher event.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// NewEngine creates a change-log engine. fs must be the filesystem the
// loader reads from; previous revisions are checked out into it.
func NewEngine(fs afero.Fs, loader DatasetLoader, remote Remote, revisions git.Revisions, publisher event.Publisher, m *metrics.Metrics, logger *slog.Logger) *Engine {
	return &Engine{
		fs:        fs,
		loader:    loader,
		remote:    remote,
		revisions: revisions,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// Run publishes the patch for the manifest at manifestPath. The manifest
// must live inside a git working tree.
func (e *Engine) Run(ctx context.Context, manifestPath string) (res Result, err error) {
	started := e.now()
	defer func() { e.metrics.ObserveRun("changelog", started, err) }()

	manifestPath, err = filepath.Abs(manifestPath)
	if err != nil {
		return res, err
	}

	// Step 1: current dataset and its identity
	current, err := e.loader.LoadPath(ctx, manifestPath)
	if err != nil {
		return res, fmt.Errorf("failed to load manifest: %w", err)
	}
	vg, err := VirtualGraph(current)
	if err != nil {
		return res, err
	}

	repoDir, err := e.revisions.TopLevel(ctx, filepath.Dir(manifestPath))
	if err != nil {
		return res, err
	}
	res.Commit, err = e.revisions.HeadCommit(ctx, repoDir)
	if err != nil {
		return res, err
	}

	// Step 2: what the remote store last saw
	system, err := e.remote.GetGraph(ctx, vocab.OlisSystemGraph)
	if err != nil {
		return res, fmt.Errorf("failed to read remote system graph: %w", err)
	}
	markers := CommitMarkers(system, vg)
	if len(markers) > 1 {
		e.logger.Warn("remote system graph holds several commit markers", "virtual_graph", vg, "commits", markers)
	}

	// Step 3: patch body
	var body Body
	if len(markers) == 0 {
		res.Kind = KindAdd
		e.logger.Info("no commit recorded remotely, building add-only patch", "commit", res.Commit)
		if err := RecordCommit(current, res.Commit); err != nil {
			return res, err
		}
		if body, err = AddPatch(current); err != nil {
			return res, err
		}
	} else {
		res.Kind = KindDiff
		res.PreviousCommit = markers[0]
		if res.PreviousCommit == res.Commit {
			e.logger.Info("remote is at the current commit, nothing to publish", "commit", res.Commit)
			return res, nil
		}

		e.logger.Info("building differential patch", "commit", res.Commit, "previous", res.PreviousCommit)
		previous, err := e.loadRevision(ctx, repoDir, manifestPath, res.PreviousCommit)
		if err != nil {
			return res, err
		}
		if err := RecordCommit(previous, res.PreviousCommit); err != nil {
			return res, fmt.Errorf("previous revision: %w", err)
		}
		if err := RecordCommit(current, res.Commit); err != nil {
			return res, err
		}
		if body, err = DiffPatch(current, previous); err != nil {
			return res, err
		}
	}

	if body.IsEmpty() {
		e.logger.Info("datasets are identical, nothing to publish")
		return res, nil
	}

	// Step 4: chain and publish
	patch := event.NewPatch(body.Text, e.now())
	patch.Commit = res.Commit
	patch.Adds, patch.Removes = body.Adds, body.Removes
	if log, ok := e.publisher.(event.PatchLog); ok && res.Kind == KindDiff {
		if patch.Prev, err = log.LatestPatchID(ctx); err != nil {
			return res, fmt.Errorf("failed to read patch log: %w", err)
		}
	}

	if err := e.publisher.Publish(ctx, patch); err != nil {
		return res, fmt.Errorf("failed to publish patch: %w", err)
	}
	e.metrics.ObservePatch(res.Kind, patch.Adds, patch.Removes)
	e.logger.Info("published patch",
		"patch_id", patch.ID,
		"prev", patch.Prev,
		"adds", patch.Adds,
		"removes", patch.Removes)

	res.Patch = &patch
	return res, nil
}

// loadRevision builds the dataset of the manifest as of commit in a
// temporary worktree, leaving the caller's working tree untouched.
func (e *Engine) loadRevision(ctx context.Context, repoDir, manifestPath, commit string) (ds *rdf.Dataset, err error) {
	rel, err := relativeTo(repoDir, manifestPath)
	if err != nil {
		return nil, err
	}

	tmp, err := afero.TempDir(e.fs, "", "prezsyncd-rev-")
	if err != nil {
		return nil, fmt.Errorf("failed to create worktree directory: %w", err)
	}
	defer func() {
		_ = e.fs.RemoveAll(tmp)
	}()

	tree := filepath.Join(tmp, "tree")
	if err := e.revisions.AddWorktree(ctx, repoDir, commit, tree); err != nil {
		return nil, err
	}
	defer func() {
		if rmErr := e.revisions.RemoveWorktree(context.WithoutCancel(ctx), repoDir, tree); rmErr != nil {
			e.logger.Warn("failed to remove worktree", "path", tree, "error", rmErr)
		}
	}()

	ds, err = e.loader.LoadPath(ctx, filepath.Join(tree, rel))
	if err != nil {
		return nil, fmt.Errorf("failed to load manifest at %s: %w", commit, err)
	}
	return ds, nil
}

// relativeTo returns path relative to root, resolving symlinks when the
// plain paths disagree.
func relativeTo(root, path string) (string, error) {
	rel, err := filepath.Rel(root, path)
	if err == nil && !strings.HasPrefix(rel, "..") {
		return rel, nil
	}
	resolved, evalErr := filepath.EvalSymlinks(path)
	if evalErr != nil {
		return "", fmt.Errorf("manifest %s is outside repository %s", path, root)
	}
	rel, err = filepath.Rel(root, resolved)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("manifest %s is outside repository %s", path, root)
	}
	return rel, nil
}
