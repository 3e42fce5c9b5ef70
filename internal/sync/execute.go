package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/multierr"

	"github.com/schaermu/prezsyncd/internal/manifest"
	"github.com/schaermu/prezsyncd/internal/vocab"
)

// ErrCatalogueRefresh is returned when the remote catalogue could not be
// rebuilt after remote additions. The run must be considered failed.
var ErrCatalogueRefresh = errors.New("failed to refresh remote catalogue")

// Options gates the write phases of Apply
type Options struct {
	UpdateRemote bool
	UpdateLocal  bool
	AddRemote    bool
	AddLocal     bool
}

// AllEnabled enables every write phase
func AllEnabled() Options {
	return Options{UpdateRemote: true, UpdateLocal: true, AddRemote: true, AddLocal: true}
}

// enabled reports whether d is allowed to write under o
func (o Options) enabled(d Direction) bool {
	switch d {
	case DirectionUpload:
		return o.UpdateRemote
	case DirectionDownload:
		return o.UpdateLocal
	case DirectionAddRemotely:
		return o.AddRemote
	case DirectionAddLocally:
		return o.AddLocal
	default:
		return false
	}
}

// Executor applies a plan to the remote store and local storage
type Executor struct {
	remote  Remote
	store   *manifest.Store
	content ContentReader
	logger  *slog.Logger
	now     func() time.Time
}

// NewExecutor creates an executor
func NewExecutor(remote Remote, store *manifest.Store, content ContentReader, logger *slog.Logger) *Executor {
	return &Executor{
		remote:  remote,
		store:   store,
		content: content,
		logger:  logger,
		now:     time.Now,
	}
}

// Apply performs the writes of plan in order. Per-entry failures are
// combined into the returned error without stopping the run; a failed
// catalogue refresh wraps ErrCatalogueRefresh. The returned manifest is
// the snapshot after local additions.
func (e *Executor) Apply(ctx context.Context, m *manifest.Manifest, plan *Plan, opts Options) (*manifest.Manifest, error) {
	var (
		errs            error
		refreshRequired bool
		added           []string
	)

	for i := range plan.Entries {
		entry := &plan.Entries[i]
		if !entry.Sync || !opts.enabled(entry.Direction) {
			continue
		}

		var err error
		switch entry.Direction {
		case DirectionUpload:
			e.logger.Info("uploading artifact", "artifact", entry.Key, "graph", entry.Graph)
			err = e.upload(ctx, entry, false)
		case DirectionAddRemotely:
			e.logger.Info("adding artifact remotely", "artifact", entry.Key, "graph", entry.Graph)
			if err = e.upload(ctx, entry, true); err == nil {
				refreshRequired = true
				if entry.Descriptor.Role == vocab.RoleResourceData {
					added = append(added, entry.MainEntity)
				}
			}
		case DirectionAddLocally:
			e.logger.Info("adding artifact locally", "main_entity", entry.MainEntity)
			if m, err = e.addLocally(ctx, m, entry); err == nil {
				refreshRequired = true
			}
		case DirectionDownload:
			e.logger.Info("downloading artifact", "artifact", entry.Key, "graph", entry.Graph)
			err = e.download(ctx, entry)
		}
		if err != nil {
			e.logger.Error("artifact sync failed", "artifact", entry.Key, "direction", entry.Direction, "error", err)
			errs = multierr.Append(errs, fmt.Errorf("%s (%s): %w", entry.Key, entry.Direction, err))
		}
	}

	if refreshRequired {
		if err := e.refreshCatalogue(ctx, m, plan, added); err != nil {
			return m, multierr.Append(errs, fmt.Errorf("%w: %v", ErrCatalogueRefresh, err))
		}
	}
	return m, errs
}

// upload writes the local artifact into its remote graph. Existing graphs
// are replaced wholesale; new ones need no prior clear.
func (e *Executor) upload(ctx context.Context, entry *Entry, isNew bool) error {
	if entry.Descriptor == nil {
		return fmt.Errorf("no local artifact for %s", entry.MainEntity)
	}
	g, err := e.content.Content(ctx, entry.Descriptor.Location)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}
	if !isNew {
		if err := e.remote.DropGraph(ctx, entry.Graph); err != nil {
			return fmt.Errorf("failed to clear remote graph: %w", err)
		}
	}
	if err := e.remote.ReplaceGraph(ctx, entry.Graph, g, false); err != nil {
		return fmt.Errorf("failed to write remote graph: %w", err)
	}
	return nil
}

// download overwrites the local artifact with the remote graph content
func (e *Executor) download(ctx context.Context, entry *Entry) error {
	if entry.Descriptor == nil || entry.Descriptor.Location.IsRemote() {
		return fmt.Errorf("artifact %s is not a local file", entry.Key)
	}
	g, err := e.remote.GetGraph(ctx, entry.Graph)
	if err != nil {
		return fmt.Errorf("failed to fetch remote graph: %w", err)
	}
	return e.store.WriteGraph(entry.Descriptor.Location.Path, entry.MainEntity, g)
}

// addLocally materializes a remote-only entity as a new local artifact,
// registers it in the manifest and the local catalogue and commits both.
func (e *Executor) addLocally(ctx context.Context, m *manifest.Manifest, entry *Entry) (*manifest.Manifest, error) {
	cat, err := e.store.LoadCatalogue(m)
	if err != nil {
		return m, err
	}
	g, err := e.remote.GetGraph(ctx, entry.Graph)
	if err != nil {
		return m, fmt.Errorf("failed to fetch remote graph: %w", err)
	}

	path := e.localPath(m, entry.MainEntity)
	if err := e.store.WriteGraph(path, entry.MainEntity, g); err != nil {
		return m, fmt.Errorf("failed to write artifact: %w", err)
	}

	next := m.WithResource(vocab.RoleResourceData, m.RelPath(path), entry.MainEntity)
	if err := e.store.Commit(next); err != nil {
		return m, err
	}
	if err := e.store.CommitCatalogue(cat.WithPart(entry.MainEntity, e.now())); err != nil {
		return next, err
	}
	return next, nil
}

var slugUnsafe = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// localPath derives a file name in the manifest directory from the IRI's
// last path segment, falling back to a content hash of the IRI when the
// segment is unusable or already taken.
func (e *Executor) localPath(m *manifest.Manifest, iri string) string {
	trimmed := strings.TrimRight(iri, "/#")
	slug := trimmed[strings.LastIndexAny(trimmed, "/#:")+1:]
	slug = strings.Trim(slugUnsafe.ReplaceAllString(slug, "-"), "-.")
	if slug != "" {
		p := filepath.Join(m.Root, slug+".ttl")
		if !e.store.Exists(p) {
			return p
		}
	}
	sum := blake3.Sum256([]byte(iri))
	return filepath.Join(m.Root, fmt.Sprintf("%s-%x.ttl", slugOr(slug, "artifact"), sum[:6]))
}

func slugOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// refreshCatalogue adds a has-part edge for every entity in added to the
// local catalogue, commits it when it changed, then drops the remote
// catalogue graph and uploads the local catalogue in full.
func (e *Executor) refreshCatalogue(ctx context.Context, m *manifest.Manifest, plan *Plan, added []string) error {
	cat, err := e.store.LoadCatalogue(m)
	if err != nil {
		return err
	}

	next := cat
	now := e.now()
	for _, iri := range added {
		next = next.WithPart(iri, now)
	}
	if next != cat {
		e.logger.Info("registering new entities in catalogue", "catalogue", cat.IRI, "count", len(added))
		if err := e.store.CommitCatalogue(next); err != nil {
			return err
		}
	}

	graph := next.GraphIRI()
	if entry, ok := plan.Catalogue(); ok && entry.Graph != "" {
		graph = entry.Graph
	}

	e.logger.Info("refreshing remote catalogue", "graph", graph)
	if err := e.remote.DropGraph(ctx, graph); err != nil {
		return err
	}
	return e.remote.ReplaceGraph(ctx, graph, next.Graph(), false)
}

var _ ContentReader = (*manifest.Resolver)(nil)
