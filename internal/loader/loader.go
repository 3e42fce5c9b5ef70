// Package loader turns a manifest into the complete dataset served by the
// remote store: one named graph per resource, the catalogue graph, the
// background label graph and the system graph entries tying them together
// under a virtual graph.
package loader

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/schaermu/prezsyncd/internal/manifest"
	"github.com/schaermu/prezsyncd/internal/rdf"
	"github.com/schaermu/prezsyncd/internal/vocab"
)

// Loader builds manifest datasets
type Loader struct {
	store    *manifest.Store
	resolver *manifest.Resolver
	logger   *slog.Logger
}

// New creates a loader
func New(store *manifest.Store, resolver *manifest.Resolver, logger *slog.Logger) *Loader {
	return &Loader{
		store:    store,
		resolver: resolver,
		logger:   logger,
	}
}

// LoadPath reads the manifest at path and loads it.
func (l *Loader) LoadPath(ctx context.Context, path string) (*rdf.Dataset, error) {
	m, err := l.store.Load(path)
	if err != nil {
		return nil, err
	}
	return l.Load(ctx, m)
}

// Load builds the dataset for m. Unlike a sync run, any artifact that
// fails to resolve fails the load.
func (l *Loader) Load(ctx context.Context, m *manifest.Manifest) (*rdf.Dataset, error) {
	descs, err := l.resolver.Resolve(ctx, m)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve manifest %s: %w", m.Path, err)
	}

	ds := rdf.NewDataset()
	system := ds.Graph(rdf.IRI(vocab.OlisSystemGraph))

	// Step 1: the catalogue defines the virtual graph
	var vg rdf.Term
	for _, d := range descs {
		if d.Role != vocab.RoleCatalogueData {
			continue
		}
		g, err := l.resolver.Content(ctx, d.Location)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalogue %s: %w", d.Key, err)
		}
		cat, err := manifest.NewCatalogue(d.Location.Path, g)
		if err != nil {
			return nil, err
		}
		vg = rdf.IRI(cat.IRI)
		catGraph := rdf.IRI(cat.GraphIRI())

		system.Add(rdf.T(vg, rdf.IRI(vocab.RDFType), rdf.IRI(vocab.OlisVirtualGraph)))
		system.Add(rdf.T(vg, rdf.IRI(vocab.OlisIsAliasFor), catGraph))
		system.Add(rdf.T(vg, rdf.IRI(vocab.SchemaName), rdf.Literal(cat.Name())))
		ds.Graph(catGraph).Union(g)
		l.logger.Debug("loaded catalogue", "graph", catGraph.Value)
		break
	}
	if vg.Value == "" {
		return nil, fmt.Errorf("%s: %w", m.Path, manifest.ErrNoCatalogue)
	}

	// Step 2: resource data and labels
	for _, d := range descs {
		switch {
		case d.Role == vocab.RoleResourceData:
			names, err := l.loadResource(ctx, ds, d)
			if err != nil {
				return nil, err
			}
			for _, n := range names {
				system.Add(rdf.T(vg, rdf.IRI(vocab.OlisIsAliasFor), n))
			}
		case d.Role.IsLabels():
			g, err := l.resolver.Content(ctx, d.Location)
			if err != nil {
				return nil, fmt.Errorf("failed to read labels %s: %w", d.Key, err)
			}
			bg := rdf.IRI(vocab.BackgroundGraph)
			ds.Graph(bg).Union(g)
			system.Add(rdf.T(vg, rdf.IRI(vocab.OlisIsAliasFor), bg))
		}
	}

	l.logger.Info("loaded manifest", "manifest", m.Path, "graphs", len(ds.Names()), "quads", ds.Len())
	return ds, nil
}

// loadResource places one resource artifact into ds and returns the graph
// names it filled. Quads files keep their own graph names.
func (l *Loader) loadResource(ctx context.Context, ds *rdf.Dataset, d manifest.Descriptor) ([]rdf.Term, error) {
	if !d.Location.IsRemote() {
		format, err := rdf.FormatForPath(d.Location.Path)
		if err == nil && format.IsQuads() {
			src, err := l.store.ReadDataset(d.Location.Path)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", d.Key, err)
			}
			var names []rdf.Term
			for _, n := range src.Names() {
				g, _ := src.Lookup(n)
				if n.IsAny() {
					n = rdf.IRI(d.MainEntity)
				}
				ds.Graph(n).Union(g)
				names = append(names, n)
			}
			return names, nil
		}
	}

	g, err := l.resolver.Content(ctx, d.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", d.Key, err)
	}
	name := rdf.IRI(d.MainEntity)
	ds.Graph(name).Union(g)
	return []rdf.Term{name}, nil
}

// GraphWriter is the part of the remote store the loader uploads through.
type GraphWriter interface {
	ReplaceGraph(ctx context.Context, graph string, g *rdf.Graph, appendOnly bool) error
}

// Upload writes every named graph of ds to the remote store. Graphs are
// replaced, except the system graph which is shared with other datasets
// and only appended to.
func Upload(ctx context.Context, w GraphWriter, ds *rdf.Dataset, logger *slog.Logger) error {
	for _, n := range ds.Names() {
		if n.IsAny() {
			continue
		}
		g, _ := ds.Lookup(n)
		appendOnly := n.Value == vocab.OlisSystemGraph
		logger.Info("uploading graph", "graph", n.Value, "triples", g.Len(), "append", appendOnly)
		if err := w.ReplaceGraph(ctx, n.Value, g, appendOnly); err != nil {
			return fmt.Errorf("failed to upload graph %s: %w", n.Value, err)
		}
	}
	return nil
}

// Export writes ds as N-Quads.
func Export(w io.Writer, ds *rdf.Dataset) error {
	return rdf.WriteNQuads(w, ds)
}
