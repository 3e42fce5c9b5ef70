package loader

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/prezsyncd/internal/manifest"
	"github.com/schaermu/prezsyncd/internal/rdf"
	"github.com/schaermu/prezsyncd/internal/sparql"
	"github.com/schaermu/prezsyncd/internal/testutil"
	"github.com/schaermu/prezsyncd/internal/vocab"
)

const root = "/data"

func newLoader(t *testing.T, extra map[string]string) *Loader {
	t.Helper()
	fs := afero.NewMemMapFs()
	testutil.WriteFiles(t, fs, testutil.DemoFiles(root))
	testutil.WriteFiles(t, fs, extra)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(manifest.NewStore(fs), manifest.NewResolver(fs, nil, logger), logger)
}

func aliases(ds *rdf.Dataset, vg string) []string {
	system, _ := ds.Lookup(rdf.IRI(vocab.OlisSystemGraph))
	var out []string
	for _, o := range system.Objects(rdf.IRI(vg), rdf.IRI(vocab.OlisIsAliasFor)) {
		out = append(out, o.Value)
	}
	return out
}

func TestLoad(t *testing.T) {
	l := newLoader(t, nil)
	ds, err := l.LoadPath(context.Background(), filepath.Join(root, "manifest.ttl"))
	require.NoError(t, err)

	var names []string
	for _, n := range ds.Names() {
		names = append(names, n.Value)
	}
	assert.ElementsMatch(t, []string{
		testutil.DemoCatalogue + "-catalogue",
		testutil.DemoVocabA,
		testutil.DemoVocabB,
		vocab.BackgroundGraph,
		vocab.OlisSystemGraph,
	}, names)

	system, ok := ds.Lookup(rdf.IRI(vocab.OlisSystemGraph))
	require.True(t, ok)
	assert.True(t, system.Has(rdf.T(rdf.IRI(testutil.DemoCatalogue), rdf.IRI(vocab.RDFType), rdf.IRI(vocab.OlisVirtualGraph))))
	name, ok := system.Value(rdf.IRI(testutil.DemoCatalogue), rdf.IRI(vocab.SchemaName))
	require.True(t, ok)
	assert.Equal(t, "Demo catalogue", name.Value)

	assert.ElementsMatch(t, []string{
		testutil.DemoCatalogue + "-catalogue",
		testutil.DemoVocabA,
		testutil.DemoVocabB,
		vocab.BackgroundGraph,
	}, aliases(ds, testutil.DemoCatalogue))
}

func TestLoadQuadsArtifact(t *testing.T) {
	manifestTTL := testutil.Prefixes + `
[] a prez:Manifest ;
    prof:hasResource
        [ prof:hasArtifact "catalogue.ttl" ; prof:hasRole mrr:CatalogueData ] ,
        [ prof:hasArtifact "bundle.nq" ; prof:hasRole mrr:ResourceData ] .
`
	bundle := `<http://example.com/ds/1> <http://www.w3.org/1999/02/22-rdf-syntax-ns#type> <https://schema.org/Dataset> <http://example.com/g/1> .
<http://example.com/ds/1> <https://schema.org/name> "one" <http://example.com/g/2> .
`
	l := newLoader(t, map[string]string{
		filepath.Join(root, "manifest.ttl"): manifestTTL,
		filepath.Join(root, "bundle.nq"):    bundle,
	})

	ds, err := l.LoadPath(context.Background(), filepath.Join(root, "manifest.ttl"))
	require.NoError(t, err)

	_, ok := ds.Lookup(rdf.IRI("http://example.com/g/1"))
	assert.True(t, ok)
	assert.Contains(t, aliases(ds, testutil.DemoCatalogue), "http://example.com/g/2")
	assert.NotContains(t, aliases(ds, testutil.DemoCatalogue), vocab.BackgroundGraph)
}

func TestLoadRequiresCatalogue(t *testing.T) {
	l := newLoader(t, map[string]string{
		filepath.Join(root, "manifest.ttl"): testutil.Prefixes + `
[] a prez:Manifest ;
    prof:hasResource [ prof:hasArtifact "vocabs/*.ttl" ; prof:hasRole mrr:ResourceData ] .
`,
	})

	_, err := l.LoadPath(context.Background(), filepath.Join(root, "manifest.ttl"))
	assert.ErrorIs(t, err, manifest.ErrNoCatalogue)
}

func TestUploadAppendsSystemGraph(t *testing.T) {
	l := newLoader(t, nil)
	ds, err := l.LoadPath(context.Background(), filepath.Join(root, "manifest.ttl"))
	require.NoError(t, err)

	store := testutil.NewFakeStore(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := sparql.New(store.URL(), sparql.Options{}, logger)
	require.NoError(t, Upload(context.Background(), client, ds, logger))

	ops := store.Ops()
	assert.Contains(t, ops, "POST <"+vocab.OlisSystemGraph+">")
	assert.Contains(t, ops, "PUT <"+testutil.DemoVocabA+">")
	assert.Equal(t, 5, len(ops))
	assert.Equal(t, ds.Graph(rdf.IRI(testutil.DemoVocabA)).Len(), store.Graph(testutil.DemoVocabA).Len())
}

func TestExport(t *testing.T) {
	l := newLoader(t, nil)
	ds, err := l.LoadPath(context.Background(), filepath.Join(root, "manifest.ttl"))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, Export(&buf, ds))

	back, err := rdf.ParseDataset(strings.NewReader(buf.String()), rdf.FormatNQuads)
	require.NoError(t, err)
	assert.Equal(t, ds.Len(), back.Len())
}
