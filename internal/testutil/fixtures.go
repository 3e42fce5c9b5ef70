package testutil

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"

	"github.com/schaermu/prezsyncd/internal/rdf"
)

// Prefixes declares the namespaces used by the fixtures.
const Prefixes = `@prefix dcat: <http://www.w3.org/ns/dcat#> .
@prefix dcterms: <http://purl.org/dc/terms/> .
@prefix mrr: <https://prez.dev/ManifestResourceRoles/> .
@prefix owl: <http://www.w3.org/2002/07/owl#> .
@prefix prez: <https://prez.dev/> .
@prefix prof: <http://www.w3.org/ns/dx/prof/> .
@prefix rdf: <http://www.w3.org/1999/02/22-rdf-syntax-ns#> .
@prefix schema: <https://schema.org/> .
@prefix skos: <http://www.w3.org/2004/02/skos/core#> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .
`

// Demo IRIs
const (
	DemoCatalogue = "http://example.com/catalogue"
	DemoVocabA    = "http://example.com/vocab/a"
	DemoVocabB    = "http://example.com/vocab/b"
)

// DemoManifest is a manifest with a catalogue, a glob of two vocabularies
// and a labels file.
const DemoManifest = Prefixes + `
<http://example.com/manifest> a prez:Manifest ;
    prof:hasResource
        [ prof:hasArtifact "catalogue.ttl" ; prof:hasRole mrr:CatalogueData ] ,
        [ prof:hasArtifact "vocabs/*.ttl" ; prof:hasRole mrr:ResourceData ] ,
        [ prof:hasArtifact "labels.ttl" ; prof:hasRole mrr:CompleteCatalogueAndResourceLabels ] .
`

// CatalogueTTL returns a catalogue listing parts.
func CatalogueTTL(modified string, parts ...string) string {
	var sb strings.Builder
	sb.WriteString(Prefixes)
	fmt.Fprintf(&sb, "\n<%s> a dcat:Catalog ;\n    schema:name \"Demo catalogue\" ;\n    schema:dateModified \"%s\"^^xsd:date", DemoCatalogue, modified)
	for _, p := range parts {
		fmt.Fprintf(&sb, " ;\n    schema:hasPart <%s>", p)
	}
	sb.WriteString(" .\n")
	return sb.String()
}

// VocabTTL returns a concept scheme with one concept. The concept carries
// a blank node definition so canonicalization is exercised.
func VocabTTL(iri, modified string) string {
	return Prefixes + fmt.Sprintf(`
<%[1]s> a skos:ConceptScheme ;
    schema:dateModified "%[2]s"^^xsd:date ;
    skos:prefLabel "Vocab %[1]s"@en .

<%[1]s/c1> a skos:Concept ;
    skos:inScheme <%[1]s> ;
    skos:prefLabel "Concept one"@en ;
    skos:definition [ rdf:value "A concept" ] .
`, iri, modified)
}

// DemoFiles returns the demo manifest tree rooted at root.
func DemoFiles(root string) map[string]string {
	return map[string]string{
		filepath.Join(root, "manifest.ttl"):    DemoManifest,
		filepath.Join(root, "catalogue.ttl"):   CatalogueTTL("2025-01-01", DemoVocabA, DemoVocabB),
		filepath.Join(root, "vocabs", "a.ttl"): VocabTTL(DemoVocabA, "2025-01-10"),
		filepath.Join(root, "vocabs", "b.ttl"): VocabTTL(DemoVocabB, "2025-01-05"),
		filepath.Join(root, "labels.ttl"):      Prefixes + "\n<" + DemoVocabA + "> schema:name \"Vocab A\" .\n",
	}
}

// WriteFiles writes files to fs, creating parent directories.
func WriteFiles(t testing.TB, fs afero.Fs, files map[string]string) {
	t.Helper()
	for name, content := range files {
		if err := fs.MkdirAll(filepath.Dir(name), 0755); err != nil {
			t.Fatal(err)
		}
		if err := afero.WriteFile(fs, name, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
}

// ParseTurtle parses a Turtle document or fails the test.
func ParseTurtle(t testing.TB, doc string) *rdf.Graph {
	t.Helper()
	g, err := rdf.ParseGraph(strings.NewReader(doc), rdf.FormatTurtle)
	if err != nil {
		t.Fatalf("failed to parse turtle: %v", err)
	}
	return g
}
