package manifest

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/schaermu/prezsyncd/internal/rdf"
	"github.com/schaermu/prezsyncd/internal/vocab"
)

// ErrNoCatalogue is returned when no catalogue node can be identified.
var ErrNoCatalogue = errors.New("no catalogue found")

var hasPartPredicates = []string{vocab.SchemaHasPart, vocab.DCTermsHasPart}

// Catalogue is an immutable snapshot of a catalogue artifact.
type Catalogue struct {
	IRI   string
	Path  string
	graph *rdf.Graph
}

// NewCatalogue finds the catalogue node in g.
func NewCatalogue(path string, g *rdf.Graph) (*Catalogue, error) {
	iri, _, err := FindMainEntity(g, CatalogueMatchers())
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, ErrNoCatalogue, err)
	}
	return &Catalogue{IRI: iri, Path: path, graph: g.Clone()}, nil
}

// GraphIRI names the remote graph holding the catalogue's own triples.
func (c *Catalogue) GraphIRI() string { return c.IRI + vocab.CatalogueGraphSuffix }

// Graph returns a copy of the catalogue graph.
func (c *Catalogue) Graph() *rdf.Graph { return c.graph.Clone() }

// Parts lists the has-part members, sorted.
func (c *Catalogue) Parts() []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range hasPartPredicates {
		for _, o := range c.graph.Objects(rdf.IRI(c.IRI), rdf.IRI(p)) {
			if o.IsIRI() && !seen[o.Value] {
				seen[o.Value] = true
				out = append(out, o.Value)
			}
		}
	}
	sort.Strings(out)
	return out
}

// HasPart reports whether iri is a member.
func (c *Catalogue) HasPart(iri string) bool {
	for _, p := range c.Parts() {
		if p == iri {
			return true
		}
	}
	return false
}

// WithPart returns a snapshot with iri added as a member and the
// modification date set to now. Adding an existing member is a no-op.
func (c *Catalogue) WithPart(iri string, now time.Time) *Catalogue {
	if c.HasPart(iri) {
		return c
	}
	g := c.graph.Clone()
	g.Add(rdf.T(rdf.IRI(c.IRI), rdf.IRI(vocab.SchemaHasPart), rdf.IRI(iri)))
	touch(g, c.IRI, now)
	return &Catalogue{IRI: c.IRI, Path: c.Path, graph: g}
}

func touch(g *rdf.Graph, iri string, now time.Time) {
	g.Remove(rdf.IRI(iri), rdf.IRI(vocab.SchemaDateModified), rdf.Any)
	g.Add(rdf.T(rdf.IRI(iri), rdf.IRI(vocab.SchemaDateModified),
		rdf.TypedLiteral(now.UTC().Format(time.RFC3339), vocab.XSDDateTime)))
}

// Name returns a display name for the catalogue.
func (c *Catalogue) Name() string {
	if v, ok := c.graph.FirstValue(rdf.IRI(c.IRI), vocab.SchemaName, vocab.DCTermsTitle, vocab.SKOSPrefLabel); ok {
		return v.Value
	}
	return c.IRI
}

// BuildCatalogue creates a catalogue typed schema:DataCatalog whose members
// are the main entities of every ResourceData descriptor.
func BuildCatalogue(iri, path string, descs []Descriptor, now time.Time) *Catalogue {
	g := rdf.NewGraph(rdf.T(rdf.IRI(iri), rdf.IRI(vocab.RDFType), rdf.IRI(vocab.SchemaDataCatalog)))
	for _, d := range descs {
		if d.Role == vocab.RoleResourceData && d.MainEntity != "" {
			g.Add(rdf.T(rdf.IRI(iri), rdf.IRI(vocab.SchemaHasPart), rdf.IRI(d.MainEntity)))
		}
	}
	touch(g, iri, now)
	return &Catalogue{IRI: iri, Path: path, graph: g}
}
